package queries

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

// StateInput requests the orchestrator snapshot.
type StateInput struct{}

type stateService interface {
	Snapshot() dashboard.State
}

// StateQuery returns the immutable orchestrator snapshot.
type StateQuery struct {
	service stateService
}

// NewStateQuery builds the query.
func NewStateQuery(service stateService) *StateQuery {
	return &StateQuery{service: service}
}

var _ gocommand.Querier[StateInput, dashboard.State] = (*StateQuery)(nil)

// Query returns the current snapshot.
func (q *StateQuery) Query(_ context.Context, _ StateInput) (dashboard.State, error) {
	return q.service.Snapshot(), nil
}

// DashboardsInput requests the dashboard list.
type DashboardsInput struct{}

type dashboardsService interface {
	LoadDashboards(ctx context.Context) ([]dashboard.DashboardSummary, error)
}

// DashboardsQuery reloads the dashboard list from the backend.
type DashboardsQuery struct {
	service dashboardsService
}

// NewDashboardsQuery builds the query.
func NewDashboardsQuery(service dashboardsService) *DashboardsQuery {
	return &DashboardsQuery{service: service}
}

var _ gocommand.Querier[DashboardsInput, []dashboard.DashboardSummary] = (*DashboardsQuery)(nil)

// Query lists dashboards.
func (q *DashboardsQuery) Query(ctx context.Context, _ DashboardsInput) ([]dashboard.DashboardSummary, error) {
	return q.service.LoadDashboards(ctx)
}
