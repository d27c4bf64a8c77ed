package httpapi

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-metricsboard/components/dashboard"
	"github.com/goliatone/go-metricsboard/components/dashboard/commands"
	"github.com/goliatone/go-metricsboard/components/dashboard/queries"
)

var errCommandUnavailable = errors.New("httpapi: command not configured")

// Executor is the command surface shared by the HTTP adapters.
type Executor interface {
	SelectDashboard(ctx context.Context, input commands.SelectDashboardInput) error
	CreateDashboard(ctx context.Context, input commands.CreateDashboardInput) error
	UpdateDashboard(ctx context.Context, input commands.UpdateDashboardInput) error
	DeleteDashboard(ctx context.Context, input commands.DeleteDashboardInput) error
	SetDefaultDashboard(ctx context.Context, input commands.SetDefaultDashboardInput) error
	SetMetricVisibility(ctx context.Context, input commands.SetMetricVisibilityInput) error
	AddMetric(ctx context.Context, input commands.AddMetricInput) error
	RemoveMetric(ctx context.Context, input commands.RemoveMetricInput) error
	ReorderMetrics(ctx context.Context, input commands.ReorderMetricsInput) error
	MoveMetric(ctx context.Context, input commands.MoveMetricInput) error
	ApplyFilters(ctx context.Context, input commands.ApplyFiltersInput) error
	SaveFilters(ctx context.Context, input commands.SaveFiltersInput) error
	ResetFilters(ctx context.Context, input commands.ResetFiltersInput) error
	Refresh(ctx context.Context, input commands.RefreshMetricsInput) error
}

// Reader is the query surface shared by the HTTP adapters.
type Reader interface {
	State(ctx context.Context) (dashboard.State, error)
	Dashboards(ctx context.Context) ([]dashboard.DashboardSummary, error)
	MetricFilters(ctx context.Context, input queries.MetricFiltersInput) (queries.MetricFilters, error)
	ReferenceList(ctx context.Context, input queries.ReferenceListInput) ([]dashboard.ReferenceItem, error)
}

// CommandExecutor routes Executor calls to go-command commanders.
type CommandExecutor struct {
	SelectCommander       gocommand.Commander[commands.SelectDashboardInput]
	CreateCommander       gocommand.Commander[commands.CreateDashboardInput]
	UpdateCommander       gocommand.Commander[commands.UpdateDashboardInput]
	DeleteCommander       gocommand.Commander[commands.DeleteDashboardInput]
	SetDefaultCommander   gocommand.Commander[commands.SetDefaultDashboardInput]
	VisibilityCommander   gocommand.Commander[commands.SetMetricVisibilityInput]
	AddMetricCommander    gocommand.Commander[commands.AddMetricInput]
	RemoveMetricCommander gocommand.Commander[commands.RemoveMetricInput]
	ReorderCommander      gocommand.Commander[commands.ReorderMetricsInput]
	MoveCommander         gocommand.Commander[commands.MoveMetricInput]
	ApplyFiltersCommander gocommand.Commander[commands.ApplyFiltersInput]
	SaveFiltersCommander  gocommand.Commander[commands.SaveFiltersInput]
	ResetFiltersCommander gocommand.Commander[commands.ResetFiltersInput]
	RefreshCommander      gocommand.Commander[commands.RefreshMetricsInput]
}

var _ Executor = (*CommandExecutor)(nil)

// Service is the orchestrator surface NewCommandExecutor wires against.
type Service interface {
	LoadDashboard(ctx context.Context, id int64) (*dashboard.FetchHandle, error)
	CreateDashboard(ctx context.Context, input dashboard.DashboardInput) (dashboard.DashboardSummary, error)
	UpdateDashboard(ctx context.Context, id int64, input dashboard.DashboardInput) (dashboard.DashboardSummary, error)
	DeleteDashboard(ctx context.Context, id int64) error
	SetDefaultDashboard(ctx context.Context, id int64) error
	SetMetricVisibility(ctx context.Context, metricID int64, visible bool) error
	AddMetric(ctx context.Context, metricID int64) error
	RemoveMetric(ctx context.Context, metricID int64) error
	UpdateMetricPositions(ctx context.Context, order []int64) error
	MoveMetric(ctx context.Context, metricID, targetID int64) error
	ApplyFilters(ctx context.Context, metricID int64, cfg dashboard.FilterConfig) (*dashboard.FetchHandle, dashboard.FilterConfig, error)
	SaveFilters(ctx context.Context, metricID int64, cfg dashboard.FilterConfig) (dashboard.FilterConfig, error)
	ResetFilters(ctx context.Context, metricID int64) (*dashboard.FetchHandle, dashboard.FilterConfig, error)
	RefreshMetric(ctx context.Context, metricID int64) (*dashboard.FetchHandle, error)
	RefreshAll(ctx context.Context) (*dashboard.FetchHandle, error)
}

// NewCommandExecutor wires every commander against service.
func NewCommandExecutor(service Service, telemetry commands.Telemetry) *CommandExecutor {
	validator := dashboard.NewFilterPayloadValidator()
	return &CommandExecutor{
		SelectCommander:       commands.NewSelectDashboardCommand(service, telemetry),
		CreateCommander:       commands.NewCreateDashboardCommand(service, telemetry),
		UpdateCommander:       commands.NewUpdateDashboardCommand(service, telemetry),
		DeleteCommander:       commands.NewDeleteDashboardCommand(service, telemetry),
		SetDefaultCommander:   commands.NewSetDefaultDashboardCommand(service, telemetry),
		VisibilityCommander:   commands.NewSetMetricVisibilityCommand(service, telemetry),
		AddMetricCommander:    commands.NewAddMetricCommand(service, telemetry),
		RemoveMetricCommander: commands.NewRemoveMetricCommand(service, telemetry),
		ReorderCommander:      commands.NewReorderMetricsCommand(service, telemetry),
		MoveCommander:         commands.NewMoveMetricCommand(service, telemetry),
		ApplyFiltersCommander: commands.NewApplyFiltersCommand(service, validator, telemetry),
		SaveFiltersCommander:  commands.NewSaveFiltersCommand(service, validator, telemetry),
		ResetFiltersCommander: commands.NewResetFiltersCommand(service, telemetry),
		RefreshCommander:      commands.NewRefreshMetricsCommand(service, telemetry),
	}
}

func execute[T any](ctx context.Context, cmd gocommand.Commander[T], msg T) error {
	if cmd == nil {
		return errCommandUnavailable
	}
	return cmd.Execute(ctx, msg)
}

func (e *CommandExecutor) SelectDashboard(ctx context.Context, input commands.SelectDashboardInput) error {
	return execute(ctx, e.SelectCommander, input)
}

func (e *CommandExecutor) CreateDashboard(ctx context.Context, input commands.CreateDashboardInput) error {
	return execute(ctx, e.CreateCommander, input)
}

func (e *CommandExecutor) UpdateDashboard(ctx context.Context, input commands.UpdateDashboardInput) error {
	return execute(ctx, e.UpdateCommander, input)
}

func (e *CommandExecutor) DeleteDashboard(ctx context.Context, input commands.DeleteDashboardInput) error {
	return execute(ctx, e.DeleteCommander, input)
}

func (e *CommandExecutor) SetDefaultDashboard(ctx context.Context, input commands.SetDefaultDashboardInput) error {
	return execute(ctx, e.SetDefaultCommander, input)
}

func (e *CommandExecutor) SetMetricVisibility(ctx context.Context, input commands.SetMetricVisibilityInput) error {
	return execute(ctx, e.VisibilityCommander, input)
}

func (e *CommandExecutor) AddMetric(ctx context.Context, input commands.AddMetricInput) error {
	return execute(ctx, e.AddMetricCommander, input)
}

func (e *CommandExecutor) RemoveMetric(ctx context.Context, input commands.RemoveMetricInput) error {
	return execute(ctx, e.RemoveMetricCommander, input)
}

func (e *CommandExecutor) ReorderMetrics(ctx context.Context, input commands.ReorderMetricsInput) error {
	return execute(ctx, e.ReorderCommander, input)
}

func (e *CommandExecutor) MoveMetric(ctx context.Context, input commands.MoveMetricInput) error {
	return execute(ctx, e.MoveCommander, input)
}

func (e *CommandExecutor) ApplyFilters(ctx context.Context, input commands.ApplyFiltersInput) error {
	return execute(ctx, e.ApplyFiltersCommander, input)
}

func (e *CommandExecutor) SaveFilters(ctx context.Context, input commands.SaveFiltersInput) error {
	return execute(ctx, e.SaveFiltersCommander, input)
}

func (e *CommandExecutor) ResetFilters(ctx context.Context, input commands.ResetFiltersInput) error {
	return execute(ctx, e.ResetFiltersCommander, input)
}

func (e *CommandExecutor) Refresh(ctx context.Context, input commands.RefreshMetricsInput) error {
	return execute(ctx, e.RefreshCommander, input)
}

// QueryReader routes Reader calls to go-command queriers.
type QueryReader struct {
	StateQuerier      gocommand.Querier[queries.StateInput, dashboard.State]
	DashboardsQuerier gocommand.Querier[queries.DashboardsInput, []dashboard.DashboardSummary]
	FiltersQuerier    gocommand.Querier[queries.MetricFiltersInput, queries.MetricFilters]
	ReferenceQuerier  gocommand.Querier[queries.ReferenceListInput, []dashboard.ReferenceItem]
}

var _ Reader = (*QueryReader)(nil)

// ReadService is the orchestrator surface NewQueryReader wires against.
type ReadService interface {
	Snapshot() dashboard.State
	LoadDashboards(ctx context.Context) ([]dashboard.DashboardSummary, error)
	MetricCapabilities(ctx context.Context, metricID int64) (dashboard.Capabilities, error)
	FilterState(metricID int64) (dashboard.FilterConfig, error)
	ReferenceList(ctx context.Context, dim dashboard.Dimension) ([]dashboard.ReferenceItem, error)
}

// NewQueryReader wires every querier against service.
func NewQueryReader(service ReadService) *QueryReader {
	return &QueryReader{
		StateQuerier:      queries.NewStateQuery(service),
		DashboardsQuerier: queries.NewDashboardsQuery(service),
		FiltersQuerier:    queries.NewMetricFiltersQuery(service),
		ReferenceQuerier:  queries.NewReferenceListQuery(service),
	}
}

func query[T, R any](ctx context.Context, q gocommand.Querier[T, R], input T) (R, error) {
	if q == nil {
		var zero R
		return zero, errCommandUnavailable
	}
	return q.Query(ctx, input)
}

func (r *QueryReader) State(ctx context.Context) (dashboard.State, error) {
	return query(ctx, r.StateQuerier, queries.StateInput{})
}

func (r *QueryReader) Dashboards(ctx context.Context) ([]dashboard.DashboardSummary, error) {
	return query(ctx, r.DashboardsQuerier, queries.DashboardsInput{})
}

func (r *QueryReader) MetricFilters(ctx context.Context, input queries.MetricFiltersInput) (queries.MetricFilters, error) {
	return query(ctx, r.FiltersQuerier, input)
}

func (r *QueryReader) ReferenceList(ctx context.Context, input queries.ReferenceListInput) ([]dashboard.ReferenceItem, error) {
	return query(ctx, r.ReferenceQuerier, input)
}
