package dashboard

import (
	"context"
	"errors"
	"time"
)

// EventKind names what changed.
type EventKind string

const (
	EventDashboardsLoaded  EventKind = "dashboards.loaded"
	EventDashboardLoaded   EventKind = "dashboard.loaded"
	EventDashboardCreated  EventKind = "dashboard.created"
	EventDashboardUpdated  EventKind = "dashboard.updated"
	EventDashboardDeleted  EventKind = "dashboard.deleted"
	EventDefaultChanged    EventKind = "dashboard.default_changed"
	EventBindingsChanged   EventKind = "dashboard.bindings_changed"
	EventReorderCommitted  EventKind = "dashboard.reorder_committed"
	EventReorderFailed     EventKind = "dashboard.reorder_failed"
	EventFiltersSaved      EventKind = "metric.filters_saved"
	EventMetricDataUpdated EventKind = "metric.data_updated"
	EventOperationFailed   EventKind = "dashboard.operation_failed"
)

// DashboardEvent describes a state change published to hooks.
type DashboardEvent struct {
	Kind        EventKind         `json:"kind"`
	Operation   string            `json:"operation,omitempty"`
	DashboardID int64             `json:"dashboardId,omitempty"`
	MetricID    int64             `json:"metricId,omitempty"`
	Record      *MetricDataRecord `json:"record,omitempty"`
	Error       string            `json:"error,omitempty"`
	At          time.Time         `json:"at"`
}

// Failed reports whether the event carries an error.
func (e DashboardEvent) Failed() bool {
	return e.Error != ""
}

// EventHook receives dashboard events. Hook errors are logged by the
// Orchestrator and never undo the operation that raised them.
type EventHook interface {
	DashboardChanged(ctx context.Context, event DashboardEvent) error
}

// EventHookFunc adapts a function to EventHook.
type EventHookFunc func(ctx context.Context, event DashboardEvent) error

func (fn EventHookFunc) DashboardChanged(ctx context.Context, event DashboardEvent) error {
	return fn(ctx, event)
}

// Hooks fans an event out to every hook and joins their errors.
type Hooks []EventHook

func (hs Hooks) DashboardChanged(ctx context.Context, event DashboardEvent) error {
	var errs []error
	for _, h := range hs {
		if h == nil {
			continue
		}
		if err := h.DashboardChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopEventHook struct{}

func (noopEventHook) DashboardChanged(context.Context, DashboardEvent) error { return nil }
