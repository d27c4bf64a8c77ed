package dashboard

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SetMetricVisibility shows or hides a bound metric.
func (o *Orchestrator) SetMetricVisibility(ctx context.Context, metricID int64, visible bool) error {
	ctx = ensureRequestID(ctx)
	backend, err := o.backend()
	if err != nil {
		return err
	}
	dashboardID, _, err := o.currentBinding(metricID)
	if err != nil {
		return err
	}
	if err := backend.UpdateMetric(ctx, MetricUpdate{
		DashboardID: dashboardID,
		MetricID:    metricID,
		Visible:     &visible,
	}); err != nil {
		return o.fail(ctx, "set_metric_visibility", dashboardID, err)
	}
	o.telemetry.Record(ctx, "dashboard.metric.visibility", map[string]any{
		"dashboard_id": dashboardID,
		"metric_id":    metricID,
		"visible":      visible,
	})
	return o.resync(ctx, "set_metric_visibility")
}

// AddMetric places a metric at the end of the current dashboard's visible
// list. The metric need not be bound yet.
func (o *Orchestrator) AddMetric(ctx context.Context, metricID int64) error {
	ctx = ensureRequestID(ctx)
	backend, err := o.backend()
	if err != nil {
		return err
	}
	o.mu.RLock()
	if o.current == nil {
		o.mu.RUnlock()
		return ErrNoDashboard
	}
	dashboardID := o.current.ID
	sortOrder, position := appendSlot(o.current.Metrics, metricID, o.layout.Columns())
	o.mu.RUnlock()

	visible := true
	if err := backend.UpdateMetric(ctx, MetricUpdate{
		DashboardID: dashboardID,
		MetricID:    metricID,
		Visible:     &visible,
		SortOrder:   &sortOrder,
		Position:    &position,
	}); err != nil {
		return o.fail(ctx, "add_metric", dashboardID, err)
	}
	o.telemetry.Record(ctx, "dashboard.metric.add", map[string]any{
		"dashboard_id": dashboardID,
		"metric_id":    metricID,
	})
	return o.resync(ctx, "add_metric")
}

// appendSlot returns the sort order and grid cell after every other visible
// binding. Both can have gaps once bindings are hidden.
func appendSlot(bindings []MetricBinding, metricID int64, columns int) (int, GridPosition) {
	sortOrder, count, lastCell := 0, 0, -1
	for _, b := range bindings {
		if !b.Visible || b.ID == metricID {
			continue
		}
		sortOrder = max(sortOrder, b.SortOrder+1)
		lastCell = max(lastCell, b.Position.Row*columns+b.Position.Col)
		count++
	}
	return sortOrder, GridPositionFor(max(count, lastCell+1), columns)
}

// RemoveMetric hides a bound metric; its binding and filters are kept.
func (o *Orchestrator) RemoveMetric(ctx context.Context, metricID int64) error {
	return o.SetMetricVisibility(ctx, metricID, false)
}

// UpdateMetricPositions moves the named metrics to the front of the visible
// list in the given order and commits the derived positions in one batch.
func (o *Orchestrator) UpdateMetricPositions(ctx context.Context, order []int64) error {
	ctx = ensureRequestID(ctx)
	backend, err := o.backend()
	if err != nil {
		return err
	}
	if !o.layout.Enabled() {
		return ErrReorderDisabled
	}
	if o.layout.State().Phase() != PhaseIdle {
		return ErrDragInProgress
	}
	o.mu.RLock()
	if o.current == nil {
		o.mu.RUnlock()
		return ErrNoDashboard
	}
	dashboardID := o.current.ID
	ordered := ApplyOrder(VisibleBindings(o.current.Metrics), order)
	o.mu.RUnlock()

	batch := DerivePositions(ordered, o.layout.Columns())
	if err := backend.BulkUpdateMetrics(ctx, batch.BulkUpdate(dashboardID)); err != nil {
		return o.fail(ctx, "update_metric_positions", dashboardID, err)
	}
	o.telemetry.Record(ctx, "dashboard.metric.positions", map[string]any{
		"dashboard_id": dashboardID,
		"metrics":      len(batch),
	})
	return o.resync(ctx, "update_metric_positions")
}

// BeginDrag starts a reorder gesture on metricID.
func (o *Orchestrator) BeginDrag(metricID int64) error {
	o.mu.RLock()
	if o.current == nil {
		o.mu.RUnlock()
		return ErrNoDashboard
	}
	bindings := cloneBindings(o.current.Metrics)
	o.mu.RUnlock()
	return o.layout.Begin(bindings, metricID)
}

// DragOver moves the dragged metric to targetID's slot in the optimistic list.
func (o *Orchestrator) DragOver(targetID int64) error {
	return o.layout.Hover(targetID)
}

// CancelDrag abandons the gesture without contacting the backend.
func (o *Orchestrator) CancelDrag() error {
	return o.layout.Cancel()
}

// CommitDrag sends the dropped order as one batch. On success the dashboard is
// reloaded from the backend; on failure the optimistic order is discarded and
// the last confirmed order stays in place.
func (o *Orchestrator) CommitDrag(ctx context.Context) error {
	ctx = ensureRequestID(ctx)
	backend, err := o.backend()
	if err != nil {
		return err
	}
	o.mu.RLock()
	if o.current == nil {
		o.mu.RUnlock()
		return ErrNoDashboard
	}
	dashboardID := o.current.ID
	o.mu.RUnlock()

	batch, commit, err := o.layout.drop()
	if err != nil {
		return err
	}
	if err := backend.BulkUpdateMetrics(ctx, batch.BulkUpdate(dashboardID)); err != nil {
		o.layout.settleCommit(commit)
		o.logger.Warn("reorder commit failed",
			zap.Int64("dashboard_id", dashboardID),
			zap.Error(err),
		)
		o.telemetry.Record(ctx, "dashboard.reorder.failed", map[string]any{"dashboard_id": dashboardID})
		o.emit(ctx, DashboardEvent{
			Kind:        EventReorderFailed,
			Operation:   "commit_reorder",
			DashboardID: dashboardID,
			Error:       err.Error(),
		})
		return fmt.Errorf("dashboard: commit reorder: %w", err)
	}
	resyncErr := o.resync(ctx, "commit_reorder")
	o.layout.settleCommit(commit)
	o.telemetry.Record(ctx, "dashboard.reorder.committed", map[string]any{
		"dashboard_id": dashboardID,
		"metrics":      len(batch),
	})
	o.emit(ctx, DashboardEvent{Kind: EventReorderCommitted, DashboardID: dashboardID})
	return resyncErr
}

// MoveMetric runs a whole drag gesture: metricID is dropped onto targetID's
// slot and the result committed.
func (o *Orchestrator) MoveMetric(ctx context.Context, metricID, targetID int64) error {
	if err := o.BeginDrag(metricID); err != nil {
		return err
	}
	if err := o.DragOver(targetID); err != nil {
		_ = o.CancelDrag()
		return err
	}
	return o.CommitDrag(ctx)
}
