package dashboard

import (
	"context"

	"go.uber.org/zap"
)

type fetchMode int

const (
	fetchSingle fetchMode = iota
	fetchDashboard
	fetchFiltered
)

func (m fetchMode) String() string {
	switch m {
	case fetchSingle:
		return "single"
	case fetchDashboard:
		return "dashboard"
	default:
		return "filtered"
	}
}

// RefreshMetric refetches one metric with its current filters.
func (o *Orchestrator) RefreshMetric(ctx context.Context, metricID int64) (*FetchHandle, error) {
	ctx = ensureRequestID(ctx)
	dashboardID, _, err := o.currentBinding(metricID)
	if err != nil {
		return nil, err
	}
	o.mu.RLock()
	query := MetricQuery{MetricID: metricID, Filters: o.filters[metricID]}
	o.mu.RUnlock()
	return o.dispatch(ctx, fetchSingle, dashboardID, []MetricQuery{query}), nil
}

// RefreshAll refetches every visible metric with its current filters.
func (o *Orchestrator) RefreshAll(ctx context.Context) (*FetchHandle, error) {
	ctx = ensureRequestID(ctx)
	o.mu.RLock()
	if o.current == nil {
		o.mu.RUnlock()
		return nil, ErrNoDashboard
	}
	dashboardID := o.current.ID
	queries := o.visibleQueriesLocked()
	o.mu.RUnlock()
	o.telemetry.Record(ctx, "dashboard.refresh_all", map[string]any{
		"dashboard_id": dashboardID,
		"metrics":      len(queries),
	})
	return o.dispatch(ctx, fetchFiltered, dashboardID, queries), nil
}

// dispatch marks every query loading before returning, then resolves the
// records in the background. Responses for a superseded request or a
// dashboard that is no longer current are discarded.
func (o *Orchestrator) dispatch(ctx context.Context, mode fetchMode, dashboardID int64, queries []MetricQuery) *FetchHandle {
	if len(queries) == 0 {
		return completedFetchHandle()
	}
	ids := make([]int64, len(queries))
	seqs := make([]uint64, len(queries))
	for i, q := range queries {
		ids[i] = q.MetricID
		name, kind := o.label(q.MetricID)
		seqs[i] = o.book.markLoading(q.MetricID, name, kind, q.Filters)
	}

	handle := newFetchHandle(ids)
	fetchCtx, cancel := o.scoped(ctx)
	go func() {
		defer close(handle.done)
		defer cancel()

		var records []MetricDataRecord
		switch mode {
		case fetchSingle:
			records = []MetricDataRecord{o.fetcher.FetchOne(fetchCtx, queries[0])}
		case fetchDashboard:
			records = o.fetcher.FetchDashboard(fetchCtx, dashboardID, queries)
		default:
			records = o.fetcher.FetchWithFilters(fetchCtx, queries)
		}

		if fetchCtx.Err() != nil {
			o.logger.Debug("discarding cancelled fetch",
				zap.String("mode", mode.String()),
				zap.Int64("dashboard_id", dashboardID),
			)
			o.telemetry.Record(ctx, "dashboard.fetch.cancelled", map[string]any{"metrics": len(queries)})
			return
		}
		for i, rec := range records {
			if !o.book.resolve(rec, seqs[i]) {
				o.logger.Debug("discarding stale metric response",
					zap.Int64("metric_id", rec.MetricID),
					zap.Uint64("seq", seqs[i]),
				)
				o.telemetry.Record(ctx, "dashboard.fetch.stale", map[string]any{"metric_id": rec.MetricID})
				continue
			}
			stored, _ := o.book.get(rec.MetricID)
			o.emit(ctx, DashboardEvent{
				Kind:        EventMetricDataUpdated,
				DashboardID: dashboardID,
				MetricID:    rec.MetricID,
				Record:      &stored,
				Error:       stored.Error,
			})
		}
	}()
	return handle
}

// scoped detaches ctx from its caller's cancellation, keeping its values, and
// ties it to the current dashboard scope instead.
func (o *Orchestrator) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	o.mu.RLock()
	scope := o.scope
	o.mu.RUnlock()
	child, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(scope, cancel)
	return child, func() {
		stop()
		cancel()
	}
}

func (o *Orchestrator) label(metricID int64) (string, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return "", ""
	}
	b, ok := o.current.Binding(metricID)
	if !ok {
		return "", ""
	}
	kind := ""
	if b.ChartKind != "" {
		kind = NormalizeChartKind(b.ChartKind, false)
	}
	return b.Name, kind
}
