package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures the Orchestrator. Every collaborator is an interface so
// tests and applications can swap implementations.
type Options struct {
	Backend    Backend
	Validator  FilterSanitizer
	References ReferenceSource
	Hook       EventHook
	Telemetry  Telemetry
	Logger     *zap.Logger

	GridColumns       int
	EnableDragAndDrop bool

	RequestTimeout        time.Duration
	FetchConcurrency      int
	DisableSingleFallback bool

	Now func() time.Time
}

// Orchestrator owns the dashboard list, the current dashboard's bindings and
// the metric data records. All mutation goes through its methods.
type Orchestrator struct {
	opts      Options
	fetcher   *Fetcher
	layout    *LayoutEngine
	book      *recordBook
	logger    *zap.Logger
	telemetry Telemetry

	mu          sync.RWMutex
	dashboards  []DashboardSummary
	current     *Dashboard
	caps        map[int64]Capabilities
	filters     map[int64]FilterConfig
	scope       context.Context
	cancelScope context.CancelFunc
	// loadSeq increases with every LoadDashboard; only the latest may apply.
	loadSeq uint64
}

// NewOrchestrator builds an Orchestrator with safe defaults.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	if opts.Hook == nil {
		opts.Hook = noopEventHook{}
	}
	if opts.Validator == nil {
		opts.Validator = NewFilterValidator(opts.Logger, opts.Telemetry)
	}
	if opts.References == nil && opts.Backend != nil {
		opts.References = NewCachedReferenceSource(opts.Backend, nil)
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = defaultFetchConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var data MetricDataBackend
	if opts.Backend != nil {
		data = opts.Backend
	}
	scope, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts: opts,
		fetcher: NewFetcher(data, FetcherOptions{
			RequestTimeout:        opts.RequestTimeout,
			Concurrency:           opts.FetchConcurrency,
			DisableSingleFallback: opts.DisableSingleFallback,
			Logger:                opts.Logger,
			Telemetry:             opts.Telemetry,
		}),
		layout:      NewLayoutEngine(opts.GridColumns, opts.EnableDragAndDrop),
		book:        newRecordBook(),
		logger:      opts.Logger,
		telemetry:   opts.Telemetry,
		caps:        make(map[int64]Capabilities),
		filters:     make(map[int64]FilterConfig),
		scope:       scope,
		cancelScope: cancel,
	}
}

// Close cancels every in-flight fetch.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.cancelScope()
	o.mu.Unlock()
}

func (o *Orchestrator) backend() (Backend, error) {
	if o.opts.Backend == nil {
		return nil, errMissingBackend
	}
	return o.opts.Backend, nil
}

// LoadDashboards fetches the dashboard list.
func (o *Orchestrator) LoadDashboards(ctx context.Context) ([]DashboardSummary, error) {
	ctx = ensureRequestID(ctx)
	backend, err := o.backend()
	if err != nil {
		return nil, err
	}
	list, err := backend.ListDashboards(ctx)
	if err != nil {
		return nil, o.fail(ctx, "list_dashboards", 0, err)
	}
	o.mu.Lock()
	o.dashboards = append([]DashboardSummary(nil), list...)
	o.mu.Unlock()
	o.emit(ctx, DashboardEvent{Kind: EventDashboardsLoaded})
	o.telemetry.Record(ctx, "dashboard.list", map[string]any{"count": len(list)})
	return append([]DashboardSummary(nil), list...), nil
}

// LoadDashboard makes dashboard id current (0 selects the default) and starts
// fetching data for its visible metrics. In-flight fetches for the previous
// dashboard are cancelled and their records dropped. A load overtaken by a
// later one is discarded and returns a completed handle.
func (o *Orchestrator) LoadDashboard(ctx context.Context, id int64) (*FetchHandle, error) {
	ctx = ensureRequestID(ctx)
	backend, err := o.backend()
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.loadSeq++
	seq := o.loadSeq
	o.mu.Unlock()

	d, err := backend.GetDashboard(ctx, id)
	if err != nil {
		return nil, o.fail(ctx, "load_dashboard", id, err)
	}
	caps, filters := o.resolveFilters(ctx, d.Metrics, nil)

	o.mu.Lock()
	if seq != o.loadSeq {
		o.mu.Unlock()
		o.logger.Debug("discarding superseded dashboard load",
			zap.Int64("dashboard_id", d.ID),
			zap.Uint64("seq", seq),
		)
		o.telemetry.Record(ctx, "dashboard.load.superseded", map[string]any{"dashboard_id": d.ID})
		return completedFetchHandle(), nil
	}
	o.cancelScope()
	o.scope, o.cancelScope = context.WithCancel(context.Background())
	o.book.reset()
	o.layout.Settle()
	o.current = &d
	o.caps = caps
	o.filters = filters
	o.markDefaultLocked(d)
	queries := o.visibleQueriesLocked()
	o.mu.Unlock()

	handle := o.dispatch(ctx, fetchDashboard, d.ID, queries)
	o.emit(ctx, DashboardEvent{Kind: EventDashboardLoaded, DashboardID: d.ID})
	o.telemetry.Record(ctx, "dashboard.load", map[string]any{
		"dashboard_id": d.ID,
		"metrics":      len(d.Metrics),
		"visible":      len(queries),
	})
	o.logger.Info("dashboard loaded",
		zap.Int64("dashboard_id", d.ID),
		zap.Int("visible_metrics", len(queries)),
	)
	return handle, nil
}

// CreateDashboard creates a dashboard and refreshes the list.
func (o *Orchestrator) CreateDashboard(ctx context.Context, input DashboardInput) (DashboardSummary, error) {
	ctx = ensureRequestID(ctx)
	backend, err := o.backend()
	if err != nil {
		return DashboardSummary{}, err
	}
	input, err = normalizeDashboardInput(input)
	if err != nil {
		return DashboardSummary{}, err
	}
	created, err := backend.CreateDashboard(ctx, input)
	if err != nil {
		return DashboardSummary{}, o.fail(ctx, "create_dashboard", 0, err)
	}
	o.emit(ctx, DashboardEvent{Kind: EventDashboardCreated, DashboardID: created.ID})
	o.telemetry.Record(ctx, "dashboard.create", map[string]any{"dashboard_id": created.ID})
	if _, err := o.LoadDashboards(ctx); err != nil {
		return created, err
	}
	return created, nil
}

// UpdateDashboard renames or re-describes a dashboard.
func (o *Orchestrator) UpdateDashboard(ctx context.Context, id int64, input DashboardInput) (DashboardSummary, error) {
	ctx = ensureRequestID(ctx)
	backend, err := o.backend()
	if err != nil {
		return DashboardSummary{}, err
	}
	input, err = normalizeDashboardInput(input)
	if err != nil {
		return DashboardSummary{}, err
	}
	updated, err := backend.UpdateDashboard(ctx, id, input)
	if err != nil {
		return DashboardSummary{}, o.fail(ctx, "update_dashboard", id, err)
	}
	o.emit(ctx, DashboardEvent{Kind: EventDashboardUpdated, DashboardID: id})
	o.telemetry.Record(ctx, "dashboard.update", map[string]any{"dashboard_id": id})
	if _, err := o.LoadDashboards(ctx); err != nil {
		return updated, err
	}
	if o.isCurrent(id) {
		if err := o.resync(ctx, "update_dashboard"); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// DeleteDashboard removes a dashboard. Deleting the default is allowed; no
// replacement default is chosen here.
func (o *Orchestrator) DeleteDashboard(ctx context.Context, id int64) error {
	ctx = ensureRequestID(ctx)
	backend, err := o.backend()
	if err != nil {
		return err
	}
	if err := backend.DeleteDashboard(ctx, id); err != nil {
		return o.fail(ctx, "delete_dashboard", id, err)
	}
	if o.isCurrent(id) {
		o.mu.Lock()
		o.cancelScope()
		o.scope, o.cancelScope = context.WithCancel(context.Background())
		o.book.reset()
		o.layout.Settle()
		o.current = nil
		o.caps = make(map[int64]Capabilities)
		o.filters = make(map[int64]FilterConfig)
		o.mu.Unlock()
	}
	o.emit(ctx, DashboardEvent{Kind: EventDashboardDeleted, DashboardID: id})
	o.telemetry.Record(ctx, "dashboard.delete", map[string]any{"dashboard_id": id})
	_, err = o.LoadDashboards(ctx)
	return err
}

// SetDefaultDashboard marks id as the default. The local flags are patched
// before the request and restored if it fails.
func (o *Orchestrator) SetDefaultDashboard(ctx context.Context, id int64) error {
	ctx = ensureRequestID(ctx)
	backend, err := o.backend()
	if err != nil {
		return err
	}
	o.mu.Lock()
	prevList := append([]DashboardSummary(nil), o.dashboards...)
	var prevCurrent bool
	if o.current != nil {
		prevCurrent = o.current.IsDefault
	}
	o.setDefaultLocked(id)
	o.mu.Unlock()

	if err := backend.SetDefaultDashboard(ctx, id); err != nil {
		o.mu.Lock()
		o.dashboards = prevList
		if o.current != nil {
			o.current.IsDefault = prevCurrent
		}
		o.mu.Unlock()
		return o.fail(ctx, "set_default_dashboard", id, err)
	}
	o.emit(ctx, DashboardEvent{Kind: EventDefaultChanged, DashboardID: id})
	o.telemetry.Record(ctx, "dashboard.set_default", map[string]any{"dashboard_id": id})
	return nil
}

func (o *Orchestrator) setDefaultLocked(id int64) {
	for i := range o.dashboards {
		o.dashboards[i].IsDefault = o.dashboards[i].ID == id
	}
	if o.current != nil {
		o.current.IsDefault = o.current.ID == id
	}
}

// markDefaultLocked keeps the list entry for d in step with a fresh load.
func (o *Orchestrator) markDefaultLocked(d Dashboard) {
	for i := range o.dashboards {
		if o.dashboards[i].ID == d.ID {
			o.dashboards[i] = d.Summary()
		}
	}
}

func normalizeDashboardInput(input DashboardInput) (DashboardInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if input.Name == "" {
		return input, ErrInvalidName
	}
	return input, nil
}

// resync reloads the current dashboard after a server-side mutation and
// fetches data for metrics that became visible without a record.
func (o *Orchestrator) resync(ctx context.Context, op string) error {
	backend, err := o.backend()
	if err != nil {
		return err
	}
	o.mu.RLock()
	if o.current == nil {
		o.mu.RUnlock()
		return nil
	}
	id := o.current.ID
	knownCaps := make(map[int64]Capabilities, len(o.caps))
	for k, v := range o.caps {
		knownCaps[k] = v
	}
	o.mu.RUnlock()

	d, err := backend.GetDashboard(ctx, id)
	if err != nil {
		return o.fail(ctx, op, id, fmt.Errorf("dashboard: resync: %w", err))
	}
	caps, filters := o.resolveFilters(ctx, d.Metrics, knownCaps)

	o.mu.Lock()
	if o.current == nil || o.current.ID != id {
		o.mu.Unlock()
		return nil
	}
	o.current = &d
	o.caps = caps
	o.filters = filters
	o.markDefaultLocked(d)
	var missing []MetricQuery
	for _, q := range o.visibleQueriesLocked() {
		if _, ok := o.book.get(q.MetricID); !ok {
			missing = append(missing, q)
		}
	}
	o.mu.Unlock()

	if len(missing) > 0 {
		o.dispatch(ctx, fetchFiltered, id, missing)
	}
	o.emit(ctx, DashboardEvent{Kind: EventBindingsChanged, DashboardID: id, Operation: op})
	return nil
}

// resolveFilters determines capabilities and sanitized filters for bindings.
// Capabilities embedded in a binding win, then known, then a backend fetch.
// One reference pass is shared by every binding.
func (o *Orchestrator) resolveFilters(ctx context.Context, bindings []MetricBinding, known map[int64]Capabilities) (map[int64]Capabilities, map[int64]FilterConfig) {
	caps := make(map[int64]Capabilities, len(bindings))
	var pending []int64
	for _, b := range bindings {
		switch {
		case b.Capabilities != nil:
			caps[b.ID] = b.Capabilities.Clone()
		case known != nil:
			if c, ok := known[b.ID]; ok {
				caps[b.ID] = c
				continue
			}
			pending = append(pending, b.ID)
		default:
			pending = append(pending, b.ID)
		}
	}
	if len(pending) > 0 {
		fetched := make([]Capabilities, len(pending))
		var g errgroup.Group
		g.SetLimit(o.opts.FetchConcurrency)
		for i, id := range pending {
			g.Go(func() error {
				fetched[i] = o.fetchCapabilities(ctx, id)
				return nil
			})
		}
		_ = g.Wait()
		for i, id := range pending {
			caps[id] = fetched[i]
		}
	}

	pass := NewReferencePass(o.opts.References)
	filters := make(map[int64]FilterConfig, len(bindings))
	for _, b := range bindings {
		var stored FilterConfig
		if b.Settings != nil {
			stored = b.Settings.Filters
		}
		filters[b.ID], _ = o.opts.Validator.Sanitize(ctx, stored, caps[b.ID], pass)
	}
	return caps, filters
}

// fetchCapabilities degrades to "no filters" on failure.
func (o *Orchestrator) fetchCapabilities(ctx context.Context, metricID int64) Capabilities {
	backend, err := o.backend()
	if err != nil {
		return Capabilities{}
	}
	caps, err := backend.FetchCapabilities(ctx, metricID)
	if err != nil {
		o.logger.Warn("capability fetch failed, disabling filters",
			zap.Int64("metric_id", metricID),
			zap.Error(err),
		)
		o.telemetry.Record(ctx, "dashboard.capabilities.fallback", map[string]any{"metric_id": metricID})
		return Capabilities{}
	}
	return caps
}

// MetricCapabilities returns the capability set for a metric of the current
// dashboard, or asks the backend for any other metric.
func (o *Orchestrator) MetricCapabilities(ctx context.Context, metricID int64) (Capabilities, error) {
	o.mu.RLock()
	caps, ok := o.caps[metricID]
	o.mu.RUnlock()
	if ok {
		return caps.Clone(), nil
	}
	backend, err := o.backend()
	if err != nil {
		return Capabilities{}, err
	}
	return backend.FetchCapabilities(ensureRequestID(ctx), metricID)
}

// ReferenceList returns the reference list for an entity dimension.
func (o *Orchestrator) ReferenceList(ctx context.Context, dim Dimension) ([]ReferenceItem, error) {
	if o.opts.References == nil {
		return nil, ErrReferencesUnavailable
	}
	if !dim.IsEntity() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDimension, dim)
	}
	return o.opts.References.ReferenceList(ensureRequestID(ctx), dim)
}

// State is an immutable snapshot of the Orchestrator.
type State struct {
	Dashboards   []DashboardSummary         `json:"dashboards"`
	Current      *Dashboard                 `json:"current,omitempty"`
	Visible      []MetricBinding            `json:"visible"`
	Records      map[int64]MetricDataRecord `json:"records"`
	Filters      map[int64]FilterConfig     `json:"filters"`
	Capabilities map[int64]Capabilities     `json:"capabilities"`
	Drag         DragPhase                  `json:"drag"`
	DraggedID    int64                      `json:"draggedId,omitempty"`
}

// Record returns the data record for metricID.
func (s State) Record(metricID int64) (MetricDataRecord, bool) {
	rec, ok := s.Records[metricID]
	return rec, ok
}

// VisibleIDs lists the visible metric ids in display order.
func (s State) VisibleIDs() []int64 {
	ids := make([]int64, len(s.Visible))
	for i, b := range s.Visible {
		ids[i] = b.ID
	}
	return ids
}

// Snapshot returns a deep copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	state := State{
		Dashboards:   append([]DashboardSummary(nil), o.dashboards...),
		Filters:      make(map[int64]FilterConfig, len(o.filters)),
		Capabilities: make(map[int64]Capabilities, len(o.caps)),
	}
	for id, cfg := range o.filters {
		state.Filters[id] = cfg
	}
	for id, caps := range o.caps {
		state.Capabilities[id] = caps.Clone()
	}
	var bindings []MetricBinding
	if o.current != nil {
		current := o.current.Clone()
		state.Current = &current
		bindings = current.Metrics
	}
	o.mu.RUnlock()

	state.Visible = o.layout.Visible(bindings)
	state.Records = o.book.snapshot()
	drag := o.layout.State()
	state.Drag = drag.Phase()
	if active, ok := drag.(DragActive); ok {
		state.DraggedID = active.DraggedID
	}
	return state
}

func (o *Orchestrator) isCurrent(id int64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current != nil && o.current.ID == id
}

// currentBinding returns the current dashboard id and the binding for metricID.
func (o *Orchestrator) currentBinding(metricID int64) (int64, MetricBinding, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return 0, MetricBinding{}, ErrNoDashboard
	}
	b, ok := o.current.Binding(metricID)
	if !ok {
		return 0, MetricBinding{}, fmt.Errorf("%w: %d", ErrMetricNotBound, metricID)
	}
	return o.current.ID, b, nil
}

func (o *Orchestrator) visibleQueriesLocked() []MetricQuery {
	if o.current == nil {
		return nil
	}
	visible := VisibleBindings(o.current.Metrics)
	queries := make([]MetricQuery, len(visible))
	for i, b := range visible {
		queries[i] = MetricQuery{MetricID: b.ID, Filters: o.filters[b.ID]}
	}
	return queries
}

func (o *Orchestrator) emit(ctx context.Context, event DashboardEvent) {
	if event.At.IsZero() {
		event.At = o.opts.Now().UTC()
	}
	if err := o.opts.Hook.DashboardChanged(ctx, event); err != nil {
		o.logger.Warn("event hook failed",
			zap.String("event", string(event.Kind)),
			zap.Error(err),
		)
	}
}

// fail logs and publishes a dashboard-level failure, then returns err.
func (o *Orchestrator) fail(ctx context.Context, op string, dashboardID int64, err error) error {
	o.logger.Error("dashboard operation failed",
		zap.String("operation", op),
		zap.Int64("dashboard_id", dashboardID),
		zap.String("request_id", RequestIDFrom(ctx)),
		zap.Error(err),
	)
	o.telemetry.Record(ctx, "dashboard.operation.failed", map[string]any{
		"operation":    op,
		"dashboard_id": dashboardID,
	})
	o.emit(ctx, DashboardEvent{
		Kind:        EventOperationFailed,
		Operation:   op,
		DashboardID: dashboardID,
		Error:       err.Error(),
	})
	return err
}
