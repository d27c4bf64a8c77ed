package backend

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

// ErrNotFound is returned for unknown dashboards, metrics or dimensions.
var ErrNotFound = errors.New("backend: not found")

// Operation names a MemoryBackend call for failure injection and call
// counting.
type Operation string

const (
	OpListDashboards         Operation = "list_dashboards"
	OpGetDashboard           Operation = "get_dashboard"
	OpCreateDashboard        Operation = "create_dashboard"
	OpUpdateDashboard        Operation = "update_dashboard"
	OpDeleteDashboard        Operation = "delete_dashboard"
	OpSetDefaultDashboard    Operation = "set_default_dashboard"
	OpUpdateMetric           Operation = "update_metric"
	OpBulkUpdateMetrics      Operation = "bulk_update_metrics"
	OpSaveMetricSettings     Operation = "save_metric_settings"
	OpFetchMetric            Operation = "fetch_metric"
	OpFetchDashboardMetrics  Operation = "fetch_dashboard_metrics"
	OpFetchMetricsWithFilter Operation = "fetch_metrics_with_filters"
	OpFetchCapabilities      Operation = "fetch_capabilities"
	OpFetchReferenceList     Operation = "fetch_reference_list"
)

// MemoryOptions tunes a MemoryBackend.
type MemoryOptions struct {
	// Latency delays every data fetch; the delay honours ctx.
	Latency time.Duration
	Now     func() time.Time
}

// MemoryBackend implements dashboard.Backend in process. It is seeded from a
// Seed document and supports injected failures per operation and per metric.
type MemoryBackend struct {
	mu           sync.RWMutex
	opts         MemoryOptions
	catalog      map[int64]SeedMetric
	dashboards   map[int64]*dashboard.Dashboard
	references   map[dashboard.Dimension][]dashboard.ReferenceItem
	nextID       int64
	opFailures   map[Operation]error
	dataFailures map[int64]error
	calls        map[Operation]int
}

var _ dashboard.Backend = (*MemoryBackend)(nil)

// NewMemoryBackend builds a backend holding a copy of seed. A nil seed yields
// an empty backend.
func NewMemoryBackend(seed *Seed, opts MemoryOptions) *MemoryBackend {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	b := &MemoryBackend{
		opts:         opts,
		catalog:      map[int64]SeedMetric{},
		dashboards:   map[int64]*dashboard.Dashboard{},
		references:   map[dashboard.Dimension][]dashboard.ReferenceItem{},
		opFailures:   map[Operation]error{},
		dataFailures: map[int64]error{},
		calls:        map[Operation]int{},
	}
	if seed == nil {
		return b
	}
	for _, m := range seed.Metrics {
		b.catalog[m.ID] = m
	}
	for dim, items := range seed.References {
		b.references[dim] = slices.Clone(items)
	}
	for _, d := range seed.Dashboards {
		b.dashboards[d.ID] = b.buildDashboard(d)
		b.nextID = max(b.nextID, d.ID)
	}
	return b
}

func (b *MemoryBackend) buildDashboard(d SeedDashboard) *dashboard.Dashboard {
	out := &dashboard.Dashboard{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		IsDefault:   d.IsDefault,
	}
	for i, sb := range d.Metrics {
		binding := dashboard.MetricBinding{
			MetricDefinition: b.definition(sb.ID),
			Visible:          true,
			SortOrder:        i,
		}
		if sb.Visible != nil {
			binding.Visible = *sb.Visible
		}
		if sb.SortOrder != nil {
			binding.SortOrder = *sb.SortOrder
		}
		if sb.Filters != nil {
			settings := dashboard.NewFilterSettings(dashboard.DecodeFilterConfig(sb.Filters), b.opts.Now())
			binding.Settings = &settings
		}
		out.Metrics = append(out.Metrics, binding)
	}
	return out
}

// definition returns the public catalog entry, dropping capabilities that are
// not meant to be embedded.
func (b *MemoryBackend) definition(id int64) dashboard.MetricDefinition {
	m := b.catalog[id]
	def := m.MetricDefinition
	if !m.EmbedCapabilities || def.Capabilities == nil {
		def.Capabilities = nil
	} else {
		caps := def.Capabilities.Clone()
		def.Capabilities = &caps
	}
	return def
}

// Fail makes every subsequent call to op return err. A nil err clears it.
func (b *MemoryBackend) Fail(op Operation, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.opFailures, op)
		return
	}
	b.opFailures[op] = err
}

// FailMetric makes data fetches for metricID fail with err. Bulk fetches
// report it as a per-metric error. A nil err clears it.
func (b *MemoryBackend) FailMetric(metricID int64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.dataFailures, metricID)
		return
	}
	b.dataFailures[metricID] = err
}

// Calls reports how many times op was invoked.
func (b *MemoryBackend) Calls(op Operation) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.calls[op]
}

// SetValue replaces the value a metric reports.
func (b *MemoryBackend) SetValue(metricID int64, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.catalog[metricID]
	if !ok {
		return
	}
	m.Value = value
	b.catalog[metricID] = m
}

// enter counts the call and returns the injected failure for op, if any.
// Callers hold b.mu.
func (b *MemoryBackend) enter(op Operation) error {
	b.calls[op]++
	if err := b.opFailures[op]; err != nil {
		return fmt.Errorf("backend: %s: %w", op, err)
	}
	return nil
}

func (b *MemoryBackend) ListDashboards(ctx context.Context) ([]dashboard.DashboardSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpListDashboards); err != nil {
		return nil, err
	}
	out := make([]dashboard.DashboardSummary, 0, len(b.dashboards))
	for _, id := range slices.Sorted(maps.Keys(b.dashboards)) {
		out = append(out, b.dashboards[id].Summary())
	}
	return out, nil
}

func (b *MemoryBackend) GetDashboard(ctx context.Context, id int64) (dashboard.Dashboard, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpGetDashboard); err != nil {
		return dashboard.Dashboard{}, err
	}
	if id == 0 {
		id = b.defaultIDLocked()
	}
	d, ok := b.dashboards[id]
	if !ok {
		return dashboard.Dashboard{}, fmt.Errorf("%w: dashboard %d", ErrNotFound, id)
	}
	return d.Clone(), nil
}

// defaultIDLocked picks the flagged default, falling back to the lowest id.
func (b *MemoryBackend) defaultIDLocked() int64 {
	ids := slices.Sorted(maps.Keys(b.dashboards))
	for _, id := range ids {
		if b.dashboards[id].IsDefault {
			return id
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return 0
}

func (b *MemoryBackend) CreateDashboard(ctx context.Context, input dashboard.DashboardInput) (dashboard.DashboardSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpCreateDashboard); err != nil {
		return dashboard.DashboardSummary{}, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return dashboard.DashboardSummary{}, errors.New("backend: dashboard name is required")
	}
	b.nextID++
	d := &dashboard.Dashboard{
		ID:          b.nextID,
		Name:        input.Name,
		Description: input.Description,
		IsDefault:   len(b.dashboards) == 0,
	}
	b.dashboards[d.ID] = d
	return d.Summary(), nil
}

func (b *MemoryBackend) UpdateDashboard(ctx context.Context, id int64, input dashboard.DashboardInput) (dashboard.DashboardSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpUpdateDashboard); err != nil {
		return dashboard.DashboardSummary{}, err
	}
	d, ok := b.dashboards[id]
	if !ok {
		return dashboard.DashboardSummary{}, fmt.Errorf("%w: dashboard %d", ErrNotFound, id)
	}
	d.Name = input.Name
	d.Description = input.Description
	return d.Summary(), nil
}

func (b *MemoryBackend) DeleteDashboard(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDeleteDashboard); err != nil {
		return err
	}
	if _, ok := b.dashboards[id]; !ok {
		return fmt.Errorf("%w: dashboard %d", ErrNotFound, id)
	}
	delete(b.dashboards, id)
	return nil
}

func (b *MemoryBackend) SetDefaultDashboard(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpSetDefaultDashboard); err != nil {
		return err
	}
	if _, ok := b.dashboards[id]; !ok {
		return fmt.Errorf("%w: dashboard %d", ErrNotFound, id)
	}
	for did, d := range b.dashboards {
		d.IsDefault = did == id
	}
	return nil
}

func (b *MemoryBackend) UpdateMetric(ctx context.Context, input dashboard.MetricUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpUpdateMetric); err != nil {
		return err
	}
	binding, err := b.bindingLocked(input.DashboardID, input.MetricID, true)
	if err != nil {
		return err
	}
	applyUpdate(binding, input)
	return nil
}

// BulkUpdateMetrics applies every update or none.
func (b *MemoryBackend) BulkUpdateMetrics(ctx context.Context, input dashboard.BulkMetricUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpBulkUpdateMetrics); err != nil {
		return err
	}
	targets := make([]*dashboard.MetricBinding, len(input.Metrics))
	for i, update := range input.Metrics {
		dashboardID := cmp.Or(update.DashboardID, input.DashboardID)
		binding, err := b.bindingLocked(dashboardID, update.MetricID, false)
		if err != nil {
			return err
		}
		targets[i] = binding
	}
	for i, update := range input.Metrics {
		applyUpdate(targets[i], update)
	}
	return nil
}

func (b *MemoryBackend) SaveMetricSettings(ctx context.Context, input dashboard.MetricSettingsInput) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpSaveMetricSettings); err != nil {
		return err
	}
	binding, err := b.bindingLocked(input.DashboardID, input.MetricID, false)
	if err != nil {
		return err
	}
	settings := input.Settings
	binding.Settings = &settings
	return nil
}

// bindingLocked resolves the binding of metricID. A zero dashboardID matches
// the only dashboard binding the metric. With bind set, a catalog metric not
// yet on the dashboard is appended hidden.
func (b *MemoryBackend) bindingLocked(dashboardID, metricID int64, bind bool) (*dashboard.MetricBinding, error) {
	if dashboardID == 0 {
		var owners []int64
		for id, d := range b.dashboards {
			if _, ok := d.Binding(metricID); ok {
				owners = append(owners, id)
			}
		}
		if len(owners) != 1 {
			return nil, fmt.Errorf("%w: metric %d has %d bindings", ErrNotFound, metricID, len(owners))
		}
		dashboardID = owners[0]
	}
	d, ok := b.dashboards[dashboardID]
	if !ok {
		return nil, fmt.Errorf("%w: dashboard %d", ErrNotFound, dashboardID)
	}
	for i := range d.Metrics {
		if d.Metrics[i].ID == metricID {
			return &d.Metrics[i], nil
		}
	}
	if _, known := b.catalog[metricID]; !bind || !known {
		return nil, fmt.Errorf("%w: metric %d on dashboard %d", ErrNotFound, metricID, dashboardID)
	}
	d.Metrics = append(d.Metrics, dashboard.MetricBinding{
		MetricDefinition: b.definition(metricID),
		SortOrder:        len(d.Metrics),
	})
	return &d.Metrics[len(d.Metrics)-1], nil
}

func applyUpdate(binding *dashboard.MetricBinding, update dashboard.MetricUpdate) {
	if update.Visible != nil {
		binding.Visible = *update.Visible
	}
	if update.SortOrder != nil {
		binding.SortOrder = *update.SortOrder
	}
	if update.Position != nil {
		binding.Position = *update.Position
	}
}

func (b *MemoryBackend) FetchMetric(ctx context.Context, query dashboard.MetricQuery) (dashboard.MetricValue, error) {
	if err := b.wait(ctx); err != nil {
		return dashboard.MetricValue{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpFetchMetric); err != nil {
		return dashboard.MetricValue{}, err
	}
	if err := b.dataFailures[query.MetricID]; err != nil {
		return dashboard.MetricValue{}, err
	}
	value, ok := b.valueLocked(query)
	if !ok {
		return dashboard.MetricValue{}, fmt.Errorf("%w: metric %d", ErrNotFound, query.MetricID)
	}
	return value, nil
}

// FetchDashboardMetrics evaluates the dashboard's metrics with their stored
// settings. Unknown metrics are omitted from the result.
func (b *MemoryBackend) FetchDashboardMetrics(ctx context.Context, dashboardID int64, queries []dashboard.MetricQuery) ([]dashboard.MetricValue, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpFetchDashboardMetrics); err != nil {
		return nil, err
	}
	d, ok := b.dashboards[dashboardID]
	if !ok {
		return nil, fmt.Errorf("%w: dashboard %d", ErrNotFound, dashboardID)
	}
	resolved := make([]dashboard.MetricQuery, len(queries))
	for i, q := range queries {
		resolved[i] = q
		if binding, ok := d.Binding(q.MetricID); ok && binding.Settings != nil {
			resolved[i].Filters = binding.Settings.Filters
		}
	}
	return b.valuesLocked(resolved), nil
}

func (b *MemoryBackend) FetchMetricsWithFilters(ctx context.Context, queries []dashboard.MetricQuery) ([]dashboard.MetricValue, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpFetchMetricsWithFilter); err != nil {
		return nil, err
	}
	return b.valuesLocked(queries), nil
}

func (b *MemoryBackend) valuesLocked(queries []dashboard.MetricQuery) []dashboard.MetricValue {
	out := make([]dashboard.MetricValue, 0, len(queries))
	for _, q := range queries {
		if err := b.dataFailures[q.MetricID]; err != nil {
			out = append(out, dashboard.MetricValue{ID: q.MetricID, Error: err.Error(), LastUpdated: b.opts.Now()})
			continue
		}
		if value, ok := b.valueLocked(q); ok {
			out = append(out, value)
		}
	}
	return out
}

func (b *MemoryBackend) valueLocked(query dashboard.MetricQuery) (dashboard.MetricValue, bool) {
	m, ok := b.catalog[query.MetricID]
	if !ok {
		return dashboard.MetricValue{}, false
	}
	value := dashboard.MetricValue{
		ID:          m.ID,
		Name:        m.Name,
		ChartKind:   m.ChartKind,
		Value:       m.Value,
		LastUpdated: b.opts.Now(),
	}
	if len(m.Series) > 0 {
		value.Series = scaleSeries(m.Series, query.Filters)
	}
	return value, true
}

// scaleSeries narrows a series when entity filters are set so filtered
// fetches are distinguishable in demos and tests.
func scaleSeries(series []dashboard.SeriesPoint, filters dashboard.FilterConfig) []dashboard.SeriesPoint {
	out := slices.Clone(series)
	factor := 1.0
	for _, d := range filters.Populated() {
		if d.IsEntity() {
			factor /= 2
		}
	}
	for i := range out {
		out[i].Value *= factor
	}
	return out
}

func (b *MemoryBackend) FetchCapabilities(ctx context.Context, metricID int64) (dashboard.Capabilities, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpFetchCapabilities); err != nil {
		return dashboard.Capabilities{}, err
	}
	m, ok := b.catalog[metricID]
	if !ok {
		return dashboard.Capabilities{}, fmt.Errorf("%w: metric %d", ErrNotFound, metricID)
	}
	if m.Capabilities == nil {
		return dashboard.Capabilities{}, nil
	}
	return m.Capabilities.Clone(), nil
}

func (b *MemoryBackend) FetchReferenceList(ctx context.Context, dim dashboard.Dimension) ([]dashboard.ReferenceItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpFetchReferenceList); err != nil {
		return nil, err
	}
	if !dim.IsEntity() {
		return nil, fmt.Errorf("%w: dimension %s", ErrNotFound, dim)
	}
	return slices.Clone(b.references[dim]), nil
}

func (b *MemoryBackend) wait(ctx context.Context) error {
	if b.opts.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(b.opts.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
