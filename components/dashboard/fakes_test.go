package dashboard

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

var errBackendDown = errors.New("backend down")

// fakeBackend is an in-package Backend with hooks for blocking and failing
// individual calls.
type fakeBackend struct {
	mu         sync.Mutex
	dashboards map[int64]Dashboard
	defaultID  int64
	nextID     int64
	values     map[int64]MetricValue
	caps       map[int64]Capabilities
	refs       map[Dimension][]ReferenceItem

	capsErr       error
	listErr       error
	bulkErr       error
	bulkUpdateErr error
	saveErr       error
	setDefaultErr error
	metricErr     map[int64]error

	// fetchMetric and fetchBulk replace the default data lookups when set.
	fetchMetric func(ctx context.Context, q MetricQuery) (MetricValue, error)
	fetchBulk   func(ctx context.Context, dashboardID int64, queries []MetricQuery) ([]MetricValue, error)
	// beforeGet runs ahead of every GetDashboard, outside the lock.
	beforeGet func(id int64)

	calls       []string
	bulkUpdates []BulkMetricUpdate
	saved       []MetricSettingsInput
	refLoads    map[Dimension]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		dashboards: make(map[int64]Dashboard),
		values:     make(map[int64]MetricValue),
		caps:       make(map[int64]Capabilities),
		refs:       make(map[Dimension][]ReferenceItem),
		metricErr:  make(map[int64]error),
		refLoads:   make(map[Dimension]int),
		nextID:     100,
	}
}

// addDashboard stores d with one visible binding per id, in order.
func (f *fakeBackend) addDashboard(id int64, name string, metricIDs ...int64) {
	d := Dashboard{ID: id, Name: name}
	for i, mid := range metricIDs {
		d.Metrics = append(d.Metrics, MetricBinding{
			MetricDefinition: MetricDefinition{ID: mid, Name: metricName(mid)},
			Visible:          true,
			SortOrder:        i,
			Position:         GridPositionFor(i, DefaultGridColumns),
		})
		if _, ok := f.values[mid]; !ok {
			f.values[mid] = MetricValue{ID: mid, Name: metricName(mid), Value: float64(mid)}
		}
	}
	if f.defaultID == 0 {
		f.defaultID = id
		d.IsDefault = true
	}
	f.dashboards[id] = d
}

func (f *fakeBackend) mutate(id int64, fn func(d *Dashboard)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.dashboards[id]
	fn(&d)
	f.dashboards[id] = d
}

func (f *fakeBackend) track(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeBackend) count(call string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == call {
			n++
		}
	}
	return n
}

func metricName(id int64) string {
	return "metric-" + string(rune('A'+id%26))
}

func (f *fakeBackend) ListDashboards(context.Context) ([]DashboardSummary, error) {
	f.track("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []DashboardSummary
	for _, d := range f.dashboards {
		s := d.Summary()
		s.IsDefault = d.ID == f.defaultID
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b DashboardSummary) int { return int(a.ID - b.ID) })
	return out, nil
}

func (f *fakeBackend) GetDashboard(_ context.Context, id int64) (Dashboard, error) {
	f.track("get")
	if f.beforeGet != nil {
		f.beforeGet(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == 0 {
		id = f.defaultID
	}
	d, ok := f.dashboards[id]
	if !ok {
		return Dashboard{}, errors.New("dashboard not found")
	}
	d = d.Clone()
	d.IsDefault = d.ID == f.defaultID
	return d, nil
}

func (f *fakeBackend) CreateDashboard(_ context.Context, input DashboardInput) (DashboardSummary, error) {
	f.track("create")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	d := Dashboard{ID: f.nextID, Name: input.Name, Description: input.Description}
	f.dashboards[d.ID] = d
	return d.Summary(), nil
}

func (f *fakeBackend) UpdateDashboard(_ context.Context, id int64, input DashboardInput) (DashboardSummary, error) {
	f.track("update")
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dashboards[id]
	if !ok {
		return DashboardSummary{}, errors.New("dashboard not found")
	}
	d.Name, d.Description = input.Name, input.Description
	f.dashboards[id] = d
	return d.Summary(), nil
}

func (f *fakeBackend) DeleteDashboard(_ context.Context, id int64) error {
	f.track("delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dashboards, id)
	return nil
}

func (f *fakeBackend) SetDefaultDashboard(_ context.Context, id int64) error {
	f.track("set_default")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setDefaultErr != nil {
		return f.setDefaultErr
	}
	f.defaultID = id
	return nil
}

func (f *fakeBackend) UpdateMetric(_ context.Context, input MetricUpdate) error {
	f.track("update_metric")
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.dashboards[input.DashboardID]
	idx := slices.IndexFunc(d.Metrics, func(b MetricBinding) bool { return b.ID == input.MetricID })
	if idx < 0 {
		d.Metrics = append(d.Metrics, MetricBinding{MetricDefinition: MetricDefinition{ID: input.MetricID, Name: metricName(input.MetricID)}})
		idx = len(d.Metrics) - 1
	}
	applyMetricUpdate(&d.Metrics[idx], input)
	f.dashboards[input.DashboardID] = d
	return nil
}

func (f *fakeBackend) BulkUpdateMetrics(_ context.Context, input BulkMetricUpdate) error {
	f.track("bulk_update")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkUpdates = append(f.bulkUpdates, input)
	if f.bulkUpdateErr != nil {
		return f.bulkUpdateErr
	}
	d := f.dashboards[input.DashboardID]
	for _, u := range input.Metrics {
		for i := range d.Metrics {
			if d.Metrics[i].ID == u.MetricID {
				applyMetricUpdate(&d.Metrics[i], u)
			}
		}
	}
	f.dashboards[input.DashboardID] = d
	return nil
}

func applyMetricUpdate(b *MetricBinding, u MetricUpdate) {
	if u.Visible != nil {
		b.Visible = *u.Visible
	}
	if u.SortOrder != nil {
		b.SortOrder = *u.SortOrder
	}
	if u.Position != nil {
		b.Position = *u.Position
	}
}

func (f *fakeBackend) SaveMetricSettings(_ context.Context, input MetricSettingsInput) error {
	f.track("save_settings")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, input)
	d := f.dashboards[input.DashboardID]
	for i := range d.Metrics {
		if d.Metrics[i].ID == input.MetricID {
			settings := input.Settings
			d.Metrics[i].Settings = &settings
		}
	}
	f.dashboards[input.DashboardID] = d
	return nil
}

func (f *fakeBackend) FetchMetric(ctx context.Context, q MetricQuery) (MetricValue, error) {
	f.track("fetch_metric")
	if f.fetchMetric != nil {
		return f.fetchMetric(ctx, q)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.metricErr[q.MetricID]; err != nil {
		return MetricValue{}, err
	}
	v, ok := f.values[q.MetricID]
	if !ok {
		return MetricValue{}, errors.New("metric not found")
	}
	return v, nil
}

func (f *fakeBackend) FetchDashboardMetrics(ctx context.Context, dashboardID int64, queries []MetricQuery) ([]MetricValue, error) {
	f.track("fetch_dashboard")
	return f.bulkValues(ctx, dashboardID, queries)
}

func (f *fakeBackend) FetchMetricsWithFilters(ctx context.Context, queries []MetricQuery) ([]MetricValue, error) {
	f.track("fetch_filtered")
	return f.bulkValues(ctx, 0, queries)
}

func (f *fakeBackend) bulkValues(ctx context.Context, dashboardID int64, queries []MetricQuery) ([]MetricValue, error) {
	if f.fetchBulk != nil {
		return f.fetchBulk(ctx, dashboardID, queries)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	var out []MetricValue
	for _, q := range queries {
		if v, ok := f.values[q.MetricID]; ok && f.metricErr[q.MetricID] == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeBackend) FetchCapabilities(_ context.Context, metricID int64) (Capabilities, error) {
	f.track("capabilities")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capsErr != nil {
		return Capabilities{}, f.capsErr
	}
	return f.caps[metricID].Clone(), nil
}

func (f *fakeBackend) FetchReferenceList(_ context.Context, dim Dimension) ([]ReferenceItem, error) {
	f.track("references")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refLoads[dim]++
	return slices.Clone(f.refs[dim]), nil
}

// blockUntilDone blocks a data fetch until its context ends.
func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// recordingHook collects events for assertions.
type recordingHook struct {
	mu     sync.Mutex
	events []DashboardEvent
	err    error
}

func (h *recordingHook) DashboardChanged(_ context.Context, event DashboardEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHook) kinds() []EventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]EventKind, len(h.events))
	for i, e := range h.events {
		out[i] = e.Kind
	}
	return out
}

// recordingTelemetry collects event names.
type recordingTelemetry struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingTelemetry) Record(_ context.Context, event string, _ map[string]any) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingTelemetry) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, event)
}

func waitFor(t testing.TB, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
