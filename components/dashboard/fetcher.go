package dashboard

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRequestTimeout   = 15 * time.Second
	defaultFetchConcurrency = 4
)

// RecordState is the lifecycle state of a MetricDataRecord.
type RecordState string

const (
	RecordLoading RecordState = "loading"
	RecordReady   RecordState = "ready"
	RecordError   RecordState = "error"
)

// MetricDataRecord is the transient evaluation result for one metric. At most
// one record per metric is live; a new request replaces it.
type MetricDataRecord struct {
	MetricID    int64         `json:"metricId"`
	Name        string        `json:"name"`
	ChartKind   string        `json:"chartType"`
	Value       any           `json:"value,omitempty"`
	Series      []SeriesPoint `json:"series,omitempty"`
	LastUpdated time.Time     `json:"lastUpdated,omitzero"`
	Filters     FilterConfig  `json:"filters"`
	State       RecordState   `json:"state"`
	Error       string        `json:"error,omitempty"`
	Seq         uint64        `json:"seq"`
}

// FetcherOptions tunes a Fetcher.
type FetcherOptions struct {
	// RequestTimeout bounds every backend round trip. Defaults to 15s.
	RequestTimeout time.Duration
	// Concurrency bounds the single-fetch fallback fan-out. Defaults to 4.
	Concurrency int
	// DisableSingleFallback turns a failed bulk call into per-metric errors
	// instead of retrying each metric on its own.
	DisableSingleFallback bool
	Logger                *zap.Logger
	Telemetry             Telemetry
}

// Fetcher turns backend responses into MetricDataRecords. It holds no record
// state; sequencing and stale-response handling belong to the caller.
type Fetcher struct {
	backend   MetricDataBackend
	opts      FetcherOptions
	logger    *zap.Logger
	telemetry Telemetry
}

// NewFetcher builds a Fetcher with safe defaults.
func NewFetcher(backend MetricDataBackend, opts FetcherOptions) *Fetcher {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultFetchConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		backend:   backend,
		opts:      opts,
		logger:    logger,
		telemetry: normalizeTelemetry(opts.Telemetry),
	}
}

// FetchOne evaluates a single metric.
func (f *Fetcher) FetchOne(ctx context.Context, query MetricQuery) MetricDataRecord {
	start := time.Now()
	rec := f.single(ctx, query)
	f.record(ctx, "single", start, 1, rec.State == RecordError)
	return rec
}

// FetchDashboard evaluates every query through the dashboard-scoped bulk call.
func (f *Fetcher) FetchDashboard(ctx context.Context, dashboardID int64, queries []MetricQuery) []MetricDataRecord {
	return f.bulk(ctx, "dashboard", queries, func(ctx context.Context) ([]MetricValue, error) {
		return f.backend.FetchDashboardMetrics(ctx, dashboardID, queries)
	})
}

// FetchWithFilters evaluates every query with its explicit filters.
func (f *Fetcher) FetchWithFilters(ctx context.Context, queries []MetricQuery) []MetricDataRecord {
	return f.bulk(ctx, "filtered", queries, func(ctx context.Context) ([]MetricValue, error) {
		return f.backend.FetchMetricsWithFilters(ctx, queries)
	})
}

func (f *Fetcher) single(ctx context.Context, query MetricQuery) MetricDataRecord {
	if f.backend == nil {
		return errorRecord(query, errMissingBackend.Error())
	}
	reqCtx, cancel := context.WithTimeout(ensureRequestID(ctx), f.opts.RequestTimeout)
	defer cancel()

	value, err := f.backend.FetchMetric(reqCtx, query)
	if err != nil {
		f.logger.Warn("metric fetch failed",
			zap.Int64("metric_id", query.MetricID),
			zap.String("request_id", RequestIDFrom(reqCtx)),
			zap.Error(err),
		)
		return errorRecord(query, fetchErrorMessage(err))
	}
	return recordFromValue(query, value)
}

func (f *Fetcher) bulk(ctx context.Context, kind string, queries []MetricQuery, call func(context.Context) ([]MetricValue, error)) []MetricDataRecord {
	if len(queries) == 0 {
		return nil
	}
	start := time.Now()
	if f.backend == nil {
		out := make([]MetricDataRecord, len(queries))
		for i, q := range queries {
			out[i] = errorRecord(q, errMissingBackend.Error())
		}
		return out
	}

	reqCtx, cancel := context.WithTimeout(ensureRequestID(ctx), f.opts.RequestTimeout)
	values, err := call(reqCtx)
	cancel()

	var out []MetricDataRecord
	switch {
	case err == nil:
		out = matchValues(queries, values)
	case f.opts.DisableSingleFallback || ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded):
		f.logger.Warn("bulk metric fetch failed",
			zap.String("kind", kind),
			zap.Int("metrics", len(queries)),
			zap.Error(err),
		)
		msg := fetchErrorMessage(err)
		out = make([]MetricDataRecord, len(queries))
		for i, q := range queries {
			out[i] = errorRecord(q, msg)
		}
	default:
		f.logger.Warn("bulk metric fetch failed, falling back to single fetches",
			zap.String("kind", kind),
			zap.Int("metrics", len(queries)),
			zap.Error(err),
		)
		f.telemetry.Record(ctx, "dashboard.fetch.fallback", map[string]any{
			"kind":    kind,
			"metrics": len(queries),
		})
		out = f.fanOut(ctx, queries)
	}

	failed := 0
	for _, rec := range out {
		if rec.State == RecordError {
			failed++
		}
	}
	f.record(ctx, kind, start, len(queries), failed > 0)
	return out
}

// fanOut runs one single fetch per query. Each goroutine owns its slot so a
// failure never cancels its siblings.
func (f *Fetcher) fanOut(ctx context.Context, queries []MetricQuery) []MetricDataRecord {
	out := make([]MetricDataRecord, len(queries))
	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			out[i] = f.single(ctx, q)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (f *Fetcher) record(ctx context.Context, kind string, start time.Time, count int, failed bool) {
	f.telemetry.Record(ctx, "dashboard.fetch", map[string]any{
		"kind":     kind,
		"metrics":  count,
		"failed":   failed,
		"duration": time.Since(start),
	})
}

func matchValues(queries []MetricQuery, values []MetricValue) []MetricDataRecord {
	byID := make(map[int64]MetricValue, len(values))
	for _, v := range values {
		byID[v.ID] = v
	}
	out := make([]MetricDataRecord, len(queries))
	for i, q := range queries {
		v, ok := byID[q.MetricID]
		if !ok {
			out[i] = errorRecord(q, MessageMetricUnavailable)
			continue
		}
		out[i] = recordFromValue(q, v)
	}
	return out
}

func recordFromValue(query MetricQuery, v MetricValue) MetricDataRecord {
	rec := MetricDataRecord{
		MetricID: query.MetricID,
		Name:     v.Name,
		Filters:  query.Filters,
	}
	if v.ChartKind != "" {
		rec.ChartKind = NormalizeChartKind(v.ChartKind, len(v.Series) > 0)
	}
	if v.Error != "" {
		rec.State = RecordError
		rec.Error = v.Error
		return rec
	}
	rec.State = RecordReady
	rec.Value = v.Value
	rec.Series = slices.Clone(v.Series)
	rec.LastUpdated = v.LastUpdated
	if rec.ChartKind == "" {
		rec.ChartKind = NormalizeChartKind("", len(v.Series) > 0)
	}
	return rec
}

func errorRecord(query MetricQuery, msg string) MetricDataRecord {
	return MetricDataRecord{
		MetricID: query.MetricID,
		Filters:  query.Filters,
		State:    RecordError,
		Error:    msg,
	}
}

func fetchErrorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return MessageRequestTimedOut
	}
	return err.Error()
}

// recordBook owns the live records and the per-metric sequence numbers used to
// discard superseded responses.
type recordBook struct {
	mu      sync.Mutex
	next    uint64
	latest  map[int64]uint64
	records map[int64]MetricDataRecord
}

func newRecordBook() *recordBook {
	return &recordBook{
		latest:  make(map[int64]uint64),
		records: make(map[int64]MetricDataRecord),
	}
}

// markLoading supersedes any prior record for the metric and returns the
// sequence number the eventual response must carry.
func (b *recordBook) markLoading(id int64, name, kind string, filters FilterConfig) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	seq := b.next
	prior := b.records[id]
	b.latest[id] = seq
	b.records[id] = MetricDataRecord{
		MetricID:  id,
		Name:      firstNonEmpty(name, prior.Name),
		ChartKind: firstNonEmpty(kind, prior.ChartKind),
		Filters:   filters,
		State:     RecordLoading,
		Seq:       seq,
	}
	return seq
}

// resolve stores rec if seq is still the latest request for the metric.
func (b *recordBook) resolve(rec MetricDataRecord, seq uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest[rec.MetricID] != seq {
		return false
	}
	prior := b.records[rec.MetricID]
	rec.Name = firstNonEmpty(rec.Name, prior.Name)
	rec.ChartKind = firstNonEmpty(rec.ChartKind, prior.ChartKind)
	rec.Seq = seq
	b.records[rec.MetricID] = rec
	return true
}

func (b *recordBook) get(id int64) (MetricDataRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	return rec, ok
}

func (b *recordBook) snapshot() map[int64]MetricDataRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int64]MetricDataRecord, len(b.records))
	for id, rec := range b.records {
		rec.Series = slices.Clone(rec.Series)
		out[id] = rec
	}
	return out
}

// reset forgets every record. Sequence numbers keep increasing so responses
// issued before the reset can never resolve.
func (b *recordBook) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.latest)
	clear(b.records)
}

func (b *recordBook) ids() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Sorted(maps.Keys(b.records))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// FetchHandle tracks an in-flight fetch started by the Orchestrator. Records
// are already in the loading state when the handle is returned.
type FetchHandle struct {
	done      chan struct{}
	metricIDs []int64
}

func newFetchHandle(ids []int64) *FetchHandle {
	return &FetchHandle{done: make(chan struct{}), metricIDs: ids}
}

func completedFetchHandle() *FetchHandle {
	h := newFetchHandle(nil)
	close(h.done)
	return h
}

// Done is closed once every record of the fetch has settled or been discarded.
func (h *FetchHandle) Done() <-chan struct{} {
	if h == nil {
		return closedChan
	}
	return h.done
}

// Wait blocks until the fetch settles.
func (h *FetchHandle) Wait() {
	<-h.Done()
}

// MetricIDs lists the metrics the fetch covers.
func (h *FetchHandle) MetricIDs() []int64 {
	if h == nil {
		return nil
	}
	return slices.Clone(h.metricIDs)
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()
