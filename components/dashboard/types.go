package dashboard

import (
	"context"
	"time"
)

// DashboardBackend persists dashboards and metric bindings. Implementations
// live outside this package (REST client, in-memory store).
type DashboardBackend interface {
	ListDashboards(ctx context.Context) ([]DashboardSummary, error)
	// GetDashboard returns the dashboard with the given id, or the account
	// default when id is 0.
	GetDashboard(ctx context.Context, id int64) (Dashboard, error)
	CreateDashboard(ctx context.Context, input DashboardInput) (DashboardSummary, error)
	UpdateDashboard(ctx context.Context, id int64, input DashboardInput) (DashboardSummary, error)
	DeleteDashboard(ctx context.Context, id int64) error
	SetDefaultDashboard(ctx context.Context, id int64) error
	UpdateMetric(ctx context.Context, input MetricUpdate) error
	BulkUpdateMetrics(ctx context.Context, input BulkMetricUpdate) error
	SaveMetricSettings(ctx context.Context, input MetricSettingsInput) error
}

// MetricDataBackend computes metric values.
type MetricDataBackend interface {
	FetchMetric(ctx context.Context, query MetricQuery) (MetricValue, error)
	FetchDashboardMetrics(ctx context.Context, dashboardID int64, queries []MetricQuery) ([]MetricValue, error)
	FetchMetricsWithFilters(ctx context.Context, queries []MetricQuery) ([]MetricValue, error)
}

// CapabilityBackend reports which filter dimensions a metric supports.
type CapabilityBackend interface {
	FetchCapabilities(ctx context.Context, metricID int64) (Capabilities, error)
}

// ReferenceBackend loads the reference list (videos, products, users) for an
// entity dimension.
type ReferenceBackend interface {
	FetchReferenceList(ctx context.Context, dim Dimension) ([]ReferenceItem, error)
}

// Backend is the full contract consumed by the Orchestrator.
type Backend interface {
	DashboardBackend
	MetricDataBackend
	CapabilityBackend
	ReferenceBackend
}

// DashboardSummary is a dashboard list entry.
type DashboardSummary struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	IsDefault   bool   `json:"isDefault" yaml:"is_default"`
}

// Dashboard is a named, ordered collection of metric bindings.
type Dashboard struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	IsDefault   bool            `json:"isDefault"`
	Metrics     []MetricBinding `json:"metrics"`
}

// Summary drops the bindings.
func (d Dashboard) Summary() DashboardSummary {
	return DashboardSummary{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		IsDefault:   d.IsDefault,
	}
}

// Binding returns the binding for metricID.
func (d Dashboard) Binding(metricID int64) (MetricBinding, bool) {
	for _, b := range d.Metrics {
		if b.ID == metricID {
			return b, true
		}
	}
	return MetricBinding{}, false
}

// Clone deep-copies the dashboard so snapshots never alias live state.
func (d Dashboard) Clone() Dashboard {
	out := d
	out.Metrics = cloneBindings(d.Metrics)
	return out
}

// DashboardInput carries create/update payloads.
type DashboardInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// MetricDefinition is a read-only catalog entry supplied by the backend.
type MetricDefinition struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	ChartKind   string `json:"chartType,omitempty" yaml:"chart_type,omitempty"`
	AdminOnly   bool   `json:"adminOnly,omitempty" yaml:"admin_only,omitempty"`
	// Capabilities is nil when the backend did not embed them; the
	// Orchestrator then asks the CapabilityBackend.
	Capabilities *Capabilities `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// GridPosition is a (row, column) pair derived from list order.
type GridPosition struct {
	Row int `json:"row" yaml:"row"`
	Col int `json:"col" yaml:"col"`
}

// MetricBinding places a MetricDefinition on a dashboard.
type MetricBinding struct {
	MetricDefinition
	Visible   bool            `json:"isVisible"`
	SortOrder int             `json:"sortOrder"`
	Position  GridPosition    `json:"gridPosition"`
	Settings  *FilterSettings `json:"settings,omitempty"`
}

func cloneBindings(in []MetricBinding) []MetricBinding {
	if in == nil {
		return nil
	}
	out := make([]MetricBinding, len(in))
	for i, b := range in {
		out[i] = b
		if b.Capabilities != nil {
			caps := b.Capabilities.Clone()
			out[i].Capabilities = &caps
		}
		if b.Settings != nil {
			settings := *b.Settings
			out[i].Settings = &settings
		}
	}
	return out
}

// MetricUpdate changes one binding. Nil fields are left untouched. A zero
// DashboardID lets the backend pick the binding when it is unambiguous.
type MetricUpdate struct {
	DashboardID int64         `json:"dashboardId,omitempty"`
	MetricID    int64         `json:"metricId"`
	Visible     *bool         `json:"isVisible,omitempty"`
	SortOrder   *int          `json:"sortOrder,omitempty"`
	Position    *GridPosition `json:"gridPosition,omitempty"`
}

// BulkMetricUpdate is applied atomically by the backend.
type BulkMetricUpdate struct {
	DashboardID int64          `json:"dashboardId,omitempty"`
	Metrics     []MetricUpdate `json:"metrics"`
}

// MetricSettingsInput persists a metric's filter settings blob.
type MetricSettingsInput struct {
	DashboardID int64          `json:"dashboardId,omitempty"`
	MetricID    int64          `json:"metricId"`
	Settings    FilterSettings `json:"settings"`
}

// MetricQuery pairs a metric with the filters it should be evaluated with.
type MetricQuery struct {
	MetricID int64        `json:"metricId"`
	Filters  FilterConfig `json:"filters"`
}

// SeriesPoint is one labelled value of a series metric.
type SeriesPoint struct {
	Label string  `json:"label" yaml:"label"`
	Value float64 `json:"value" yaml:"value"`
}

// MetricValue is the backend's per-metric computation result.
type MetricValue struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Value       any           `json:"value"`
	Series      []SeriesPoint `json:"series,omitempty"`
	ChartKind   string        `json:"chartType,omitempty"`
	LastUpdated time.Time     `json:"lastUpdated"`
	Error       string        `json:"error,omitempty"`
}
