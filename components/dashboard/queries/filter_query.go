package queries

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

// MetricFiltersInput identifies a metric on the current dashboard.
type MetricFiltersInput struct {
	MetricID int64 `json:"metricId"`
}

// MetricFilters is everything a filter panel needs for one metric.
type MetricFilters struct {
	MetricID     int64                  `json:"metricId"`
	Capabilities dashboard.Capabilities `json:"capabilities"`
	Dimensions   []dashboard.Dimension  `json:"dimensions"`
	Terms        []dashboard.Term       `json:"terms,omitempty"`
	Filters      dashboard.FilterConfig `json:"filters"`
}

type filterStateService interface {
	MetricCapabilities(ctx context.Context, metricID int64) (dashboard.Capabilities, error)
	FilterState(metricID int64) (dashboard.FilterConfig, error)
}

// MetricFiltersQuery resolves capabilities and effective filters for a metric.
type MetricFiltersQuery struct {
	service filterStateService
}

// NewMetricFiltersQuery builds the query.
func NewMetricFiltersQuery(service filterStateService) *MetricFiltersQuery {
	return &MetricFiltersQuery{service: service}
}

var _ gocommand.Querier[MetricFiltersInput, MetricFilters] = (*MetricFiltersQuery)(nil)

// Query returns the metric's filter panel data.
func (q *MetricFiltersQuery) Query(ctx context.Context, input MetricFiltersInput) (MetricFilters, error) {
	filters, err := q.service.FilterState(input.MetricID)
	if err != nil {
		return MetricFilters{}, err
	}
	caps, err := q.service.MetricCapabilities(ctx, input.MetricID)
	if err != nil {
		return MetricFilters{}, err
	}
	return MetricFilters{
		MetricID:     input.MetricID,
		Capabilities: caps,
		Dimensions:   caps.SupportedDimensions(),
		Terms:        caps.LegalTerms(),
		Filters:      filters,
	}, nil
}

// ReferenceListInput names an entity dimension.
type ReferenceListInput struct {
	Dimension dashboard.Dimension `json:"dimension"`
}

type referenceService interface {
	ReferenceList(ctx context.Context, dim dashboard.Dimension) ([]dashboard.ReferenceItem, error)
}

// ReferenceListQuery returns a dimension's reference list.
type ReferenceListQuery struct {
	service referenceService
}

// NewReferenceListQuery builds the query.
func NewReferenceListQuery(service referenceService) *ReferenceListQuery {
	return &ReferenceListQuery{service: service}
}

var _ gocommand.Querier[ReferenceListInput, []dashboard.ReferenceItem] = (*ReferenceListQuery)(nil)

// Query loads the reference list.
func (q *ReferenceListQuery) Query(ctx context.Context, input ReferenceListInput) ([]dashboard.ReferenceItem, error) {
	return q.service.ReferenceList(ctx, input.Dimension)
}
