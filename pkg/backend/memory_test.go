package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

func newSeededBackend(t *testing.T) *MemoryBackend {
	t.Helper()
	seed, err := ReadSeed("testdata/seed.yaml")
	require.NoError(t, err)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewMemoryBackend(seed, MemoryOptions{Now: func() time.Time { return fixed }})
}

func TestMemoryBackendDashboards(t *testing.T) {
	b := newSeededBackend(t)
	ctx := context.Background()

	list, err := b.ListDashboards(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsDefault)

	d, err := b.GetDashboard(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.ID)
	require.Len(t, d.Metrics, 3)
	assert.NotNil(t, d.Metrics[0].Capabilities, "embedded capabilities")
	assert.Nil(t, d.Metrics[1].Capabilities, "capabilities only via FetchCapabilities")
	require.NotNil(t, d.Metrics[0].Settings)
	assert.Equal(t, dashboard.TermWeekly, d.Metrics[0].Settings.Filters.Term)
	assert.False(t, d.Metrics[2].Visible)

	_, err = b.GetDashboard(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackendCreateUpdateDelete(t *testing.T) {
	b := newSeededBackend(t)
	ctx := context.Background()

	created, err := b.CreateDashboard(ctx, dashboard.DashboardInput{Name: "Ops"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), created.ID)
	assert.False(t, created.IsDefault)

	updated, err := b.UpdateDashboard(ctx, created.ID, dashboard.DashboardInput{Name: "Ops 2"})
	require.NoError(t, err)
	assert.Equal(t, "Ops 2", updated.Name)

	require.NoError(t, b.SetDefaultDashboard(ctx, created.ID))
	d, err := b.GetDashboard(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, created.ID, d.ID)

	require.NoError(t, b.DeleteDashboard(ctx, created.ID))
	assert.ErrorIs(t, b.DeleteDashboard(ctx, created.ID), ErrNotFound)
}

func TestMemoryBackendGetDashboardReturnsCopy(t *testing.T) {
	b := newSeededBackend(t)
	d, err := b.GetDashboard(context.Background(), 1)
	require.NoError(t, err)
	d.Metrics[0].Visible = false
	again, err := b.GetDashboard(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, again.Metrics[0].Visible)
}

func TestMemoryBackendUpdateMetricBindsCatalogMetric(t *testing.T) {
	b := newSeededBackend(t)
	ctx := context.Background()
	visible := true
	require.NoError(t, b.UpdateMetric(ctx, dashboard.MetricUpdate{DashboardID: 2, MetricID: 1, Visible: &visible}))
	d, err := b.GetDashboard(ctx, 2)
	require.NoError(t, err)
	binding, ok := d.Binding(1)
	require.True(t, ok)
	assert.True(t, binding.Visible)

	err = b.UpdateMetric(ctx, dashboard.MetricUpdate{DashboardID: 2, MetricID: 99, Visible: &visible})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackendBulkUpdateIsAtomic(t *testing.T) {
	b := newSeededBackend(t)
	ctx := context.Background()
	zero, one := 0, 1
	err := b.BulkUpdateMetrics(ctx, dashboard.BulkMetricUpdate{
		DashboardID: 1,
		Metrics: []dashboard.MetricUpdate{
			{MetricID: 2, SortOrder: &zero},
			{MetricID: 42, SortOrder: &one},
		},
	})
	require.ErrorIs(t, err, ErrNotFound)
	d, _ := b.GetDashboard(ctx, 1)
	binding, _ := d.Binding(2)
	assert.Equal(t, 1, binding.SortOrder, "partial bulk update must not apply")

	require.NoError(t, b.BulkUpdateMetrics(ctx, dashboard.BulkMetricUpdate{
		DashboardID: 1,
		Metrics: []dashboard.MetricUpdate{
			{MetricID: 2, SortOrder: &zero, Position: &dashboard.GridPosition{Row: 0, Col: 0}},
			{MetricID: 1, SortOrder: &one, Position: &dashboard.GridPosition{Row: 0, Col: 1}},
		},
	}))
	d, _ = b.GetDashboard(ctx, 1)
	binding, _ = d.Binding(1)
	assert.Equal(t, 1, binding.SortOrder)
	assert.Equal(t, dashboard.GridPosition{Row: 0, Col: 1}, binding.Position)
}

func TestMemoryBackendSettingsFeedDashboardFetch(t *testing.T) {
	b := newSeededBackend(t)
	ctx := context.Background()
	settings := dashboard.NewFilterSettings(dashboard.FilterConfig{VideoID: 1}, time.Now())
	require.NoError(t, b.SaveMetricSettings(ctx, dashboard.MetricSettingsInput{DashboardID: 1, MetricID: 1, Settings: settings}))

	values, err := b.FetchDashboardMetrics(ctx, 1, []dashboard.MetricQuery{{MetricID: 1}})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, 5.0, values[0].Series[0].Value, "stored video filter narrows the series")
}

func TestMemoryBackendFetchOmitsUnknownAndReportsFailures(t *testing.T) {
	b := newSeededBackend(t)
	ctx := context.Background()
	b.FailMetric(2, errors.New("warehouse offline"))

	values, err := b.FetchMetricsWithFilters(ctx, []dashboard.MetricQuery{{MetricID: 1}, {MetricID: 2}, {MetricID: 77}})
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, "warehouse offline", values[1].Error)

	_, err = b.FetchMetric(ctx, dashboard.MetricQuery{MetricID: 2})
	assert.EqualError(t, err, "warehouse offline")

	b.FailMetric(2, nil)
	value, err := b.FetchMetric(ctx, dashboard.MetricQuery{MetricID: 2})
	require.NoError(t, err)
	assert.Equal(t, 42, value.Value)
}

func TestMemoryBackendOperationFailures(t *testing.T) {
	b := newSeededBackend(t)
	ctx := context.Background()
	boom := errors.New("boom")
	b.Fail(OpFetchDashboardMetrics, boom)

	_, err := b.FetchDashboardMetrics(ctx, 1, []dashboard.MetricQuery{{MetricID: 1}})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, b.Calls(OpFetchDashboardMetrics))

	b.Fail(OpFetchDashboardMetrics, nil)
	_, err = b.FetchDashboardMetrics(ctx, 1, []dashboard.MetricQuery{{MetricID: 1}})
	assert.NoError(t, err)
}

func TestMemoryBackendLatencyHonoursContext(t *testing.T) {
	seed, err := ReadSeed("testdata/seed.yaml")
	require.NoError(t, err)
	b := NewMemoryBackend(seed, MemoryOptions{Latency: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = b.FetchMetric(ctx, dashboard.MetricQuery{MetricID: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryBackendCapabilitiesAndReferences(t *testing.T) {
	b := newSeededBackend(t)
	ctx := context.Background()

	caps, err := b.FetchCapabilities(ctx, 2)
	require.NoError(t, err)
	assert.True(t, caps.User)
	assert.True(t, caps.Video)

	caps, err = b.FetchCapabilities(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, caps.SupportedDimensions())

	items, err := b.FetchReferenceList(ctx, dashboard.DimensionVideo)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = b.FetchReferenceList(ctx, dashboard.DimensionScreen)
	assert.ErrorIs(t, err, ErrNotFound)
}
