package dashboard

import "testing"

func TestNormalizeChartKind(t *testing.T) {
	tests := []struct {
		kind      string
		hasSeries bool
		want      string
	}{
		{"line", true, "line"},
		{" Bar ", true, "bar"},
		{"area", true, "line"},
		{"donut", true, "pie"},
		{"kpi", false, ChartKindScalar},
		{"gauge", false, "gauge"},
		{"heatmap", true, "line"},
		{"heatmap", false, ChartKindScalar},
		{"", false, ChartKindScalar},
	}
	for _, tc := range tests {
		if got := NormalizeChartKind(tc.kind, tc.hasSeries); got != tc.want {
			t.Fatalf("NormalizeChartKind(%q, %v) = %q, want %q", tc.kind, tc.hasSeries, got, tc.want)
		}
	}
}
