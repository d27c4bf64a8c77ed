package dashboard

import (
	"slices"
	"strings"

	"github.com/go-echarts/go-echarts/v2/types"
)

// ChartKindScalar marks single-value metrics shown as a number tile.
const ChartKindScalar = "scalar"

var seriesChartKinds = []string{
	types.ChartLine,
	types.ChartBar,
	types.ChartPie,
	types.ChartScatter,
	types.ChartFunnel,
	types.ChartRadar,
}

var chartKindAliases = map[string]string{
	"area":        types.ChartLine,
	"stacked_bar": types.ChartBar,
	"column":      types.ChartBar,
	"donut":       types.ChartPie,
	"doughnut":    types.ChartPie,
	"number":      ChartKindScalar,
	"kpi":         ChartKindScalar,
	"stat":        ChartKindScalar,
	"gauge":       types.ChartGauge,
}

// NormalizeChartKind maps a backend chart type onto a known identifier.
// Unknown kinds become "line" when the value carries a series and "scalar"
// otherwise.
func NormalizeChartKind(kind string, hasSeries bool) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if alias, ok := chartKindAliases[kind]; ok {
		kind = alias
	}
	if kind == ChartKindScalar || kind == types.ChartGauge {
		return kind
	}
	if slices.Contains(seriesChartKinds, kind) {
		return kind
	}
	if hasSeries {
		return types.ChartLine
	}
	return ChartKindScalar
}
