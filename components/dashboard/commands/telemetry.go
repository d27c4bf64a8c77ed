package commands

import (
	"context"

	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

// Telemetry is the orchestrator's sink; each command records one event after
// a successful execution.
type Telemetry = dashboard.Telemetry

func normalizeTelemetry(t Telemetry) Telemetry {
	if t == nil {
		return dashboard.TelemetryFunc(func(context.Context, string, map[string]any) {})
	}
	return t
}
