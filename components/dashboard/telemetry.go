package dashboard

import "context"

// Telemetry records orchestrator events (fetches, mutations, discarded
// responses) for observability.
type Telemetry interface {
	Record(ctx context.Context, event string, payload map[string]any)
}

type noopTelemetry struct{}

func (noopTelemetry) Record(context.Context, string, map[string]any) {}

func normalizeTelemetry(t Telemetry) Telemetry {
	if t == nil {
		return noopTelemetry{}
	}
	return t
}

// TelemetryFunc adapts a function to Telemetry.
type TelemetryFunc func(ctx context.Context, event string, payload map[string]any)

func (fn TelemetryFunc) Record(ctx context.Context, event string, payload map[string]any) {
	fn(ctx, event, payload)
}

// MultiTelemetry forwards each event to every sink.
type MultiTelemetry []Telemetry

func (m MultiTelemetry) Record(ctx context.Context, event string, payload map[string]any) {
	for _, t := range m {
		if t != nil {
			t.Record(ctx, event, payload)
		}
	}
}
