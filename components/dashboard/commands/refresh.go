package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

// RefreshMetricsInput refetches one metric, or every visible metric when
// MetricID is 0.
type RefreshMetricsInput struct {
	MetricID int64 `json:"metricId,omitempty"`
	Wait     bool  `json:"wait,omitempty"`
}

type refreshService interface {
	RefreshMetric(ctx context.Context, metricID int64) (*dashboard.FetchHandle, error)
	RefreshAll(ctx context.Context) (*dashboard.FetchHandle, error)
}

// RefreshMetricsCommand wraps Orchestrator.RefreshMetric and RefreshAll.
type RefreshMetricsCommand struct {
	service   refreshService
	telemetry Telemetry
}

// NewRefreshMetricsCommand creates the command.
func NewRefreshMetricsCommand(service refreshService, telemetry Telemetry) *RefreshMetricsCommand {
	return &RefreshMetricsCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[RefreshMetricsInput] = (*RefreshMetricsCommand)(nil)

// Execute starts the refetch.
func (c *RefreshMetricsCommand) Execute(ctx context.Context, msg RefreshMetricsInput) error {
	if c.service == nil {
		return errors.New("refresh command requires service")
	}
	var (
		handle *dashboard.FetchHandle
		err    error
	)
	if msg.MetricID > 0 {
		handle, err = c.service.RefreshMetric(ctx, msg.MetricID)
	} else {
		handle, err = c.service.RefreshAll(ctx)
	}
	if err != nil {
		return err
	}
	if msg.Wait {
		wait(ctx, handle)
	}
	c.telemetry.Record(ctx, "metricsboard.command.refresh", map[string]any{
		"metric_id": msg.MetricID,
		"metrics":   len(handle.MetricIDs()),
	})
	return nil
}
