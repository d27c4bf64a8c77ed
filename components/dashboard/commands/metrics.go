package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
)

// SetMetricVisibilityInput shows or hides a metric on the current dashboard.
type SetMetricVisibilityInput struct {
	MetricID int64 `json:"metricId"`
	Visible  bool  `json:"visible"`
}

// AddMetricInput places a metric on the current dashboard.
type AddMetricInput struct {
	MetricID int64 `json:"metricId"`
}

// RemoveMetricInput hides a metric on the current dashboard.
type RemoveMetricInput struct {
	MetricID int64 `json:"metricId"`
}

type metricService interface {
	SetMetricVisibility(ctx context.Context, metricID int64, visible bool) error
	AddMetric(ctx context.Context, metricID int64) error
	RemoveMetric(ctx context.Context, metricID int64) error
}

// SetMetricVisibilityCommand wraps Orchestrator.SetMetricVisibility.
type SetMetricVisibilityCommand struct {
	service   metricService
	telemetry Telemetry
}

// NewSetMetricVisibilityCommand builds the command.
func NewSetMetricVisibilityCommand(service metricService, telemetry Telemetry) *SetMetricVisibilityCommand {
	return &SetMetricVisibilityCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[SetMetricVisibilityInput] = (*SetMetricVisibilityCommand)(nil)

// Execute toggles the binding.
func (c *SetMetricVisibilityCommand) Execute(ctx context.Context, msg SetMetricVisibilityInput) error {
	if c.service == nil {
		return errors.New("visibility command requires service")
	}
	if msg.MetricID <= 0 {
		return errors.New("visibility command requires metric id")
	}
	if err := c.service.SetMetricVisibility(ctx, msg.MetricID, msg.Visible); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "metricsboard.command.visibility", map[string]any{
		"metric_id": msg.MetricID,
		"visible":   msg.Visible,
	})
	return nil
}

// AddMetricCommand wraps Orchestrator.AddMetric.
type AddMetricCommand struct {
	service   metricService
	telemetry Telemetry
}

// NewAddMetricCommand builds the command.
func NewAddMetricCommand(service metricService, telemetry Telemetry) *AddMetricCommand {
	return &AddMetricCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[AddMetricInput] = (*AddMetricCommand)(nil)

// Execute adds the metric.
func (c *AddMetricCommand) Execute(ctx context.Context, msg AddMetricInput) error {
	if c.service == nil {
		return errors.New("add metric command requires service")
	}
	if msg.MetricID <= 0 {
		return errors.New("add metric command requires metric id")
	}
	if err := c.service.AddMetric(ctx, msg.MetricID); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "metricsboard.command.add_metric", map[string]any{"metric_id": msg.MetricID})
	return nil
}

// RemoveMetricCommand wraps Orchestrator.RemoveMetric.
type RemoveMetricCommand struct {
	service   metricService
	telemetry Telemetry
}

// NewRemoveMetricCommand builds the command.
func NewRemoveMetricCommand(service metricService, telemetry Telemetry) *RemoveMetricCommand {
	return &RemoveMetricCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[RemoveMetricInput] = (*RemoveMetricCommand)(nil)

// Execute hides the metric.
func (c *RemoveMetricCommand) Execute(ctx context.Context, msg RemoveMetricInput) error {
	if c.service == nil {
		return errors.New("remove metric command requires service")
	}
	if msg.MetricID <= 0 {
		return errors.New("remove metric command requires metric id")
	}
	if err := c.service.RemoveMetric(ctx, msg.MetricID); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "metricsboard.command.remove_metric", map[string]any{"metric_id": msg.MetricID})
	return nil
}
