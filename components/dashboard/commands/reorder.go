package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
)

// ReorderMetricsInput lists metric ids in their new display order.
type ReorderMetricsInput struct {
	MetricIDs []int64 `json:"metricIds"`
}

// MoveMetricInput drops MetricID onto TargetID's slot.
type MoveMetricInput struct {
	MetricID int64 `json:"metricId"`
	TargetID int64 `json:"targetId"`
}

type reorderService interface {
	UpdateMetricPositions(ctx context.Context, order []int64) error
	MoveMetric(ctx context.Context, metricID, targetID int64) error
}

// ReorderMetricsCommand wraps Orchestrator.UpdateMetricPositions.
type ReorderMetricsCommand struct {
	service   reorderService
	telemetry Telemetry
}

// NewReorderMetricsCommand builds the command.
func NewReorderMetricsCommand(service reorderService, telemetry Telemetry) *ReorderMetricsCommand {
	return &ReorderMetricsCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ReorderMetricsInput] = (*ReorderMetricsCommand)(nil)

// Execute applies the new ordering.
func (c *ReorderMetricsCommand) Execute(ctx context.Context, msg ReorderMetricsInput) error {
	if c.service == nil {
		return errors.New("reorder command requires service")
	}
	if len(msg.MetricIDs) == 0 {
		return errors.New("reorder command requires metric ids")
	}
	if err := c.service.UpdateMetricPositions(ctx, msg.MetricIDs); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "metricsboard.command.reorder", map[string]any{
		"count": len(msg.MetricIDs),
	})
	return nil
}

// MoveMetricCommand runs a complete drag gesture.
type MoveMetricCommand struct {
	service   reorderService
	telemetry Telemetry
}

// NewMoveMetricCommand builds the command.
func NewMoveMetricCommand(service reorderService, telemetry Telemetry) *MoveMetricCommand {
	return &MoveMetricCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[MoveMetricInput] = (*MoveMetricCommand)(nil)

// Execute moves and commits.
func (c *MoveMetricCommand) Execute(ctx context.Context, msg MoveMetricInput) error {
	if c.service == nil {
		return errors.New("move command requires service")
	}
	if msg.MetricID <= 0 || msg.TargetID <= 0 {
		return errors.New("move command requires metric and target ids")
	}
	if err := c.service.MoveMetric(ctx, msg.MetricID, msg.TargetID); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "metricsboard.command.move", map[string]any{
		"metric_id": msg.MetricID,
		"target_id": msg.TargetID,
	})
	return nil
}
