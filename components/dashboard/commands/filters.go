package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

// ApplyFiltersInput carries a raw filter payload for one metric.
type ApplyFiltersInput struct {
	MetricID int64          `json:"metricId"`
	Filters  map[string]any `json:"filters"`
	Wait     bool           `json:"wait,omitempty"`
}

// SaveFiltersInput persists filters without refetching.
type SaveFiltersInput struct {
	MetricID int64          `json:"metricId"`
	Filters  map[string]any `json:"filters"`
}

// ResetFiltersInput restores a metric's default filters.
type ResetFiltersInput struct {
	MetricID int64 `json:"metricId"`
	Wait     bool  `json:"wait,omitempty"`
}

type filterService interface {
	ApplyFilters(ctx context.Context, metricID int64, cfg dashboard.FilterConfig) (*dashboard.FetchHandle, dashboard.FilterConfig, error)
	SaveFilters(ctx context.Context, metricID int64, cfg dashboard.FilterConfig) (dashboard.FilterConfig, error)
	ResetFilters(ctx context.Context, metricID int64) (*dashboard.FetchHandle, dashboard.FilterConfig, error)
}

// PayloadValidator checks a raw filter payload and decodes it.
type PayloadValidator interface {
	Validate(payload map[string]any) (dashboard.FilterConfig, error)
}

func normalizeValidator(v PayloadValidator) PayloadValidator {
	if v == nil {
		return dashboard.NewFilterPayloadValidator()
	}
	return v
}

// ApplyFiltersCommand validates the payload shape, then sanitizes, saves and
// refetches through Orchestrator.ApplyFilters.
type ApplyFiltersCommand struct {
	service   filterService
	validator PayloadValidator
	telemetry Telemetry
}

// NewApplyFiltersCommand builds the command. A nil validator uses the JSON
// schema validator.
func NewApplyFiltersCommand(service filterService, validator PayloadValidator, telemetry Telemetry) *ApplyFiltersCommand {
	return &ApplyFiltersCommand{
		service:   service,
		validator: normalizeValidator(validator),
		telemetry: normalizeTelemetry(telemetry),
	}
}

var _ gocommand.Commander[ApplyFiltersInput] = (*ApplyFiltersCommand)(nil)

// Execute applies the filters.
func (c *ApplyFiltersCommand) Execute(ctx context.Context, msg ApplyFiltersInput) error {
	if c.service == nil {
		return errors.New("apply filters command requires service")
	}
	if msg.MetricID <= 0 {
		return errors.New("apply filters command requires metric id")
	}
	cfg, err := c.validator.Validate(msg.Filters)
	if err != nil {
		return err
	}
	handle, applied, err := c.service.ApplyFilters(ctx, msg.MetricID, cfg)
	if err != nil {
		return err
	}
	if msg.Wait {
		wait(ctx, handle)
	}
	c.telemetry.Record(ctx, "metricsboard.command.apply_filters", map[string]any{
		"metric_id": msg.MetricID,
		"fields":    len(applied.Populated()),
	})
	return nil
}

// SaveFiltersCommand wraps Orchestrator.SaveFilters.
type SaveFiltersCommand struct {
	service   filterService
	validator PayloadValidator
	telemetry Telemetry
}

// NewSaveFiltersCommand builds the command.
func NewSaveFiltersCommand(service filterService, validator PayloadValidator, telemetry Telemetry) *SaveFiltersCommand {
	return &SaveFiltersCommand{
		service:   service,
		validator: normalizeValidator(validator),
		telemetry: normalizeTelemetry(telemetry),
	}
}

var _ gocommand.Commander[SaveFiltersInput] = (*SaveFiltersCommand)(nil)

// Execute persists the filters.
func (c *SaveFiltersCommand) Execute(ctx context.Context, msg SaveFiltersInput) error {
	if c.service == nil {
		return errors.New("save filters command requires service")
	}
	if msg.MetricID <= 0 {
		return errors.New("save filters command requires metric id")
	}
	cfg, err := c.validator.Validate(msg.Filters)
	if err != nil {
		return err
	}
	if _, err := c.service.SaveFilters(ctx, msg.MetricID, cfg); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "metricsboard.command.save_filters", map[string]any{"metric_id": msg.MetricID})
	return nil
}

// ResetFiltersCommand wraps Orchestrator.ResetFilters.
type ResetFiltersCommand struct {
	service   filterService
	telemetry Telemetry
}

// NewResetFiltersCommand builds the command.
func NewResetFiltersCommand(service filterService, telemetry Telemetry) *ResetFiltersCommand {
	return &ResetFiltersCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ResetFiltersInput] = (*ResetFiltersCommand)(nil)

// Execute resets the filters.
func (c *ResetFiltersCommand) Execute(ctx context.Context, msg ResetFiltersInput) error {
	if c.service == nil {
		return errors.New("reset filters command requires service")
	}
	if msg.MetricID <= 0 {
		return errors.New("reset filters command requires metric id")
	}
	handle, _, err := c.service.ResetFilters(ctx, msg.MetricID)
	if err != nil {
		return err
	}
	if msg.Wait {
		wait(ctx, handle)
	}
	c.telemetry.Record(ctx, "metricsboard.command.reset_filters", map[string]any{"metric_id": msg.MetricID})
	return nil
}
