package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

// SelectDashboardInput makes a dashboard current. DashboardID 0 selects the
// default dashboard.
type SelectDashboardInput struct {
	DashboardID int64 `json:"dashboardId"`
	// Wait blocks until the metric data has settled.
	Wait bool `json:"wait,omitempty"`
}

type selectService interface {
	LoadDashboard(ctx context.Context, id int64) (*dashboard.FetchHandle, error)
}

// SelectDashboardCommand wraps Orchestrator.LoadDashboard.
type SelectDashboardCommand struct {
	service   selectService
	telemetry Telemetry
}

// NewSelectDashboardCommand builds the command.
func NewSelectDashboardCommand(service selectService, telemetry Telemetry) *SelectDashboardCommand {
	return &SelectDashboardCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[SelectDashboardInput] = (*SelectDashboardCommand)(nil)

// Execute loads the dashboard and starts its data fetch.
func (c *SelectDashboardCommand) Execute(ctx context.Context, msg SelectDashboardInput) error {
	if c.service == nil {
		return errors.New("select command requires service")
	}
	handle, err := c.service.LoadDashboard(ctx, msg.DashboardID)
	if err != nil {
		return err
	}
	if msg.Wait {
		wait(ctx, handle)
	}
	c.telemetry.Record(ctx, "metricsboard.command.select", map[string]any{
		"dashboard_id": msg.DashboardID,
	})
	return nil
}

// CreateDashboardInput carries a new dashboard's name and description.
type CreateDashboardInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateDashboardInput renames or re-describes a dashboard.
type UpdateDashboardInput struct {
	DashboardID int64  `json:"dashboardId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DeleteDashboardInput names the dashboard to delete.
type DeleteDashboardInput struct {
	DashboardID int64 `json:"dashboardId"`
}

// SetDefaultDashboardInput names the new default dashboard.
type SetDefaultDashboardInput struct {
	DashboardID int64 `json:"dashboardId"`
}

type dashboardService interface {
	CreateDashboard(ctx context.Context, input dashboard.DashboardInput) (dashboard.DashboardSummary, error)
	UpdateDashboard(ctx context.Context, id int64, input dashboard.DashboardInput) (dashboard.DashboardSummary, error)
	DeleteDashboard(ctx context.Context, id int64) error
	SetDefaultDashboard(ctx context.Context, id int64) error
}

// CreateDashboardCommand wraps Orchestrator.CreateDashboard.
type CreateDashboardCommand struct {
	service   dashboardService
	telemetry Telemetry
	// Created receives the new dashboard when set.
	Created func(dashboard.DashboardSummary)
}

// NewCreateDashboardCommand builds the command.
func NewCreateDashboardCommand(service dashboardService, telemetry Telemetry) *CreateDashboardCommand {
	return &CreateDashboardCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[CreateDashboardInput] = (*CreateDashboardCommand)(nil)

// Execute creates the dashboard.
func (c *CreateDashboardCommand) Execute(ctx context.Context, msg CreateDashboardInput) error {
	if c.service == nil {
		return errors.New("create command requires service")
	}
	created, err := c.service.CreateDashboard(ctx, dashboard.DashboardInput{
		Name:        msg.Name,
		Description: msg.Description,
	})
	if err != nil {
		return err
	}
	if c.Created != nil {
		c.Created(created)
	}
	c.telemetry.Record(ctx, "metricsboard.command.create", map[string]any{
		"dashboard_id": created.ID,
	})
	return nil
}

// UpdateDashboardCommand wraps Orchestrator.UpdateDashboard.
type UpdateDashboardCommand struct {
	service   dashboardService
	telemetry Telemetry
}

// NewUpdateDashboardCommand builds the command.
func NewUpdateDashboardCommand(service dashboardService, telemetry Telemetry) *UpdateDashboardCommand {
	return &UpdateDashboardCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[UpdateDashboardInput] = (*UpdateDashboardCommand)(nil)

// Execute applies the new name and description.
func (c *UpdateDashboardCommand) Execute(ctx context.Context, msg UpdateDashboardInput) error {
	if c.service == nil {
		return errors.New("update command requires service")
	}
	if msg.DashboardID <= 0 {
		return errors.New("update command requires dashboard id")
	}
	if _, err := c.service.UpdateDashboard(ctx, msg.DashboardID, dashboard.DashboardInput{
		Name:        msg.Name,
		Description: msg.Description,
	}); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "metricsboard.command.update", map[string]any{
		"dashboard_id": msg.DashboardID,
	})
	return nil
}

// DeleteDashboardCommand wraps Orchestrator.DeleteDashboard.
type DeleteDashboardCommand struct {
	service   dashboardService
	telemetry Telemetry
}

// NewDeleteDashboardCommand builds the command.
func NewDeleteDashboardCommand(service dashboardService, telemetry Telemetry) *DeleteDashboardCommand {
	return &DeleteDashboardCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[DeleteDashboardInput] = (*DeleteDashboardCommand)(nil)

// Execute deletes the dashboard.
func (c *DeleteDashboardCommand) Execute(ctx context.Context, msg DeleteDashboardInput) error {
	if c.service == nil {
		return errors.New("delete command requires service")
	}
	if msg.DashboardID <= 0 {
		return errors.New("delete command requires dashboard id")
	}
	if err := c.service.DeleteDashboard(ctx, msg.DashboardID); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "metricsboard.command.delete", map[string]any{
		"dashboard_id": msg.DashboardID,
	})
	return nil
}

// SetDefaultDashboardCommand wraps Orchestrator.SetDefaultDashboard.
type SetDefaultDashboardCommand struct {
	service   dashboardService
	telemetry Telemetry
}

// NewSetDefaultDashboardCommand builds the command.
func NewSetDefaultDashboardCommand(service dashboardService, telemetry Telemetry) *SetDefaultDashboardCommand {
	return &SetDefaultDashboardCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[SetDefaultDashboardInput] = (*SetDefaultDashboardCommand)(nil)

// Execute marks the dashboard as default.
func (c *SetDefaultDashboardCommand) Execute(ctx context.Context, msg SetDefaultDashboardInput) error {
	if c.service == nil {
		return errors.New("set default command requires service")
	}
	if msg.DashboardID <= 0 {
		return errors.New("set default command requires dashboard id")
	}
	if err := c.service.SetDefaultDashboard(ctx, msg.DashboardID); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "metricsboard.command.set_default", map[string]any{
		"dashboard_id": msg.DashboardID,
	})
	return nil
}

// wait blocks until the fetch settles or ctx ends.
func wait(ctx context.Context, handle *dashboard.FetchHandle) {
	select {
	case <-handle.Done():
	case <-ctx.Done():
	}
}
