package dashboard

import "context"

// NotificationsClient publishes user-facing notifications (toasts, banners).
type NotificationsClient interface {
	PublishDashboardEvent(ctx context.Context, channel string, event DashboardEvent) error
}

// NotificationsHook forwards dashboard-level failures to a notifications
// client. Per-metric data errors stay inline on their card and are skipped.
type NotificationsHook struct {
	Client  NotificationsClient
	Channel string
}

// DashboardChanged implements EventHook.
func (h *NotificationsHook) DashboardChanged(ctx context.Context, event DashboardEvent) error {
	if h == nil || h.Client == nil {
		return nil
	}
	if !event.Failed() || event.Kind == EventMetricDataUpdated {
		return nil
	}
	return h.Client.PublishDashboardEvent(ctx, h.Channel, event)
}
