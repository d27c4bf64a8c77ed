package dashboard

import "context"

// FilterState returns the effective filters of a bound metric.
func (o *Orchestrator) FilterState(metricID int64) (FilterConfig, error) {
	if _, _, err := o.currentBinding(metricID); err != nil {
		return FilterConfig{}, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.filters[metricID], nil
}

// SaveFilters sanitizes cfg and persists it without refetching. The local
// state is patched before the request and restored if it fails.
func (o *Orchestrator) SaveFilters(ctx context.Context, metricID int64, cfg FilterConfig) (FilterConfig, error) {
	ctx = ensureRequestID(ctx)
	caps, err := o.capabilitiesFor(ctx, metricID)
	if err != nil {
		return FilterConfig{}, err
	}
	sanitized, _ := o.opts.Validator.Sanitize(ctx, cfg, caps, NewReferencePass(o.opts.References))
	if err := o.persistFilters(ctx, "save_filters", metricID, sanitized); err != nil {
		return FilterConfig{}, err
	}
	return sanitized, nil
}

// ApplyFilters sanitizes cfg, persists it, and only then refetches the metric
// with the new filters.
func (o *Orchestrator) ApplyFilters(ctx context.Context, metricID int64, cfg FilterConfig) (*FetchHandle, FilterConfig, error) {
	ctx = ensureRequestID(ctx)
	sanitized, err := o.SaveFilters(ctx, metricID, cfg)
	if err != nil {
		return nil, FilterConfig{}, err
	}
	return o.refetchWith(ctx, metricID, sanitized), sanitized, nil
}

// ResetFilters replaces the metric's filters with the reset configuration,
// skipping sanitization, persists it and refetches.
func (o *Orchestrator) ResetFilters(ctx context.Context, metricID int64) (*FetchHandle, FilterConfig, error) {
	ctx = ensureRequestID(ctx)
	caps, err := o.capabilitiesFor(ctx, metricID)
	if err != nil {
		return nil, FilterConfig{}, err
	}
	reset := ResetFilters(caps)
	if err := o.persistFilters(ctx, "reset_filters", metricID, reset); err != nil {
		return nil, FilterConfig{}, err
	}
	return o.refetchWith(ctx, metricID, reset), reset, nil
}

func (o *Orchestrator) capabilitiesFor(ctx context.Context, metricID int64) (Capabilities, error) {
	if _, _, err := o.currentBinding(metricID); err != nil {
		return Capabilities{}, err
	}
	o.mu.RLock()
	caps, ok := o.caps[metricID]
	o.mu.RUnlock()
	if ok {
		return caps, nil
	}
	return o.fetchCapabilities(ctx, metricID), nil
}

func (o *Orchestrator) persistFilters(ctx context.Context, op string, metricID int64, cfg FilterConfig) error {
	backend, err := o.backend()
	if err != nil {
		return err
	}
	settings := NewFilterSettings(cfg, o.opts.Now())

	o.mu.Lock()
	if o.current == nil {
		o.mu.Unlock()
		return ErrNoDashboard
	}
	dashboardID := o.current.ID
	prevFilters, hadFilters := o.filters[metricID]
	var prevSettings *FilterSettings
	for i := range o.current.Metrics {
		if o.current.Metrics[i].ID == metricID {
			prevSettings = o.current.Metrics[i].Settings
			patched := settings
			o.current.Metrics[i].Settings = &patched
		}
	}
	o.filters[metricID] = cfg
	o.mu.Unlock()

	err = backend.SaveMetricSettings(ctx, MetricSettingsInput{
		DashboardID: dashboardID,
		MetricID:    metricID,
		Settings:    settings,
	})
	if err != nil {
		o.mu.Lock()
		if o.current != nil && o.current.ID == dashboardID {
			for i := range o.current.Metrics {
				if o.current.Metrics[i].ID == metricID {
					o.current.Metrics[i].Settings = prevSettings
				}
			}
			if hadFilters {
				o.filters[metricID] = prevFilters
			} else {
				delete(o.filters, metricID)
			}
		}
		o.mu.Unlock()
		return o.fail(ctx, op, dashboardID, err)
	}
	o.telemetry.Record(ctx, "dashboard.filters.saved", map[string]any{
		"dashboard_id": dashboardID,
		"metric_id":    metricID,
		"fields":       len(cfg.Populated()),
	})
	o.emit(ctx, DashboardEvent{
		Kind:        EventFiltersSaved,
		Operation:   op,
		DashboardID: dashboardID,
		MetricID:    metricID,
	})
	return nil
}

func (o *Orchestrator) refetchWith(ctx context.Context, metricID int64, cfg FilterConfig) *FetchHandle {
	o.mu.RLock()
	var dashboardID int64
	if o.current != nil {
		dashboardID = o.current.ID
	}
	o.mu.RUnlock()
	return o.dispatch(ctx, fetchFiltered, dashboardID, []MetricQuery{{MetricID: metricID, Filters: cfg}})
}
