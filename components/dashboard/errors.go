package dashboard

import "errors"

var (
	errMissingBackend = errors.New("dashboard: backend not configured")

	// ErrNoDashboard is returned when an operation needs a current dashboard.
	ErrNoDashboard = errors.New("dashboard: no dashboard loaded")
	// ErrMetricNotBound is returned for metric ids absent from the current dashboard.
	ErrMetricNotBound = errors.New("dashboard: metric not bound to dashboard")
	// ErrInvalidName rejects empty dashboard names.
	ErrInvalidName = errors.New("dashboard: name is required")
	// ErrUnknownDimension rejects dimensions without a reference list.
	ErrUnknownDimension = errors.New("dashboard: unknown reference dimension")
	// ErrReferencesUnavailable is reported when no reference source is wired.
	ErrReferencesUnavailable = errors.New("dashboard: reference source not configured")

	// ErrDragInProgress is returned by Begin while another drag is active or committing.
	ErrDragInProgress = errors.New("dashboard: drag already in progress")
	// ErrNoActiveDrag is returned by Hover, Drop and Cancel outside an active drag.
	ErrNoActiveDrag = errors.New("dashboard: no active drag")
	// ErrReorderDisabled is returned when drag-and-drop is switched off.
	ErrReorderDisabled = errors.New("dashboard: reordering disabled")
)

// Error messages stored on failed MetricDataRecords.
const (
	MessageMetricUnavailable = "Metric data not available"
	MessageRequestTimedOut   = "request timed out"
)
