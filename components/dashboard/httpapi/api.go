package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goliatone/go-metricsboard/components/dashboard"
	"github.com/goliatone/go-metricsboard/components/dashboard/commands"
	"github.com/goliatone/go-metricsboard/components/dashboard/queries"
)

// Handlers exposes HTTP endpoints backed by shared commands and queries.
type Handlers struct {
	Executor Executor
	Reader   Reader
}

// Mount registers every handler on mux under the standard paths.
func (h *Handlers) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /state", h.HandleState)
	mux.HandleFunc("GET /dashboards", h.HandleDashboards)
	mux.HandleFunc("POST /dashboards", h.HandleCreateDashboard)
	mux.HandleFunc("POST /dashboards/{id}/select", withID(h.HandleSelectDashboard))
	mux.HandleFunc("PUT /dashboards/{id}", withID(h.HandleUpdateDashboard))
	mux.HandleFunc("DELETE /dashboards/{id}", withID(h.HandleDeleteDashboard))
	mux.HandleFunc("POST /dashboards/{id}/default", withID(h.HandleSetDefaultDashboard))
	mux.HandleFunc("POST /metrics/order", h.HandleReorderMetrics)
	mux.HandleFunc("POST /metrics/refresh", h.HandleRefresh)
	mux.HandleFunc("POST /metrics/{id}", withID(h.HandleAddMetric))
	mux.HandleFunc("DELETE /metrics/{id}", withID(h.HandleRemoveMetric))
	mux.HandleFunc("POST /metrics/{id}/visibility", withID(h.HandleSetVisibility))
	mux.HandleFunc("POST /metrics/{id}/move", withID(h.HandleMoveMetric))
	mux.HandleFunc("GET /metrics/{id}/filters", withID(h.HandleMetricFilters))
	mux.HandleFunc("POST /metrics/{id}/filters", withID(h.HandleApplyFilters))
	mux.HandleFunc("PUT /metrics/{id}/filters", withID(h.HandleSaveFilters))
	mux.HandleFunc("DELETE /metrics/{id}/filters", withID(h.HandleResetFilters))
	mux.HandleFunc("GET /references/{dimension}", func(w http.ResponseWriter, r *http.Request) {
		h.HandleReferences(w, r, dashboard.Dimension(r.PathValue("dimension")))
	})
}

func withID(fn func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := ParseID(r.PathValue("id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fn(w, r, id)
	}
}

// ParseID parses a positive numeric path identifier.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("httpapi: invalid id %q", raw)
	}
	return id, nil
}

// StatusFor maps a command error to its HTTP status.
func StatusFor(err error) int {
	var coded interface{ HTTPStatus() int }
	switch {
	case errors.Is(err, dashboard.ErrInvalidFilterPayload),
		errors.Is(err, dashboard.ErrInvalidName),
		errors.Is(err, dashboard.ErrUnknownDimension):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrNoDashboard),
		errors.Is(err, dashboard.ErrMetricNotBound):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrDragInProgress),
		errors.Is(err, dashboard.ErrNoActiveDrag),
		errors.Is(err, dashboard.ErrReorderDisabled):
		return http.StatusConflict
	case errors.Is(err, errCommandUnavailable):
		return http.StatusNotImplemented
	case errors.As(err, &coded) && coded.HTTPStatus() >= 400:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusFor(err))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.Reader.State(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) HandleDashboards(w http.ResponseWriter, r *http.Request) {
	list, err := h.Reader.Dashboards(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) HandleCreateDashboard(w http.ResponseWriter, r *http.Request) {
	var payload commands.CreateDashboardInput
	if !decode(w, r, &payload) {
		return
	}
	if err := h.Executor.CreateDashboard(r.Context(), payload); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) HandleSelectDashboard(w http.ResponseWriter, r *http.Request, dashboardID int64) {
	input := commands.SelectDashboardInput{DashboardID: dashboardID, Wait: r.URL.Query().Get("wait") == "true"}
	if err := h.Executor.SelectDashboard(r.Context(), input); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleUpdateDashboard(w http.ResponseWriter, r *http.Request, dashboardID int64) {
	var payload commands.UpdateDashboardInput
	if !decode(w, r, &payload) {
		return
	}
	payload.DashboardID = dashboardID
	if err := h.Executor.UpdateDashboard(r.Context(), payload); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleDeleteDashboard(w http.ResponseWriter, r *http.Request, dashboardID int64) {
	if err := h.Executor.DeleteDashboard(r.Context(), commands.DeleteDashboardInput{DashboardID: dashboardID}); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleSetDefaultDashboard(w http.ResponseWriter, r *http.Request, dashboardID int64) {
	if err := h.Executor.SetDefaultDashboard(r.Context(), commands.SetDefaultDashboardInput{DashboardID: dashboardID}); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleAddMetric(w http.ResponseWriter, r *http.Request, metricID int64) {
	if err := h.Executor.AddMetric(r.Context(), commands.AddMetricInput{MetricID: metricID}); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) HandleRemoveMetric(w http.ResponseWriter, r *http.Request, metricID int64) {
	if err := h.Executor.RemoveMetric(r.Context(), commands.RemoveMetricInput{MetricID: metricID}); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleSetVisibility(w http.ResponseWriter, r *http.Request, metricID int64) {
	var payload commands.SetMetricVisibilityInput
	if !decode(w, r, &payload) {
		return
	}
	payload.MetricID = metricID
	if err := h.Executor.SetMetricVisibility(r.Context(), payload); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleReorderMetrics(w http.ResponseWriter, r *http.Request) {
	var payload commands.ReorderMetricsInput
	if !decode(w, r, &payload) {
		return
	}
	if err := h.Executor.ReorderMetrics(r.Context(), payload); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleMoveMetric(w http.ResponseWriter, r *http.Request, metricID int64) {
	var payload commands.MoveMetricInput
	if !decode(w, r, &payload) {
		return
	}
	payload.MetricID = metricID
	if err := h.Executor.MoveMetric(r.Context(), payload); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleMetricFilters(w http.ResponseWriter, r *http.Request, metricID int64) {
	result, err := h.Reader.MetricFilters(r.Context(), queries.MetricFiltersInput{MetricID: metricID})
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) HandleApplyFilters(w http.ResponseWriter, r *http.Request, metricID int64) {
	var payload commands.ApplyFiltersInput
	if !decode(w, r, &payload) {
		return
	}
	payload.MetricID = metricID
	if err := h.Executor.ApplyFilters(r.Context(), payload); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleSaveFilters(w http.ResponseWriter, r *http.Request, metricID int64) {
	var payload commands.SaveFiltersInput
	if !decode(w, r, &payload) {
		return
	}
	payload.MetricID = metricID
	if err := h.Executor.SaveFilters(r.Context(), payload); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleResetFilters(w http.ResponseWriter, r *http.Request, metricID int64) {
	input := commands.ResetFiltersInput{MetricID: metricID, Wait: r.URL.Query().Get("wait") == "true"}
	if err := h.Executor.ResetFilters(r.Context(), input); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var payload commands.RefreshMetricsInput
	if !decode(w, r, &payload) {
		return
	}
	if err := h.Executor.Refresh(r.Context(), payload); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleReferences(w http.ResponseWriter, r *http.Request, dim dashboard.Dimension) {
	items, err := h.Reader.ReferenceList(r.Context(), queries.ReferenceListInput{Dimension: dim})
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
