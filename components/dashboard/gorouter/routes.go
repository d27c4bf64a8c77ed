package gorouter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	router "github.com/goliatone/go-router"

	"github.com/goliatone/go-metricsboard/components/dashboard"
	"github.com/goliatone/go-metricsboard/components/dashboard/commands"
	"github.com/goliatone/go-metricsboard/components/dashboard/httpapi"
	"github.com/goliatone/go-metricsboard/components/dashboard/queries"
)

// Config wires go-router with the dashboard command and query surfaces.
type Config[T any] struct {
	Router    router.Router[T]
	API       httpapi.Executor
	Reader    httpapi.Reader
	Broadcast *dashboard.BroadcastHook
	BasePath  string
	Routes    RouteConfig
}

// RouteConfig customizes the relative paths used for dashboard endpoints.
type RouteConfig struct {
	State       string
	Dashboards  string
	DashboardID string
	Select      string
	Default     string
	MetricID    string
	Visibility  string
	Reorder     string
	Move        string
	Filters     string
	Refresh     string
	References  string
	WebSocket   string
}

type route struct {
	method  router.HTTPMethod
	path    string
	handler func(router.Context) error
}

// Register mounts the dashboard REST and WebSocket routes on a go-router router.
func Register[T any](cfg Config[T]) error {
	if cfg.Router == nil {
		return errors.New("gorouter: router is required")
	}
	if cfg.API == nil && cfg.Reader == nil {
		return errors.New("gorouter: executor or reader is required")
	}
	routes := defaultRouteConfig(cfg.Routes)
	base := cfg.BasePath
	if base == "" {
		base = "/api"
	}

	group := cfg.Router.Group(base)
	for _, rt := range buildRoutes(cfg.API, cfg.Reader, routes) {
		handler := router.WrapHandler(rt.handler)
		switch rt.method {
		case router.GET:
			group.Get(rt.path, handler)
		case router.PUT:
			group.Put(rt.path, handler)
		case router.DELETE:
			group.Delete(rt.path, handler)
		default:
			group.Post(rt.path, handler)
		}
	}

	if cfg.Broadcast != nil {
		registerWebSocket(group, cfg.Broadcast, routes.WebSocket)
	}
	return nil
}

func buildRoutes(api httpapi.Executor, reader httpapi.Reader, routes RouteConfig) []route {
	var out []route
	if reader != nil {
		out = append(out, readRoutes(reader, routes)...)
	}
	if api != nil {
		out = append(out, commandRoutes(api, routes)...)
	}
	return out
}

func readRoutes(reader httpapi.Reader, routes RouteConfig) []route {
	return []route{
		{router.GET, routes.State, func(ctx router.Context) error {
			state, err := reader.State(ctx.Context())
			if err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, state)
		}},
		{router.GET, routes.Dashboards, func(ctx router.Context) error {
			list, err := reader.Dashboards(ctx.Context())
			if err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, list)
		}},
		{router.GET, routes.Filters, func(ctx router.Context) error {
			id, err := httpapi.ParseID(ctx.Param("id"))
			if err != nil {
				return respondStatus(ctx, http.StatusBadRequest, err)
			}
			result, err := reader.MetricFilters(ctx.Context(), queries.MetricFiltersInput{MetricID: id})
			if err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, result)
		}},
		{router.GET, routes.References, func(ctx router.Context) error {
			dim := dashboard.Dimension(strings.ToLower(ctx.Param("dimension")))
			items, err := reader.ReferenceList(ctx.Context(), queries.ReferenceListInput{Dimension: dim})
			if err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, items)
		}},
	}
}

func commandRoutes(api httpapi.Executor, routes RouteConfig) []route {
	return []route{
		{router.POST, routes.Dashboards, func(ctx router.Context) error {
			var payload commands.CreateDashboardInput
			if err := decode(ctx, &payload); err != nil {
				return respondStatus(ctx, http.StatusBadRequest, err)
			}
			if err := api.CreateDashboard(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusCreated, map[string]string{"status": "created"})
		}},
		{router.POST, routes.Select, withID(func(ctx router.Context, id int64) error {
			input := commands.SelectDashboardInput{DashboardID: id, Wait: ctx.Query("wait") == "true"}
			if err := api.SelectDashboard(ctx.Context(), input); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusAccepted, map[string]string{"status": "loading"})
		})},
		{router.PUT, routes.DashboardID, withID(func(ctx router.Context, id int64) error {
			var payload commands.UpdateDashboardInput
			if err := decode(ctx, &payload); err != nil {
				return respondStatus(ctx, http.StatusBadRequest, err)
			}
			payload.DashboardID = id
			if err := api.UpdateDashboard(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, map[string]string{"status": "updated"})
		})},
		{router.DELETE, routes.DashboardID, withID(func(ctx router.Context, id int64) error {
			if err := api.DeleteDashboard(ctx.Context(), commands.DeleteDashboardInput{DashboardID: id}); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, map[string]string{"status": "deleted"})
		})},
		{router.POST, routes.Default, withID(func(ctx router.Context, id int64) error {
			if err := api.SetDefaultDashboard(ctx.Context(), commands.SetDefaultDashboardInput{DashboardID: id}); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, map[string]string{"status": "default"})
		})},
		{router.POST, routes.Reorder, func(ctx router.Context) error {
			var payload commands.ReorderMetricsInput
			if err := decode(ctx, &payload); err != nil {
				return respondStatus(ctx, http.StatusBadRequest, err)
			}
			if err := api.ReorderMetrics(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, map[string]string{"status": "reordered"})
		}},
		{router.POST, routes.Refresh, func(ctx router.Context) error {
			var payload commands.RefreshMetricsInput
			if err := decode(ctx, &payload); err != nil {
				return respondStatus(ctx, http.StatusBadRequest, err)
			}
			if err := api.Refresh(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
		}},
		{router.POST, routes.MetricID, withID(func(ctx router.Context, id int64) error {
			if err := api.AddMetric(ctx.Context(), commands.AddMetricInput{MetricID: id}); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusCreated, map[string]string{"status": "added"})
		})},
		{router.DELETE, routes.MetricID, withID(func(ctx router.Context, id int64) error {
			if err := api.RemoveMetric(ctx.Context(), commands.RemoveMetricInput{MetricID: id}); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, map[string]string{"status": "removed"})
		})},
		{router.POST, routes.Visibility, withID(func(ctx router.Context, id int64) error {
			var payload commands.SetMetricVisibilityInput
			if err := decode(ctx, &payload); err != nil {
				return respondStatus(ctx, http.StatusBadRequest, err)
			}
			payload.MetricID = id
			if err := api.SetMetricVisibility(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, map[string]string{"status": "updated"})
		})},
		{router.POST, routes.Move, withID(func(ctx router.Context, id int64) error {
			var payload commands.MoveMetricInput
			if err := decode(ctx, &payload); err != nil {
				return respondStatus(ctx, http.StatusBadRequest, err)
			}
			payload.MetricID = id
			if err := api.MoveMetric(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, map[string]string{"status": "moved"})
		})},
		{router.POST, routes.Filters, withID(func(ctx router.Context, id int64) error {
			var payload commands.ApplyFiltersInput
			if err := decode(ctx, &payload); err != nil {
				return respondStatus(ctx, http.StatusBadRequest, err)
			}
			payload.MetricID = id
			if err := api.ApplyFilters(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusAccepted, map[string]string{"status": "applied"})
		})},
		{router.PUT, routes.Filters, withID(func(ctx router.Context, id int64) error {
			var payload commands.SaveFiltersInput
			if err := decode(ctx, &payload); err != nil {
				return respondStatus(ctx, http.StatusBadRequest, err)
			}
			payload.MetricID = id
			if err := api.SaveFilters(ctx.Context(), payload); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusOK, map[string]string{"status": "saved"})
		})},
		{router.DELETE, routes.Filters, withID(func(ctx router.Context, id int64) error {
			input := commands.ResetFiltersInput{MetricID: id, Wait: ctx.Query("wait") == "true"}
			if err := api.ResetFilters(ctx.Context(), input); err != nil {
				return respondError(ctx, err)
			}
			return ctx.JSON(http.StatusAccepted, map[string]string{"status": "reset"})
		})},
	}
}

func registerWebSocket[T any](r router.Router[T], hook *dashboard.BroadcastHook, path string) {
	cfg := router.DefaultWebSocketConfig()
	r.WebSocket(path, cfg, func(ws router.WebSocketContext) error {
		events, cancel := hook.Subscribe()
		defer cancel()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return nil
				}
				if err := ws.WriteJSON(event); err != nil {
					return err
				}
			case <-ws.Context().Done():
				return ws.Close()
			}
		}
	})
}

func withID(fn func(router.Context, int64) error) func(router.Context) error {
	return func(ctx router.Context) error {
		id, err := httpapi.ParseID(ctx.Param("id"))
		if err != nil {
			return respondStatus(ctx, http.StatusBadRequest, err)
		}
		return fn(ctx, id)
	}
}

func decode(ctx router.Context, dst any) error {
	body := ctx.Body()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func respondError(ctx router.Context, err error) error {
	return respondStatus(ctx, httpapi.StatusFor(err), err)
}

func respondStatus(ctx router.Context, status int, err error) error {
	return ctx.JSON(status, errorBody(err))
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func defaultRouteConfig(routes RouteConfig) RouteConfig {
	if routes.State == "" {
		routes.State = "/state"
	}
	if routes.Dashboards == "" {
		routes.Dashboards = "/dashboards"
	}
	if routes.DashboardID == "" {
		routes.DashboardID = "/dashboards/:id"
	}
	if routes.Select == "" {
		routes.Select = "/dashboards/:id/select"
	}
	if routes.Default == "" {
		routes.Default = "/dashboards/:id/default"
	}
	if routes.MetricID == "" {
		routes.MetricID = "/metrics/:id"
	}
	if routes.Visibility == "" {
		routes.Visibility = "/metrics/:id/visibility"
	}
	if routes.Reorder == "" {
		routes.Reorder = "/metrics/order"
	}
	if routes.Move == "" {
		routes.Move = "/metrics/:id/move"
	}
	if routes.Filters == "" {
		routes.Filters = "/metrics/:id/filters"
	}
	if routes.Refresh == "" {
		routes.Refresh = "/metrics/refresh"
	}
	if routes.References == "" {
		routes.References = "/references/:dimension"
	}
	if routes.WebSocket == "" {
		routes.WebSocket = "/ws"
	}
	return routes
}
