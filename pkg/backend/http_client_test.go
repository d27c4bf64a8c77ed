package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL + "/", APIKey: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPClient(HTTPConfig{}); err == nil {
		t.Fatalf("expected error without base url")
	}
}

func TestHTTPClientGetDashboardDecodesSettings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dashboards/default" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("expected auth header, got %s", got)
		}
		if got := r.Header.Get(RequestIDHeader); got != "req-1" {
			t.Fatalf("expected request id header, got %q", got)
		}
		_, _ = w.Write([]byte(`{
			"id": 4, "name": "Main", "isDefault": true,
			"metrics": [
				{"id": 1, "name": "Revenue", "isVisible": true, "sortOrder": 0,
				 "settings": "{\"filters\":{\"term\":\"weekly\",\"video_id\":\"3\"}}"},
				{"id": 2, "name": "Users", "isVisible": true, "sortOrder": 1, "settings": "not json"},
				{"id": 3, "name": "Churn", "isVisible": false, "sortOrder": 2, "settings": null}
			]
		}`))
	})

	ctx := dashboard.WithRequestID(context.Background(), "req-1")
	d, err := client.GetDashboard(ctx, 0)
	if err != nil {
		t.Fatalf("get dashboard: %v", err)
	}
	if d.ID != 4 || len(d.Metrics) != 3 {
		t.Fatalf("unexpected dashboard %#v", d)
	}
	first := d.Metrics[0].Settings
	if first == nil || first.Filters.Term != dashboard.TermWeekly || first.Filters.VideoID != 3 {
		t.Fatalf("expected double-encoded settings to decode, got %#v", first)
	}
	if d.Metrics[1].Settings == nil || !d.Metrics[1].Settings.Filters.IsZero() {
		t.Fatalf("expected unreadable settings to decode empty, got %#v", d.Metrics[1].Settings)
	}
	if d.Metrics[2].Settings != nil {
		t.Fatalf("expected null settings to stay nil")
	}
}

func TestHTTPClientFetchWithFiltersAcceptsWrappedList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/metrics-data" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body metricDataRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Queries) != 2 || body.Queries[1].Filters.Term != dashboard.TermDaily {
			t.Fatalf("unexpected queries %#v", body.Queries)
		}
		_, _ = w.Write([]byte(`{"data": [{"id": 1, "value": 10}, {"id": 2, "error": "boom"}]}`))
	})

	values, err := client.FetchMetricsWithFilters(context.Background(), []dashboard.MetricQuery{
		{MetricID: 1},
		{MetricID: 2, Filters: dashboard.FilterConfig{Term: dashboard.TermDaily}},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(values) != 2 || values[1].Error != "boom" {
		t.Fatalf("unexpected values %#v", values)
	}
}

func TestHTTPClientFetchDashboardMetricsSendsIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dashboards/7/metrics-data" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body metricDataRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Metrics) != 2 || body.Metrics[0] != 5 {
			t.Fatalf("unexpected metric ids %v", body.Metrics)
		}
		_, _ = w.Write([]byte(`[{"id": 5, "value": 1}]`))
	})
	values, err := client.FetchDashboardMetrics(context.Background(), 7, []dashboard.MetricQuery{{MetricID: 5}, {MetricID: 6}})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(values) != 1 {
		t.Fatalf("expected one value, got %d", len(values))
	}
}

func TestHTTPClientFetchMetricDefaultsID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics-data/9" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"value": 3}`))
	})
	value, err := client.FetchMetric(context.Background(), dashboard.MetricQuery{MetricID: 9})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if value.ID != 9 {
		t.Fatalf("expected id to default to the query, got %d", value.ID)
	}
}

func TestHTTPClientStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bulk rejected", http.StatusConflict)
	})
	err := client.BulkUpdateMetrics(context.Background(), dashboard.BulkMetricUpdate{DashboardID: 1})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.HTTPStatus() != http.StatusConflict || statusErr.Path != "/metrics/bulk" {
		t.Fatalf("unexpected status error %#v", statusErr)
	}
	if statusErr.Body != "bulk rejected" {
		t.Fatalf("expected body to be captured, got %q", statusErr.Body)
	}
}

func TestHTTPClientReferenceList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/references/video" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"items": [{"id": 4, "title": "Intro"}, 7, "{\"id\": 8}"]}`))
	})
	items, err := client.FetchReferenceList(context.Background(), dashboard.DimensionVideo)
	if err != nil {
		t.Fatalf("fetch references: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %#v", items)
	}
	if items[0].Name != "Intro" || items[1].ID != 7 || items[2].Name != "Video 8" {
		t.Fatalf("unexpected items %#v", items)
	}
}

func TestHTTPClientWritesWithoutBody(t *testing.T) {
	var method, path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	if err := client.SetDefaultDashboard(context.Background(), 3); err != nil {
		t.Fatalf("set default: %v", err)
	}
	if method != http.MethodPut || path != "/dashboards/3/default" {
		t.Fatalf("unexpected request %s %s", method, path)
	}
}
