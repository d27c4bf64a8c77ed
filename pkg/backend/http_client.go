package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	dashboard "github.com/goliatone/go-metricsboard/components/dashboard"
)

// RequestIDHeader carries the dashboard request id to the remote API.
const RequestIDHeader = "X-Request-ID"

// HTTPConfig configures the REST backend client.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPClient implements dashboard.Backend against the metrics REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ dashboard.Backend = (*HTTPClient)(nil)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s %s: remote error %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// HTTPStatus exposes the remote status code.
func (e *StatusError) HTTPStatus() int {
	return e.Code
}

// NewHTTPClient builds a client for the metrics REST API.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend: base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpClient,
	}, nil
}

func (c *HTTPClient) ListDashboards(ctx context.Context) ([]dashboard.DashboardSummary, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/dashboards", nil, &raw); err != nil {
		return nil, err
	}
	var out []dashboard.DashboardSummary
	if err := decodeList(raw, &out); err != nil {
		return nil, fmt.Errorf("backend: decode dashboards: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) GetDashboard(ctx context.Context, id int64) (dashboard.Dashboard, error) {
	path := "/dashboards/default"
	if id > 0 {
		path = "/dashboards/" + strconv.FormatInt(id, 10)
	}
	var resp wireDashboard
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return dashboard.Dashboard{}, err
	}
	return resp.toDashboard(), nil
}

func (c *HTTPClient) CreateDashboard(ctx context.Context, input dashboard.DashboardInput) (dashboard.DashboardSummary, error) {
	var resp dashboard.DashboardSummary
	if err := c.do(ctx, http.MethodPost, "/dashboards", input, &resp); err != nil {
		return dashboard.DashboardSummary{}, err
	}
	return resp, nil
}

func (c *HTTPClient) UpdateDashboard(ctx context.Context, id int64, input dashboard.DashboardInput) (dashboard.DashboardSummary, error) {
	var resp dashboard.DashboardSummary
	if err := c.do(ctx, http.MethodPut, "/dashboards/"+strconv.FormatInt(id, 10), input, &resp); err != nil {
		return dashboard.DashboardSummary{}, err
	}
	return resp, nil
}

func (c *HTTPClient) DeleteDashboard(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/dashboards/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *HTTPClient) SetDefaultDashboard(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, "/dashboards/"+strconv.FormatInt(id, 10)+"/default", nil, nil)
}

func (c *HTTPClient) UpdateMetric(ctx context.Context, input dashboard.MetricUpdate) error {
	return c.do(ctx, http.MethodPatch, "/metrics/"+strconv.FormatInt(input.MetricID, 10), input, nil)
}

func (c *HTTPClient) BulkUpdateMetrics(ctx context.Context, input dashboard.BulkMetricUpdate) error {
	return c.do(ctx, http.MethodPatch, "/metrics/bulk", input, nil)
}

func (c *HTTPClient) SaveMetricSettings(ctx context.Context, input dashboard.MetricSettingsInput) error {
	return c.do(ctx, http.MethodPut, "/metrics/"+strconv.FormatInt(input.MetricID, 10)+"/settings", input, nil)
}

func (c *HTTPClient) FetchMetric(ctx context.Context, query dashboard.MetricQuery) (dashboard.MetricValue, error) {
	var resp dashboard.MetricValue
	path := "/metrics-data/" + strconv.FormatInt(query.MetricID, 10)
	if err := c.do(ctx, http.MethodPost, path, metricDataRequest{Filters: &query.Filters}, &resp); err != nil {
		return dashboard.MetricValue{}, err
	}
	if resp.ID == 0 {
		resp.ID = query.MetricID
	}
	return resp, nil
}

func (c *HTTPClient) FetchDashboardMetrics(ctx context.Context, dashboardID int64, queries []dashboard.MetricQuery) ([]dashboard.MetricValue, error) {
	path := "/dashboards/" + strconv.FormatInt(dashboardID, 10) + "/metrics-data"
	return c.fetchValues(ctx, path, metricDataRequest{Metrics: metricIDs(queries)})
}

func (c *HTTPClient) FetchMetricsWithFilters(ctx context.Context, queries []dashboard.MetricQuery) ([]dashboard.MetricValue, error) {
	return c.fetchValues(ctx, "/metrics-data", metricDataRequest{Queries: queries})
}

func (c *HTTPClient) FetchCapabilities(ctx context.Context, metricID int64) (dashboard.Capabilities, error) {
	var caps dashboard.Capabilities
	if err := c.do(ctx, http.MethodGet, "/metrics/"+strconv.FormatInt(metricID, 10)+"/capabilities", nil, &caps); err != nil {
		return dashboard.Capabilities{}, err
	}
	return caps, nil
}

func (c *HTTPClient) FetchReferenceList(ctx context.Context, dim dashboard.Dimension) ([]dashboard.ReferenceItem, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/references/"+url.PathEscape(string(dim)), nil, &raw); err != nil {
		return nil, err
	}
	return dashboard.ParseReferenceItems(dim, raw)
}

func (c *HTTPClient) fetchValues(ctx context.Context, path string, req metricDataRequest) ([]dashboard.MetricValue, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, req, &raw); err != nil {
		return nil, err
	}
	var out []dashboard.MetricValue
	if err := decodeList(raw, &out); err != nil {
		return nil, fmt.Errorf("backend: decode metric data: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any, target any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("backend: encode payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if id := dashboard.RequestIDFrom(ctx); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(buf.String())}
	}
	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}

// decodeList accepts a bare array or an object wrapping it under "data" or
// "items".
func decodeList[T any](raw json.RawMessage, out *[]T) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*out = nil
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, out)
	}
	var wrapped struct {
		Data  []T `json:"data"`
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return err
	}
	*out = wrapped.Data
	if *out == nil {
		*out = wrapped.Items
	}
	return nil
}

type metricDataRequest struct {
	Filters *dashboard.FilterConfig `json:"filters,omitempty"`
	Metrics []int64                 `json:"metricIds,omitempty"`
	Queries []dashboard.MetricQuery `json:"queries,omitempty"`
}

func metricIDs(queries []dashboard.MetricQuery) []int64 {
	ids := make([]int64, len(queries))
	for i, q := range queries {
		ids[i] = q.MetricID
	}
	return ids
}

type wireBinding struct {
	dashboard.MetricDefinition
	Visible   bool                   `json:"isVisible"`
	SortOrder int                    `json:"sortOrder"`
	Position  dashboard.GridPosition `json:"gridPosition"`
	Settings  json.RawMessage        `json:"settings,omitempty"`
}

type wireDashboard struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	IsDefault   bool          `json:"isDefault"`
	Metrics     []wireBinding `json:"metrics"`
}

// toDashboard converts the wire payload. Settings blobs are decoded
// leniently; an unreadable blob becomes an empty filter set.
func (w wireDashboard) toDashboard() dashboard.Dashboard {
	out := dashboard.Dashboard{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		IsDefault:   w.IsDefault,
		Metrics:     make([]dashboard.MetricBinding, len(w.Metrics)),
	}
	for i, m := range w.Metrics {
		out.Metrics[i] = dashboard.MetricBinding{
			MetricDefinition: m.MetricDefinition,
			Visible:          m.Visible,
			SortOrder:        m.SortOrder,
			Position:         m.Position,
		}
		if len(m.Settings) > 0 && !bytes.Equal(bytes.TrimSpace(m.Settings), []byte("null")) {
			settings := dashboard.DecodeFilterSettings(m.Settings)
			out.Metrics[i].Settings = &settings
		}
	}
	return out
}
