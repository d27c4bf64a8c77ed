package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-metricsboard/components/dashboard"
	"github.com/goliatone/go-metricsboard/pkg/backend"
)

func TestSanitizeCommandText(t *testing.T) {
	var out bytes.Buffer
	cmd := &sanitizeCmd{
		Filters:      "testdata/filters.json",
		Capabilities: "testdata/capabilities.yaml",
		References:   "testdata/references.yaml",
		Format:       "text",
		out:          &out,
	}
	require.NoError(t, cmd.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, `filters: {"term":"monthly"}`)
	assert.Contains(t, text, "dropped  video_id=5: not found in reference list")
	assert.Contains(t, text, "dropped  start_date=2024-01-01: unsupported dimension")
	assert.Contains(t, text, "replaced term=daily")
}

func TestSanitizeCommandJSON(t *testing.T) {
	var out bytes.Buffer
	cmd := &sanitizeCmd{
		Filters:      "testdata/filters.json",
		Capabilities: "testdata/capabilities.yaml",
		Format:       "json",
		out:          &out,
	}
	require.NoError(t, cmd.Run(context.Background()))

	var payload struct {
		Filters dashboard.FilterConfig   `json:"filters"`
		Report  dashboard.SanitizeReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &payload))
	assert.Equal(t, dashboard.FilterConfig{Term: dashboard.TermMonthly}, payload.Filters)
	assert.True(t, payload.Report.Changed())
}

func TestSanitizeCommandFromSeed(t *testing.T) {
	var out bytes.Buffer
	cmd := &sanitizeCmd{
		Filters:  "testdata/filters.json",
		SeedFile: "../../pkg/backend/testdata/seed.yaml",
		Metric:   1,
		Format:   "json",
		out:      &out,
	}
	require.NoError(t, cmd.Run(context.Background()))
	assert.Contains(t, out.String(), `"startDate": "2024-01-01"`)

	cmd.Metric = 99
	assert.ErrorContains(t, cmd.Run(context.Background()), "no metric 99")
}

func TestSanitizeCommandValidation(t *testing.T) {
	cmd := &sanitizeCmd{Filters: "testdata/filters.json"}
	assert.Error(t, cmd.Run(context.Background()))

	cmd = &sanitizeCmd{Filters: "testdata/filters.json", SeedFile: "../../pkg/backend/testdata/seed.yaml"}
	assert.ErrorContains(t, cmd.Run(context.Background()), "--metric")

	cmd = &sanitizeCmd{
		Filters:      "testdata/filters.json",
		Capabilities: "testdata/capabilities.yaml",
		References:   "testdata/bad_references.yaml",
	}
	assert.ErrorContains(t, cmd.Run(context.Background()), "non-entity")
}

func TestSeedValidateCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := &seedValidateCmd{Path: "../../pkg/backend/testdata/seed.yaml", out: &out}
	require.NoError(t, cmd.Run(context.Background()))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out.String()), "ok (version 1, 3 metrics, 2 dashboards, 4 bindings, 2 reference lists)"))

	bad := &seedValidateCmd{Path: "../../pkg/backend/testdata/bad_seed.yaml", out: &out}
	assert.ErrorContains(t, bad.Run(context.Background()), "unknown metric 9")
}

func TestDemoSeedIsValid(t *testing.T) {
	seed, err := backend.DecodeSeed(bytes.NewReader(demoSeed))
	require.NoError(t, err)
	assert.Len(t, seed.Dashboards, 2)
	assert.NotEmpty(t, seed.References[dashboard.DimensionVideo])
}

func TestDiagnosticLine(t *testing.T) {
	line := diagnosticLine("dropped", dashboard.FieldDiagnostic{Field: "subscriptionCategory", Value: "gold", Reason: "unknown subscription category"})
	assert.Equal(t, "dropped  subscription_category=gold: unknown subscription category", line)

	line = diagnosticLine("replaced", dashboard.FieldDiagnostic{Field: "term", Reason: "term not available, using monthly"})
	assert.Equal(t, "replaced term: term not available, using monthly", line)
}
