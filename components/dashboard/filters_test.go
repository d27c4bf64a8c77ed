package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var videoRefs = StaticReferences{
	DimensionVideo:   {{ID: 1, Name: "Intro"}, {ID: 2, Name: "Onboarding"}},
	DimensionProduct: {{ID: 7, Name: "Pro"}},
	DimensionUser:    {{ID: 10, Name: "Ada"}},
}

func TestSanitizeDropsUnknownEntityAndIllegalTerm(t *testing.T) {
	caps := Capabilities{
		Video:          true,
		Term:           true,
		AvailableTerms: []Term{TermDaily, TermWeekly, TermMonthly, TermYearly},
		DefaultTerm:    TermMonthly,
	}
	out, report := Sanitize(context.Background(), FilterConfig{VideoID: 777, Term: "century"}, caps, videoRefs)

	assert.Equal(t, FilterConfig{Term: TermMonthly}, out)
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, "videoId", report.Dropped[0].Field)
	assert.Equal(t, "not found in reference list", report.Dropped[0].Reason)
	require.Len(t, report.Replaced, 1)
	assert.Equal(t, "century", report.Replaced[0].Value)
}

func TestSanitizeDropsInvalidDatesIndividually(t *testing.T) {
	caps := Capabilities{DateRange: true}
	out, report := Sanitize(context.Background(), FilterConfig{StartDate: "2024-01-10", EndDate: "not-a-date"}, caps, nil)
	assert.Equal(t, FilterConfig{StartDate: "2024-01-10"}, out)
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, "endDate", report.Dropped[0].Field)

	out, _ = Sanitize(context.Background(), FilterConfig{StartDate: "2024-13-40", EndDate: "2024-02-01T10:00:00Z"}, caps, nil)
	assert.Equal(t, FilterConfig{EndDate: "2024-02-01"}, out)
}

func TestSanitizeDropsEndBeforeStart(t *testing.T) {
	caps := Capabilities{DateRange: true}
	out, report := Sanitize(context.Background(), FilterConfig{StartDate: "2024-03-01", EndDate: "2024-02-01"}, caps, nil)
	assert.Equal(t, FilterConfig{StartDate: "2024-03-01"}, out)
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, "end date precedes start date", report.Dropped[0].Reason)
}

func TestSanitizeTermDefaultsWhenMissing(t *testing.T) {
	out, report := Sanitize(context.Background(), FilterConfig{}, Capabilities{Term: true, DefaultTerm: TermWeekly}, nil)
	assert.Equal(t, TermWeekly, out.Term)
	assert.Len(t, report.Replaced, 1)

	out, report = Sanitize(context.Background(), FilterConfig{Term: TermDaily}, Capabilities{Term: true}, nil)
	assert.Equal(t, TermDaily, out.Term)
	assert.False(t, report.Changed())
}

func TestSanitizeSubscriptionCategory(t *testing.T) {
	caps := Capabilities{SubscriptionCategory: true}
	out, _ := Sanitize(context.Background(), FilterConfig{SubscriptionCategory: SubscriptionPremium}, caps, nil)
	assert.Equal(t, SubscriptionPremium, out.SubscriptionCategory)

	out, report := Sanitize(context.Background(), FilterConfig{SubscriptionCategory: "gold"}, caps, nil)
	assert.True(t, out.IsZero())
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, "unknown subscription category", report.Dropped[0].Reason)
}

func TestSanitizeEntityEdgeCases(t *testing.T) {
	caps := Capabilities{Video: true, Product: true, User: true}

	out, report := Sanitize(context.Background(), FilterConfig{VideoID: -3, ProductID: 7, UserID: 10}, caps, videoRefs)
	assert.Equal(t, FilterConfig{ProductID: 7, UserID: 10}, out)
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, "identifier must be positive", report.Dropped[0].Reason)

	failing := ReferenceSourceFunc(func(context.Context, Dimension) ([]ReferenceItem, error) {
		return nil, errBackendDown
	})
	out, report = Sanitize(context.Background(), FilterConfig{VideoID: 1}, caps, failing)
	assert.True(t, out.IsZero())
	require.Len(t, report.Dropped, 1)
	assert.Contains(t, report.Dropped[0].Reason, "reference list unavailable")

	out, _ = Sanitize(context.Background(), FilterConfig{VideoID: 1}, caps, nil)
	assert.True(t, out.IsZero(), "no reference source means no entity can be confirmed")
}

var sanitizeCorpus = []FilterConfig{
	{},
	{VideoID: 777, Term: "century"},
	{VideoID: 2, ProductID: 7, UserID: 11, Term: TermYearly},
	{StartDate: "2024-01-10", EndDate: "not-a-date"},
	{StartDate: "2024-05-01T12:00:00Z", EndDate: "2024-04-01"},
	{Screen: "home", Signer: "legal", SubscriptionCategory: SubscriptionTrial},
	{SubscriptionCategory: "gold", Term: TermDaily, VideoID: -1},
}

var capsCorpus = []Capabilities{
	{},
	{Video: true, Term: true, AvailableTerms: []Term{TermWeekly, TermMonthly}, DefaultTerm: TermMonthly},
	{DateRange: true, Screen: true, Signer: true},
	{Product: true, User: true, SubscriptionCategory: true, Term: true},
	{Term: true, AvailableTerms: []Term{TermWeekly}, DefaultTerm: TermQuarterly},
}

func TestSanitizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for _, caps := range capsCorpus {
		for _, cfg := range sanitizeCorpus {
			once, _ := Sanitize(ctx, cfg, caps, videoRefs)
			twice, _ := Sanitize(ctx, once, caps, videoRefs)
			if once != twice {
				t.Fatalf("sanitize not idempotent for %+v / %+v: %+v != %+v", cfg, caps, once, twice)
			}
		}
	}
}

func TestSanitizedFieldsAreSupported(t *testing.T) {
	ctx := context.Background()
	for _, caps := range capsCorpus {
		for _, cfg := range sanitizeCorpus {
			out, _ := Sanitize(ctx, cfg, caps, videoRefs)
			for _, d := range out.Populated() {
				if !caps.Supports(d) {
					t.Fatalf("sanitized %+v carries unsupported dimension %s for %+v", out, d, caps)
				}
			}
		}
	}
}

func TestResetFilters(t *testing.T) {
	assert.Equal(t, FilterConfig{}, ResetFilters(Capabilities{Video: true}))
	assert.Equal(t, FilterConfig{Term: TermMonthly}, ResetFilters(Capabilities{Term: true}))
	assert.Equal(t, FilterConfig{Term: TermYearly}, ResetFilters(Capabilities{Term: true, DefaultTerm: TermYearly}))
}

func TestDecodeFilterSettings(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want FilterConfig
	}{
		{"wrapped", `{"filters":{"videoId":3,"term":"weekly"},"schemaVersion":1}`, FilterConfig{VideoID: 3, Term: TermWeekly}},
		{"bare", `{"startDate":"2024-01-01","productId":"9"}`, FilterConfig{StartDate: "2024-01-01", ProductID: 9}},
		{"snake case", `{"user_id":4,"subscription_category":"basic"}`, FilterConfig{UserID: 4, SubscriptionCategory: SubscriptionBasic}},
		{"double encoded", `"{\"filters\":{\"screen\":\"home\"}}"`, FilterConfig{Screen: "home"}},
		{"non integer ids", `{"videoId":1.9,"userId":"1e30","productId":4}`, FilterConfig{ProductID: 4}},
		{"garbage", `not json`, FilterConfig{}},
		{"array", `[1,2]`, FilterConfig{}},
		{"empty", ``, FilterConfig{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DecodeFilterSettings([]byte(tc.raw)).Filters)
		})
	}

	settings := DecodeFilterSettings([]byte(`{"filters":{},"lastUpdated":"2024-02-03T04:05:06Z","schemaVersion":1}`))
	assert.Equal(t, 1, settings.SchemaVersion)
	assert.True(t, settings.LastUpdated.Equal(time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)))
}

func TestNewFilterSettingsStampsVersion(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	settings := NewFilterSettings(FilterConfig{Term: TermDaily}, now)
	assert.Equal(t, FilterSchemaVersion, settings.SchemaVersion)
	assert.Equal(t, time.UTC, settings.LastUpdated.Location())
}

func TestReferencePassLoadsEachDimensionOnce(t *testing.T) {
	loads := map[Dimension]int{}
	source := ReferenceSourceFunc(func(_ context.Context, dim Dimension) ([]ReferenceItem, error) {
		loads[dim]++
		return videoRefs[dim], nil
	})
	pass := NewReferencePass(source)
	caps := Capabilities{Video: true, User: true}
	for range 3 {
		Sanitize(context.Background(), FilterConfig{VideoID: 1, UserID: 10}, caps, pass)
	}
	assert.Equal(t, 1, loads[DimensionVideo])
	assert.Equal(t, 1, loads[DimensionUser])

	items, err := pass.ReferenceList(context.Background(), DimensionVideo)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = NewReferencePass(nil).ReferenceList(context.Background(), DimensionVideo)
	assert.True(t, errors.Is(err, ErrReferencesUnavailable))
}

func TestFilterValidatorRecordsSanitizedTelemetry(t *testing.T) {
	telemetry := &recordingTelemetry{}
	validator := NewFilterValidator(nil, telemetry)

	validator.Sanitize(context.Background(), FilterConfig{Term: TermDaily}, Capabilities{Term: true}, nil)
	assert.False(t, telemetry.has("dashboard.filters.sanitized"))

	validator.Sanitize(context.Background(), FilterConfig{Screen: "home"}, Capabilities{}, nil)
	assert.True(t, telemetry.has("dashboard.filters.sanitized"))
}
