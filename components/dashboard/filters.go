package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FilterSchemaVersion is written into every persisted FilterSettings.
const FilterSchemaVersion = 1

// SubscriptionCategory is the subscription tier filter value.
type SubscriptionCategory string

const (
	SubscriptionFree       SubscriptionCategory = "free"
	SubscriptionBasic      SubscriptionCategory = "basic"
	SubscriptionPremium    SubscriptionCategory = "premium"
	SubscriptionEnterprise SubscriptionCategory = "enterprise"
	SubscriptionTrial      SubscriptionCategory = "trial"
)

var subscriptionCategories = []SubscriptionCategory{
	SubscriptionFree,
	SubscriptionBasic,
	SubscriptionPremium,
	SubscriptionEnterprise,
	SubscriptionTrial,
}

// SubscriptionCategories lists the legal subscription categories.
func SubscriptionCategories() []SubscriptionCategory {
	return slices.Clone(subscriptionCategories)
}

// FilterConfig holds at most one value per dimension. Zero values are absent;
// a zero entity id means "all".
type FilterConfig struct {
	StartDate            string               `json:"startDate,omitempty"`
	EndDate              string               `json:"endDate,omitempty"`
	VideoID              int64                `json:"videoId,omitempty"`
	ProductID            int64                `json:"productId,omitempty"`
	UserID               int64                `json:"userId,omitempty"`
	Screen               string               `json:"screen,omitempty"`
	Signer               string               `json:"signer,omitempty"`
	SubscriptionCategory SubscriptionCategory `json:"subscriptionCategory,omitempty"`
	Term                 Term                 `json:"term,omitempty"`
}

// IsZero reports whether no field is populated.
func (f FilterConfig) IsZero() bool {
	return f == FilterConfig{}
}

// Has reports whether any field of the dimension is populated.
func (f FilterConfig) Has(d Dimension) bool {
	switch d {
	case DimensionDateRange:
		return f.StartDate != "" || f.EndDate != ""
	case DimensionVideo:
		return f.VideoID != 0
	case DimensionProduct:
		return f.ProductID != 0
	case DimensionUser:
		return f.UserID != 0
	case DimensionScreen:
		return f.Screen != ""
	case DimensionSigner:
		return f.Signer != ""
	case DimensionSubscriptionCategory:
		return f.SubscriptionCategory != ""
	case DimensionTerm:
		return f.Term != ""
	}
	return false
}

// Populated lists the dimensions that carry a value.
func (f FilterConfig) Populated() []Dimension {
	var out []Dimension
	for _, d := range allDimensions {
		if f.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// EntityID returns the id stored for an entity dimension.
func (f FilterConfig) EntityID(d Dimension) int64 {
	switch d {
	case DimensionVideo:
		return f.VideoID
	case DimensionProduct:
		return f.ProductID
	case DimensionUser:
		return f.UserID
	}
	return 0
}

func (f *FilterConfig) setEntityID(d Dimension, id int64) {
	switch d {
	case DimensionVideo:
		f.VideoID = id
	case DimensionProduct:
		f.ProductID = id
	case DimensionUser:
		f.UserID = id
	}
}

// FilterSettings is the persisted form of a FilterConfig.
type FilterSettings struct {
	Filters       FilterConfig `json:"filters"`
	LastUpdated   time.Time    `json:"lastUpdated"`
	SchemaVersion int          `json:"schemaVersion"`
}

// NewFilterSettings stamps cfg with the current schema version.
func NewFilterSettings(cfg FilterConfig, now time.Time) FilterSettings {
	return FilterSettings{
		Filters:       cfg,
		LastUpdated:   now.UTC(),
		SchemaVersion: FilterSchemaVersion,
	}
}

// FieldDiagnostic explains why a field was dropped or replaced.
type FieldDiagnostic struct {
	Field     string    `json:"field"`
	Dimension Dimension `json:"dimension"`
	Value     string    `json:"value,omitempty"`
	Reason    string    `json:"reason"`
}

// SanitizeReport lists what Sanitize changed. It is diagnostic only.
type SanitizeReport struct {
	Dropped  []FieldDiagnostic `json:"dropped,omitempty"`
	Replaced []FieldDiagnostic `json:"replaced,omitempty"`
}

// Changed reports whether the input differed from the output.
func (r SanitizeReport) Changed() bool {
	return len(r.Dropped) > 0 || len(r.Replaced) > 0
}

func (r *SanitizeReport) drop(field string, d Dimension, value any, reason string) {
	r.Dropped = append(r.Dropped, FieldDiagnostic{Field: field, Dimension: d, Value: fmt.Sprint(value), Reason: reason})
}

// Sanitize reconciles cfg against the metric's capabilities and the current
// reference lists. Unsupported fields are dropped unconditionally, an illegal
// term falls back to the default, unknown entity ids fall back to "all", and
// invalid dates are dropped one by one. Sanitize is idempotent.
func Sanitize(ctx context.Context, cfg FilterConfig, caps Capabilities, refs ReferenceSource) (FilterConfig, SanitizeReport) {
	var (
		out    FilterConfig
		report SanitizeReport
	)
	pass := asReferencePass(refs)

	if caps.Supports(DimensionTerm) {
		if caps.AllowsTerm(cfg.Term) {
			out.Term = cfg.Term
		} else {
			out.Term = caps.EffectiveDefaultTerm()
			if cfg.Term != out.Term {
				report.Replaced = append(report.Replaced, FieldDiagnostic{
					Field:     "term",
					Dimension: DimensionTerm,
					Value:     string(cfg.Term),
					Reason:    "term not available, using " + string(out.Term),
				})
			}
		}
	} else if cfg.Term != "" {
		report.drop("term", DimensionTerm, cfg.Term, "unsupported dimension")
	}

	for _, d := range []Dimension{DimensionVideo, DimensionProduct, DimensionUser} {
		id := cfg.EntityID(d)
		if id == 0 {
			continue
		}
		field := string(d) + "Id"
		if !caps.Supports(d) {
			report.drop(field, d, id, "unsupported dimension")
			continue
		}
		if id < 0 {
			report.drop(field, d, id, "identifier must be positive")
			continue
		}
		found, err := pass.contains(ctx, d, id)
		if err != nil {
			report.drop(field, d, id, "reference list unavailable: "+err.Error())
			continue
		}
		if !found {
			report.drop(field, d, id, "not found in reference list")
			continue
		}
		out.setEntityID(d, id)
	}

	if caps.Supports(DimensionDateRange) {
		start, startOK := normalizeDate(cfg.StartDate)
		end, endOK := normalizeDate(cfg.EndDate)
		if cfg.StartDate != "" && !startOK {
			report.drop("startDate", DimensionDateRange, cfg.StartDate, "invalid date")
		}
		if cfg.EndDate != "" && !endOK {
			report.drop("endDate", DimensionDateRange, cfg.EndDate, "invalid date")
		}
		if startOK && endOK && start > end {
			report.drop("endDate", DimensionDateRange, cfg.EndDate, "end date precedes start date")
			endOK = false
		}
		if startOK {
			out.StartDate = start
		}
		if endOK {
			out.EndDate = end
		}
	} else {
		if cfg.StartDate != "" {
			report.drop("startDate", DimensionDateRange, cfg.StartDate, "unsupported dimension")
		}
		if cfg.EndDate != "" {
			report.drop("endDate", DimensionDateRange, cfg.EndDate, "unsupported dimension")
		}
	}

	if cfg.Screen != "" {
		if caps.Supports(DimensionScreen) {
			out.Screen = cfg.Screen
		} else {
			report.drop("screen", DimensionScreen, cfg.Screen, "unsupported dimension")
		}
	}
	if cfg.Signer != "" {
		if caps.Supports(DimensionSigner) {
			out.Signer = cfg.Signer
		} else {
			report.drop("signer", DimensionSigner, cfg.Signer, "unsupported dimension")
		}
	}

	if cfg.SubscriptionCategory != "" {
		switch {
		case !caps.Supports(DimensionSubscriptionCategory):
			report.drop("subscriptionCategory", DimensionSubscriptionCategory, cfg.SubscriptionCategory, "unsupported dimension")
		case !slices.Contains(subscriptionCategories, cfg.SubscriptionCategory):
			report.drop("subscriptionCategory", DimensionSubscriptionCategory, cfg.SubscriptionCategory, "unknown subscription category")
		default:
			out.SubscriptionCategory = cfg.SubscriptionCategory
		}
	}

	return out, report
}

// ResetFilters returns the configuration a user-triggered reset applies. It
// bypasses validation entirely.
func ResetFilters(caps Capabilities) FilterConfig {
	if !caps.Supports(DimensionTerm) {
		return FilterConfig{}
	}
	return FilterConfig{Term: caps.EffectiveDefaultTerm()}
}

func normalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.Format(time.DateOnly), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format(time.DateOnly), true
	}
	return "", false
}

// FilterSanitizer is the validator dependency injected into the Orchestrator.
type FilterSanitizer interface {
	Sanitize(ctx context.Context, cfg FilterConfig, caps Capabilities, refs ReferenceSource) (FilterConfig, SanitizeReport)
}

// FilterValidator wraps Sanitize with diagnostics logging and telemetry.
type FilterValidator struct {
	logger    *zap.Logger
	telemetry Telemetry
}

// NewFilterValidator builds the default FilterSanitizer.
func NewFilterValidator(logger *zap.Logger, telemetry Telemetry) *FilterValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterValidator{logger: logger, telemetry: normalizeTelemetry(telemetry)}
}

// Sanitize implements FilterSanitizer.
func (v *FilterValidator) Sanitize(ctx context.Context, cfg FilterConfig, caps Capabilities, refs ReferenceSource) (FilterConfig, SanitizeReport) {
	out, report := Sanitize(ctx, cfg, caps, refs)
	for _, diag := range report.Dropped {
		v.logger.Debug("filter field dropped",
			zap.String("field", diag.Field),
			zap.String("value", diag.Value),
			zap.String("reason", diag.Reason),
		)
	}
	if report.Changed() {
		v.telemetry.Record(ctx, "dashboard.filters.sanitized", map[string]any{
			"dropped":  len(report.Dropped),
			"replaced": len(report.Replaced),
		})
	}
	return out, report
}

// DecodeFilterSettings leniently decodes a persisted settings blob. Anything
// unreadable decodes to an empty configuration; Sanitize takes it from there.
// Both the wrapped form ({"filters": {...}}) and a bare filter object are
// accepted, as are double-encoded JSON strings.
func DecodeFilterSettings(raw []byte) FilterSettings {
	obj, ok := decodeObject(raw)
	if !ok {
		return FilterSettings{}
	}
	settings := FilterSettings{}
	if inner, ok := obj["filters"].(map[string]any); ok {
		settings.Filters = DecodeFilterConfig(inner)
		if ts, ok := obj["lastUpdated"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				settings.LastUpdated = t
			}
		}
		if v, ok := numberField(obj["schemaVersion"]); ok {
			if n, ok := wholeNumber(v); ok {
				settings.SchemaVersion = int(n)
			}
		}
		return settings
	}
	settings.Filters = DecodeFilterConfig(obj)
	return settings
}

// DecodeFilterConfig reads a loosely typed filter map. Ids may be numbers or
// numeric strings; snake_case keys are accepted as aliases.
func DecodeFilterConfig(m map[string]any) FilterConfig {
	var cfg FilterConfig
	cfg.StartDate = stringField(m, "startDate", "start_date")
	cfg.EndDate = stringField(m, "endDate", "end_date")
	cfg.VideoID = idField(m, "videoId", "video_id")
	cfg.ProductID = idField(m, "productId", "product_id")
	cfg.UserID = idField(m, "userId", "user_id")
	cfg.Screen = stringField(m, "screen")
	cfg.Signer = stringField(m, "signer")
	cfg.SubscriptionCategory = SubscriptionCategory(stringField(m, "subscriptionCategory", "subscription_category"))
	cfg.Term = Term(stringField(m, "term"))
	return cfg
}

func decodeObject(raw []byte) (map[string]any, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case string:
		return decodeObject([]byte(v))
	}
	return nil, false
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func idField(m map[string]any, keys ...string) int64 {
	for _, key := range keys {
		if v, ok := numberField(m[key]); ok {
			id, _ := wholeNumber(v)
			return id
		}
	}
	return 0
}

// wholeNumber converts f when it is an integer inside the int64 range.
// Fractions, NaN and out-of-range values are rejected.
func wholeNumber(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func numberField(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
