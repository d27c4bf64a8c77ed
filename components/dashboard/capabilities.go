package dashboard

import "slices"

// Dimension names a filter axis.
type Dimension string

const (
	DimensionDateRange            Dimension = "date_range"
	DimensionVideo                Dimension = "video"
	DimensionProduct              Dimension = "product"
	DimensionUser                 Dimension = "user"
	DimensionScreen               Dimension = "screen"
	DimensionSigner               Dimension = "signer"
	DimensionSubscriptionCategory Dimension = "subscription_category"
	DimensionTerm                 Dimension = "term"
)

var allDimensions = []Dimension{
	DimensionDateRange,
	DimensionVideo,
	DimensionProduct,
	DimensionUser,
	DimensionScreen,
	DimensionSigner,
	DimensionSubscriptionCategory,
	DimensionTerm,
}

// AllDimensions lists every filter dimension in display order.
func AllDimensions() []Dimension {
	return slices.Clone(allDimensions)
}

// IsEntity reports whether values of the dimension reference a reference list.
func (d Dimension) IsEntity() bool {
	switch d {
	case DimensionVideo, DimensionProduct, DimensionUser:
		return true
	}
	return false
}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	return slices.Contains(allDimensions, d)
}

// Term is a time-granularity value.
type Term string

const (
	TermDaily     Term = "daily"
	TermWeekly    Term = "weekly"
	TermMonthly   Term = "monthly"
	TermQuarterly Term = "quarterly"
	TermYearly    Term = "yearly"
)

// FallbackTerm is used whenever a metric does not declare a default term.
const FallbackTerm = TermMonthly

var knownTerms = []Term{TermDaily, TermWeekly, TermMonthly, TermQuarterly, TermYearly}

// KnownTerms lists every term the client understands.
func KnownTerms() []Term {
	return slices.Clone(knownTerms)
}

// Capabilities describes which filter dimensions a metric supports. The zero
// value supports nothing.
type Capabilities struct {
	DateRange            bool   `json:"supportsDateRange" yaml:"date_range"`
	Video                bool   `json:"supportsVideoFilter" yaml:"video"`
	Product              bool   `json:"supportsProductFilter" yaml:"product"`
	User                 bool   `json:"supportsUserFilter" yaml:"user"`
	Screen               bool   `json:"supportsScreenFilter" yaml:"screen"`
	Signer               bool   `json:"supportsSignerFilter" yaml:"signer"`
	SubscriptionCategory bool   `json:"supportsSubscriptionCategoryFilter" yaml:"subscription_category"`
	Term                 bool   `json:"supportsTerm" yaml:"term"`
	AvailableTerms       []Term `json:"availableTerms,omitempty" yaml:"available_terms,omitempty"`
	DefaultTerm          Term   `json:"defaultTerm,omitempty" yaml:"default_term,omitempty"`
}

// Supports reports whether the dimension may carry a value for this metric.
func (c Capabilities) Supports(d Dimension) bool {
	switch d {
	case DimensionDateRange:
		return c.DateRange
	case DimensionVideo:
		return c.Video
	case DimensionProduct:
		return c.Product
	case DimensionUser:
		return c.User
	case DimensionScreen:
		return c.Screen
	case DimensionSigner:
		return c.Signer
	case DimensionSubscriptionCategory:
		return c.SubscriptionCategory
	case DimensionTerm:
		return c.Term
	default:
		return false
	}
}

// SupportedDimensions lists supported dimensions in display order.
func (c Capabilities) SupportedDimensions() []Dimension {
	var out []Dimension
	for _, d := range allDimensions {
		if c.Supports(d) {
			out = append(out, d)
		}
	}
	return out
}

// LegalTerms returns the enumerated terms. An empty AvailableTerms on a
// term-capable metric means every known term.
func (c Capabilities) LegalTerms() []Term {
	if !c.Term {
		return nil
	}
	if len(c.AvailableTerms) == 0 {
		return KnownTerms()
	}
	return slices.Clone(c.AvailableTerms)
}

// AllowsTerm reports whether t is a legal term for the metric.
func (c Capabilities) AllowsTerm(t Term) bool {
	if !c.Term || t == "" {
		return false
	}
	if len(c.AvailableTerms) == 0 {
		return slices.Contains(knownTerms, t)
	}
	return slices.Contains(c.AvailableTerms, t)
}

// EffectiveDefaultTerm returns the declared default or FallbackTerm.
func (c Capabilities) EffectiveDefaultTerm() Term {
	if c.DefaultTerm != "" {
		return c.DefaultTerm
	}
	return FallbackTerm
}

// Clone returns a copy that shares no slices.
func (c Capabilities) Clone() Capabilities {
	out := c
	out.AvailableTerms = slices.Clone(c.AvailableTerms)
	return out
}
