package dashboard

import (
	"slices"
	"testing"
)

func TestZeroCapabilitiesSupportNothing(t *testing.T) {
	var caps Capabilities
	for _, d := range AllDimensions() {
		if caps.Supports(d) {
			t.Fatalf("zero capabilities should not support %s", d)
		}
	}
	if caps.LegalTerms() != nil {
		t.Fatalf("expected no legal terms, got %v", caps.LegalTerms())
	}
	if caps.AllowsTerm(TermMonthly) {
		t.Fatalf("term should not be allowed without term support")
	}
	if caps.Supports(Dimension("colour")) {
		t.Fatalf("unknown dimension reported as supported")
	}
}

func TestCapabilitiesTerms(t *testing.T) {
	open := Capabilities{Term: true}
	if !slices.Equal(open.LegalTerms(), KnownTerms()) {
		t.Fatalf("empty AvailableTerms should allow every known term, got %v", open.LegalTerms())
	}
	if !open.AllowsTerm(TermYearly) || open.AllowsTerm("century") || open.AllowsTerm("") {
		t.Fatalf("unexpected AllowsTerm results for open capability set")
	}
	if open.EffectiveDefaultTerm() != FallbackTerm {
		t.Fatalf("expected fallback term %s, got %s", FallbackTerm, open.EffectiveDefaultTerm())
	}

	narrow := Capabilities{Term: true, AvailableTerms: []Term{TermWeekly, TermQuarterly}, DefaultTerm: TermWeekly}
	if narrow.AllowsTerm(TermMonthly) {
		t.Fatalf("monthly is not in the enumerated terms")
	}
	if narrow.EffectiveDefaultTerm() != TermWeekly {
		t.Fatalf("expected declared default, got %s", narrow.EffectiveDefaultTerm())
	}
}

func TestCapabilitiesSupportedDimensionsKeepDisplayOrder(t *testing.T) {
	caps := Capabilities{Term: true, Video: true, DateRange: true}
	want := []Dimension{DimensionDateRange, DimensionVideo, DimensionTerm}
	if got := caps.SupportedDimensions(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCapabilitiesCloneDoesNotShareTerms(t *testing.T) {
	caps := Capabilities{Term: true, AvailableTerms: []Term{TermDaily}}
	clone := caps.Clone()
	clone.AvailableTerms[0] = TermYearly
	if caps.AvailableTerms[0] != TermDaily {
		t.Fatalf("clone mutated the original")
	}
}

func TestDimensionClassification(t *testing.T) {
	entities := 0
	for _, d := range AllDimensions() {
		if !d.Valid() {
			t.Fatalf("%s should be valid", d)
		}
		if d.IsEntity() {
			entities++
		}
	}
	if entities != 3 {
		t.Fatalf("expected video, product and user to be entity dimensions, got %d", entities)
	}
	if Dimension("colour").Valid() {
		t.Fatalf("unknown dimension reported as valid")
	}
}
