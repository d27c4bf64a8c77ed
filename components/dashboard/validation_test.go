package dashboard

import (
	"errors"
	"testing"
)

func TestFilterPayloadValidatorAcceptsWireShape(t *testing.T) {
	v := NewFilterPayloadValidator()
	cfg, err := v.Validate(map[string]any{
		"startDate": "2024-01-01",
		"videoId":   3,
		"productId": "12",
		"userId":    nil,
		"term":      "weekly",
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	want := FilterConfig{StartDate: "2024-01-01", VideoID: 3, ProductID: 12, Term: TermWeekly}
	if cfg != want {
		t.Fatalf("expected %+v, got %+v", want, cfg)
	}

	empty, err := v.Validate(nil)
	if err != nil || !empty.IsZero() {
		t.Fatalf("expected empty payload to validate, got %+v / %v", empty, err)
	}
}

func TestFilterPayloadValidatorRejectsBadPayloads(t *testing.T) {
	v := NewFilterPayloadValidator()
	payloads := map[string]map[string]any{
		"unknown field":   {"region": "eu"},
		"unknown term":    {"term": "century"},
		"negative id":     {"videoId": -1},
		"non numeric id":  {"userId": "abc"},
		"object for date": {"endDate": map[string]any{"y": 2024}},
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Validate(payload); !errors.Is(err, ErrInvalidFilterPayload) {
				t.Fatalf("expected ErrInvalidFilterPayload, got %v", err)
			}
		})
	}
}
