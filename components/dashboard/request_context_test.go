package dashboard

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	if got := RequestIDFrom(ctx); got != "req-42" {
		t.Fatalf("expected req-42, got %q", got)
	}
	if got := RequestIDFrom(context.Background()); got != "" {
		t.Fatalf("expected no request id, got %q", got)
	}
	if ensureRequestID(ctx) != ctx {
		t.Fatalf("existing request id should be kept")
	}
	generated := RequestIDFrom(ensureRequestID(context.Background()))
	if len(generated) != 36 {
		t.Fatalf("expected a generated uuid, got %q", generated)
	}
}
