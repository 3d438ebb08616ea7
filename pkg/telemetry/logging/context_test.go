package logging

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	tests := []struct {
		name string
		with func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"request id", WithRequestID, GetRequestID},
		{"capability", WithCapability, GetCapability},
		{"provider", WithProvider, GetProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.get(context.Background()); got != "" {
				t.Errorf("empty context = %q, want empty", got)
			}
			ctx := tt.with(context.Background(), "value-1")
			if got := tt.get(ctx); got != "value-1" {
				t.Errorf("get = %q, want value-1", got)
			}
			ctx = tt.with(ctx, "value-2")
			if got := tt.get(ctx); got != "value-2" {
				t.Errorf("get after overwrite = %q, want value-2", got)
			}
		})
	}
}

func TestContextAttrs(t *testing.T) {
	if attrs := contextAttrs(context.Background()); len(attrs) != 0 {
		t.Errorf("contextAttrs(empty) = %v, want none", attrs)
	}

	ctx := WithProvider(WithRequestID(context.Background(), "r1"), "sec")
	attrs := contextAttrs(ctx)
	if len(attrs) != 2 {
		t.Fatalf("contextAttrs() = %v, want 2 attrs", attrs)
	}
	if attrs[0].Key != "request_id" || attrs[0].Value.String() != "r1" {
		t.Errorf("attrs[0] = %v", attrs[0])
	}
	if attrs[1].Key != "provider" || attrs[1].Value.String() != "sec" {
		t.Errorf("attrs[1] = %v", attrs[1])
	}
}
