package health

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/conduit/pkg/providers"
)

func benchRegistry(n int) *Registry {
	reg := NewRegistry()
	for i := 0; i < n; i++ {
		reg.Register(&fakeSource{
			name:   fmt.Sprintf("p%d", i),
			tokens: float64(i),
			status: providers.Status{LastSuccessAt: time.Now(), Attempts: int64(i)},
		})
	}
	return reg
}

func Benchmark_Snapshot(b *testing.B) {
	reg := benchRegistry(10)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = reg.Snapshot()
	}
}

func Benchmark_ProvidersHandler(b *testing.B) {
	handler := benchRegistry(10).ProvidersHandler()
	req := httptest.NewRequest(http.MethodGet, "/health/providers", nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func Benchmark_Parallel_CapabilityCheck(b *testing.B) {
	reg := benchRegistry(6)
	check := CapabilityCheck(reg, fakeChains{
		"quote":   {"p0", "p1"},
		"news":    {"p2", "p3"},
		"filings": {"p4", "p5"},
	})
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = check(ctx)
		}
	})
}
