package logging

import (
	"context"
	"io"
	"testing"
)

func BenchmarkLogger_Info_Enabled(b *testing.B) {
	logger, err := New(Config{Level: "info", Format: "json", Writer: io.Discard})
	if err != nil {
		b.Fatalf("Failed to create logger: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		logger.Info("test message", "key", "value", "count", i)
	}
}

func BenchmarkLogger_Debug_Disabled(b *testing.B) {
	logger, err := New(Config{Level: "info", Format: "json", Writer: io.Discard})
	if err != nil {
		b.Fatalf("Failed to create logger: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		logger.Debug("test message", "key", "value", "count", i)
	}
}

func BenchmarkLogger_Redacted(b *testing.B) {
	logger, err := New(Config{Level: "info", Format: "json", RedactSecrets: true, Writer: io.Discard})
	if err != nil {
		b.Fatalf("Failed to create logger: %v", err)
	}
	ctx := WithCapability(WithRequestID(context.Background(), "req-123"), "quote")

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		logger.InfoContext(ctx, "upstream failed",
			"provider", "alphavantage",
			"url", "https://www.alphavantage.co/query?function=GLOBAL_QUOTE&symbol=IBM&apikey=DEMO123",
		)
	}
}

func BenchmarkRedactor_RedactString(b *testing.B) {
	r := NewRedactor(nil)
	input := "Get https://api.stlouisfed.org/fred/series/observations?series_id=GDP&api_key=abcdef0123: timeout"

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = r.RedactString(input)
	}
}
