package fred

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"mercator-hq/conduit/pkg/providers"
)

func TestAdapter_Fetch(t *testing.T) {
	var query url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		if r.URL.Path != "/fred/series/observations" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"observations":[{"date":"2024-01-01","value":"3.7"}]}`))
	}))
	defer server.Close()

	a := New(providers.ProviderConfig{BaseURL: server.URL, APIKey: "fredkey"})
	_, err := a.Fetch(context.Background(), providers.CapabilityEconomicSeries, providers.Params{
		"series_id":         "UNRATE",
		"observation_start": "2024-01-01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"series_id":         "UNRATE",
		"api_key":           "fredkey",
		"file_type":         "json",
		"observation_start": "2024-01-01",
	}
	for k, v := range want {
		if got := query.Get(k); got != v {
			t.Errorf("query %s = %q, want %q", k, got, v)
		}
	}
	if query.Has("observation_end") {
		t.Error("observation_end should be omitted when not given")
	}
}

func TestAdapter_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":400,"error_message":"Bad Request. The series does not exist."}`))
	}))
	defer server.Close()

	a := New(providers.ProviderConfig{BaseURL: server.URL})

	_, err := a.Fetch(context.Background(), providers.CapabilityEconomicSeries, providers.Params{"series_id": "NOPE"})
	if got := providers.CategoryOf(err); got != providers.CategoryClientError {
		t.Errorf("CategoryOf(err) = %q, want client_error", got)
	}

	_, err = a.Fetch(context.Background(), providers.CapabilityEconomicSeries, providers.Params{"series_id": "bad id!"})
	if !errors.Is(err, providers.ErrValidation) {
		t.Errorf("invalid series: err = %v, want validation error", err)
	}
}
