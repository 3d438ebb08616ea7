package bls

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/conduit/pkg/providers"
)

func TestAdapter_Fetch(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		category providers.Category
	}{
		{
			name: "succeeded",
			body: `{"status":"REQUEST_SUCCEEDED","message":[],"Results":{"series":[{"seriesID":"LNS14000000","data":[]}]}}`,
		},
		{
			name:     "daily threshold",
			body:     `{"status":"REQUEST_NOT_PROCESSED","message":["Request could not be serviced, as the daily threshold for total number of requests allocated to the user has been reached."]}`,
			category: providers.CategoryRateLimit,
		},
		{
			name:     "not processed",
			body:     `{"status":"REQUEST_NOT_PROCESSED","message":["System unavailable"]}`,
			category: providers.CategoryServerError,
		},
		{
			name:     "failed",
			body:     `{"status":"REQUEST_FAILED","message":["Invalid series id"]}`,
			category: providers.CategoryClientError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got request
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				_ = json.NewDecoder(r.Body).Decode(&got)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			a := New(providers.ProviderConfig{BaseURL: server.URL, APIKey: "reg"})
			_, err := a.Fetch(context.Background(), providers.CapabilityLaborSeries, providers.Params{
				"series_id":  "lns14000000, CUUR0000SA0",
				"start_year": "2020",
				"end_year":   "2023",
			})

			if len(got.SeriesID) != 2 || got.SeriesID[0] != "LNS14000000" || got.SeriesID[1] != "CUUR0000SA0" {
				t.Errorf("seriesid = %v", got.SeriesID)
			}
			if got.StartYear != "2020" || got.EndYear != "2023" || got.RegistrationKey != "reg" {
				t.Errorf("request = %+v", got)
			}

			if tt.category == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if c := providers.CategoryOf(err); c != tt.category {
				t.Errorf("CategoryOf(err) = %q, want %q (err = %v)", c, tt.category, err)
			}
		})
	}
}

func TestAdapter_YearOrder(t *testing.T) {
	a := New(providers.ProviderConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := a.Fetch(context.Background(), providers.CapabilityLaborSeries, providers.Params{
		"series_id": "LNS14000000", "start_year": "2024", "end_year": "2020",
	})
	if !errors.Is(err, providers.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}
