package providers

import (
	"errors"
	"reflect"
	"testing"
)

func TestParams_Get(t *testing.T) {
	p := Params{"Symbol": " aapl ", "from": "2024-01-01"}

	if got := p.Get("symbol"); got != "aapl" {
		t.Errorf("Get(symbol) = %q, want aapl", got)
	}
	if got := p.Get("from"); got != "2024-01-01" {
		t.Errorf("Get(from) = %q", got)
	}
	if got := p.Get("missing"); got != "" {
		t.Errorf("Get(missing) = %q, want empty", got)
	}
}

func TestParams_Normalize(t *testing.T) {
	p := Params{" Symbol ": " AAPL ", "Limit": "10", "empty": "  "}
	want := Params{"symbol": "AAPL", "limit": "10"}

	if got := p.Normalize(); !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize() = %v, want %v", got, want)
	}
	if got := p.Normalize().Keys(); !reflect.DeepEqual(got, []string{"limit", "symbol"}) {
		t.Errorf("Keys() = %v", got)
	}
}

func TestCapabilitySpec_Validate(t *testing.T) {
	spec := BuiltinCapabilities[CapabilityNews]

	tests := []struct {
		name      string
		params    Params
		wantField string
	}{
		{name: "required only", params: Params{"symbol": "AAPL"}},
		{name: "with optional", params: Params{"symbol": "AAPL", "from": "2024-01-01", "limit": "5"}},
		{name: "case insensitive", params: Params{"SYMBOL": "AAPL"}},
		{name: "missing required", params: Params{"from": "2024-01-01"}, wantField: "symbol"},
		{name: "blank required", params: Params{"symbol": "  "}, wantField: "symbol"},
		{name: "unknown parameter", params: Params{"symbol": "AAPL", "page": "2"}, wantField: "page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := spec.Validate(tt.params)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("expected errors.Is(err, ErrValidation)")
			}
		})
	}
}

func TestCapabilitySpec_OpenSpecAcceptsAnything(t *testing.T) {
	spec := CapabilitySpec{Name: "custom"}
	if err := spec.Validate(Params{"anything": "goes"}); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestCategory_Kind(t *testing.T) {
	transient := []Category{CategoryNetwork, CategoryTimeout, CategoryRateLimit, CategoryServerError}
	permanent := []Category{CategoryAuth, CategoryClientError, CategoryMalformed}

	for _, c := range transient {
		if c.Kind() != Transient {
			t.Errorf("%s.Kind() = %v, want transient", c, c.Kind())
		}
	}
	for _, c := range permanent {
		if c.Kind() != Permanent {
			t.Errorf("%s.Kind() = %v, want permanent", c, c.Kind())
		}
	}
}

func TestParamHelpers(t *testing.T) {
	if got, err := Symbol(Params{"symbol": "brk.b"}); err != nil || got != "BRK.B" {
		t.Errorf("Symbol() = %q, %v", got, err)
	}
	if _, err := Symbol(Params{"symbol": "not a ticker"}); !errors.Is(err, ErrValidation) {
		t.Errorf("Symbol(invalid) error = %v, want validation error", err)
	}
	if _, err := Date(Params{"from": "01/02/2024"}, "from"); !errors.Is(err, ErrValidation) {
		t.Errorf("Date(invalid) error = %v, want validation error", err)
	}
	if d, err := Date(Params{}, "from"); err != nil || !d.IsZero() {
		t.Errorf("Date(absent) = %v, %v", d, err)
	}
	if y, err := Year(Params{"year": "2022"}, "year"); err != nil || y != 2022 {
		t.Errorf("Year() = %d, %v", y, err)
	}
	if _, err := Year(Params{"year": "22"}, "year"); !errors.Is(err, ErrValidation) {
		t.Errorf("Year(invalid) error = %v, want validation error", err)
	}
}
