package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/conduit/pkg/gateway"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/telemetry/logging"
)

// Reserved query string keys. Everything else is a capability parameter.
const (
	queryForceFresh = "force_fresh"
	queryTimeout    = "timeout"
)

// maxQueryBody bounds POST query bodies.
const maxQueryBody = 64 << 10

// Querier answers capability queries. *gateway.Gateway implements it.
type Querier interface {
	Query(ctx context.Context, capability string, params providers.Params, opts gateway.Options) (*gateway.Result, error)
	Capabilities() []string
}

// QueryRequest is the POST body of /v1/query/{capability}.
type QueryRequest struct {
	Params     providers.Params `json:"params"`
	ForceFresh bool             `json:"force_fresh"`
	// Timeout is a Go duration string such as "2s".
	Timeout string `json:"timeout"`
}

// QueryHandler serves GET and POST /v1/query/{capability}.
type QueryHandler struct {
	gateway    Querier
	maxTimeout time.Duration
}

// NewQueryHandler creates a handler over q. Caller timeouts above
// maxTimeout are clamped; zero disables the clamp.
func NewQueryHandler(q Querier, maxTimeout time.Duration) *QueryHandler {
	return &QueryHandler{gateway: q, maxTimeout: maxTimeout}
}

// ServeHTTP implements http.Handler.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	capability := r.PathValue("capability")

	var (
		req QueryRequest
		err error
	)
	switch r.Method {
	case http.MethodGet:
		req, err = parseQueryString(r)
	case http.MethodPost:
		req, err = parseQueryBody(r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, r, http.StatusMethodNotAllowed, &ErrorBody{
			Type:    ErrorTypeInvalidRequest,
			Message: "method not allowed",
		})
		return
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, &ErrorBody{Type: ErrorTypeInvalidRequest, Message: err.Error()})
		return
	}

	opts := gateway.Options{ForceFresh: req.ForceFresh}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			writeError(w, r, http.StatusBadRequest, &ErrorBody{
				Type:    ErrorTypeInvalidRequest,
				Message: fmt.Sprintf("invalid timeout %q", req.Timeout),
			})
			return
		}
		if h.maxTimeout > 0 && d > h.maxTimeout {
			d = h.maxTimeout
		}
		opts.Timeout = d
	}

	ctx := logging.WithCapability(r.Context(), capability)
	res, err := h.gateway.Query(ctx, capability, req.Params, opts)
	if err != nil {
		writeGatewayError(w, r, err)
		return
	}

	w.Header().Set("X-Conduit-Source", res.Source)
	w.Header().Set("X-Cache", cacheStatus(res))
	writeJSON(w, http.StatusOK, res)
}

func cacheStatus(res *gateway.Result) string {
	switch {
	case res.Stale:
		return "stale"
	case res.Cached:
		return "hit"
	default:
		return "miss"
	}
}

func parseQueryString(r *http.Request) (QueryRequest, error) {
	req := QueryRequest{Params: make(providers.Params)}
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		switch key {
		case queryForceFresh:
			v, err := strconv.ParseBool(values[0])
			if err != nil {
				return req, fmt.Errorf("invalid %s %q", queryForceFresh, values[0])
			}
			req.ForceFresh = v
		case queryTimeout:
			req.Timeout = values[0]
		default:
			req.Params[key] = values[0]
		}
	}
	return req, nil
}

func parseQueryBody(r *http.Request) (QueryRequest, error) {
	var req QueryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxQueryBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && err != io.EOF {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Params == nil {
		req.Params = make(providers.Params)
	}
	return req, nil
}

// CapabilitiesHandler lists the capabilities that have a provider chain.
func CapabilitiesHandler(q Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"capabilities": q.Capabilities()})
	}
}
