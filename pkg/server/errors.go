package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"mercator-hq/conduit/pkg/fallback"
	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/telemetry/logging"
)

// Error types reported in ErrorBody.Type.
const (
	ErrorTypeInvalidRequest    = "invalid_request"
	ErrorTypeUnknownCapability = "unknown_capability"
	ErrorTypeRateLimited       = "rate_limited"
	ErrorTypeUnavailable       = "unavailable"
	ErrorTypeTimeout           = "timeout"
	ErrorTypeInternal          = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error *ErrorBody `json:"error"`
}

// ErrorBody describes a failed query.
type ErrorBody struct {
	Type      string             `json:"type"`
	Message   string             `json:"message"`
	RequestID string             `json:"requestId,omitempty"`
	Attempts  []fallback.Attempt `json:"attempts,omitempty"`
}

// statusFor maps a gateway error to an HTTP status and error body. The
// Retry-After seconds are non-zero only for rate limited queries. A mixed
// cascade failure wraps its rate limit errors, so it is matched first.
func statusFor(err error) (int, *ErrorBody, int) {
	body := &ErrorBody{Message: err.Error()}

	var (
		unknown     *fallback.UnknownCapabilityError
		exceeded    *ratelimit.ExceededError
		unavailable *fallback.AllProvidersUnavailableError
	)
	switch {
	case errors.As(err, &unknown):
		body.Type = ErrorTypeUnknownCapability
		return http.StatusNotFound, body, 0

	case errors.Is(err, providers.ErrValidation):
		body.Type = ErrorTypeInvalidRequest
		return http.StatusBadRequest, body, 0

	case errors.As(err, &unavailable):
		body.Type = ErrorTypeUnavailable
		body.Attempts = unavailable.Attempts
		return http.StatusServiceUnavailable, body, 0

	case errors.As(err, &exceeded):
		body.Type = ErrorTypeRateLimited
		return http.StatusTooManyRequests, body, int(math.Ceil(exceeded.Wait.Seconds()))

	case errors.Is(err, context.DeadlineExceeded):
		body.Type = ErrorTypeTimeout
		return http.StatusGatewayTimeout, body, 0

	case errors.Is(err, context.Canceled):
		// The client is gone; the status only reaches the access log.
		body.Type = ErrorTypeTimeout
		return 499, body, 0
	}

	body.Type = ErrorTypeInternal
	return http.StatusInternalServerError, body, 0
}

func writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	code, body, retryAfter := statusFor(err)
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	writeError(w, r, code, body)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, body *ErrorBody) {
	if body.RequestID == "" {
		body.RequestID = logging.GetRequestID(r.Context())
	}
	writeJSON(w, code, ErrorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
