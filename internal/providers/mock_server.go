// Package providers provides mock upstream data APIs for tests.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// MockServer is a mock upstream data API. Responses are configured per
// URL path; unknown paths answer 404.
type MockServer struct {
	server   *httptest.Server
	requests atomic.Int64

	mu        sync.Mutex
	responses map[string]MockResponse
	perPath   map[string]int
	lastQuery map[string]url.Values
}

// MockResponse defines a mock response configuration.
type MockResponse struct {
	StatusCode int
	Body       any
	Delay      time.Duration
	Headers    map[string]string
}

// NewMockServer creates and starts a mock server.
func NewMockServer() *MockServer {
	ms := &MockServer{
		responses: make(map[string]MockResponse),
		perPath:   make(map[string]int),
		lastQuery: make(map[string]url.Values),
	}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the mock server's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close closes the mock server.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// SetResponse sets the response for path.
func (ms *MockServer) SetResponse(path string, response MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responses[path] = response
}

// RequestCount returns the number of requests received on any path.
func (ms *MockServer) RequestCount() int {
	return int(ms.requests.Load())
}

// PathCount returns the number of requests received on path.
func (ms *MockServer) PathCount(path string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.perPath[path]
}

// LastQuery returns the query string of the latest request on path.
func (ms *MockServer) LastQuery(path string) url.Values {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.lastQuery[path]
}

func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	ms.requests.Add(1)

	ms.mu.Lock()
	ms.perPath[r.URL.Path]++
	ms.lastQuery[r.URL.Path] = r.URL.Query()
	response, ok := ms.responses[r.URL.Path]
	ms.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	if response.Body != nil {
		w.Header().Set("Content-Type", "application/json")
	}

	status := response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	switch v := response.Body.(type) {
	case nil:
	case string:
		_, _ = w.Write([]byte(v))
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

// FinnhubQuotePath is the Finnhub quote endpoint relative to a base URL
// without the /api/v1 prefix.
const FinnhubQuotePath = "/quote"

// AlphaVantageQueryPath is the Alpha Vantage query endpoint.
const AlphaVantageQueryPath = "/query"

// MockFinnhubQuote answers a Finnhub quote with price as the current value.
func MockFinnhubQuote(price float64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"c": price, "h": price + 1, "l": price - 1, "o": price, "pc": price, "t": 1710504000,
		},
	}
}

// MockAlphaVantageQuote answers a GLOBAL_QUOTE for symbol.
func MockAlphaVantageQuote(symbol string, price float64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"Global Quote": map[string]string{
				"01. symbol": symbol,
				"05. price":  fmt.Sprintf("%.4f", price),
			},
		},
	}
}

// MockAlphaVantageThrottled answers the 200 "Note" throttling message.
func MockAlphaVantageThrottled() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute.",
		},
	}
}

// MockErrorResponse creates an error response with a JSON message.
func MockErrorResponse(statusCode int, message string) MockResponse {
	return MockResponse{
		StatusCode: statusCode,
		Body:       map[string]any{"error": message},
	}
}

// MockAuthError creates a 401 response.
func MockAuthError() MockResponse {
	return MockErrorResponse(http.StatusUnauthorized, "Invalid API key")
}

// MockRateLimitError creates a 429 response with a Retry-After header.
func MockRateLimitError(retryAfter int) MockResponse {
	response := MockErrorResponse(http.StatusTooManyRequests, "API limit reached")
	response.Headers = map[string]string{
		"Retry-After": fmt.Sprintf("%d", retryAfter),
	}
	return response
}

// MockServerError creates a 500 response.
func MockServerError() MockResponse {
	return MockErrorResponse(http.StatusInternalServerError, "Internal server error")
}

// MockSlowResponse delays a successful response.
func MockSlowResponse(response MockResponse, delay time.Duration) MockResponse {
	response.Delay = delay
	return response
}
