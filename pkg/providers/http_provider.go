package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 16 << 20

// maxErrorMessage caps how much of an error body is kept in a ProviderError.
const maxErrorMessage = 512

// HTTPProvider is the base implementation for HTTP/JSON adapters. It owns the
// pooled HTTP client, builds requests and classifies every response into
// success, *ProviderError or *ValidationError.
//
// Concrete adapters embed it and implement Capabilities and Fetch. An
// HTTPProvider performs one attempt per call; timeouts come from the
// request context.
type HTTPProvider struct {
	// config contains the provider configuration
	config ProviderConfig

	// client is the HTTP client with connection pooling
	client *http.Client
}

// NewHTTPProvider creates a new base HTTP provider with connection pooling.
func NewHTTPProvider(config ProviderConfig) *HTTPProvider {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPProvider{
		config: config,
		client: &http.Client{Transport: transport},
	}
}

// Name returns the provider's configured name.
func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Config returns the provider's configuration.
func (p *HTTPProvider) Config() ProviderConfig {
	return p.config
}

// URL joins path and query onto the configured base URL.
func (p *HTTPProvider) URL(path string, query url.Values) string {
	u := strings.TrimRight(p.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get issues a GET and returns the validated JSON body.
func (p *HTTPProvider) Get(ctx context.Context, path string, query url.Values, headers map[string]string) ([]byte, error) {
	return p.Do(ctx, http.MethodGet, p.URL(path, query), nil, headers)
}

// PostJSON marshals body, issues a POST and returns the validated JSON body.
func (p *HTTPProvider) PostJSON(ctx context.Context, path string, body any, headers map[string]string) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{
			Provider: p.config.Name,
			Category: CategoryClientError,
			Message:  "failed to marshal request",
			Cause:    err,
		}
	}
	return p.Do(ctx, http.MethodPost, p.URL(path, nil), data, headers)
}

// Do performs a single HTTP request and classifies the outcome.
//
// Classification:
//   - 2xx with a valid JSON body: success
//   - transport timeout: CategoryTimeout (transient)
//   - connection reset, refused or other transport error: CategoryNetwork (transient)
//   - 429: CategoryRateLimit (transient), with RetryAfter from the header
//   - 408 and 5xx: CategoryTimeout / CategoryServerError (transient)
//   - 401, 403: CategoryAuth (permanent)
//   - other 4xx: CategoryClientError (permanent)
//   - 2xx with an unreadable or non-JSON body: CategoryMalformed (permanent)
//
// If ctx is cancelled by the caller the context error is returned as is.
func (p *HTTPProvider) Do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, &ProviderError{
			Provider: p.config.Name,
			Category: CategoryClientError,
			Message:  "failed to create request",
			Cause:    err,
		}
	}

	req.Header.Set("Accept", "application/json")
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	slog.Debug("sending request to provider",
		"provider", p.config.Name,
		"method", method,
		"path", req.URL.Path,
	)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, p.statusError(resp, data)
	}

	if readErr != nil {
		if ctx.Err() != nil {
			return nil, p.transportError(ctx, readErr)
		}
		return nil, &ProviderError{
			Provider:   p.config.Name,
			Category:   CategoryNetwork,
			StatusCode: resp.StatusCode,
			Message:    "failed to read response body",
			Cause:      readErr,
		}
	}

	if !json.Valid(data) {
		return nil, p.Malformed(resp.StatusCode, "response is not valid JSON", nil)
	}

	return data, nil
}

// Malformed returns a permanent error for a response the adapter cannot use.
func (p *HTTPProvider) Malformed(status int, message string, cause error) error {
	return &ProviderError{
		Provider:   p.config.Name,
		Category:   CategoryMalformed,
		StatusCode: status,
		Message:    message,
		Cause:      cause,
	}
}

// Failure returns a ProviderError of the given category. Adapters use it
// for errors reported inside a 200 response.
func (p *HTTPProvider) Failure(category Category, message string) error {
	return &ProviderError{
		Provider: p.config.Name,
		Category: category,
		Message:  message,
	}
}

// Close closes idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	slog.Debug("provider closed", "provider", p.config.Name)
	return nil
}

func (p *HTTPProvider) statusError(resp *http.Response, body []byte) error {
	pe := &ProviderError{
		Provider:   p.config.Name,
		StatusCode: resp.StatusCode,
		Message:    truncate(strings.TrimSpace(string(body)), maxErrorMessage),
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		pe.Category = CategoryRateLimit
		pe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusRequestTimeout:
		pe.Category = CategoryTimeout
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		pe.Category = CategoryAuth
	case resp.StatusCode >= 500:
		pe.Category = CategoryServerError
	default:
		pe.Category = CategoryClientError
	}
	return pe
}

func (p *HTTPProvider) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &ProviderError{
				Provider: p.config.Name,
				Category: CategoryTimeout,
				Message:  "request timed out",
				Cause:    err,
			}
		}
		return fmt.Errorf("request to %s cancelled: %w", p.config.Name, ctxErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProviderError{
			Provider: p.config.Name,
			Category: CategoryTimeout,
			Message:  "request timed out",
			Cause:    err,
		}
	}

	message := "transport error"
	switch {
	case errors.Is(err, syscall.ECONNRESET):
		message = "connection reset"
	case errors.Is(err, syscall.ECONNREFUSED):
		message = "connection refused"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		message = "connection closed"
	}
	return &ProviderError{
		Provider: p.config.Name,
		Category: CategoryNetwork,
		Message:  message,
		Cause:    err,
	}
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
