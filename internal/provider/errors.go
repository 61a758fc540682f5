package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrSearchFailed     = errors.New("search failed")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrRateLimited      = errors.New("rate limited")
	ErrConnectivityLost = errors.New("connectivity lost")
	ErrInvalidResponse  = errors.New("invalid provider response")
)

// UpstreamError is a non-success HTTP status from a weather data endpoint.
// Err, when set, is the reason the status is being reported again without a
// request, such as an open circuit breaker.
type UpstreamError struct {
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	s := fmt.Sprintf("upstream failure: HTTP %d", e.Status)
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap lets errors.Is match ErrUpstreamFailure and the optional cause.
func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstreamFailure, e.Err}
	}
	return []error{ErrUpstreamFailure}
}

// WeatherAPI error codes carried in {"error":{"code":...}}.
const (
	codeNoLocation    = 1006
	codeKeyMissing    = 1002
	codeKeyInvalid    = 2006
	codeQuotaExceeded = 2007
	codeKeyDisabled   = 2008
)

// statusError maps a non-2xx response to the error taxonomy. The body is inspected
// for provider error codes and messages before falling back to the status code.
func statusError(status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "message").String()
	}
	code := gjson.GetBytes(body, "error.code").Int()
	lower := strings.ToLower(msg)

	switch {
	case code == codeNoLocation || strings.Contains(lower, "no matching location"):
		return fmt.Errorf("%w: %s", ErrLocationNotFound, msg)
	case code == codeKeyMissing || code == codeKeyInvalid || code == codeKeyDisabled ||
		status == 401 || status == 403 || strings.Contains(lower, "api key"):
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, status)
	case status == 429 || code == codeQuotaExceeded || strings.Contains(lower, "rate limit"):
		return fmt.Errorf("%w: HTTP %d", ErrRateLimited, status)
	}
	return &UpstreamError{Status: status, Message: msg}
}

// transportError classifies a failed round trip. Caller cancellation passes through;
// every other transport failure means no usable network path.
func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrConnectivityLost, err)
}

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

const (
	ErrorCategoryCanceled         ErrorCategory = "canceled"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryUpstream4xx      ErrorCategory = "upstream_4xx"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	var upstream *UpstreamError
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorCategoryCanceled
	case errors.Is(err, ErrConnectivityLost):
		return ErrorCategoryNetwork
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrLocationNotFound):
		return ErrorCategoryLocationNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.As(err, &upstream):
		if upstream.Status >= 500 {
			return ErrorCategoryUpstream5xx
		}
		return ErrorCategoryUpstream4xx
	case errors.Is(err, ErrInvalidResponse):
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}

// isRetryable reports whether another attempt may succeed.
func isRetryable(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status >= 500
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrConnectivityLost)
}

// isInfrastructureFailure reports whether err should count toward opening the breaker.
func isInfrastructureFailure(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status >= 500
	}
	return errors.Is(err, ErrConnectivityLost)
}
