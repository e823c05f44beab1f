package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"google.golang.org/genai"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingAPIKey   = errors.New("api key not configured")
	ErrEmptyResponse   = errors.New("empty model response")
)

// RateLimitError indicates the provider throttled the request.
// Callers can use errors.As to read RetryAfter.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %v: %v", e.Provider, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("%s rate limit exceeded: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// StatusError carries the HTTP status a provider answered with.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s completion (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func wrapProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	status, retryAfter := providerStatus(err)
	if status == http.StatusTooManyRequests || (status == 0 && isRateLimitMessage(err.Error())) {
		if retryAfter == 0 {
			retryAfter = retryAfterFromText(err.Error())
		}
		return &RateLimitError{Provider: provider, RetryAfter: retryAfter, Err: err}
	}
	if status > 0 {
		return &StatusError{Provider: provider, StatusCode: status, Err: err}
	}
	return fmt.Errorf("%s completion: %w", provider, err)
}

var (
	statusCodePattern = regexp.MustCompile(`(?i)\b(?:status code|status|error)[:=]?\s*(\d{3})\b`)
	retryInPattern    = regexp.MustCompile(`(?i)(?:try again in|retry after|retry-after:?)\s*((?:\d+(?:\.\d+)?(?:ms|h|m|s))+)`)
	retrySecsPattern  = regexp.MustCompile(`(?i)(?:try again in|retry after|retry-after:?)\s*(\d+(?:\.\d+)?)\s*(?:seconds?|secs?)?\b`)
)

// providerStatus reads the HTTP status and Retry-After hint from the SDK error
// types behind each provider, falling back to the "status code: NNN" text the
// SDKs print when the typed error was flattened on the way up.
func providerStatus(err error) (int, time.Duration) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, 0
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode, 0
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode, 0
	}
	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) && claudeErr.StatusCode > 0 {
		var wait time.Duration
		if claudeErr.Response != nil {
			wait = parseRetryAfterHeader(claudeErr.Response.Header.Get("Retry-After"))
		}
		return claudeErr.StatusCode, wait
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) && geminiErr.Code > 0 {
		return geminiErr.Code, 0
	}
	var geminiPtr *genai.APIError
	if errors.As(err, &geminiPtr) && geminiPtr.Code > 0 {
		return geminiPtr.Code, 0
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		if code >= 100 && code <= 599 {
			return code, 0
		}
	}
	return 0, 0
}

func parseRetryAfterHeader(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// retryAfterFromText understands "Please try again in 20s" / "in 1.5s" / "in 120ms"
// and "retry after 20 seconds".
func retryAfterFromText(msg string) time.Duration {
	if m := retryInPattern.FindStringSubmatch(msg); m != nil {
		if d, err := time.ParseDuration(strings.ToLower(m[1])); err == nil && d > 0 {
			return d
		}
	}
	if m := retrySecsPattern.FindStringSubmatch(msg); m != nil {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

func isRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests")
}

func transientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500 && code <= 599:
		return code != http.StatusNotImplemented
	}
	return false
}

// transientMarkers are matched only when no HTTP status is known.
var transientMarkers = []string{
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"overloaded",
	"timeout",
	"connection reset",
	"connection refused",
	"unexpected eof",
}

// IsTransient reports whether a failed completion is worth retrying.
// Cancellation of the caller's context is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrUnknownProvider) || errors.Is(err, ErrMissingAPIKey) {
		return false
	}
	if status, _ := providerStatus(err); status > 0 {
		return transientStatus(status)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if isRateLimitMessage(msg) {
		return true
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
