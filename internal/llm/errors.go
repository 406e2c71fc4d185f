package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// FailureClass categorizes completion-service errors so callers can phrase
// retry guidance without parsing provider messages themselves.
type FailureClass string

const (
	// FailureAuth is an authentication/authorization rejection (401/403).
	FailureAuth FailureClass = "AUTH"

	// FailureRateLimit is rate limiting or quota exhaustion (429).
	FailureRateLimit FailureClass = "RATE_LIMIT"

	// FailureTimeout is a request deadline or cancellation by timeout.
	FailureTimeout FailureClass = "TIMEOUT"

	// FailureTooLarge is a request-size rejection (413, context overflow).
	FailureTooLarge FailureClass = "REQUEST_TOO_LARGE"

	// FailureTransport is a network-level failure before any response.
	FailureTransport FailureClass = "TRANSPORT"

	// FailureUnknown is the default for unrecognized errors.
	FailureUnknown FailureClass = "UNKNOWN"
)

// Classify categorizes a completion-service error. Typed API errors are
// checked first; otherwise the message is inspected for known patterns and
// the most specific class wins.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return FailureAuth
		case http.StatusTooManyRequests:
			return FailureRateLimit
		case http.StatusRequestEntityTooLarge:
			return FailureTooLarge
		}
	}

	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "401") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "403") {
		return FailureAuth
	}

	if strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "too many requests") {
		return FailureRateLimit
	}

	if strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") {
		return FailureTimeout
	}

	if strings.Contains(msg, "request too large") ||
		strings.Contains(msg, "context_length") ||
		strings.Contains(msg, "context length") ||
		strings.Contains(msg, "token limit") ||
		strings.Contains(msg, "maximum context") {
		return FailureTooLarge
	}

	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "eof") {
		return FailureTransport
	}

	return FailureUnknown
}
