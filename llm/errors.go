package llm

import (
	"context"
	"errors"
	"strings"
)

// APIError classifies a provider failure. Retryable distinguishes
// transient faults (rate limits, 5xx, network) from permanent ones
// (bad credentials, exhausted quota).
type APIError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

// ClassifyProviderError maps a raw SDK error onto an APIError by
// inspecting the error text. Context cancellation passes through
// untouched so callers can distinguish a pause from a provider fault.
func ClassifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Code: "timeout", Message: provider + " request timed out", Retryable: true}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "too many requests"):
		return &APIError{Code: "rate_limited", Message: provider + " rate limit exceeded", Retryable: true}

	case strings.Contains(lower, "api key") ||
		strings.Contains(lower, "401") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "authentication"):
		return &APIError{Code: "invalid_api_key", Message: provider + " credentials rejected", Retryable: false}

	case strings.Contains(lower, "quota") ||
		strings.Contains(lower, "billing"):
		return &APIError{Code: "quota_exceeded", Message: provider + " quota exceeded", Retryable: false}

	case strings.Contains(lower, "500") ||
		strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "504") ||
		strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "bad gateway"):
		return &APIError{Code: "server_error", Message: provider + " server error: " + err.Error(), Retryable: true}

	case strings.Contains(lower, "connection") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "network"):
		return &APIError{Code: "network_error", Message: provider + " network error: " + err.Error(), Retryable: true}
	}

	return &APIError{Code: "api_error", Message: provider + " error: " + err.Error(), Retryable: false}
}
