package tool

import (
	"errors"
	"strings"

	"tidgi-agent/internal/domain"
)

// Transient for tools on top of domain.IsRetryableError.
var retryableSentinels = []error{
	domain.ErrTimeout,
	domain.ErrProviderError,
	domain.ErrRetrieval,
}

// Checked case-insensitively.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"try again",
	"database is locked",
}

// classifyToolError reports whether err is transient. Nil, permanent and
// unknown errors are not.
func classifyToolError(err error) bool {
	if err == nil {
		return false
	}
	if domain.IsRetryableError(err) {
		return true
	}
	for _, sentinel := range retryableSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
