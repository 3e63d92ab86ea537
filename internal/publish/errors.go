package publish

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrorCode is the closed set of publish failure kinds. Adapters must map
// every platform failure onto one of these; they never invent new kinds.
type ErrorCode string

const (
	ErrTokenExpired            ErrorCode = "token_expired"
	ErrInvalidCredentials      ErrorCode = "invalid_credentials"
	ErrInsufficientPermissions ErrorCode = "insufficient_permissions"
	ErrContentPolicyViolation  ErrorCode = "content_policy_violation"
	ErrAccountDisconnected     ErrorCode = "account_disconnected"
	ErrRateLimited             ErrorCode = "rate_limited"
	ErrMediaUploadFailed       ErrorCode = "media_upload_failed"
	ErrPlatformError           ErrorCode = "platform_error"
	ErrUnknown                 ErrorCode = "unknown"
)

var retryable = map[ErrorCode]bool{
	ErrTokenExpired:            false,
	ErrInvalidCredentials:      false,
	ErrInsufficientPermissions: false,
	ErrContentPolicyViolation:  false,
	ErrAccountDisconnected:     false,
	ErrRateLimited:             true,
	ErrMediaUploadFailed:       true,
	ErrPlatformError:           true,
	ErrUnknown:                 true,
}

// Retryable reports whether the kind may be re-attempted. It is a fixed
// function of the code alone. Unrecognized codes fail open to retryable,
// bounded downstream by the retry ceiling.
func (c ErrorCode) Retryable() bool {
	if r, ok := retryable[c]; ok {
		return r
	}
	return true
}

func (c ErrorCode) String() string { return string(c) }

// Codes returns every defined kind, for exhaustiveness checks in tests.
func Codes() []ErrorCode {
	return []ErrorCode{
		ErrTokenExpired,
		ErrInvalidCredentials,
		ErrInsufficientPermissions,
		ErrContentPolicyViolation,
		ErrAccountDisconnected,
		ErrRateLimited,
		ErrMediaUploadFailed,
		ErrPlatformError,
		ErrUnknown,
	}
}

// policyMarkers are substrings that identify a 422 rejection as a content
// policy decision rather than a generic validation failure.
var policyMarkers = []string{"policy", "ugc", "prohibited", "restricted content"}

// ClassifyStatus maps an HTTP response status (and body, for the 422
// disambiguation) onto an error kind.
func ClassifyStatus(status int, body string) ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return ErrTokenExpired
	case status == http.StatusForbidden:
		return ErrInsufficientPermissions
	case status == http.StatusUnprocessableEntity:
		lower := strings.ToLower(body)
		for _, marker := range policyMarkers {
			if strings.Contains(lower, marker) {
				return ErrContentPolicyViolation
			}
		}
		return ErrPlatformError
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrPlatformError
	default:
		return ErrUnknown
	}
}

// ClassifyTransport maps a transport-level failure from the HTTP client.
// Timeouts and cancellations count as platform errors so a wedged call
// stays on the retry path.
func ClassifyTransport(err error) ErrorCode {
	if err == nil {
		return ErrUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrPlatformError
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrPlatformError
	}
	return ErrUnknown
}
