package voiceerr

import (
	"context"
	"errors"
	"net"
)

// IsRetryableHTTPStatus classifies HTTP status codes worth a manual retry.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Retryable reports whether starting over is likely to succeed. Transport
// timeouts and retryable statuses qualify; validation and media errors don't.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Retryable {
			return true
		}
		if e.Kind == KindMedia || e.Kind == KindValidation {
			return false
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
