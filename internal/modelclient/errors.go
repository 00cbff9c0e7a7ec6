package modelclient

import (
	"context"
	"errors"
	"net"
	"strings"
)

// isRetryable classifies a provider transport error. Rate limits, server
// errors, and network timeouts warrant another attempt; everything else
// (auth, invalid request, content filter) fails fast so the loop can
// surface a configuration problem instead of spinning.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "rate_limit",
		"500", "502", "503", "504",
		"overloaded", "server error", "internal error",
		"connection reset", "connection refused", "timeout", "temporarily",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
