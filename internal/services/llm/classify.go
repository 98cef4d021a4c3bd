package llm

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// transientMarkers are error substrings that indicate a failure likely to
// succeed on retry without changing input: rate limits, quota windows,
// timeouts and upstream 5xx responses. The 5xx markers carry status-code
// context so bare digits inside request ids or token counts never match.
var transientMarkers = []string{
	"429",
	"rate limit",
	"RESOURCE_EXHAUSTED",
	"quota",
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"overloaded",
	"error 500",
	"error 502",
	"error 503",
	"error 504",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
}

// isTransientAPIError reports whether a provider failure should be
// classified as transient.
func isTransientAPIError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(errStr, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
// in quota errors.
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// extractRetryDelay parses the API-suggested retry delay from a provider
// error. Returns 0 if no delay is found in the error message.
func extractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}
