package blacklist

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// classification is the fixed outcome of classifying one failure, per the
// table in §4.3.
type classification struct {
	errorType      ErrorType
	initialBackoff time.Duration
	permanent      bool
}

var retryAfterRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"retry[_-]?after"\s*:\s*"?(\d+)"?`),
	regexp.MustCompile(`(?i)retry[_-]?after[:=]\s*(\d+)`),
}

// ParseRetryAfterHeader parses the standard Retry-After header (seconds
// form only; the HTTP-date form is out of scope for upstream LLM APIs).
func ParseRetryAfterHeader(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// ParseRetryAfterBody scans a response body for a JSON or free-text
// retry-after hint (providers are inconsistent about where they put it).
func ParseRetryAfterBody(body string) (time.Duration, bool) {
	for _, re := range retryAfterRegexes {
		if m := re.FindStringSubmatch(body); len(m) == 2 {
			if secs, err := strconv.Atoi(m[1]); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second, true
			}
		}
	}
	return 0, false
}

// FailureKind is the coarse network-level cause of a failure, used when no
// HTTP status is available (timeout vs. transport-level connection error).
type FailureKind int

const (
	FailureHTTPStatus FailureKind = iota
	FailureTimeout
	FailureTransport
)

// Classify implements the table in §4.3. retryAfter is the parsed
// Retry-After hint (header or body), if any; it is only consulted for 429s.
func Classify(kind FailureKind, statusCode int, body string, retryAfter time.Duration, hasRetryAfter bool) classification {
	lowerBody := strings.ToLower(body)

	switch kind {
	case FailureTimeout:
		return classification{ErrorTimeout, 30 * time.Second, false}
	case FailureTransport:
		return classification{ErrorConnection, 30 * time.Second, false}
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		if statusCode == http.StatusForbidden && (strings.Contains(lowerBody, "rate") || strings.Contains(lowerBody, "limit")) {
			return classification{ErrorRateLimit, 10 * time.Second, false}
		}
		return classification{ErrorAuth, 0, true}
	case statusCode == http.StatusNotFound:
		return classification{ErrorModelUnavailable, 300 * time.Second, false}
	case statusCode == http.StatusTooManyRequests:
		if strings.Contains(lowerBody, "quota") || strings.Contains(lowerBody, "balance") {
			return classification{ErrorQuotaExceeded, 1800 * time.Second, false}
		}
		backoff := 10 * time.Second
		if hasRetryAfter {
			backoff = retryAfter
			if backoff > 300*time.Second {
				backoff = 300 * time.Second
			}
		}
		return classification{ErrorRateLimit, backoff, false}
	case statusCode >= 500:
		return classification{ErrorServer, 60 * time.Second, false}
	default:
		return classification{ErrorUnknown, 60 * time.Second, false}
	}
}

// ClassifyGoError is a small helper for callers translating a Go error
// (from net/http) into a FailureKind.
func ClassifyGoError(err error) FailureKind {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureTransport
}
