// Package classify maps raw error messages from the inference dependency to
// a small taxonomy that drives retry and circuit breaker policy.
package classify

import "strings"

// Class is an error category.
type Class string

const (
	ClassTimeout        Class = "timeout"
	ClassNetwork        Class = "network"
	ClassRateLimit      Class = "rate_limit"
	ClassServiceError   Class = "service_error"
	ClassValidation     Class = "validation"
	ClassAuthentication Class = "authentication"
	ClassBadRequest     Class = "bad_request"
	ClassUnknown        Class = "unknown"
)

// rule is one ordered keyword match. First hit wins, so more specific
// patterns must come before broader ones.
type rule struct {
	class    Class
	patterns []string
}

var rules = []rule{
	{ClassTimeout, []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	}},
	{ClassRateLimit, []string{
		"rate limit",
		"too many requests",
		"429",
		"quota exceeded",
		"overloaded",
	}},
	{ClassAuthentication, []string{
		"unauthorized",
		"401",
		"403",
		"forbidden",
		"invalid api key",
		"authentication",
	}},
	{ClassValidation, []string{
		"validation",
		"invalid request",
		"invalid input",
		"malformed",
		"400",
		"bad request",
		"content too long",
	}},
	{ClassServiceError, []string{
		"service unavailable",
		"503",
		"500",
		"502",
		"internal server error",
		"bad gateway",
	}},
	{ClassNetwork, []string{
		"network",
		"connection refused",
		"connection reset",
		"no such host",
		"dns",
		"broken pipe",
		"eof",
	}},
}

// Classify maps an error message to a class via ordered keyword matching.
// Empty or unmatched messages classify as unknown.
func Classify(msg string) Class {
	if msg == "" {
		return ClassUnknown
	}
	lower := strings.ToLower(msg)
	for _, r := range rules {
		for _, p := range r.patterns {
			if matches(lower, p) {
				return r.class
			}
		}
	}
	return ClassUnknown
}

// matches reports whether msg contains pattern. Bare status codes only
// count as standalone tokens, so "400" never fires inside "4000 tokens".
func matches(msg, pattern string) bool {
	if !numeric(pattern) {
		return strings.Contains(msg, pattern)
	}
	for start := 0; ; {
		i := strings.Index(msg[start:], pattern)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(pattern)
		if (i == 0 || !alnum(msg[i-1])) && (end == len(msg) || !alnum(msg[end])) {
			return true
		}
		start = i + 1
	}
}

func numeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// alnum checks a byte of the already-lowered message.
func alnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z'
}

// IsRecoverable reports whether an error is transient and worth retrying.
// Unknown errors are treated as terminal so a garbage message cannot spin
// the retry loop.
func IsRecoverable(msg string) bool {
	switch Classify(msg) {
	case ClassTimeout, ClassNetwork, ClassRateLimit, ClassServiceError:
		return true
	default:
		return false
	}
}

// ShouldTrip reports whether a failure counts toward the circuit breaker
// threshold. Only systemic failures do; client-caused errors (validation,
// auth, bad input) never move breaker state.
func ShouldTrip(msg string) bool {
	switch Classify(msg) {
	case ClassServiceError, ClassNetwork, ClassTimeout:
		return true
	default:
		return false
	}
}
