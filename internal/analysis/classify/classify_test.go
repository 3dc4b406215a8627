package classify

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		msg    string
		expect Class
	}{
		{"request timed out after 30s", ClassTimeout},
		{"context deadline exceeded", ClassTimeout},
		{"429 Too Many Requests", ClassRateLimit},
		{"rate limit exceeded for model", ClassRateLimit},
		{"monthly quota exceeded", ClassRateLimit},
		{"api overloaded, try again later", ClassRateLimit},
		{"401 Unauthorized", ClassAuthentication},
		{"403 Forbidden", ClassAuthentication},
		{"invalid api key provided", ClassAuthentication},
		{"validation failed: content empty", ClassValidation},
		{"400 Bad Request", ClassValidation},
		{"malformed input payload", ClassValidation},
		{"503 Service Unavailable", ClassServiceError},
		{"internal server error", ClassServiceError},
		{"502 Bad Gateway", ClassServiceError},
		{"connection refused", ClassNetwork},
		{"dial tcp: no such host", ClassNetwork},
		{"connection reset by peer", ClassNetwork},
		{"", ClassUnknown},
		{"something inexplicable happened", ClassUnknown},
		// Status codes only match as standalone tokens.
		{"processed 4000 tokens", ClassUnknown},
		{"batch of 5000 entries", ClassUnknown},
		{"retrying block 42900", ClassUnknown},
		{"upstream returned status 429", ClassRateLimit},
		{"error: 500", ClassServiceError},
		{"http 403 from gateway", ClassAuthentication},
	}

	for _, tt := range tests {
		if got := Classify(tt.msg); got != tt.expect {
			t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.expect)
		}
	}
}

func TestIsRecoverable(t *testing.T) {
	recoverable := []string{
		"request timed out",
		"connection refused",
		"429 Too Many Requests",
		"rate limit exceeded",
		"503 Service Unavailable",
		"internal server error",
	}
	for _, msg := range recoverable {
		if !IsRecoverable(msg) {
			t.Errorf("IsRecoverable(%q) = false, want true", msg)
		}
	}

	terminal := []string{
		"validation failed",
		"401 Unauthorized",
		"invalid api key",
		"malformed input payload",
		"400 Bad Request",
		"something inexplicable happened",
		"",
	}
	for _, msg := range terminal {
		if IsRecoverable(msg) {
			t.Errorf("IsRecoverable(%q) = true, want false", msg)
		}
	}
}

func TestShouldTrip(t *testing.T) {
	tests := []struct {
		msg    string
		expect bool
	}{
		{"503 Service Unavailable", true},
		{"internal server error", true},
		{"connection refused", true},
		{"request timed out", true},
		{"validation failed: content empty", false},
		{"401 Unauthorized", false},
		{"429 Too Many Requests", false},
		{"mystery failure", false},
	}
	for _, tt := range tests {
		if got := ShouldTrip(tt.msg); got != tt.expect {
			t.Errorf("ShouldTrip(%q) = %v, want %v", tt.msg, got, tt.expect)
		}
	}
}
