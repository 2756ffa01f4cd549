package security

import "time"

// testSecret is for unit tests only. Do not use in production.
const testSecret = "service-token-test-secret-0123456789"

// NewTestTokenProvider returns a TokenProvider with a fixed secret and 1h TTL.
// For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	return NewTokenProvider([]byte(testSecret), time.Hour)
}
