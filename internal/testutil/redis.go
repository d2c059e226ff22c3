package testutil

import (
	"os"
	"testing"
)

// RedisURL returns the connection string live integration tests should use,
// skipping the test when no local Redis is configured. Hermetic tests cover
// the fallback path; anything touching a real server goes through here.
func RedisURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("live test, need redis running locally (set TEST_REDIS_URL, eg redis://localhost:6379/0)")
	}
	return url
}
