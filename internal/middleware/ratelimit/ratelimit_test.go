package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, requests int, clock *time.Time) *Limiter {
	t.Helper()
	rl := NewLimiter(Config{Requests: requests, Window: time.Minute, CleanupInterval: time.Hour})
	rl.now = func() time.Time { return *clock }
	t.Cleanup(rl.Stop)
	return rl
}

func TestLimiter_Allow(t *testing.T) {
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, 3, &clock)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d", i+1)
	}
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "other clients have their own window")

	// Steady traffic must not keep the window open forever.
	clock = clock.Add(59 * time.Second)
	assert.False(t, rl.Allow("1.2.3.4"))
	clock = clock.Add(time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))
}

func TestLimiter_Cleanup(t *testing.T) {
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, 1, &clock)
	rl.Allow("a")
	rl.Allow("b")
	assert.Equal(t, 2, rl.activeClients())

	clock = clock.Add(2 * time.Minute)
	rl.cleanupStaleEntries()
	assert.Zero(t, rl.activeClients())
}

func TestLimiter_Middleware(t *testing.T) {
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newTestLimiter(t, 1, &clock)

	var limited int
	h := rl.Middleware(
		func(*http.Request) string { return "ip" },
		func(w http.ResponseWriter, r *http.Request) {
			limited++
			w.WriteHeader(http.StatusTooManyRequests)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, 1, limited)
}
