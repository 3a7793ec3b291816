package feed

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(limit, window)
	l.now = clock.now
	t.Cleanup(l.Close)
	return l, clock
}

func TestLimiter_Allow(t *testing.T) {
	l, clock := testLimiter(t, 3, time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d within the limit", i)
	}
	assert.False(t, l.Allow("10.0.0.1"), "fourth request in the window")
	assert.True(t, l.Allow("10.0.0.2"), "other clients have their own bucket")

	// A third of the window refills one token.
	clock.advance(time.Second / 3)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	clock.advance(10 * time.Second)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "bucket refills to the limit, not beyond")
	}
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestLimiter_RemoveIdle(t *testing.T) {
	l, clock := testLimiter(t, 1, time.Second)

	l.Allow("a")
	clock.advance(1500 * time.Millisecond)
	l.Allow("b")
	clock.advance(time.Second)
	l.removeIdle()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "a")
	assert.Contains(t, l.buckets, "b")
}

func TestLimiter_Middleware(t *testing.T) {
	l, _ := testLimiter(t, 1, time.Minute)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	request := func(remote string) int {
		r := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, request("192.0.2.1:4000"))
	assert.Equal(t, http.StatusTooManyRequests, request("192.0.2.1:4001"), "ports share the host bucket")
	assert.Equal(t, http.StatusNoContent, request("192.0.2.2:4000"))
}

func TestLimiter_CloseTwice(t *testing.T) {
	l := NewLimiter(1, time.Second)
	l.Close()
	l.Close()
}
