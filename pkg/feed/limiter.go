// pkg/feed/limiter.go
package feed

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter is a token bucket per client address. Each client may make limit
// requests per window; tokens refill continuously.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	cleanupTick *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewLimiter creates a limiter. Buckets idle for two windows are dropped in
// the background until Close is called.
func NewLimiter(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		limit:       limit,
		window:      window,
		now:         time.Now,
		buckets:     make(map[string]*bucket),
		cleanupTick: time.NewTicker(window),
		done:        make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow takes one token from the client's bucket
func (l *Limiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[client]
	if !ok {
		b = &bucket{tokens: float64(l.limit), lastSeen: now}
		l.buckets[client] = b
	}

	elapsed := now.Sub(b.lastSeen)
	if elapsed > 0 {
		b.tokens += float64(l.limit) * float64(elapsed) / float64(l.window)
		if b.tokens > float64(l.limit) {
			b.tokens = float64(l.limit)
		}
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware rejects requests over the limit with 429
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientAddr(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *Limiter) cleanup() {
	for {
		select {
		case <-l.cleanupTick.C:
			l.removeIdle()
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) removeIdle() {
	cutoff := l.now().Add(-2 * l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for client, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, client)
		}
	}
}

// Close stops the background cleanup
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.cleanupTick.Stop()
	})
}
