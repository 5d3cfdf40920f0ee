package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SessionLimiter tracks per-caller rate limits for HTTP requests, keyed by
// whatever keyFunc extracts (client IP by default). Rate limiting is
// per-replica: each backend instance maintains its own counters, so with N
// replicas behind a load balancer the effective limit per caller is N times
// rps. Adapted from the teacher's internal/gateway/ratelimit.go RateLimiter,
// generalized from a WebSocket-gateway Allow(ip) check into HTTP middleware
// wrapping a handler.
type SessionLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	cleanup  time.Duration

	keyFunc func(*http.Request) string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSessionLimiter builds a limiter admitting rps requests per second per
// key, with a burst allowance of burst. keyFunc extracts the caller
// identity from the request; KeyByRemoteAddr is used when keyFunc is nil.
// Stale entries are cleaned up periodically in the background.
func NewSessionLimiter(rps float64, burst int, keyFunc func(*http.Request) string) *SessionLimiter {
	if keyFunc == nil {
		keyFunc = KeyByRemoteAddr
	}
	l := &SessionLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(rps),
		burst:    burst,
		cleanup:  3 * time.Minute,
		keyFunc:  keyFunc,
	}
	go l.cleanupLoop()
	return l
}

// KeyByRemoteAddr extracts the client IP from a request, respecting
// X-Forwarded-For and X-Real-Ip when present (common behind load
// balancers), falling back to the connection's RemoteAddr with its port
// stripped.
func KeyByRemoteAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

// Allow checks whether a request carrying the given key may proceed.
func (l *SessionLimiter) Allow(key string) bool {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()
	return v.limiter.Allow()
}

// Wrap returns middleware that rejects requests exceeding the per-key
// budget with 429 Too Many Requests, and otherwise delegates to next.
func (l *SessionLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(l.keyFunc(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *SessionLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		for key, v := range l.visitors {
			if time.Since(v.lastSeen) > l.cleanup {
				delete(l.visitors, key)
			}
		}
		l.mu.Unlock()
	}
}
