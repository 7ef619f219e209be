package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig tunes the per-client token buckets.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig allows sustained ward-round traffic while capping
// bursts from a single client.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// Buckets idle longer than this are dropped when the client map is pruned.
const bucketIdleEvict = 10 * time.Minute

// pruneThreshold is the client-map size that triggers a prune on the next
// take.
const pruneThreshold = 4096

type clientBucket struct {
	tokens   float64
	lastSeen time.Time
}

// limiter holds one token bucket per client key. Buckets refill lazily from
// the time elapsed since they were last touched.
type limiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	clients map[string]*clientBucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{cfg: cfg, clients: make(map[string]*clientBucket)}
}

// take spends one token for the client, reporting whether the request may
// proceed and, when it may not, how many seconds to wait before retrying.
func (l *limiter) take(key string, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.clients) > pruneThreshold {
		cutoff := now.Add(-bucketIdleEvict)
		for k, b := range l.clients {
			if b.lastSeen.Before(cutoff) {
				delete(l.clients, k)
			}
		}
	}

	b, ok := l.clients[key]
	if !ok {
		b = &clientBucket{tokens: float64(l.cfg.BurstSize)}
		l.clients[key] = b
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * l.cfg.RequestsPerSecond
		if burst := float64(l.cfg.BurstSize); b.tokens > burst {
			b.tokens = burst
		}
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.cfg.RequestsPerSecond <= 0 {
		return false, 1
	}
	return false, int((1-b.tokens)/l.cfg.RequestsPerSecond) + 1
}

// RateLimit enforces a per-client-IP request budget. Exhausted clients get
// 429 with a Retry-After hint.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	lim := newLimiter(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, retryAfter := lim.take(c.RealIP(), time.Now())

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
