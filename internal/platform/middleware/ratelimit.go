package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns the default allowance. The burst covers a
// front-desk client loading a full day's schedule in one round of calls.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

const (
	budgetSweepEvery = time.Minute
	budgetStaleAfter = 10 * time.Minute
)

// tenantLimiter tracks a request budget per key. All hospital tenants share
// one API process; an integration stuck in a retry loop at one clinic must
// not starve bookings and triage updates at another. Budgets refill
// continuously at the configured rate up to the burst size, and entries idle
// past budgetStaleAfter are dropped during periodic sweeps.
type tenantLimiter struct {
	mu        sync.Mutex
	budgets   map[string]*budget
	rate      float64
	burst     float64
	lastSweep time.Time
}

type budget struct {
	remaining float64
	touched   time.Time
}

func newTenantLimiter(cfg RateLimitConfig) *tenantLimiter {
	return &tenantLimiter{
		budgets:   make(map[string]*budget),
		rate:      cfg.RequestsPerSecond,
		burst:     float64(cfg.BurstSize),
		lastSweep: time.Now(),
	}
}

// take spends one request from the key's budget. When the budget is
// exhausted it reports how many whole seconds until the next request
// would be granted.
func (l *tenantLimiter) take(key string, now time.Time) (granted bool, remaining, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > budgetSweepEvery {
		for k, b := range l.budgets {
			if now.Sub(b.touched) > budgetStaleAfter {
				delete(l.budgets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.budgets[key]
	if !ok {
		b = &budget{remaining: l.burst}
		l.budgets[key] = b
	} else {
		b.remaining += now.Sub(b.touched).Seconds() * l.rate
		if b.remaining > l.burst {
			b.remaining = l.burst
		}
	}
	b.touched = now

	if b.remaining >= 1 {
		b.remaining--
		return true, int(b.remaining), 0
	}

	wait := 1
	if l.rate > 0 {
		wait = int((1-b.remaining)/l.rate) + 1
	}
	return false, 0, wait
}

// limitKey buckets authenticated traffic by tenant so every hospital gets
// its own allowance regardless of how many client addresses it calls from.
// Unauthenticated traffic falls back to the client address.
func limitKey(c echo.Context) string {
	if tid, ok := c.Get("tenant_id").(string); ok && tid != "" {
		return "tenant:" + tid
	}
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return "tenant:" + tid
	}
	return "ip:" + c.RealIP()
}

// RateLimit returns a middleware enforcing per-tenant request budgets.
// Rejected requests get a 429 with Retry-After; every response carries the
// X-RateLimit-Limit and X-RateLimit-Remaining headers.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	limiter := newTenantLimiter(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			granted, remaining, retryAfter := limiter.take(limitKey(c), time.Now())

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !granted {
				h.Set("X-RateLimit-Remaining", "0")
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			return next(c)
		}
	}
}
