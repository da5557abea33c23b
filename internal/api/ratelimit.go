package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int64, int64, error)
}

// RateLimit is one request budget. Callers are identified by user once
// authenticated and by client IP before that. PerChannel gives every
// channel named by the :id path parameter its own budget.
type RateLimit struct {
	Scope      string
	Limit      int
	Window     time.Duration
	PerChannel bool
}

var (
	authLimit    = RateLimit{Scope: "auth", Limit: 5, Window: time.Minute}
	apiLimit     = RateLimit{Scope: "api", Limit: 120, Window: time.Minute}
	composeLimit = RateLimit{Scope: "compose", Limit: 20, Window: 10 * time.Second, PerChannel: true}
)

func (rl RateLimit) key(c echo.Context) string {
	parts := []string{"rl", rl.Scope}
	if uid := auth.GetUserID(c); uid != 0 {
		parts = append(parts, "user", strconv.FormatInt(uid, 10))
	} else {
		parts = append(parts, "ip", c.RealIP())
	}
	if rl.PerChannel {
		parts = append(parts, "channel", c.Param("id"))
	}
	return strings.Join(parts, ":")
}

// RateLimitMiddleware enforces rl and sets the X-RateLimit-* headers. A
// limiter failure lets the request through.
func RateLimitMiddleware(limiter RateLimiter, rl RateLimit) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rl.key(c)
			allowed, count, ttlMs, err := limiter.CheckRateLimit(c.Request().Context(), key, rl.Limit, rl.Window)
			if err != nil {
				slog.Warn("rate limit check failed", "key", key, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(rl.Limit)-count, 0), 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(ttlMs)*time.Millisecond).Unix(), 10))

			if !allowed {
				h.Set("Retry-After", strconv.FormatInt((ttlMs+999)/1000, 10))
				return Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, please try again later")
			}
			return next(c)
		}
	}
}
