package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/simple-team-slim/internal/config"
	"github.com/tendant/simple-team-slim/internal/httputil"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

// RateLimitConfig holds rate limiting configuration for one class of endpoints.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *logger.Logger
}

// Limiters groups the rate limiters the router applies.
type Limiters struct {
	// API applies to every authenticated request.
	API func(http.Handler) http.Handler
	// Write applies to membership and account mutations.
	Write func(http.Handler) http.Handler
}

// KeyByPrincipal keys authenticated requests by user id and anything else by
// client IP.
func KeyByPrincipal(r *http.Request) (string, error) {
	if p, ok := domain.PrincipalFromContext(r.Context()); ok {
		return "user:" + p.UserID.String(), nil
	}
	return httprate.KeyByIP(r)
}

// RateLimit creates a rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(KeyByPrincipal),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.WithContext(r.Context()).Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// CreateRateLimiters creates rate limiting middleware based on configuration.
func CreateRateLimiters(cfg config.RateLimitConfig, log *logger.Logger) Limiters {
	if !cfg.Enabled {
		return Limiters{API: NoRateLimit(), Write: NoRateLimit()}
	}

	return Limiters{
		API: RateLimit(RateLimitConfig{
			Requests: cfg.APIRequestsPerMinute,
			Window:   time.Duration(cfg.APIWindowMinutes) * time.Minute,
			Logger:   log,
		}),
		Write: RateLimit(RateLimitConfig{
			Requests: cfg.WriteRequestsPerMinute,
			Window:   time.Duration(cfg.WriteWindowMinutes) * time.Minute,
			Logger:   log,
		}),
	}
}
