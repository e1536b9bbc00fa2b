package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-team-slim/internal/config"
	"github.com/tendant/simple-team-slim/internal/http/features/activities"
	"github.com/tendant/simple-team-slim/internal/http/features/files"
	"github.com/tendant/simple-team-slim/internal/http/features/me"
	"github.com/tendant/simple-team-slim/internal/http/features/meetings"
	"github.com/tendant/simple-team-slim/internal/http/features/tasks"
	"github.com/tendant/simple-team-slim/internal/http/features/teams"
	"github.com/tendant/simple-team-slim/internal/http/features/users"
	"github.com/tendant/simple-team-slim/internal/http/middleware"
	"github.com/tendant/simple-team-slim/internal/httputil"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/activity"
	"github.com/tendant/simple-team-slim/pkg/membership"
	userssvc "github.com/tendant/simple-team-slim/pkg/users"
	"github.com/tendant/simple-team-slim/pkg/work"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger             *logger.Logger
	Tokens             middleware.TokenVerifier
	Principals         middleware.PrincipalLoader
	Manager            *membership.Manager
	Users              *userssvc.Service
	Tasks              *work.TaskService
	Meetings           *work.MeetingService
	Files              *work.FileService
	Reporter           *activity.Reporter
	RateLimitConfig    config.RateLimitConfig
	SecurityHeaders    config.SecurityHeadersConfig
	MaxRequestBodySize int64
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodySize))
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Tokens, cfg.Principals, cfg.Logger))
		r.Use(limiters.API)

		me.NewHandler(cfg.Logger, cfg.Users, cfg.Manager).RegisterRoutes(r)
		teams.NewHandler(cfg.Logger, cfg.Manager).RegisterRoutes(r, limiters.Write)
		tasks.NewHandler(cfg.Logger, cfg.Tasks).RegisterRoutes(r)
		meetings.NewHandler(cfg.Logger, cfg.Meetings).RegisterRoutes(r)
		files.NewHandler(cfg.Logger, cfg.Files).RegisterRoutes(r)
		activities.NewHandler(cfg.Logger, cfg.Reporter).RegisterRoutes(r)
		users.NewHandler(cfg.Logger, cfg.Users).RegisterRoutes(r, limiters.Write)
	})

	return r
}
