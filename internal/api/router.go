package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hugh/ia-marketing/internal/api/handlers"
	"github.com/hugh/ia-marketing/internal/api/middleware"
	"github.com/hugh/ia-marketing/internal/api/respond"
	"github.com/hugh/ia-marketing/internal/app"
	"github.com/hugh/ia-marketing/internal/apperr"
	"github.com/hugh/ia-marketing/internal/auth"
	"github.com/hugh/ia-marketing/internal/videos"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	Tokens         auth.TokenService
	Services       *app.Services
	Webhooks       *videos.WebhookProcessor
	Signatures     *videos.SignatureVerifier
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
	UserLimitReqs  int      // Per user requests per window, redis backed
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()
	svc := cfg.Services

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Per IP limiting stays in process; the per user limiter is shared
	// through redis when there is one.
	var userLimiter middleware.Limiter
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimitReqs, cfg.RateLimitSecs), cfg.Logger))
	}
	if cfg.Redis != nil && cfg.UserLimitReqs > 0 {
		userLimiter = middleware.NewRedisLimiter(cfg.Redis, cfg.UserLimitReqs, cfg.RateLimitSecs)
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handlers.IdempotencyKeyHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	meHandler := handlers.NewMeHandler(svc.Profiles, cfg.Logger)
	settingsHandler := handlers.NewSettingsHandler(svc.Settings, cfg.Logger)
	promptHandler := handlers.NewPromptHandler(svc.Prompts, cfg.Logger)
	projectHandler := handlers.NewProjectHandler(svc.Projects, cfg.Logger)
	creditHandler := handlers.NewCreditHandler(svc.Credits, cfg.Logger)
	videoHandler := handlers.NewVideoHandler(svc.Videos, cfg.Logger)
	adminHandler := handlers.NewAdminHandler(svc.Organizations, cfg.Logger)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Webhooks != nil && cfg.Signatures != nil {
			webhookHandler := handlers.NewWebhookHandler(cfg.Signatures, cfg.Webhooks, cfg.Logger)
			r.Post("/webhooks/video-provider", webhookHandler.VideoProvider)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Tokens, svc.Profiles, cfg.Logger))
			if userLimiter != nil {
				r.Use(middleware.RateLimitByUser(userLimiter, cfg.Logger))
			}

			r.Route("/me", func(r chi.Router) {
				r.Get("/", meHandler.Context)
				r.Put("/profile", meHandler.UpdateProfile)
				r.Put("/default-organization", meHandler.SetDefaultOrganization)
			})

			r.Get("/settings", settingsHandler.Get)
			r.With(middleware.RequirePlatformSuperadmin(cfg.Logger)).Put("/settings", settingsHandler.Update)

			r.Route("/prompts", func(r chi.Router) {
				r.Get("/", promptHandler.List)
				r.Post("/", promptHandler.Create)
				r.Get("/{id}", promptHandler.Get)
				r.Put("/{id}", promptHandler.Revise)
				r.Delete("/{id}", promptHandler.Delete)
				r.Get("/{id}/versions", promptHandler.Versions)
				r.Post("/{id}/publish", promptHandler.Publish)
			})

			r.Route("/organizations/{orgID}", func(r chi.Router) {
				r.Get("/projects", projectHandler.List)
				r.Post("/projects", projectHandler.Create)
				r.Get("/credits", creditHandler.Summary)
				r.Get("/credits/ledger", creditHandler.Ledger)
				r.Post("/credits/adjustments", creditHandler.Adjust)
				r.Get("/videos", videoHandler.List)
				r.Get("/prompts", promptHandler.ListForOrganization)
			})

			r.Route("/projects/{projectID}", func(r chi.Router) {
				r.Put("/", projectHandler.Update)
				r.Delete("/", projectHandler.Deactivate)
				r.Get("/cap", projectHandler.GetCap)
				r.Put("/cap", projectHandler.SetCap)
			})

			r.Route("/videos", func(r chi.Router) {
				r.Post("/", videoHandler.Create)
				r.Get("/{id}", videoHandler.Get)
				r.Post("/{id}/cancel", videoHandler.Cancel)
			})

			r.Route("/admin/organizations", func(r chi.Router) {
				r.Use(middleware.RequirePlatformSuperadmin(cfg.Logger))
				r.Get("/", adminHandler.ListOrganizations)
				r.Post("/", adminHandler.CreateOrganization)
				r.Route("/{orgID}", func(r chi.Router) {
					r.Get("/", adminHandler.GetOrganization)
					r.Put("/", adminHandler.UpdateOrganization)
					r.Delete("/", adminHandler.DeleteOrganization)
					r.Get("/members", adminHandler.ListMembers)
					r.Post("/members", adminHandler.AddMember)
					r.Put("/members/{userID}", adminHandler.UpdateMember)
					r.Delete("/members/{userID}", adminHandler.RemoveMember)
					r.Post("/credits", creditHandler.Allocate)
					r.Get("/audit-logs", adminHandler.AuditLogs)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Status(w, http.StatusNotFound, string(apperr.KindNotFound), "route not found")
	})

	return &Router{r}
}
