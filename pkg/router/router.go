package router

import (
	"net/http"

	"chat-risk-analysis/backend/internal/api"
	"chat-risk-analysis/backend/internal/repository"
	"chat-risk-analysis/backend/pkg/config"
	"chat-risk-analysis/backend/pkg/errors"
	"chat-risk-analysis/backend/pkg/health"
	"chat-risk-analysis/backend/pkg/logger"
	"chat-risk-analysis/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Dependencies are the pieces the HTTP layer serves.
type Dependencies struct {
	Ingest api.Acceptor
	Reader repository.AnalysisReader
	Health *health.Checker
	// DeadLetters is mounted at /api/dead-letters when non-nil
	DeadLetters api.DeadLetterReader
	// Metrics is mounted at /metrics when non-nil
	Metrics http.Handler
	// OpenAPISpec is served under /api/docs and, when validation is on, enforced
	OpenAPISpec []byte
}

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Logger      *logger.Logger
	Config      *config.Config
	deps        Dependencies
	rateLimiter *middleware.RateLimiter
}

// New creates the engine and installs the middleware chain.
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) *Router {
	// Configure Gin mode based on environment
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		log.LogError(err, "Invalid trusted proxies, trusting none")
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestIDMiddleware())

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(log))

	// Add custom error handler middleware
	engine.Use(errors.ErrorHandler())

	// Add custom recovery middleware with structured logging instead of default
	engine.Use(errors.RecoveryWithLogger())

	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))

	rateLimiter := middleware.NewRateLimiter(log, middleware.RateLimiterOptions{
		Limit: rate.Limit(cfg.Security.RateLimit),
		Burst: cfg.Security.RateLimitBurst,
	})
	engine.Use(rateLimiter.Middleware())

	engine.Use(middleware.MaxBodySize(cfg.Security.MaxBodySize))

	return &Router{
		Engine:      engine,
		Logger:      log,
		Config:      cfg,
		deps:        deps,
		rateLimiter: rateLimiter,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	if len(r.deps.OpenAPISpec) > 0 {
		r.addOpenAPI(r.deps.OpenAPISpec, r.Config.OpenAPI.Validation)
	}

	api.NewAnalysisHandler(r.deps.Ingest, r.deps.Reader).RegisterRoutes(r.Engine)

	if r.deps.DeadLetters != nil {
		api.NewDeadLetterHandler(r.deps.DeadLetters).RegisterRoutes(r.Engine)
	}

	if r.deps.Health != nil {
		r.Engine.GET("/health", r.deps.Health.GinHandler())
	}

	if r.deps.Metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.deps.Metrics))
	}
}

// Stop releases background resources held by the middleware.
func (r *Router) Stop() {
	r.rateLimiter.Stop()
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Origin, Cache-Control, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
