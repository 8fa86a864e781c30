package router

import (
	"pony-chat-admin/backend/internal/api"
	"pony-chat-admin/backend/pkg/config"
	"pony-chat-admin/backend/pkg/di"
	"pony-chat-admin/backend/pkg/errors"
	"pony-chat-admin/backend/pkg/logger"
	"pony-chat-admin/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	// Use the container's logger
	logger.SetGlobal(container.Logger)

	cfg := config.Get()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(container.Logger))

	// Add custom error handler middleware
	engine.Use(errors.ErrorHandler())

	// Add custom recovery middleware with structured logging instead of default
	engine.Use(errors.RecoveryWithLogger())

	// Create rate limiter with default options
	rateLimiter := middleware.NewRateLimiter(container.Logger)
	engine.Use(rateLimiter.Middleware())

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.Engine.Use(corsMiddleware())

	jwtAuth := middleware.JWTAuthMiddleware(r.Container.JWTService, r.Logger)

	authHandler := api.NewAuthHandler(r.Container.UserService, r.Logger)
	inboxHandler := api.NewInboxHandler(r.Container.InboxService, r.Container.Hub, r.Logger)

	// Operational endpoints stay outside the versioned API
	r.Engine.GET("/health", r.Container.Health.Handler())
	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Engine.Group("/api/v1")

	// Public routes (no auth required)
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.GET("/me", jwtAuth, authHandler.Me)
		authRoutes.POST("/logout", jwtAuth, authHandler.Logout)
	}

	// Protected routes (require authentication)
	protected := v1.Group("/")
	protected.Use(jwtAuth)
	{
		protected.GET("/platforms", inboxHandler.Platforms)

		platformRoutes := protected.Group("/platforms/:platform")
		{
			platformRoutes.GET("/conversations", inboxHandler.Conversations)
			platformRoutes.GET("/conversations/:key/messages", inboxHandler.Messages)
			platformRoutes.POST("/conversations/:key/messages", inboxHandler.Send)
			platformRoutes.POST("/conversations/:key/open", inboxHandler.Open)
			platformRoutes.POST("/conversations/:key/close", inboxHandler.Close)
			platformRoutes.POST("/conversations/:key/messages/:id/toggle-timestamp", inboxHandler.ToggleTimestamp)
		}

		protected.POST("/send", inboxHandler.SendAny)
	}

	// WebSocket route; the auth middleware also accepts a token query
	// parameter because browsers cannot set headers on upgrade requests.
	r.Engine.GET("/ws/unread", jwtAuth, inboxHandler.UnreadStream)
}

// corsMiddleware allows the console frontend to call the API from another origin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin, Upgrade, Connection, Cache-Control, X-Session-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
