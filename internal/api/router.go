package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/askdesk/internal/api/ask"
	"github.com/liliang-cn/askdesk/internal/api/completion"
	"github.com/liliang-cn/askdesk/internal/api/middleware"
	"github.com/liliang-cn/askdesk/internal/api/projects"
	"github.com/liliang-cn/askdesk/internal/api/sessions"
	"github.com/liliang-cn/askdesk/internal/service"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	JWTSecret    string
	AllowOrigins []string

	// InternalToken authenticates the server's own requests to /api/chat
	InternalToken string

	// RequestsPerMinute of zero disables rate limiting of /api/chat and
	// /api/ask. Limits apply per user.
	RequestsPerMinute int
	Burst             int
}

// Services are the handlers' dependencies
type Services struct {
	Completion *service.CompletionService
	Sessions   *service.SessionService
	Projects   *service.ProjectService
	Files      *service.FileService
	Ask        *service.AskService
}

// SetupRouter sets up the Gin router
func SetupRouter(svc Services, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(middleware.Auth(cfg.APIKey, cfg.JWTSecret, middleware.WithInternalToken(cfg.InternalToken)))

	// Model-backed routes share one limiter
	limited := []gin.HandlerFunc{}
	if cfg.RequestsPerMinute > 0 {
		limited = append(limited, middleware.NewRateLimiter(cfg.RequestsPerMinute, cfg.Burst).Middleware())
	}

	// Completion endpoint the chat dispatcher posts to
	chatGroup := api.Group("/chat", limited...)
	completion.NewHandler(svc.Completion, logger).RegisterRoutes(chatGroup)

	// Chat sessions, one registry per user
	sessions.NewHandler(svc.Sessions, logger).RegisterRoutes(chatGroup.Group("/sessions"))

	// Knowledge base
	projects.NewHandler(svc.Projects, svc.Files).RegisterRoutes(api)
	ask.NewHandler(svc.Ask, logger).RegisterRoutes(api.Group("", limited...))

	return r
}
