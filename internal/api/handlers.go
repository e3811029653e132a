package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mentorgo/internal/analytics"
	"mentorgo/internal/auth"
	"mentorgo/internal/logger"
	"mentorgo/internal/service/assistant"
	"mentorgo/internal/validation"
)

// Options carries the optional collaborators of Handler.
type Options struct {
	// Throttle locks out repeated failed logins. Nil disables it.
	Throttle *auth.LoginThrottle
	// RateLimiter guards login and chat. Nil disables it.
	RateLimiter gin.HandlerFunc
	Logger      *zap.Logger
	EnableHSTS  bool
	// Features is reported as-is by the health endpoint.
	Features map[string]bool
	// Ping checks backing services for the health endpoint.
	Ping func(ctx context.Context) error
}

// Handler wires HTTP routes to the assistant, auth and analytics services.
type Handler struct {
	assistant *assistant.Service
	auth      *auth.Service
	analytics *analytics.Aggregator
	throttle  *auth.LoginThrottle
	limiter   gin.HandlerFunc
	logger    *zap.Logger
	opts      Options
}

// NewHandler constructs a Handler instance.
func NewHandler(service *assistant.Service, authService *auth.Service, aggregator *analytics.Aggregator, opts Options) *Handler {
	return &Handler{
		assistant: service,
		auth:      authService,
		analytics: aggregator,
		throttle:  opts.Throttle,
		limiter:   opts.RateLimiter,
		logger:    logger.OrNop(opts.Logger),
		opts:      opts,
	}
}

// check token userID is match with param userID
func (h *Handler) requirePathUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		paramID := c.Param("id")
		if paramID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if paramID != userID {
			h.logger.Warn("user_mismatch",
				zap.String("user_id", logger.SanitizeID(userID)),
				zap.String("path", logger.SanitizePath(c.Request.URL.Path)),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return "", false
	}
	return userID, true
}

// limited prepends the rate limiter, when configured, to a handler chain.
func (h *Handler) limited(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	if h.limiter == nil {
		return handlers
	}
	return append([]gin.HandlerFunc{h.limiter}, handlers...)
}

// Use installs the router-wide middleware.
func (h *Handler) Use(router *gin.Engine) {
	router.Use(Recovery(h.logger), RequestLogger(h.logger), SecurityHeaders(h.opts.EnableHSTS))
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", h.health)
	api.POST("/signup", h.signup)
	api.POST("/login", h.limited(h.login)...)

	authed := api.Group("")
	authed.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	authed.GET("/user", h.currentUser)
	authed.POST("/logout", h.logout)
	authed.POST("/change-password", h.changePassword)
	authed.POST("/change-email", h.changeEmail)
	authed.PUT("/profile", h.updateProfile)
	authed.PUT("/preferences", h.updatePreferences)
	authed.DELETE("/user", h.deleteUser)

	authed.POST("/chat", h.limited(h.chat)...)
	authed.POST("/session/start", h.startSession)
	authed.POST("/end_session", h.endSession)
	authed.POST("/session/:session_id/rename", h.renameSession)
	authed.GET("/session/:session_id/messages", h.sessionMessages)
	authed.POST("/feedback", h.submitFeedback)

	scoped := authed.Group("")
	scoped.Use(h.requirePathUser())
	scoped.GET("/conversation/:id", h.conversation)
	scoped.GET("/sessions/:id", h.listSessions)
	scoped.GET("/analytics/:id", h.userAnalytics)
	scoped.GET("/mood-data/:id", h.moodData)
	scoped.GET("/chat-summaries/:id", h.chatSummaries)
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"features":  h.opts.Features,
	}
	if h.opts.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ping(ctx); err != nil {
			h.logger.Warn("health_check_failed", zap.Error(err))
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// writeError maps service errors onto HTTP status codes. Unknown errors are
// logged and reported with the generic message.
func (h *Handler) writeError(c *gin.Context, err error, generic string) {
	switch {
	case errors.Is(err, assistant.ErrInvalidInput), errors.Is(err, assistant.ErrOAuthAccount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, assistant.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, assistant.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, assistant.ErrSessionNotFound), errors.Is(err, assistant.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request_failed",
			zap.String("path", logger.SanitizePath(c.Request.URL.Path)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": generic})
	}
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

// bindJSON decodes the body into req and runs its validate tags, writing a
// 400 on either failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c)
		return false
	}
	if err := validation.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
