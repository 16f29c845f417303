package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/auth"
	"github.com/vovakirdan/mentorwire/internal/config"
	"github.com/vovakirdan/mentorwire/internal/core"
	"github.com/vovakirdan/mentorwire/internal/observability"
	"github.com/vovakirdan/mentorwire/internal/store"
)

// NewServer builds the HTTP server: the websocket endpoint on a plain mux and
// the gin router for the REST API, health and metrics.
func NewServer(hub *core.Hub, st store.Store, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	apiHandlers := NewAPIHandlers(authService, logger)
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService, logger))
	protected.GET("/me", apiHandlers.Me)

	conversations := NewConversationHandlers(st, hub.Presence, logger)
	protected.GET("/conversations/:peerId/messages", conversations.ListMessages)
	protected.GET("/presence", conversations.Presence)

	notifications := NewNotificationHandlers(hub.Notifier, logger)
	protected.GET("/notifications", notifications.List)
	protected.GET("/notifications/unread-count", notifications.UnreadCount)
	protected.PATCH("/notifications/:id/read", notifications.MarkRead)
	protected.POST("/notifications/read-all", notifications.MarkAllRead)
	protected.POST("/notifications/seen-all", notifications.MarkAllSeen)
	protected.DELETE("/notifications/:id", notifications.Delete)

	// The websocket upgrade hijacks the connection, which gin's writer refuses
	// once the status line is out, so /ws stays on the plain mux.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, WSOptions{
		JWTRequired:        cfg.JWTRequired,
		MaxMessageBytes:    cfg.MaxMessageBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
