package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/rotawire/internal/auth"
	"github.com/vovakirdan/rotawire/internal/config"
	"github.com/vovakirdan/rotawire/internal/core"
	"github.com/vovakirdan/rotawire/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Rooms   int    `json:"rooms"`
}

// NewServer builds the HTTP server: health probe, push socket and the
// event publish/history API.
func NewServer(hub *core.Hub, events store.EventStore, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	if jwtConfig.DevMode() {
		logger.Warn().Msg("jwt_secret is empty, tokens are not verified")
	}

	router.GET("/health", healthHandler(hub))

	eventHandlers := NewEventHandlers(hub, events, cfg.HistoryLimit, logger)
	api := router.Group("/api")
	api.Use(AuthMiddleware(jwtConfig, logger))
	{
		api.POST("/rooms/:room/events", eventHandlers.PublishEvent)
		api.GET("/rooms/:room/events", eventHandlers.ListEvents)
		api.GET("/events/:id", eventHandlers.GetEvent)
	}

	// The push socket bypasses gin: its writer refuses to hijack after the
	// 101 status has been written.
	mux := http.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, jwtConfig, cfg, logger))
	mux.Handle("/", router)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(hub *core.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := hub.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "hub unavailable"})
			return
		}
		c.JSON(http.StatusOK, HealthResponse{Status: "ok", Clients: stats.Clients, Rooms: stats.Rooms})
	}
}
