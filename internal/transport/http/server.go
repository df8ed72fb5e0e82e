package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/auth"
	"github.com/vovakirdan/pairchat-server/internal/config"
	"github.com/vovakirdan/pairchat-server/internal/core"
)

// NewServer builds the HTTP server with the REST and WebSocket routes.
func NewServer(svc *core.Service, authSvc *auth.Service, channels *ChannelHub, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		fmt.Fprint(c.Writer, "ok")
	})

	api := NewAPIHandlers(svc, authSvc, logger)
	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)
	router.POST("/api/guest", api.Guest)

	authed := router.Group("/api", AuthMiddleware(authSvc, logger))
	authed.GET("/me/chats", api.MyChats)

	ws := NewWSHandler(svc, authSvc, channels, cfg.MessageRateLimit, logger)
	router.GET("/ws", ws.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
