package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/health"
	"postdrop/backend/internal/middleware"
	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/websocket"
)

// RouterDependencies carries everything the router serves.
type RouterDependencies struct {
	Config  *config.Config
	Handler *Handler
	Hub     *websocket.Hub
	Metrics *monitoring.Metrics
	Health  *health.Checker
	Logger  *zap.Logger
}

// NewRouter builds the Gin engine with the public API, the WebSocket
// endpoint and the operational endpoints.
func NewRouter(deps RouterDependencies) *gin.Engine {
	if !deps.Config.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(deps.Logger), gin.Recovery())

	corsConfig := gincors.DefaultConfig()
	if len(deps.Config.CORS.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = deps.Config.CORS.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	router.Use(gincors.New(corsConfig))

	api := router.Group("/api", middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	{
		api.POST("/inboxes", deps.Handler.CreateInbox)
		api.GET("/inboxes/:id", deps.Handler.GetInbox)
		api.DELETE("/inboxes/:id", deps.Handler.DeleteInbox)
		api.GET("/inboxes/:id/messages", deps.Handler.ListMessages)
		api.GET("/inboxes/:id/messages/:messageId", deps.Handler.GetMessage)
		api.DELETE("/inboxes/:id/messages/:messageId", deps.Handler.DeleteMessage)
		api.GET("/inboxes/:id/messages/:messageId/attachments/:attachmentId", deps.Handler.DownloadAttachment)
	}

	if deps.Hub != nil {
		router.GET("/ws/inboxes/:id", deps.Hub.Handler())
	}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}

	return router
}

// requestLogger logs one line per request at debug, errors at warn.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request failed", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}
