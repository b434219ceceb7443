package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"iot-notification-service/internal/infrastructure/bridge"
	"iot-notification-service/internal/infrastructure/config"
	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/infrastructure/metrics"
	"iot-notification-service/internal/interfaces/rest/v1/handler"
	"iot-notification-service/internal/interfaces/sse"
	"iot-notification-service/internal/interfaces/websocket"
	"iot-notification-service/internal/port/inbound"
)

type routerDeps struct {
	cfg     *config.Config
	logger  logger.Logger
	hub     *hub.Hub
	bridge  *bridge.Bridge
	useCase inbound.NotificationUseCase
	metrics *metrics.Metrics
}

func InitRouter(deps routerDeps) http.Handler {
	if deps.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(deps.logger))
	router.Use(gin.RecoveryWithWriter(deps.logger.WithField("component", "http").Writer()))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")
	rootGroup.GET("/metrics", gin.WrapH(deps.metrics.Handler()))

	handler.InitRESTRouter(deps.logger, deps.useCase, deps.hub, deps.bridge, rootGroup)
	sse.InitSSERouter(deps.logger, deps.hub, deps.cfg.WebSocket.SendBufferSize, deps.cfg.SSE.KeepAliveInterval, rootGroup)
	websocket.InitWebSocketRouter(deps.logger, deps.hub, hub.WebSocketOptions{
		SendBufferSize: deps.cfg.WebSocket.SendBufferSize,
		MaxMessageSize: deps.cfg.WebSocket.MaxMessageSize,
		WriteWait:      deps.cfg.WebSocket.WriteWait,
		PongWait:       deps.cfg.WebSocket.PongWait,
	}, rootGroup)

	return router
}

// requestLogger logs one line per request. Long-lived streams are logged when
// they end.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	log = log.WithField("component", "http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logger.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Debug("Request served")
		}
	}
}
