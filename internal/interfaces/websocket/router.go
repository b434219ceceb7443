package websocket

import (
	"github.com/gin-gonic/gin"

	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
)

// InitWebSocketRouter initializes WebSocket routes. The socket is served on
// /ws and on the root path, where existing dashboards connect.
func InitWebSocketRouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	options hub.WebSocketOptions,
	rg *gin.RouterGroup,
) {
	wsHandler := NewWebSocketHandler(hubInstance, options, logger)

	rg.GET("/ws", wsHandler.Connect)
	rg.GET("/", wsHandler.Connect)
}
