package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
)

// WebSocketHandler upgrades client requests and ties each socket to the hub
// for its whole lifetime.
type WebSocketHandler struct {
	hub      *hub.Hub
	logger   logger.Logger
	options  hub.WebSocketOptions
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hubInstance *hub.Hub, options hub.WebSocketOptions, logger logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hubInstance,
		logger:  logger.WithField("handler", "websocket"),
		options: options,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are not authenticated; any dashboard origin may connect.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect handles WebSocket connection upgrade requests. It returns when the
// client goes away, after the connection has been removed from the hub.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	wsConn := hub.NewWebSocketConnection(conn, h.logger, h.options)
	clientID := h.hub.Accept(wsConn)

	wsConn.ReadLoop(func(data []byte) {
		h.hub.HandleInbound(clientID, data)
	})

	h.hub.Remove(clientID)
}
