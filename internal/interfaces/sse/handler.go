package sse

import (
	"time"

	"github.com/gin-gonic/gin"

	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
)

// ServerSentEventHandler streams the same outbound events as the WebSocket
// surface to clients that can only consume SSE.
type ServerSentEventHandler struct {
	hub        *hub.Hub
	logger     logger.Logger
	bufferSize int
	keepAlive  time.Duration
}

func NewServerSentEventHandler(
	hubInstance *hub.Hub,
	bufferSize int,
	keepAlive time.Duration,
	logger logger.Logger,
) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:        hubInstance,
		logger:     logger.WithField("handler", "sse"),
		bufferSize: bufferSize,
		keepAlive:  keepAlive,
	}
}

// Connect handles SSE connection requests. It blocks until the client
// disconnects or the hub shuts the connection down.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	conn := hub.NewSSEConnection(c.Request.Context(), h.bufferSize, h.keepAlive)
	clientID := h.hub.Accept(conn)
	defer h.hub.Remove(clientID)

	if err := conn.Stream(c.Writer); err != nil {
		h.logger.Debugf("SSE stream for client %s ended: %v", clientID, err)
	}
}
