package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/port/inbound"
)

type ConnectionLister interface {
	Connections() []hub.ConnectionInfo
}

// ConnectionHandler exposes the admin view of connected clients.
type ConnectionHandler struct {
	connections ConnectionLister
	useCase     inbound.NotificationUseCase
	logger      logger.Logger
}

func NewConnectionHandler(
	connections ConnectionLister,
	useCase inbound.NotificationUseCase,
	logger logger.Logger,
) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		useCase:     useCase,
		logger:      logger.WithField("handler", "connection"),
	}
}

// GetConnections returns information about connected clients
func (h *ConnectionHandler) GetConnections(c *gin.Context) {
	connections := h.connections.Connections()
	Success(c, http.StatusOK, gin.H{
		"total":       len(connections),
		"connections": connections,
	})
}

// SendMessage sends a message to a specific client (for testing/admin purposes)
func (h *ConnectionHandler) SendMessage(c *gin.Context) {
	var cmd inbound.SendToClientCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		Failure(c, http.StatusBadRequest, CodeValidation, "Invalid message format")
		return
	}
	cmd.ClientID = c.Param("clientId")

	delivered, err := h.useCase.SendToClient(c.Request.Context(), cmd)
	if err != nil {
		h.logger.Errorf("Failed to send message to client %s: %v", cmd.ClientID, err)
		FailureFromError(c, err, "Failed to send message")
		return
	}
	if !delivered {
		Failure(c, http.StatusNotFound, CodeNotFound, fmt.Sprintf("Client %s is not connected", cmd.ClientID))
		return
	}

	Success(c, http.StatusOK, gin.H{
		"status":   "sent",
		"clientId": cmd.ClientID,
	})
}
