package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/port/inbound"
)

type NotificationHandler struct {
	useCase inbound.NotificationUseCase
	logger  logger.Logger
}

func NewNotificationHandler(useCase inbound.NotificationUseCase, logger logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		useCase: useCase,
		logger:  logger.WithField("handler", "notification"),
	}
}

// SendNotification handles POST /notifications/send.
func (h *NotificationHandler) SendNotification(c *gin.Context) {
	var cmd inbound.PublishNotificationCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		Failure(c, http.StatusBadRequest, CodeValidation, "Invalid notification format")
		return
	}

	if err := h.useCase.PublishNotification(c.Request.Context(), cmd); err != nil {
		h.logger.Errorf("Failed to send notification: %v", err)
		FailureFromError(c, err, "Failed to send notification")
		return
	}

	Success(c, http.StatusOK, gin.H{"message": "Notification sent"})
}

// PublishDeviceEvent handles POST /events/device.
func (h *NotificationHandler) PublishDeviceEvent(c *gin.Context) {
	var cmd inbound.PublishDeviceEventCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		Failure(c, http.StatusBadRequest, CodeValidation, "Invalid device event format")
		return
	}

	if err := h.useCase.PublishDeviceEvent(c.Request.Context(), cmd); err != nil {
		h.logger.Errorf("Failed to publish device event: %v", err)
		FailureFromError(c, err, "Failed to publish event")
		return
	}

	Success(c, http.StatusOK, gin.H{"message": "Event published"})
}
