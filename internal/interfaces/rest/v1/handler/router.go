package handler

import (
	"github.com/gin-gonic/gin"

	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/port/inbound"
)

// InitRESTRouter registers the publish, health and admin endpoints.
func InitRESTRouter(
	logger logger.Logger,
	useCase inbound.NotificationUseCase,
	hubInstance *hub.Hub,
	bus BusStatus,
	rg *gin.RouterGroup,
) {
	notificationHandler := NewNotificationHandler(useCase, logger)
	healthHandler := NewHealthHandler(hubInstance, bus, logger)
	connectionHandler := NewConnectionHandler(hubInstance, useCase, logger)

	rg.GET("/health", healthHandler.Health)
	rg.POST("/notifications/send", notificationHandler.SendNotification)
	rg.POST("/events/device", notificationHandler.PublishDeviceEvent)

	apiGroup := rg.Group("/api/v1")
	apiGroup.GET("/connections", connectionHandler.GetConnections)
	apiGroup.POST("/connections/:clientId/send", connectionHandler.SendMessage)
}
