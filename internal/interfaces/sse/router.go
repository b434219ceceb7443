package sse

import (
	"time"

	"github.com/gin-gonic/gin"

	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
)

func InitSSERouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	bufferSize int,
	keepAlive time.Duration,
	rg *gin.RouterGroup,
) {
	sseHandler := NewServerSentEventHandler(hubInstance, bufferSize, keepAlive, logger)

	rg.GET("/sse", sseHandler.Connect)
}
