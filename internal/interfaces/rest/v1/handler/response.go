package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"iot-notification-service/internal/application/facade"
	"iot-notification-service/internal/infrastructure/bridge"
)

const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// ApiResponse is the envelope shared by every JSON endpoint of the platform.
type ApiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *ApiError `json:"error,omitempty"`
	Meta    ApiMeta   `json:"meta"`
}

type ApiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ApiMeta struct {
	Timestamp string `json:"timestamp"`
}

func newMeta() ApiMeta {
	return ApiMeta{Timestamp: time.Now().UTC().Format(time.RFC3339Nano)}
}

func Success(c *gin.Context, status int, data any) {
	c.JSON(status, ApiResponse{Success: true, Data: data, Meta: newMeta()})
}

func Failure(c *gin.Context, status int, code, message string) {
	c.JSON(status, ApiResponse{
		Success: false,
		Error:   &ApiError{Code: code, Message: message},
		Meta:    newMeta(),
	})
}

// FailureFromError maps application errors onto status codes. fallback is
// the message used for unexpected errors, which are not echoed to clients.
func FailureFromError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, facade.ErrInvalidCommand):
		Failure(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, bridge.ErrNotReady):
		Failure(c, http.StatusServiceUnavailable, CodeServiceUnavailable, "Message bus is not ready")
	default:
		Failure(c, http.StatusInternalServerError, CodeInternal, fallback)
	}
}
