package inbound

import (
	"context"
	"encoding/json"
)

type PublishDeviceEventCommand struct {
	Type     string          `json:"type"`
	DeviceID string          `json:"deviceId"`
	Data     json.RawMessage `json:"data"`
}

type PublishNotificationCommand struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type SendToClientCommand struct {
	ClientID string          `json:"-"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

// NotificationUseCase is what the HTTP layer needs from the application.
type NotificationUseCase interface {
	PublishDeviceEvent(ctx context.Context, cmd PublishDeviceEventCommand) error
	PublishNotification(ctx context.Context, cmd PublishNotificationCommand) error
	// SendToClient reports whether the client was connected.
	SendToClient(ctx context.Context, cmd SendToClientCommand) (bool, error)
}
