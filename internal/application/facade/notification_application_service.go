// Package facade implements the inbound use cases on top of the event bridge
// and the connection hub.
package facade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"iot-notification-service/internal/infrastructure/bridge"
	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/port/inbound"
)

// ErrInvalidCommand is wrapped by every validation failure.
var ErrInvalidCommand = errors.New("invalid command")

// EventPublisher is satisfied by *bridge.Bridge.
type EventPublisher interface {
	PublishDeviceEvent(ctx context.Context, event bridge.DeviceEvent) error
	PublishNotification(ctx context.Context, notification bridge.Notification) error
}

// ClientSender is satisfied by *hub.Hub.
type ClientSender interface {
	Unicast(id string, event *hub.OutboundEvent) bool
}

type NotificationApplicationService struct {
	publisher EventPublisher
	clients   ClientSender
	logger    logger.Logger
}

var _ inbound.NotificationUseCase = (*NotificationApplicationService)(nil)

func NewNotificationApplicationService(
	publisher EventPublisher,
	clients ClientSender,
	log logger.Logger,
) *NotificationApplicationService {
	return &NotificationApplicationService{
		publisher: publisher,
		clients:   clients,
		logger:    log.WithField("component", "notification_service"),
	}
}

func (s *NotificationApplicationService) PublishDeviceEvent(
	ctx context.Context,
	cmd inbound.PublishDeviceEventCommand,
) error {
	if err := required("type", cmd.Type); err != nil {
		return err
	}
	if err := required("deviceId", cmd.DeviceID); err != nil {
		return err
	}
	data, err := jsonOrEmptyObject("data", cmd.Data)
	if err != nil {
		return err
	}

	return s.publisher.PublishDeviceEvent(ctx, bridge.DeviceEvent{
		Type:     strings.TrimSpace(cmd.Type),
		DeviceID: strings.TrimSpace(cmd.DeviceID),
		Data:     data,
	})
}

func (s *NotificationApplicationService) PublishNotification(
	ctx context.Context,
	cmd inbound.PublishNotificationCommand,
) error {
	if err := required("type", cmd.Type); err != nil {
		return err
	}
	if err := required("message", cmd.Message); err != nil {
		return err
	}

	notification := bridge.Notification{
		Type:    strings.TrimSpace(cmd.Type),
		Message: cmd.Message,
	}
	// data is optional on notifications and stays absent when not given.
	if !isAbsent(cmd.Data) {
		if !json.Valid(cmd.Data) {
			return fmt.Errorf("%w: data must be valid JSON", ErrInvalidCommand)
		}
		notification.Data = cmd.Data
	}

	return s.publisher.PublishNotification(ctx, notification)
}

func (s *NotificationApplicationService) SendToClient(
	ctx context.Context,
	cmd inbound.SendToClientCommand,
) (bool, error) {
	if err := required("clientId", cmd.ClientID); err != nil {
		return false, err
	}
	if err := required("type", cmd.Type); err != nil {
		return false, err
	}
	data, err := jsonOrEmptyObject("data", cmd.Data)
	if err != nil {
		return false, err
	}

	delivered := s.clients.Unicast(cmd.ClientID, &hub.OutboundEvent{
		Type: hub.EventType(strings.TrimSpace(cmd.Type)),
		Data: data,
	})
	s.logger.WithFields(logger.Fields{
		"client_id": cmd.ClientID,
		"type":      cmd.Type,
		"delivered": delivered,
	}).Info("Direct message sent")

	return delivered, nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidCommand, field)
	}
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func jsonOrEmptyObject(field string, raw json.RawMessage) (json.RawMessage, error) {
	if isAbsent(raw) {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s must be valid JSON", ErrInvalidCommand, field)
	}
	return raw, nil
}
