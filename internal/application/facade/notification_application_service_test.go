package facade

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-notification-service/internal/infrastructure/bridge"
	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/port/inbound"
)

type fakePublisher struct {
	deviceEvents  []bridge.DeviceEvent
	notifications []bridge.Notification
	err           error
}

func (f *fakePublisher) PublishDeviceEvent(_ context.Context, event bridge.DeviceEvent) error {
	if f.err != nil {
		return f.err
	}
	f.deviceEvents = append(f.deviceEvents, event)
	return nil
}

func (f *fakePublisher) PublishNotification(_ context.Context, notification bridge.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.notifications = append(f.notifications, notification)
	return nil
}

type fakeClients struct {
	known map[string]bool
	sent  map[string][]*hub.OutboundEvent
}

func (f *fakeClients) Unicast(id string, event *hub.OutboundEvent) bool {
	if !f.known[id] {
		return false
	}
	if f.sent == nil {
		f.sent = make(map[string][]*hub.OutboundEvent)
	}
	f.sent[id] = append(f.sent[id], event)
	return true
}

func newService() (*NotificationApplicationService, *fakePublisher, *fakeClients) {
	pub := &fakePublisher{}
	clients := &fakeClients{known: map[string]bool{"client-1": true}}
	return NewNotificationApplicationService(pub, clients, logger.NewNop()), pub, clients
}

func TestPublishDeviceEvent(t *testing.T) {
	svc, pub, _ := newService()

	err := svc.PublishDeviceEvent(context.Background(), inbound.PublishDeviceEventCommand{
		Type:     "status_change",
		DeviceID: "sensor-1",
		Data:     json.RawMessage(`{"status":"online"}`),
	})
	require.NoError(t, err)
	require.Len(t, pub.deviceEvents, 1)
	assert.Equal(t, bridge.DeviceEvent{
		Type:     "status_change",
		DeviceID: "sensor-1",
		Data:     json.RawMessage(`{"status":"online"}`),
	}, pub.deviceEvents[0])
}

func TestPublishDeviceEvent_DefaultsData(t *testing.T) {
	svc, pub, _ := newService()

	require.NoError(t, svc.PublishDeviceEvent(context.Background(), inbound.PublishDeviceEventCommand{
		Type:     "heartbeat",
		DeviceID: "gw-1",
	}))
	assert.JSONEq(t, `{}`, string(pub.deviceEvents[0].Data))
}

func TestPublishDeviceEvent_Validation(t *testing.T) {
	tests := []struct {
		name string
		cmd  inbound.PublishDeviceEventCommand
	}{
		{"missing type", inbound.PublishDeviceEventCommand{DeviceID: "d"}},
		{"blank type", inbound.PublishDeviceEventCommand{Type: "  ", DeviceID: "d"}},
		{"missing device", inbound.PublishDeviceEventCommand{Type: "t"}},
		{"invalid data", inbound.PublishDeviceEventCommand{Type: "t", DeviceID: "d", Data: json.RawMessage(`{nope`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, pub, _ := newService()
			err := svc.PublishDeviceEvent(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, ErrInvalidCommand)
			assert.Empty(t, pub.deviceEvents)
		})
	}
}

func TestPublishNotification(t *testing.T) {
	svc, pub, _ := newService()

	require.NoError(t, svc.PublishNotification(context.Background(), inbound.PublishNotificationCommand{
		Type:    "alert",
		Message: "Temperature high",
	}))
	require.NoError(t, svc.PublishNotification(context.Background(), inbound.PublishNotificationCommand{
		Type:    "info",
		Message: "with data",
		Data:    json.RawMessage(`{"deviceId":"d1"}`),
	}))

	require.Len(t, pub.notifications, 2)
	assert.Nil(t, pub.notifications[0].Data)
	assert.JSONEq(t, `{"deviceId":"d1"}`, string(pub.notifications[1].Data))

	err := svc.PublishNotification(context.Background(), inbound.PublishNotificationCommand{Type: "alert"})
	assert.ErrorIs(t, err, ErrInvalidCommand)

	err = svc.PublishNotification(context.Background(), inbound.PublishNotificationCommand{
		Type: "alert", Message: "m", Data: json.RawMessage(`[`),
	})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestPublish_PropagatesBridgeErrors(t *testing.T) {
	svc, pub, _ := newService()
	pub.err = bridge.ErrNotReady

	err := svc.PublishNotification(context.Background(), inbound.PublishNotificationCommand{Type: "a", Message: "b"})
	assert.ErrorIs(t, err, bridge.ErrNotReady)

	err = svc.PublishDeviceEvent(context.Background(), inbound.PublishDeviceEventCommand{Type: "a", DeviceID: "b"})
	assert.ErrorIs(t, err, bridge.ErrNotReady)
}

func TestSendToClient(t *testing.T) {
	svc, _, clients := newService()

	delivered, err := svc.SendToClient(context.Background(), inbound.SendToClientCommand{
		ClientID: "client-1",
		Type:     "notification:sent",
		Data:     json.RawMessage(`{"message":"hi"}`),
	})
	require.NoError(t, err)
	assert.True(t, delivered)
	require.Len(t, clients.sent["client-1"], 1)
	assert.Equal(t, hub.EventNotificationSent, clients.sent["client-1"][0].Type)

	delivered, err = svc.SendToClient(context.Background(), inbound.SendToClientCommand{
		ClientID: "gone",
		Type:     "notification:sent",
	})
	require.NoError(t, err)
	assert.False(t, delivered)

	_, err = svc.SendToClient(context.Background(), inbound.SendToClientCommand{ClientID: "client-1"})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}
