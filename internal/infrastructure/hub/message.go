package hub

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the type of an event pushed to clients.
type EventType string

const (
	EventConnection         EventType = "connection"
	EventDeviceStatusChange EventType = "device:status:changed"
	EventNotificationSent   EventType = "notification:sent"
	EventPong               EventType = "pong"
)

const welcomeMessage = "Connected to notification service"

// OutboundEvent is the envelope written to clients.
type OutboundEvent struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Marshal serializes the event into the bytes handed to connections.
func (e *OutboundEvent) Marshal() ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("hub: nil event")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("hub: marshal %s event: %w", e.Type, err)
	}
	return payload, nil
}

type ConnectionData struct {
	ClientID string `json:"clientId"`
	Message  string `json:"message"`
}

type PongData struct {
	Timestamp int64 `json:"timestamp"`
}

// ConnectionEvent is the welcome sent to a client right after Accept.
func ConnectionEvent(clientID string) *OutboundEvent {
	return &OutboundEvent{
		Type: EventConnection,
		Data: ConnectionData{ClientID: clientID, Message: welcomeMessage},
	}
}

// PongEvent answers a client ping. The timestamp is in unix milliseconds.
func PongEvent(at time.Time) *OutboundEvent {
	return &OutboundEvent{
		Type: EventPong,
		Data: PongData{Timestamp: at.UnixMilli()},
	}
}

// InboundMessage is a control message sent by a client.
type InboundMessage struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`
}

const (
	InboundPing      = "ping"
	InboundSubscribe = "subscribe"
)
