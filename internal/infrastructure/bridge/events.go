package bridge

import "encoding/json"

// DeviceEvent is the payload carried on the device events channel.
type DeviceEvent struct {
	Type     string          `json:"type"`
	DeviceID string          `json:"deviceId"`
	Data     json.RawMessage `json:"data"`
}

// Notification is the payload carried on the notifications channel.
type Notification struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// busHeader holds the fields logged for every relayed bus message. Values are
// left untyped because producers are not required to send strings.
type busHeader struct {
	Type     any `json:"type"`
	DeviceID any `json:"deviceId"`
}
