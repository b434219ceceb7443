package hub

import (
	"context"
	"errors"
)

var (
	// ErrConnectionClosed is returned by Send on a closed connection.
	ErrConnectionClosed = errors.New("hub: connection closed")

	// ErrSendBufferFull is returned by Send when the connection's outbound
	// queue is full. The message is dropped for that connection only.
	ErrSendBufferFull = errors.New("hub: send buffer full")
)

// Connection is one live client transport (WebSocket, SSE). The hub owns it
// from Accept until Remove or Shutdown.
type Connection interface {
	// Type names the transport ("websocket", "sse").
	Type() string
	// Send queues an already serialized event for delivery. It must not
	// block on the network.
	Send(payload []byte) error
	Close() error
	IsClosed() bool
	// Context is cancelled when the connection closes.
	Context() context.Context
}
