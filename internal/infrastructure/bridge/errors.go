package bridge

import "errors"

var (
	// ErrInitialize wraps any failure to open the bus connections.
	ErrInitialize = errors.New("bridge: initialization failed")

	// ErrNotReady is returned by publish calls made before SubscribeAll
	// completed or after Close. It signals a wiring bug, not a network error.
	ErrNotReady = errors.New("bridge: not ready")

	// ErrInvalidState is returned when a lifecycle method is called out of order.
	ErrInvalidState = errors.New("bridge: invalid state transition")

	ErrEncode = errors.New("bridge: failed to encode payload")
)
