// Package bus abstracts the publish/subscribe message bus shared with the
// other platform services. Drivers exist for Redis, MQTT and an in-process
// broker used in development and tests.
package bus

import (
	"context"
	"errors"
	"fmt"

	"iot-notification-service/internal/infrastructure/config"
	"iot-notification-service/internal/infrastructure/logger"
)

// Use errors.Is to check for these in calling code.
var (
	ErrConnectionFailed = errors.New("bus: connection failed")
	ErrNotConnected     = errors.New("bus: not connected")
	ErrPublishFailed    = errors.New("bus: publish failed")
	ErrSubscribeFailed  = errors.New("bus: subscribe failed")
	ErrClosed           = errors.New("bus: connection closed")
	ErrUnknownDriver    = errors.New("bus: unknown driver")
	ErrInvalidChannel   = errors.New("bus: channel cannot be empty")
)

// Message is one payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Handler is invoked for every message on a subscribed channel. Calls for one
// subscriber are made from a single goroutine, in arrival order.
type Handler func(msg Message)

// Publisher is a bus connection used only for publishing.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Subscriber is a bus connection used only for receiving. Subscribe returns
// once the broker has confirmed the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler, channels ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// Driver opens connections to one kind of bus. Publisher and subscriber are
// always separate connections.
type Driver interface {
	Name() string
	NewPublisher(ctx context.Context) (Publisher, error)
	NewSubscriber(ctx context.Context) (Subscriber, error)
}

// Open returns the driver selected by cfg.Driver.
func Open(cfg config.BusConfig, log logger.Logger) (Driver, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg.Redis, log)
	case "mqtt":
		return NewMQTT(cfg.MQTT, log)
	case "memory":
		return NewMemory(log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func validateChannels(channels []string) error {
	if len(channels) == 0 {
		return ErrInvalidChannel
	}
	for _, ch := range channels {
		if ch == "" {
			return ErrInvalidChannel
		}
	}
	return nil
}

// safeHandle runs handler and turns a panic into a log line, so one bad
// message cannot stop delivery of the next.
func safeHandle(log logger.Logger, handler Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{
				"channel": msg.Channel,
				"panic":   r,
			}).Error("Bus handler panic recovered")
		}
	}()
	handler(msg)
}
