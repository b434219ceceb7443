// Package bridge relays the shared message bus to connected clients and
// publishes locally produced events onto the bus.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"iot-notification-service/internal/infrastructure/bus"
	"iot-notification-service/internal/infrastructure/config"
	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/infrastructure/metrics"
)

type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Broadcaster delivers an event to every connected client. *hub.Hub
// satisfies it.
type Broadcaster interface {
	Broadcast(event *hub.OutboundEvent) int
}

// Bridge owns one publisher and one subscriber bus connection.
//
// Lifecycle: Initialize opens both connections, SubscribeAll registers the
// channel callbacks and makes the bridge Ready, Close releases whatever was
// opened. A failed Initialize is terminal; the process is expected to exit.
type Bridge struct {
	driver      bus.Driver
	broadcaster Broadcaster
	channels    config.ChannelsConfig

	logger  logger.Logger
	metrics *metrics.Metrics

	state      State
	failed     bool
	publisher  bus.Publisher
	subscriber bus.Subscriber
	mu         sync.RWMutex
}

type Option func(*Bridge)

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

func New(
	driver bus.Driver,
	broadcaster Broadcaster,
	channels config.ChannelsConfig,
	log logger.Logger,
	opts ...Option,
) *Bridge {
	b := &Bridge{
		driver:      driver,
		broadcaster: broadcaster,
		channels:    channels,
		logger:      log.WithFields(logger.Fields{"component": "bridge", "driver": driver.Name()}),
		state:       StateUninitialized,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Initialize opens the publisher connection, then the subscriber connection.
// On failure the connections opened so far are kept for Close.
func (b *Bridge) Initialize(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateUninitialized {
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("%w: initialize in state %s", ErrInvalidState, state)
	}
	b.state = StateInitializing
	b.mu.Unlock()

	publisher, err := b.driver.NewPublisher(ctx)
	if err != nil {
		b.fail()
		return fmt.Errorf("%w: publisher: %w", ErrInitialize, err)
	}
	if !b.adopt(func() { b.publisher = publisher }) {
		_ = publisher.Close()
		return fmt.Errorf("%w: closed during initialize", ErrInvalidState)
	}
	b.logger.Info("Bus publisher connected")

	subscriber, err := b.driver.NewSubscriber(ctx)
	if err != nil {
		b.fail()
		return fmt.Errorf("%w: subscriber: %w", ErrInitialize, err)
	}
	if !b.adopt(func() { b.subscriber = subscriber }) {
		_ = subscriber.Close()
		return fmt.Errorf("%w: closed during initialize", ErrInvalidState)
	}
	b.logger.Info("Bus subscriber connected")

	return nil
}

// adopt stores a freshly opened connection unless Close ran meanwhile.
func (b *Bridge) adopt(store func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateInitializing {
		return false
	}
	store()
	return true
}

func (b *Bridge) fail() {
	b.mu.Lock()
	b.failed = true
	b.mu.Unlock()
}

// SubscribeAll registers one callback per channel and moves the bridge to
// Ready. It requires a successful Initialize.
func (b *Bridge) SubscribeAll(ctx context.Context) error {
	b.mu.RLock()
	state, failed, subscriber := b.state, b.failed, b.subscriber
	b.mu.RUnlock()

	if state != StateInitializing || failed || subscriber == nil {
		return fmt.Errorf("%w: subscribe in state %s", ErrInvalidState, state)
	}

	subscriptions := []struct {
		channel   string
		eventType hub.EventType
	}{
		{b.channels.DeviceEvents, hub.EventDeviceStatusChange},
		{b.channels.Notifications, hub.EventNotificationSent},
	}
	for _, s := range subscriptions {
		if err := subscriber.Subscribe(ctx, b.relay(s.eventType), s.channel); err != nil {
			b.dropSubscriber(subscriber)
			return fmt.Errorf("subscribe to %s: %w", s.channel, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateInitializing {
		return fmt.Errorf("%w: closed during subscribe", ErrInvalidState)
	}
	b.state = StateReady

	b.logger.WithField("channels", []string{b.channels.DeviceEvents, b.channels.Notifications}).
		Info("Subscribed to bus channels")
	return nil
}

// dropSubscriber closes the subscriber after a partial SubscribeAll so that
// channels subscribed so far stop relaying. The bridge stays not ready.
func (b *Bridge) dropSubscriber(subscriber bus.Subscriber) {
	b.mu.Lock()
	b.failed = true
	if b.subscriber == subscriber {
		b.subscriber = nil
	} else {
		// Close already took it.
		subscriber = nil
	}
	b.mu.Unlock()

	if subscriber != nil {
		if err := subscriber.Close(); err != nil {
			b.logger.Errorf("Failed to close subscriber: %v", err)
		}
	}
}

// relay returns the subscription callback for one channel. Payloads that are
// not valid JSON, and JSON null, are logged and dropped. Anything else is
// broadcast unchanged.
func (b *Bridge) relay(eventType hub.EventType) bus.Handler {
	return func(msg bus.Message) {
		log := b.logger.WithField("channel", msg.Channel)

		trimmed := bytes.TrimSpace(msg.Payload)
		if !json.Valid(trimmed) || bytes.Equal(trimmed, []byte("null")) {
			b.metrics.BusMessage(msg.Channel, "malformed")
			log.Warn("Dropping malformed bus message")
			return
		}

		// Only used for log fields; producers may send other shapes.
		var header busHeader
		_ = json.Unmarshal(trimmed, &header)

		recipients := b.broadcaster.Broadcast(&hub.OutboundEvent{
			Type: eventType,
			Data: json.RawMessage(trimmed),
		})
		b.metrics.BusMessage(msg.Channel, "relayed")

		fields := logger.Fields{"type": header.Type, "recipients": recipients}
		if header.DeviceID != nil {
			fields["device_id"] = header.DeviceID
		}
		log.WithFields(fields).Info("Bus message relayed")
	}
}

func (b *Bridge) PublishDeviceEvent(ctx context.Context, event DeviceEvent) error {
	if err := b.publish(ctx, b.channels.DeviceEvents, event); err != nil {
		return err
	}
	b.logger.WithFields(logger.Fields{"type": event.Type, "device_id": event.DeviceID}).
		Info("Device event published")
	return nil
}

func (b *Bridge) PublishNotification(ctx context.Context, notification Notification) error {
	if err := b.publish(ctx, b.channels.Notifications, notification); err != nil {
		return err
	}
	b.logger.WithField("type", notification.Type).Info("Notification published")
	return nil
}

func (b *Bridge) publish(ctx context.Context, channel string, v any) error {
	b.mu.RLock()
	state, publisher := b.state, b.publisher
	b.mu.RUnlock()

	if state != StateReady || publisher == nil {
		return fmt.Errorf("%w: state %s", ErrNotReady, state)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	if err := publisher.Publish(ctx, channel, payload); err != nil {
		b.metrics.BusPublish(channel, "error")
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	b.metrics.BusPublish(channel, "ok")
	return nil
}

func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Healthy pings both bus connections. It fails outside Ready.
func (b *Bridge) Healthy(ctx context.Context) error {
	b.mu.RLock()
	state, publisher, subscriber := b.state, b.publisher, b.subscriber
	b.mu.RUnlock()

	if state != StateReady {
		return fmt.Errorf("%w: state %s", ErrNotReady, state)
	}
	if err := publisher.Ping(ctx); err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	if err := subscriber.Ping(ctx); err != nil {
		return fmt.Errorf("subscriber: %w", err)
	}
	return nil
}

// Driver returns the name of the bus driver in use.
func (b *Bridge) Driver() string {
	return b.driver.Name()
}

// Close closes the subscriber and then the publisher, whichever exist.
// Calling it again is a no-op.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return nil
	}
	b.state = StateClosed
	publisher, subscriber := b.publisher, b.subscriber
	b.publisher, b.subscriber = nil, nil
	b.mu.Unlock()

	var errs []error
	if subscriber != nil {
		if err := subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}

	b.logger.Info("Bus connections closed")
	return errors.Join(errs...)
}
