package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"iot-notification-service/internal/infrastructure/config"
	"iot-notification-service/internal/infrastructure/logger"
)

const (
	defaultMQTTConnectTimeout = 10 * time.Second
	mqttKeepAlive             = 60 * time.Second
	mqttMaxReconnectInterval  = 30 * time.Second

	// mqttDisconnectQuiesce is in milliseconds.
	mqttDisconnectQuiesce = 250
)

// MQTT opens connections to an MQTT broker. Channels map one-to-one onto
// topics. paho reconnects on its own; subscriptions are restored from the
// on-connect handler because sessions are clean.
type MQTT struct {
	cfg    config.MQTTConfig
	logger logger.Logger
}

var _ Driver = (*MQTT)(nil)

func NewMQTT(cfg config.MQTTConfig, log logger.Logger) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("%w: mqtt broker is required", ErrConnectionFailed)
	}
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return nil, fmt.Errorf("%w: invalid qos %d", ErrConnectionFailed, cfg.QoS)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultMQTTConnectTimeout
	}

	return &MQTT{
		cfg:    cfg,
		logger: log.WithFields(logger.Fields{"component": "bus.mqtt", "broker": cfg.Broker}),
	}, nil
}

func (m *MQTT) Name() string {
	return "mqtt"
}

func (m *MQTT) NewPublisher(ctx context.Context) (Publisher, error) {
	opts := buildClientOptions(m.cfg, "pub")
	client, err := m.connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	m.logger.Info("MQTT publisher connected")
	return &mqttPublisher{client: client, qos: byte(m.cfg.QoS)}, nil
}

func (m *MQTT) NewSubscriber(ctx context.Context) (Subscriber, error) {
	s := &mqttSubscriber{
		qos:           byte(m.cfg.QoS),
		logger:        m.logger,
		subscriptions: make(map[string]*mqttSubscription),
	}

	opts := buildClientOptions(m.cfg, "sub")
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		s.restoreSubscriptions()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		m.logger.Warnf("MQTT subscriber connection lost: %v", err)
	})

	client, err := m.connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.client = client

	m.logger.Info("MQTT subscriber connected")
	return s, nil
}

func (m *MQTT) connect(ctx context.Context, opts *pahomqtt.ClientOptions) (pahomqtt.Client, error) {
	client := pahomqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), m.cfg.ConnectTimeout); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return client, nil
}

// buildClientOptions maps the bus config onto paho options. role keeps the
// publisher and subscriber client ids distinct, which brokers require.
func buildClientOptions(cfg config.MQTTConfig, role string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, role))

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	// The initial connect must fail fast so startup can report it; only
	// later drops are retried.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(mqttMaxReconnectInterval)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetOrderMatters(true)

	return opts
}

// waitToken blocks until token completes, ctx is done or timeout elapses.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultMQTTConnectTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	}
}

type mqttPublisher struct {
	client pahomqtt.Client
	qos    byte
}

func (p *mqttPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	if !p.client.IsConnected() {
		return fmt.Errorf("%w: %w", ErrPublishFailed, ErrNotConnected)
	}
	if err := waitToken(ctx, p.client.Publish(channel, p.qos, false, payload), defaultMQTTConnectTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (p *mqttPublisher) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return nil
}

func (p *mqttPublisher) Close() error {
	p.client.Disconnect(mqttDisconnectQuiesce)
	return nil
}

type mqttSubscription struct {
	channel string
	handler pahomqtt.MessageHandler
}

type mqttSubscriber struct {
	client pahomqtt.Client
	qos    byte
	logger logger.Logger

	subscriptions map[string]*mqttSubscription
	closed        bool
	mu            sync.RWMutex
}

func (s *mqttSubscriber) Subscribe(ctx context.Context, handler Handler, channels ...string) error {
	if err := validateChannels(channels); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	filters := make(map[string]byte, len(channels))
	for _, ch := range channels {
		filters[ch] = s.qos
	}

	wrapped := s.wrapHandler(handler)
	if err := waitToken(ctx, s.client.SubscribeMultiple(filters, wrapped), defaultMQTTConnectTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	for _, ch := range channels {
		s.subscriptions[ch] = &mqttSubscription{channel: ch, handler: wrapped}
	}

	s.logger.WithField("channels", channels).Info("Subscribed to MQTT topics")
	return nil
}

// restoreSubscriptions runs on every (re)connect. On the first connect the
// map is still empty.
func (s *mqttSubscriber) restoreSubscriptions() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		s.client.Subscribe(sub.channel, s.qos, sub.handler)
	}
	if len(s.subscriptions) > 0 {
		s.logger.Infof("Restored %d MQTT subscriptions", len(s.subscriptions))
	}
}

func (s *mqttSubscriber) wrapHandler(handler Handler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		safeHandle(s.logger, handler, Message{Channel: msg.Topic(), Payload: msg.Payload()})
	}
}

func (s *mqttSubscriber) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return nil
}

func (s *mqttSubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.subscriptions = make(map[string]*mqttSubscription)
	s.mu.Unlock()

	s.client.Disconnect(mqttDisconnectQuiesce)
	return nil
}
