package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"iot-notification-service/internal/infrastructure/config"
	"iot-notification-service/internal/infrastructure/logger"
)

// Redis opens Redis pub/sub connections. go-redis reconnects dropped
// connections on its own and restores PubSub subscriptions after a reconnect.
type Redis struct {
	options *redis.Options
	logger  logger.Logger
}

var _ Driver = (*Redis)(nil)

// NewRedis parses cfg.URL. No connection is made until a publisher or
// subscriber is requested.
func NewRedis(cfg config.RedisConfig, log logger.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %w", ErrConnectionFailed, err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	return &Redis{
		options: opts,
		logger:  log.WithFields(logger.Fields{"component": "bus.redis", "addr": opts.Addr}),
	}, nil
}

func (r *Redis) Name() string {
	return "redis"
}

func (r *Redis) NewPublisher(ctx context.Context) (Publisher, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Redis publisher connected")
	return &redisPublisher{client: client}, nil
}

func (r *Redis) NewSubscriber(ctx context.Context) (Subscriber, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Redis subscriber connected")
	return &redisSubscriber{client: client, logger: r.logger, done: make(chan struct{})}, nil
}

// connect opens a client and proves the server is reachable.
func (r *Redis) connect(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(r.options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return client, nil
}

type redisPublisher struct {
	client *redis.Client
}

func (p *redisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (p *redisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return nil
}

func (p *redisPublisher) Close() error {
	if err := p.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

// redisSubscriber multiplexes every subscribed channel over one PubSub
// connection and routes messages to the handler registered per channel.
type redisSubscriber struct {
	client *redis.Client
	logger logger.Logger

	pubsub   *redis.PubSub
	handlers map[string]Handler
	pending  map[string]chan struct{}
	done     chan struct{}
	closed   bool
	mu       sync.Mutex
	wg       sync.WaitGroup
}

func (s *redisSubscriber) Subscribe(ctx context.Context, handler Handler, channels ...string) error {
	if err := validateChannels(channels); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.pubsub == nil {
		defer s.mu.Unlock()
		return s.open(ctx, handler, channels)
	}

	waits := make([]chan struct{}, 0, len(channels))
	for _, ch := range channels {
		s.handlers[ch] = handler
		confirmed := make(chan struct{})
		s.pending[ch] = confirmed
		waits = append(waits, confirmed)
	}
	pubsub := s.pubsub
	s.mu.Unlock()

	if err := pubsub.Subscribe(ctx, channels...); err != nil {
		s.forget(channels)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	// Confirmations arrive through the delivery goroutine.
	for _, confirmed := range waits {
		select {
		case <-confirmed:
		case <-ctx.Done():
			s.forget(channels)
			return fmt.Errorf("%w: %w", ErrSubscribeFailed, ctx.Err())
		case <-s.done:
			return ErrClosed
		}
	}

	s.logger.WithField("channels", channels).Info("Subscribed to Redis channels")
	return nil
}

// open creates the PubSub connection and starts the delivery goroutine.
// Called with s.mu held.
func (s *redisSubscriber) open(ctx context.Context, handler Handler, channels []string) error {
	pubsub := s.client.Subscribe(ctx, channels...)
	// Wait for the confirmation so nothing published afterwards is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	s.pubsub = pubsub
	s.handlers = make(map[string]Handler)
	s.pending = make(map[string]chan struct{})
	for _, ch := range channels {
		s.handlers[ch] = handler
	}

	msgs := pubsub.ChannelWithSubscriptions()
	s.wg.Add(1)
	go s.deliver(msgs)

	s.logger.WithField("channels", channels).Info("Subscribed to Redis channels")
	return nil
}

func (s *redisSubscriber) deliver(msgs <-chan interface{}) {
	defer s.wg.Done()

	for m := range msgs {
		switch m := m.(type) {
		case *redis.Subscription:
			if m.Kind != "subscribe" {
				continue
			}
			s.mu.Lock()
			if confirmed, ok := s.pending[m.Channel]; ok {
				close(confirmed)
				delete(s.pending, m.Channel)
			}
			s.mu.Unlock()

		case *redis.Message:
			s.mu.Lock()
			handler := s.handlers[m.Channel]
			s.mu.Unlock()
			if handler != nil {
				safeHandle(s.logger, handler, Message{Channel: m.Channel, Payload: []byte(m.Payload)})
			}
		}
	}
}

// forget drops handlers whose subscription was not confirmed.
func (s *redisSubscriber) forget(channels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		delete(s.handlers, ch)
		delete(s.pending, ch)
	}
}

// Ping checks the subscription connection once one exists, and the client
// before that.
func (s *redisSubscriber) Ping(ctx context.Context) error {
	s.mu.Lock()
	pubsub := s.pubsub
	s.mu.Unlock()

	var err error
	if pubsub != nil {
		err = pubsub.Ping(ctx)
	} else {
		err = s.client.Ping(ctx).Err()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return nil
}

// Close unsubscribes, waits for the delivery goroutine and closes the client.
func (s *redisSubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	pubsub := s.pubsub
	s.pubsub = nil
	s.mu.Unlock()

	var errs []error
	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()

	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
