package bus

import (
	"context"
	"sync"

	"iot-notification-service/internal/infrastructure/logger"
)

const memoryQueueSize = 256

// Memory is an in-process broker. Every connection opened from the same
// Memory shares its channels, which makes it usable for single-process
// deployments and for tests.
type Memory struct {
	subscribers map[string]map[*memorySubscriber]struct{}
	mu          sync.RWMutex

	logger logger.Logger
}

var _ Driver = (*Memory)(nil)

func NewMemory(log logger.Logger) *Memory {
	return &Memory{
		subscribers: make(map[string]map[*memorySubscriber]struct{}),
		logger:      log.WithField("component", "bus.memory"),
	}
}

func (m *Memory) Name() string {
	return "memory"
}

func (m *Memory) NewPublisher(ctx context.Context) (Publisher, error) {
	return &memoryPublisher{broker: m}, nil
}

func (m *Memory) NewSubscriber(ctx context.Context) (Subscriber, error) {
	s := &memorySubscriber{
		broker: m,
		queue:  make(chan Message, memoryQueueSize),
		done:   make(chan struct{}),
	}
	return s, nil
}

// publish fans payload out to every subscriber of channel and returns how
// many received it. A full subscriber queue drops the message for that
// subscriber, as a lagging Redis subscriber would.
func (m *Memory) publish(channel string, payload []byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	delivered := 0
	for s := range m.subscribers[channel] {
		if s.enqueue(Message{Channel: channel, Payload: payload}) {
			delivered++
		} else {
			m.logger.Warnf("Dropping message on %s for slow subscriber", channel)
		}
	}
	return delivered
}

func (m *Memory) attach(s *memorySubscriber, channels []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range channels {
		if m.subscribers[ch] == nil {
			m.subscribers[ch] = make(map[*memorySubscriber]struct{})
		}
		m.subscribers[ch][s] = struct{}{}
	}
}

func (m *Memory) detach(s *memorySubscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch, subs := range m.subscribers {
		delete(subs, s)
		if len(subs) == 0 {
			delete(m.subscribers, ch)
		}
	}
}

type memoryPublisher struct {
	broker *Memory

	closed bool
	mu     sync.RWMutex
}

func (p *memoryPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == "" {
		return ErrInvalidChannel
	}
	if err := p.Ping(ctx); err != nil {
		return err
	}

	// The payload is shared with every subscriber; copy it once so callers
	// may reuse their buffer.
	p.broker.publish(channel, append([]byte(nil), payload...))
	return nil
}

func (p *memoryPublisher) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

func (p *memoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type memorySubscriber struct {
	broker *Memory
	queue  chan Message
	done   chan struct{}

	handlers map[string]Handler
	started  bool
	closed   bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

func (s *memorySubscriber) Subscribe(ctx context.Context, handler Handler, channels ...string) error {
	if err := validateChannels(channels); err != nil {
		return err
	}
	if handler == nil {
		return ErrSubscribeFailed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.handlers == nil {
		s.handlers = make(map[string]Handler)
	}
	for _, ch := range channels {
		s.handlers[ch] = handler
	}
	if !s.started {
		s.started = true
		s.wg.Add(1)
		go s.dispatch()
	}
	s.mu.Unlock()

	s.broker.attach(s, channels)
	return nil
}

func (s *memorySubscriber) enqueue(msg Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

func (s *memorySubscriber) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case msg := <-s.queue:
			s.mu.RLock()
			handler := s.handlers[msg.Channel]
			s.mu.RUnlock()
			if handler != nil {
				safeHandle(s.broker.logger, handler, msg)
			}
		case <-s.done:
			return
		}
	}
}

func (s *memorySubscriber) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close detaches the subscriber and waits for an in-flight handler call to
// return. Queued messages are discarded.
func (s *memorySubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.broker.detach(s)
	s.wg.Wait()
	return nil
}
