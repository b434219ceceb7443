package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/infrastructure/metrics"
)

type mockConnection struct {
	mu       sync.Mutex
	received [][]byte
	closed   bool
	sendErr  error

	ctx    context.Context
	cancel context.CancelFunc
}

func newMockConnection() *mockConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &mockConnection{ctx: ctx, cancel: cancel}
}

func (m *mockConnection) Type() string { return "mock" }

func (m *mockConnection) Send(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrConnectionClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, payload)
	return nil
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cancel()
	return nil
}

func (m *mockConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConnection) Context() context.Context { return m.ctx }

func (m *mockConnection) messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.received))
	copy(out, m.received)
	return out
}

// events decodes everything received after the welcome message.
func (m *mockConnection) events(t *testing.T) []map[string]any {
	t.Helper()
	msgs := m.messages()
	require.NotEmpty(t, msgs, "welcome message missing")

	out := make([]map[string]any, 0, len(msgs)-1)
	for _, raw := range msgs[1:] {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(raw, &ev))
		out = append(out, ev)
	}
	return out
}

func newTestHub(opts ...Option) *Hub {
	return New(logger.NewNop(), opts...)
}

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("client-%d", n)
	})
}

func TestHub_AcceptSendsWelcome(t *testing.T) {
	h := newTestHub()
	conn := newMockConnection()

	id := h.Accept(conn)
	require.NotEmpty(t, id)
	assert.Regexp(t, `^client_\d+_[0-9a-f]{12}$`, id)

	msgs := conn.messages()
	require.Len(t, msgs, 1)

	var welcome struct {
		Type string `json:"type"`
		Data struct {
			ClientID string `json:"clientId"`
			Message  string `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msgs[0], &welcome))
	assert.Equal(t, "connection", welcome.Type)
	assert.Equal(t, id, welcome.Data.ClientID)
	assert.Equal(t, "Connected to notification service", welcome.Data.Message)
}

func TestHub_AcceptGeneratesUniqueIDs(t *testing.T) {
	h := newTestHub()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := h.Accept(newMockConnection())
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 500, h.Stats().ConnectionCount)
}

func TestHub_AcceptRetriesOnCollision(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	h := newTestHub(WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))

	assert.Equal(t, "dup", h.Accept(newMockConnection()))
	assert.Equal(t, "fresh", h.Accept(newMockConnection()))
	assert.Equal(t, 2, h.Stats().ConnectionCount)
}

func TestHub_StatsTracksAcceptAndRemove(t *testing.T) {
	h := newTestHub()
	assert.Equal(t, 0, h.Stats().ConnectionCount)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, h.Accept(newMockConnection()))
	}
	assert.Equal(t, 5, h.Stats().ConnectionCount)

	h.Remove(ids[0])
	h.Remove(ids[1])
	assert.Equal(t, 3, h.Stats().ConnectionCount)

	// Idempotent, never negative.
	h.Remove(ids[0])
	h.Remove("unknown")
	assert.Equal(t, 3, h.Stats().ConnectionCount)

	for _, id := range ids {
		h.Remove(id)
	}
	assert.Equal(t, 0, h.Stats().ConnectionCount)
}

func TestHub_RemoveClosesConnection(t *testing.T) {
	h := newTestHub()
	conn := newMockConnection()
	id := h.Accept(conn)

	h.Remove(id)
	assert.True(t, conn.IsClosed())
}

func TestHub_BroadcastIdenticalBytes(t *testing.T) {
	h := newTestHub()
	conns := make([]*mockConnection, 4)
	for i := range conns {
		conns[i] = newMockConnection()
		h.Accept(conns[i])
	}

	attempts := h.Broadcast(&OutboundEvent{
		Type: EventNotificationSent,
		Data: map[string]any{"x": 1},
	})
	assert.Equal(t, 4, attempts)

	first := conns[0].messages()[1]
	assert.JSONEq(t, `{"type":"notification:sent","data":{"x":1}}`, string(first))
	for _, c := range conns {
		msgs := c.messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, first, msgs[1])
	}
}

func TestHub_BroadcastAfterRemove(t *testing.T) {
	h := newTestHub(sequentialIDs())
	a, b, c := newMockConnection(), newMockConnection(), newMockConnection()

	idA := h.Accept(a)
	idB := h.Accept(b)
	idC := h.Accept(c)
	require.Equal(t, []string{"client-1", "client-2", "client-3"}, []string{idA, idB, idC})

	h.Remove(idB)

	attempts := h.Broadcast(&OutboundEvent{Type: EventNotificationSent, Data: map[string]any{"x": 1}})
	assert.Equal(t, 2, attempts)

	assert.Len(t, a.events(t), 1)
	assert.Len(t, b.events(t), 0)
	assert.Len(t, c.events(t), 1)
}

func TestHub_BroadcastSkipsFailuresWithoutRemoving(t *testing.T) {
	m := metrics.New()
	h := newTestHub(WithMetrics(m))

	healthy := newMockConnection()
	full := newMockConnection()
	broken := newMockConnection()
	h.Accept(healthy)
	h.Accept(full)
	h.Accept(broken)

	full.mu.Lock()
	full.sendErr = ErrSendBufferFull
	full.mu.Unlock()
	broken.mu.Lock()
	broken.sendErr = errors.New("broken pipe")
	broken.mu.Unlock()

	attempts := h.Broadcast(&OutboundEvent{Type: EventDeviceStatusChange, Data: "x"})
	assert.Equal(t, 3, attempts)
	assert.Len(t, healthy.events(t), 1)

	// Only the close path prunes entries.
	assert.Equal(t, 3, h.Stats().ConnectionCount)
}

func TestHub_BroadcastSkipsClosedConnections(t *testing.T) {
	h := newTestHub()
	open := newMockConnection()
	closed := newMockConnection()
	h.Accept(open)
	h.Accept(closed)
	require.NoError(t, closed.Close())

	assert.Equal(t, 1, h.Broadcast(&OutboundEvent{Type: EventNotificationSent}))
}

func TestHub_BroadcastEmptyRegistry(t *testing.T) {
	h := newTestHub()
	assert.Equal(t, 0, h.Broadcast(&OutboundEvent{Type: EventNotificationSent}))
}

func TestHub_BroadcastUnserializable(t *testing.T) {
	h := newTestHub()
	conn := newMockConnection()
	h.Accept(conn)

	assert.Equal(t, 0, h.Broadcast(&OutboundEvent{Type: EventNotificationSent, Data: make(chan int)}))
	assert.Len(t, conn.events(t), 0)
}

func TestHub_Unicast(t *testing.T) {
	h := newTestHub()
	target := newMockConnection()
	other := newMockConnection()
	id := h.Accept(target)
	h.Accept(other)

	assert.True(t, h.Unicast(id, &OutboundEvent{Type: EventNotificationSent, Data: "hi"}))
	assert.Len(t, target.events(t), 1)
	assert.Len(t, other.events(t), 0)
}

func TestHub_UnicastUnknownIsNoop(t *testing.T) {
	h := newTestHub()
	other := newMockConnection()
	id := h.Accept(other)
	h.Remove(id)

	live := newMockConnection()
	h.Accept(live)

	assert.False(t, h.Unicast(id, &OutboundEvent{Type: EventPong}))
	assert.False(t, h.Unicast("never-seen", &OutboundEvent{Type: EventPong}))

	assert.Len(t, live.events(t), 0)
	assert.Equal(t, 1, h.Stats().ConnectionCount)
}

func TestHub_HandleInboundPing(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	h := newTestHub(WithClock(func() time.Time { return base }))

	pinger := newMockConnection()
	bystander := newMockConnection()
	id := h.Accept(pinger)
	h.Accept(bystander)

	h.HandleInbound(id, []byte(`{"type":"ping"}`))

	events := pinger.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, "pong", events[0]["type"])
	data := events[0]["data"].(map[string]any)
	assert.GreaterOrEqual(t, int64(data["timestamp"].(float64)), base.UnixMilli())

	assert.Len(t, bystander.events(t), 0)
}

func TestHub_HandleInboundPingRealClock(t *testing.T) {
	h := newTestHub()
	conn := newMockConnection()
	id := h.Accept(conn)

	before := time.Now().UnixMilli()
	h.HandleInbound(id, []byte(`{"type":"ping"}`))

	events := conn.events(t)
	require.Len(t, events, 1)
	data := events[0]["data"].(map[string]any)
	assert.GreaterOrEqual(t, int64(data["timestamp"].(float64)), before)
}

func TestHub_HandleInboundSubscribe(t *testing.T) {
	h := newTestHub()
	conn := newMockConnection()
	id := h.Accept(conn)

	h.HandleInbound(id, []byte(`{"type":"subscribe","room":"devices"}`))
	h.HandleInbound(id, []byte(`{"type":"subscribe","room":"alerts"}`))

	// No reply for subscribe.
	assert.Len(t, conn.events(t), 0)
	assert.Equal(t, 2, h.Stats().SubscriptionCount)

	infos := h.Connections()
	require.Len(t, infos, 1)
	assert.Equal(t, []string{"alerts", "devices"}, infos[0].Rooms)

	// Broadcast stays global.
	other := newMockConnection()
	h.Accept(other)
	assert.Equal(t, 2, h.Broadcast(&OutboundEvent{Type: EventNotificationSent}))
}

func TestHub_HandleInboundDropsBadInput(t *testing.T) {
	h := newTestHub()
	conn := newMockConnection()
	id := h.Accept(conn)

	inputs := []string{
		`not json`,
		`{"type":"dance"}`,
		`{}`,
		`[1,2,3]`,
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { h.HandleInbound(id, []byte(in)) })
	}

	assert.Len(t, conn.events(t), 0)
	assert.Equal(t, 1, h.Stats().ConnectionCount)
}

func TestHub_Shutdown(t *testing.T) {
	h := newTestHub()
	conns := []*mockConnection{newMockConnection(), newMockConnection()}
	for _, c := range conns {
		h.Accept(c)
	}

	h.Shutdown()

	assert.Equal(t, 0, h.Stats().ConnectionCount)
	for _, c := range conns {
		assert.True(t, c.IsClosed())
	}
}

func TestHub_ConcurrentOperations(t *testing.T) {
	h := newTestHub()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := h.Accept(newMockConnection())
				h.HandleInbound(id, []byte(`{"type":"ping"}`))
				h.Broadcast(&OutboundEvent{Type: EventNotificationSent, Data: i})
				_ = h.Stats()
				_ = h.Connections()
				if i%2 == 0 {
					h.Remove(id)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker/2, h.Stats().ConnectionCount)
}

// stalledConnection blocks its first Send until release is closed.
type stalledConnection struct {
	*mockConnection
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStalledConnection() *stalledConnection {
	return &stalledConnection{
		mockConnection: newMockConnection(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (s *stalledConnection) Send(payload []byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.mockConnection.Send(payload)
}

func TestHub_SlowWelcomeDoesNotBlockRegistry(t *testing.T) {
	h := newTestHub()
	other := newMockConnection()
	h.Accept(other)

	slow := newStalledConnection()
	accepted := make(chan string, 1)
	go func() { accepted <- h.Accept(slow) }()
	<-slow.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.Equal(t, 1, h.Stats().ConnectionCount)
		assert.Equal(t, 1, h.Broadcast(&OutboundEvent{Type: EventNotificationSent, Data: "early"}))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry blocked by a pending welcome")
	}

	close(slow.release)
	id := <-accepted
	assert.Equal(t, 2, h.Stats().ConnectionCount)

	// The broadcast sent during the welcome never reaches the new client.
	msgs := slow.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0]), id)
	assert.Len(t, other.events(t), 1)
}

func TestHub_ShutdownDuringWelcomeClosesConnection(t *testing.T) {
	h := newTestHub()
	slow := newStalledConnection()

	accepted := make(chan string, 1)
	go func() { accepted <- h.Accept(slow) }()
	<-slow.entered

	h.Shutdown()
	close(slow.release)
	<-accepted

	assert.True(t, slow.IsClosed())
	assert.Equal(t, 0, h.ConnectionCount())
}
