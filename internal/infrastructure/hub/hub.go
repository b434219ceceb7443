// Package hub keeps the registry of live client connections and delivers
// outbound events to them.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/infrastructure/metrics"
)

// Hub is the connection registry. All methods are safe for concurrent use.
//
// Subscriptions sent by clients are recorded but not used for routing:
// Broadcast always reaches every connection.
type Hub struct {
	connections   map[string]*entry
	pending       map[string]struct{}
	connectionsMu sync.RWMutex

	logger  logger.Logger
	metrics *metrics.Metrics

	now   func() time.Time
	newID func() string
}

type entry struct {
	conn        Connection
	connectedAt time.Time
	rooms       map[string]struct{}
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	ConnectionCount   int `json:"connectionCount"`
	SubscriptionCount int `json:"subscriptionCount"`
}

// ConnectionInfo describes one registered connection.
type ConnectionInfo struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	ConnectedAt time.Time `json:"connectedAt"`
	Rooms       []string  `json:"rooms"`
}

type Option func(*Hub)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(h *Hub) { h.newID = newID }
}

// New creates an empty Hub.
func New(log logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		connections: make(map[string]*entry),
		pending:     make(map[string]struct{}),
		logger:      log.WithField("component", "hub"),
		now:         time.Now,
	}
	h.newID = h.generateClientID
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Accept registers conn under a fresh id and sends it the welcome event.
// The welcome is queued before the connection becomes visible to Broadcast,
// so it is always the first message the client sees. The id is reserved
// while the welcome is sent so the registry lock is not held across Send.
func (h *Hub) Accept(conn Connection) string {
	h.connectionsMu.Lock()
	id := h.newID()
	for h.idTaken(id) {
		id = h.newID()
	}
	h.pending[id] = struct{}{}
	h.connectionsMu.Unlock()

	if payload, err := ConnectionEvent(id).Marshal(); err == nil {
		if err := conn.Send(payload); err != nil {
			h.logger.Warnf("Failed to send welcome to client %s: %v", id, err)
		}
	}

	h.connectionsMu.Lock()
	if _, reserved := h.pending[id]; !reserved {
		// Shutdown ran while the welcome was being sent.
		h.connectionsMu.Unlock()
		if err := conn.Close(); err != nil {
			h.logger.Debugf("Closing client %s: %v", id, err)
		}
		return id
	}
	delete(h.pending, id)
	h.connections[id] = &entry{
		conn:        conn,
		connectedAt: h.now(),
		rooms:       make(map[string]struct{}),
	}
	total := len(h.connections)
	h.connectionsMu.Unlock()

	h.metrics.ConnectionOpened(conn.Type())
	h.logger.WithFields(logger.Fields{
		"client_id":     id,
		"transport":     conn.Type(),
		"total_clients": total,
	}).Info("Client connected")

	return id
}

// idTaken reports whether id is registered or reserved. Called with
// connectionsMu held.
func (h *Hub) idTaken(id string) bool {
	if _, ok := h.connections[id]; ok {
		return true
	}
	_, ok := h.pending[id]
	return ok
}

// Remove drops the connection registered under id and closes it. Removing an
// unknown id is a no-op.
func (h *Hub) Remove(id string) {
	h.connectionsMu.Lock()
	e, exists := h.connections[id]
	if exists {
		delete(h.connections, id)
	}
	total := len(h.connections)
	h.connectionsMu.Unlock()

	if !exists {
		return
	}

	if err := e.conn.Close(); err != nil {
		h.logger.Debugf("Closing client %s: %v", id, err)
	}
	h.metrics.ConnectionClosed()
	h.logger.WithFields(logger.Fields{
		"client_id":     id,
		"total_clients": total,
	}).Info("Client disconnected")
}

// Unicast delivers event to a single connection. It reports whether the
// payload was handed to the transport; unknown or closed ids are ignored.
func (h *Hub) Unicast(id string, event *OutboundEvent) bool {
	h.connectionsMu.RLock()
	e, exists := h.connections[id]
	h.connectionsMu.RUnlock()

	if !exists || e.conn.IsClosed() {
		return false
	}

	payload, err := event.Marshal()
	if err != nil {
		h.logger.Errorf("Failed to serialize event for client %s: %v", id, err)
		return false
	}

	if err := e.conn.Send(payload); err != nil {
		h.recordSendFailure(id, err)
		return false
	}
	return true
}

// Broadcast serializes event once and hands the same bytes to every open
// connection. It returns the number of delivery attempts. Failed sends are
// skipped; the failing connection stays registered until its transport
// reports the close.
func (h *Hub) Broadcast(event *OutboundEvent) int {
	payload, err := event.Marshal()
	if err != nil {
		h.logger.Errorf("Failed to serialize broadcast: %v", err)
		return 0
	}

	type target struct {
		id   string
		conn Connection
	}

	h.connectionsMu.RLock()
	targets := make([]target, 0, len(h.connections))
	for id, e := range h.connections {
		targets = append(targets, target{id: id, conn: e.conn})
	}
	h.connectionsMu.RUnlock()

	attempts := 0
	for _, t := range targets {
		if t.conn.IsClosed() {
			continue
		}
		attempts++
		if err := t.conn.Send(payload); err != nil {
			h.recordSendFailure(t.id, err)
		}
	}

	h.metrics.Broadcast(attempts)
	h.logger.WithFields(logger.Fields{
		"type":       event.Type,
		"recipients": attempts,
	}).Info("Message broadcasted")

	return attempts
}

// HandleInbound processes one raw message received from the client id.
// Malformed or unknown messages are logged and dropped.
func (h *Hub) HandleInbound(id string, raw []byte) {
	receivedAt := h.now()

	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.metrics.InboundMessage("invalid")
		h.logger.Warnf("Dropping malformed message from client %s: %v", id, err)
		return
	}

	log := h.logger.WithFields(logger.Fields{"client_id": id, "type": msg.Type})

	switch msg.Type {
	case InboundPing:
		h.metrics.InboundMessage(msg.Type)
		now := h.now()
		if now.Before(receivedAt) {
			now = receivedAt
		}
		h.Unicast(id, PongEvent(now))

	case InboundSubscribe:
		h.metrics.InboundMessage(msg.Type)
		if h.subscribe(id, msg.Room) {
			log.WithField("room", msg.Room).Info("Client subscribed")
		}

	default:
		h.metrics.InboundMessage("unknown")
		log.Warn("Unknown message type")
	}
}

// subscribe records room intent for id. Broadcast does not consult it.
func (h *Hub) subscribe(id, room string) bool {
	h.connectionsMu.Lock()
	defer h.connectionsMu.Unlock()

	e, exists := h.connections[id]
	if !exists {
		return false
	}
	if room != "" {
		e.rooms[room] = struct{}{}
	}
	return true
}

func (h *Hub) Stats() Stats {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	stats := Stats{ConnectionCount: len(h.connections)}
	for _, e := range h.connections {
		stats.SubscriptionCount += len(e.rooms)
	}
	return stats
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()
	return len(h.connections)
}

// Connections returns a snapshot of the registered connections, oldest first.
func (h *Hub) Connections() []ConnectionInfo {
	h.connectionsMu.RLock()
	infos := make([]ConnectionInfo, 0, len(h.connections))
	for id, e := range h.connections {
		rooms := make([]string, 0, len(e.rooms))
		for room := range e.rooms {
			rooms = append(rooms, room)
		}
		sort.Strings(rooms)
		infos = append(infos, ConnectionInfo{
			ID:          id,
			Type:        e.conn.Type(),
			ConnectedAt: e.connectedAt,
			Rooms:       rooms,
		})
	}
	h.connectionsMu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Shutdown closes every connection and empties the registry.
func (h *Hub) Shutdown() {
	h.connectionsMu.Lock()
	connections := h.connections
	h.connections = make(map[string]*entry)
	h.pending = make(map[string]struct{})
	h.connectionsMu.Unlock()

	for id, e := range connections {
		if err := e.conn.Close(); err != nil {
			h.logger.Errorf("Failed to close connection %s: %v", id, err)
		}
	}
	h.metrics.ConnectionsReset()

	h.logger.Infof("Hub shut down, closed %d connections", len(connections))
}

func (h *Hub) recordSendFailure(id string, err error) {
	if errors.Is(err, ErrSendBufferFull) {
		h.metrics.SendDropped()
		h.logger.Warnf("Dropping message for slow client %s", id)
		return
	}
	h.logger.Debugf("Skipping client %s: %v", id, err)
}

// generateClientID returns client_<unix millis>_<random suffix>.
func (h *Hub) generateClientID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("client_%d_%s", h.now().UnixMilli(), suffix)
}
