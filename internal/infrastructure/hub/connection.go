package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"iot-notification-service/internal/infrastructure/logger"
)

const (
	defaultSendBufferSize = 256
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 4096
)

// outbox is the bounded per-connection queue shared by the transports. A
// single writer goroutine drains it, which keeps writes to one client ordered.
type outbox struct {
	queue chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex
}

func newOutbox(parent context.Context, size int) *outbox {
	if size <= 0 {
		size = defaultSendBufferSize
	}
	ctx, cancel := context.WithCancel(parent)
	return &outbox{
		queue:  make(chan []byte, size),
		ctx:    ctx,
		cancel: cancel,
	}
}

// push never blocks: a full queue drops the payload.
func (o *outbox) push(payload []byte) error {
	o.closedMu.RLock()
	defer o.closedMu.RUnlock()

	if o.closed {
		return ErrConnectionClosed
	}

	select {
	case o.queue <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// shut marks the outbox closed and reports whether this call did it.
func (o *outbox) shut() bool {
	o.closedMu.Lock()
	defer o.closedMu.Unlock()

	if o.closed {
		return false
	}
	o.closed = true
	o.cancel()
	return true
}

func (o *outbox) isClosed() bool {
	o.closedMu.RLock()
	defer o.closedMu.RUnlock()
	return o.closed
}

// WebSocketOptions tunes a WebSocketConnection. Zero values take defaults.
type WebSocketOptions struct {
	SendBufferSize int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
}

func (o WebSocketOptions) withDefaults() WebSocketOptions {
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = defaultSendBufferSize
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	return o
}

// WebSocketConnection implements Connection over a gorilla websocket.
type WebSocketConnection struct {
	conn   *websocket.Conn
	out    *outbox
	opts   WebSocketOptions
	logger logger.Logger

	closeOnce sync.Once
}

var _ Connection = (*WebSocketConnection)(nil)

// NewWebSocketConnection wraps an upgraded socket and starts its write pump.
// The caller runs ReadLoop on its own goroutine.
func NewWebSocketConnection(
	conn *websocket.Conn,
	log logger.Logger,
	opts WebSocketOptions,
) *WebSocketConnection {
	opts = opts.withDefaults()

	wsConn := &WebSocketConnection{
		conn:   conn,
		out:    newOutbox(context.Background(), opts.SendBufferSize),
		opts:   opts,
		logger: log.WithField("remote_addr", conn.RemoteAddr().String()),
	}

	go wsConn.writePump()

	return wsConn
}

func (c *WebSocketConnection) Type() string {
	return "websocket"
}

func (c *WebSocketConnection) Send(payload []byte) error {
	return c.out.push(payload)
}

// Close sends a close frame and tears down the socket. Safe to call more
// than once and from any goroutine.
func (c *WebSocketConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.out.shut()

		// WriteControl may run concurrently with the write pump.
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteWait),
		)
		err = c.conn.Close()
	})
	return err
}

func (c *WebSocketConnection) IsClosed() bool {
	return c.out.isClosed()
}

func (c *WebSocketConnection) Context() context.Context {
	return c.out.ctx
}

// ReadLoop reads frames until the peer goes away, passing every text frame
// to handle. It closes the connection before returning.
func (c *WebSocketConnection) ReadLoop(handle func(data []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) && !c.IsClosed() {
				c.logger.Warnf("WebSocket read error: %v", err)
			}
			return
		}

		// Any frame from the peer proves it is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		switch messageType {
		case websocket.TextMessage:
			handle(data)
		case websocket.BinaryMessage:
			c.logger.Debugf("Ignoring binary message of length %d", len(data))
		}
	}
}

// writePump is the only goroutine writing data frames to the socket.
func (c *WebSocketConnection) writePump() {
	// Ping well before the peer's pong deadline expires.
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.out.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !c.IsClosed() {
					c.logger.Warnf("Failed to write message: %v", err)
				}
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.out.ctx.Done():
			return
		}
	}
}
