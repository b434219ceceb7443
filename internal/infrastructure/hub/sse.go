package hub

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
)

const defaultKeepAliveInterval = 30 * time.Second

// SSEConnection implements Connection as a server-sent events stream. It is
// push-only: clients cannot send control messages over it.
type SSEConnection struct {
	out       *outbox
	keepAlive time.Duration
}

var _ Connection = (*SSEConnection)(nil)

// NewSSEConnection creates a connection bound to the request context, so it
// closes when the client goes away. Stream must be called to deliver events.
func NewSSEConnection(ctx context.Context, bufferSize int, keepAlive time.Duration) *SSEConnection {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAliveInterval
	}
	return &SSEConnection{
		out:       newOutbox(ctx, bufferSize),
		keepAlive: keepAlive,
	}
}

func (c *SSEConnection) Type() string {
	return "sse"
}

func (c *SSEConnection) Send(payload []byte) error {
	return c.out.push(payload)
}

func (c *SSEConnection) Close() error {
	c.out.shut()
	return nil
}

func (c *SSEConnection) IsClosed() bool {
	return c.out.isClosed() || c.out.ctx.Err() != nil
}

func (c *SSEConnection) Context() context.Context {
	return c.out.ctx
}

// Stream writes queued events to w until the connection closes or a write
// fails. It must run on the goroutine that owns w.
func (c *SSEConnection) Stream(w http.ResponseWriter) error {
	defer c.Close()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no") // For nginx
	w.WriteHeader(http.StatusOK)
	flush(w)

	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.out.queue:
			if err := sse.Encode(w, sse.Event{Data: string(payload)}); err != nil {
				return err
			}
			flush(w)

		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return err
			}
			flush(w)

		case <-c.out.ctx.Done():
			return nil
		}
	}
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
