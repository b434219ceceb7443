package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"iot-notification-service/internal/infrastructure/config"
)

// Server is a component started and stopped by the application lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type HTTPServer struct {
	handler http.Handler
	cfg     config.ServerConfig

	srv   *http.Server
	addr  net.Addr
	ready chan struct{}
	mu    sync.Mutex
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(handler http.Handler, cfg config.ServerConfig) *HTTPServer {
	srv := &HTTPServer{
		handler: handler,
		cfg:     cfg,
		ready:   make(chan struct{}),
	}
	return srv
}

// Start listens on the configured address and serves until Stop is called.
// A clean shutdown returns nil.
func (h *HTTPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.srv = &http.Server{
		Handler:      h.handler,
		ReadTimeout:  h.cfg.ReadTimeout,
		WriteTimeout: h.cfg.WriteTimeout,
		IdleTimeout:  h.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	h.addr = listener.Addr()
	srv := h.srv
	h.mu.Unlock()
	close(h.ready)

	var eg errgroup.Group
	eg.Go(func() error {
		err := srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

// Addr blocks until the server is listening and returns the bound address.
func (h *HTTPServer) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-h.ready:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	srv := h.srv
	h.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ShutdownTimeout is the grace period Stop callers should allow.
func (h *HTTPServer) ShutdownTimeout() time.Duration {
	if h.cfg.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return h.cfg.ShutdownTimeout
}
