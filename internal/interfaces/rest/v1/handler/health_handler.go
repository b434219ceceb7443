package handler

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"

	"iot-notification-service/internal/infrastructure/bridge"
	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
)

const (
	serviceName        = "notification-service"
	healthCheckTimeout = 2 * time.Second
)

type StatsProvider interface {
	Stats() hub.Stats
}

type BusStatus interface {
	Driver() string
	State() bridge.State
	Healthy(ctx context.Context) error
}

type HealthHandler struct {
	stats  StatsProvider
	bus    BusStatus
	logger logger.Logger
}

type HealthResponse struct {
	Status          string    `json:"status"`
	Service         string    `json:"service"`
	Timestamp       string    `json:"timestamp"`
	ConnectionCount int       `json:"connectionCount"`
	WebSocket       hub.Stats `json:"websocket"`
	Bus             BusHealth `json:"bus"`
	Process         *Process  `json:"process,omitempty"`
}

type BusHealth struct {
	Driver  string `json:"driver"`
	State   string `json:"state"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Process describes the service process itself.
type Process struct {
	PID        int     `json:"pid"`
	Goroutines int     `json:"goroutines"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Uptime     string  `json:"uptime"`
}

func NewHealthHandler(stats StatsProvider, bus BusStatus, logger logger.Logger) *HealthHandler {
	return &HealthHandler{
		stats:  stats,
		bus:    bus,
		logger: logger.WithField("handler", "health"),
	}
}

// Health handles GET /health. It answers 503 when the bus is unusable so
// orchestrators can restart the process.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	stats := h.stats.Stats()
	resp := HealthResponse{
		Status:          "healthy",
		Service:         serviceName,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		ConnectionCount: stats.ConnectionCount,
		WebSocket:       stats,
		Bus: BusHealth{
			Driver:  h.bus.Driver(),
			State:   h.bus.State().String(),
			Healthy: true,
		},
		Process: processHealth(ctx),
	}

	status := http.StatusOK
	if err := h.bus.Healthy(ctx); err != nil {
		h.logger.Warnf("Bus health check failed: %v", err)
		resp.Status = "degraded"
		resp.Bus.Healthy = false
		resp.Bus.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, resp)
}

// processHealth returns nil when the process table cannot be read.
func processHealth(ctx context.Context) *Process {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil
	}

	info := &Process{
		PID:        os.Getpid(),
		Goroutines: runtime.NumGoroutine(),
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = cpu
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		info.Uptime = time.Since(time.UnixMilli(created)).Round(time.Second).String()
	}
	return info
}
