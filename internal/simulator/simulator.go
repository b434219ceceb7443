// Package simulator generates device traffic against a running notification
// service: each simulated device reports online, sends metrics on a fixed
// interval and reports offline when stopped.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/port/inbound"
)

type DeviceType string

const (
	DeviceSensor     DeviceType = "sensor"
	DeviceActuator   DeviceType = "actuator"
	DeviceGateway    DeviceType = "gateway"
	DeviceController DeviceType = "controller"
)

var deviceTypes = []DeviceType{DeviceSensor, DeviceActuator, DeviceGateway, DeviceController}

const (
	EventStatusChange = "status_change"
	EventMetrics      = "metrics"
)

// Publisher is satisfied by *client.Client.
type Publisher interface {
	PublishDeviceEvent(ctx context.Context, cmd inbound.PublishDeviceEventCommand) error
}

type Device struct {
	ID       string
	Name     string
	Type     DeviceType
	Interval time.Duration
}

// NewDevices builds n devices, cycling through the device types.
func NewDevices(n int, interval time.Duration) []Device {
	title := cases.Title(language.English)
	counts := make(map[DeviceType]int)

	devices := make([]Device, 0, n)
	for i := 0; i < n; i++ {
		t := deviceTypes[i%len(deviceTypes)]
		counts[t]++
		devices = append(devices, Device{
			ID:       fmt.Sprintf("device-%03d", i+1),
			Name:     fmt.Sprintf("%s %d", title.String(string(t)), counts[t]),
			Type:     t,
			Interval: interval,
		})
	}
	return devices
}

type Simulator struct {
	publisher Publisher
	devices   []Device
	logger    logger.Logger
	now       func() time.Time
}

func New(publisher Publisher, devices []Device, log logger.Logger) *Simulator {
	return &Simulator{
		publisher: publisher,
		devices:   devices,
		logger:    log.WithField("component", "simulator"),
		now:       time.Now,
	}
}

// Run drives every device until ctx is done. Publish failures are logged and
// the device keeps reporting.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Infof("Starting %d simulated devices", len(s.devices))

	eg, ctx := errgroup.WithContext(ctx)
	for _, d := range s.devices {
		eg.Go(func() error {
			s.runDevice(ctx, d)
			return nil
		})
	}
	return eg.Wait()
}

func (s *Simulator) runDevice(ctx context.Context, d Device) {
	log := s.logger.WithFields(logger.Fields{"device_id": d.ID, "name": d.Name})

	s.publish(ctx, log, d, EventStatusChange, map[string]any{"status": "online"})

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.publish(ctx, log, d, EventMetrics, s.Metrics(d.Type))
		case <-ctx.Done():
			// The run context is gone; report offline on a short-lived one.
			offlineCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.publish(offlineCtx, log, d, EventStatusChange, map[string]any{"status": "offline"})
			cancel()
			return
		}
	}
}

func (s *Simulator) publish(ctx context.Context, log logger.Logger, d Device, eventType string, data map[string]any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Errorf("Failed to encode %s event: %v", eventType, err)
		return
	}

	err = s.publisher.PublishDeviceEvent(ctx, inbound.PublishDeviceEventCommand{
		Type:     eventType,
		DeviceID: d.ID,
		Data:     raw,
	})
	if err != nil {
		log.Warnf("Failed to publish %s event: %v", eventType, err)
		return
	}
	log.WithField("type", eventType).Debug("Event published")
}

// Metrics returns one random reading shaped for the device type. It is safe
// for concurrent use.
func (s *Simulator) Metrics(t DeviceType) map[string]any {
	m := map[string]any{
		"timestamp":      s.now().UTC().Format(time.RFC3339),
		"battery":        rand.IntN(100),
		"signalStrength": rand.IntN(100),
	}

	switch t {
	case DeviceSensor:
		m["temperature"] = 20 + rand.Float64()*15
		m["humidity"] = 40 + rand.Float64()*40
		m["pressure"] = 990 + rand.Float64()*30
	case DeviceActuator:
		state := "off"
		if rand.Float64() > 0.5 {
			state = "on"
		}
		m["state"] = state
		m["powerConsumption"] = rand.Float64() * 100
	case DeviceGateway:
		m["connectedDevices"] = rand.IntN(20)
		m["dataRate"] = rand.Float64() * 1000
	case DeviceController:
		m["cpuUsage"] = rand.Float64() * 100
		m["memoryUsage"] = rand.Float64() * 100
		m["activeProcesses"] = rand.IntN(50)
	}

	return m
}
