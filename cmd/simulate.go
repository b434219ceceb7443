package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"iot-notification-service/internal/infrastructure/client"
	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/simulator"
)

func newSimulateCommand() *cobra.Command {
	var (
		serviceURL string
		devices    int
		interval   time.Duration
		duration   time.Duration
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate IoT devices publishing to a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if devices <= 0 {
				return errors.New("--devices must be positive")
			}
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}

			level, err := logger.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			lc := logger.NewDefaultConfig()
			lc.Level = level
			log := logger.NewLogrusLogger(lc)

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			c := client.New(serviceURL)
			if _, err := c.Health(ctx); err != nil {
				log.Warnf("Service health check failed, simulating anyway: %v", err)
			}

			return simulator.New(c, simulator.NewDevices(devices, interval), log).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&serviceURL, "url", defaultServiceURL, "base URL of the notification service")
	cmd.Flags().IntVar(&devices, "devices", 5, "number of simulated devices")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "metrics interval per device")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}
