package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"iot-notification-service/internal/application/facade"
	"iot-notification-service/internal/infrastructure/bridge"
	"iot-notification-service/internal/infrastructure/bus"
	"iot-notification-service/internal/infrastructure/config"
	"iot-notification-service/internal/infrastructure/hub"
	"iot-notification-service/internal/infrastructure/logger"
	"iot-notification-service/internal/infrastructure/metrics"
	"iot-notification-service/internal/infrastructure/server"
)

func newServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP, WebSocket and SSE server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFile)
		},
	}
}

func runServe(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	log := logger.NewLogrusLogger(cfg.LoggerConfig())
	m := metrics.New()
	hubInstance := hub.New(log, hub.WithMetrics(m))

	driver, err := bus.Open(cfg.Bus, log)
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}

	eventBridge := bridge.New(driver, hubInstance, cfg.Bus.Channels, log, bridge.WithMetrics(m))
	if err := startBridge(ctx, eventBridge); err != nil {
		if closeErr := eventBridge.Close(); closeErr != nil {
			log.Errorf("failed to close bridge: %v", closeErr)
		}
		log.Errorf("failed to start bridge: %v", err)
		return err
	}
	log.Infof("Bridge ready on %s (%s, %s)", driver.Name(), cfg.Bus.Channels.DeviceEvents, cfg.Bus.Channels.Notifications)

	useCase := facade.NewNotificationApplicationService(eventBridge, hubInstance, log)
	router := InitRouter(routerDeps{
		cfg:     cfg,
		logger:  log,
		hub:     hubInstance,
		bridge:  eventBridge,
		useCase: useCase,
		metrics: m,
	})

	httpSrv := server.NewHTTPServer(router, cfg.Server)
	app := newApplication(log, httpSrv, hubInstance, eventBridge)
	app.configFile = cfg.File

	log.Infof("Notification service listening on %s", cfg.Server.Addr)
	if err := app.Run(ctx); err != nil {
		log.Errorf("failed to run application: %v", err)
		return err
	}
	log.Info("Notification service stopped")
	return nil
}

func startBridge(ctx context.Context, b *bridge.Bridge) error {
	if err := b.Initialize(ctx); err != nil {
		return err
	}
	return b.SubscribeAll(ctx)
}

type Application struct {
	logger  logger.Logger
	httpSrv *server.HTTPServer
	hub     *hub.Hub
	bridge  *bridge.Bridge

	// configFile is watched for log level changes when set.
	configFile string
}

func newApplication(
	logger logger.Logger,
	httpSrv *server.HTTPServer,
	hubInstance *hub.Hub,
	eventBridge *bridge.Bridge,
) *Application {
	return &Application{
		logger:  logger.WithField("app", "notification-service"),
		httpSrv: httpSrv,
		hub:     hubInstance,
		bridge:  eventBridge,
	}
}

// Run serves until ctx is done, then closes client connections, the bus
// connections and finally the HTTP server.
func (app *Application) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(egCtx)
	})

	if app.configFile != "" {
		eg.Go(func() error {
			err := config.Watch(egCtx, app.configFile, app.logger, app.applyConfig)
			if err != nil {
				app.logger.Warnf("Config watch disabled: %v", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()
		app.logger.Info("Shutting down")

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.httpSrv.ShutdownTimeout(),
		)
		defer cancel()

		app.hub.Shutdown()

		if err := app.bridge.Close(); err != nil {
			app.logger.Errorf("failed to close bridge: %v", err)
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}

// applyConfig applies the settings that can change without a restart.
func (app *Application) applyConfig(cfg *config.Config) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return
	}
	app.logger.SetLevel(level)
	app.logger.Infof("Log level set to %s", cfg.Log.Level)
}
