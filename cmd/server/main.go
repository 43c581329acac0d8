// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wecassidy/T564/internal/config"
	"github.com/wecassidy/T564/internal/protocol"
	"github.com/wecassidy/T564/internal/routes"
	"github.com/wecassidy/T564/internal/store"
	"github.com/wecassidy/T564/internal/t564"
	"github.com/wecassidy/T564/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	conn       *protocol.SerialConnection
	mirror     *store.Store
	controller *t564.Controller
}

func main() {
	// Initialize application
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Start the application
	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Create service logger
	serviceLogger := utils.NewServiceLogger(logger, "t564-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	// Initialize components
	if err := app.initializeStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize mirror store: %w", err)
	}

	if err := app.initializeInstrument(); err != nil {
		return nil, fmt.Errorf("failed to initialize instrument: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeStore opens the mirror database
func (app *Application) initializeStore() error {
	if !app.config.Store.Enabled {
		app.logger.Info("Mirror store disabled")
		return nil
	}

	mirror, err := store.Open(app.config.Store.Path)
	if err != nil {
		return err
	}
	app.mirror = mirror

	app.logger.Info("Mirror store opened", zap.String("path", app.config.Store.Path))
	return nil
}

// initializeInstrument opens the serial link and runs the connect
// sequence against the pulse generator
func (app *Application) initializeInstrument() error {
	app.conn = protocol.NewSerialConnection(&app.config.Serial, app.logger)
	if err := app.conn.Open(); err != nil {
		return err
	}

	// A nil interface must stay nil when the store is disabled.
	var mirror t564.MirrorStore
	if app.mirror != nil {
		mirror = app.mirror
	}

	controller, err := t564.NewController(
		app.conn,
		mirror,
		app.config.Device.StartupFrequencyHz,
		app.logger,
	)
	if err != nil {
		app.conn.Close()
		return err
	}
	app.controller = controller

	app.logger.Info("Instrument initialized",
		zap.String("port", app.config.Serial.Port),
		zap.Float64("frequency_hz", controller.Frequency()),
	)
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	// Create router
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.conn,
		app.controller,
	)

	// Setup router with all routes
	router := routerManager.SetupRouter()

	// Create HTTP server
	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)

	return nil
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	// Create channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Perform graceful shutdown
	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "t564-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// Stop frame playback before dropping the link so the instrument is
	// not left free-running on the bench.
	if app.controller != nil {
		if err := app.controller.StopFrames(); err != nil {
			app.logger.Warn("Could not stop frame playback", zap.Error(err))
		}
	}

	// Close serial link
	if app.conn != nil {
		if err := app.conn.Close(); err != nil {
			app.logger.Error("Serial close error", zap.Error(err))
		} else {
			app.logger.Info("Serial link closed")
		}
	}

	// Close mirror store
	if app.mirror != nil {
		if err := app.mirror.Close(); err != nil {
			app.logger.Error("Mirror store close error", zap.Error(err))
		} else {
			app.logger.Info("Mirror store closed")
		}
	}

	// Flush logger
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

func (app *Application) Start() error {
	// Start server in goroutine
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	app.waitForShutdown()

	return nil
}
