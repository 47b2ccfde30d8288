package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/notification-engine/internal/config"
	"github.com/smartdevs17/notification-engine/internal/engine"
	"github.com/smartdevs17/notification-engine/internal/gateway"
	"github.com/smartdevs17/notification-engine/internal/metrics"
	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/internal/server"
	"github.com/smartdevs17/notification-engine/internal/storage"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the notification engine components together
type Application struct {
	config     *config.Config
	logger     *logrus.Logger
	storage    storage.Storage
	gateways   *gateway.Manager
	dispatcher *engine.Dispatcher
	processor  *engine.Processor
	metrics    *metrics.Manager
	server     *server.HTTPServer
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.gateways = gateway.NewManager(&app.config.Email)

	if app.config.Server.EnableMetrics {
		app.metrics = metrics.NewManager()
	}

	var pm *metrics.PrometheusMetrics
	if app.metrics != nil {
		pm = app.metrics.GetPrometheusMetrics()
	}
	app.dispatcher = engine.NewDispatcher(app.storage, &app.config.Dispatch, pm)
	app.processor = engine.NewProcessor(app.storage, app.gateways, &app.config.Queue, app.config.Dispatch.AuditEnabled, pm)

	app.server = server.NewHTTPServer(
		&app.config.Server,
		app.storage,
		app.dispatcher,
		app.processor,
		app.gateways,
		app.metrics,
		AppVersion,
	)

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	app.logger.WithField("type", app.config.Storage.Type).Info("Initializing storage layer")

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             app.config.Storage.Type,
		ConnectionString: app.config.Storage.ConnectionString,
		MaxConnections:   app.config.Storage.MaxConnections,
		MaxIdleTime:      app.config.Storage.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.storage = store
	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting notification engine")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	go app.processingLoop()

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"poll_interval":  app.config.Queue.PollInterval.String(),
	}).Info("Notification engine started successfully")

	return nil
}

// processingLoop runs queue passes on the configured interval. Delivery
// polling rides the same ticker when enabled.
func (app *Application) processingLoop() {
	ticker := time.NewTicker(app.config.Queue.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.processor.ProcessPass(app.ctx); err != nil {
				app.logger.WithError(err).Error("Queue processing pass failed")
			}

			if app.config.Queue.EnablePolling {
				if _, _, err := app.processor.PollDeliveries(app.ctx); err != nil {
					app.logger.WithError(err).Warn("Delivery status polling failed")
				}
			}
		}
	}
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping notification engine")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.Info("Notification engine stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "notifier",
	Short:   "CRM notification and automation engine",
	Long:    `A multi-tenant notification engine: workflow-driven dispatch over email, SMS, WhatsApp, Viber and push gateways with templated content, per-user channel preferences and a persistent retry queue.`,
	Version: AppVersion,
	RunE:    runNotifier,
}

// runNotifier is the main command to run the notification engine
func runNotifier(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	return app.Stop()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("notification-engine %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Queue workers: %d\n", cfg.Queue.Workers)
		fmt.Printf("Poll interval: %s\n", cfg.Queue.PollInterval)

		return nil
	},
}

// processCmd runs a single queue processing pass and exits; the cron-style
// alternative to the built-in polling loop
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one queue processing pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		store, err := storage.NewStorage(&storage.StorageConfig{
			Type:             cfg.Storage.Type,
			ConnectionString: cfg.Storage.ConnectionString,
			MaxConnections:   cfg.Storage.MaxConnections,
			MaxIdleTime:      cfg.Storage.MaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(); err != nil {
			return fmt.Errorf("failed to run storage migrations: %w", err)
		}

		gateways := gateway.NewManager(&cfg.Email)
		processor := engine.NewProcessor(store, gateways, &cfg.Queue, cfg.Dispatch.AuditEnabled, nil)

		result, err := processor.ProcessPass(cmd.Context())
		if err != nil {
			return fmt.Errorf("processing pass failed: %w", err)
		}

		fmt.Printf("Processed: %d, sent: %d, failed: %d, retried: %d\n",
			result.Processed, result.Sent, result.Failed, result.Retried)
		return nil
	},
}

// testCmd sends a probe through a configured gateway, bypassing the queue
var testCmd = &cobra.Command{
	Use:   "test <gateway-id>",
	Short: "Test gateway connectivity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gatewayID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid gateway id: %s", args[0])
		}
		tenantID, err := cmd.Flags().GetInt64("tenant")
		if err != nil || tenantID <= 0 {
			return fmt.Errorf("a positive --tenant id is required")
		}

		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		store, err := storage.NewStorage(&storage.StorageConfig{
			Type:             cfg.Storage.Type,
			ConnectionString: cfg.Storage.ConnectionString,
			MaxConnections:   cfg.Storage.MaxConnections,
			MaxIdleTime:      cfg.Storage.MaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()

		gw, err := store.GetGateway(cmd.Context(), models.Scope(tenantID), gatewayID)
		if err != nil {
			return fmt.Errorf("failed to load gateway %d: %w", gatewayID, err)
		}

		sender, err := gateway.NewManager(&cfg.Email).SenderFor(gw)
		if err != nil {
			return fmt.Errorf("failed to build sender for gateway %q: %w", gw.Name, err)
		}
		if err := sender.Test(cmd.Context()); err != nil {
			return fmt.Errorf("gateway test failed: %w", err)
		}

		fmt.Printf("Gateway %q (%s/%s) is reachable\n", gw.Name, gw.Type, gw.Provider)
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)

	testCmd.Flags().Int64("tenant", 0, "tenant id owning the gateway")
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
