// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/unitforge/internal/artifacts"
	"github.com/tildaslashalef/unitforge/internal/config"
	"github.com/tildaslashalef/unitforge/internal/database"
	"github.com/tildaslashalef/unitforge/internal/generation"
	"github.com/tildaslashalef/unitforge/internal/llm"
	"github.com/tildaslashalef/unitforge/internal/loggy"
	"github.com/tildaslashalef/unitforge/internal/metrics"
	"github.com/tildaslashalef/unitforge/internal/parser"
	"github.com/tildaslashalef/unitforge/internal/runner"
	"github.com/tildaslashalef/unitforge/internal/server"
)

// App represents the application instance with its dependencies
type App struct {
	Config      *config.Config
	Version     string
	Logger      *loggy.Logger
	LLM         *llm.Factory
	Metrics     *metrics.Metrics
	Artifacts   *artifacts.Store
	Uploads     *parser.Service
	Generations *generation.Service

	mirror *artifacts.GCSMirror
}

// New initializes a new application instance with all its dependencies
func New(ctx context.Context, version string) (*App, error) {
	cfg, err := OpenDatabase("", "")
	if err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", version,
		"log_level", cfg.Logging.Level,
		"provider", cfg.LLM.DefaultProvider,
	)

	if err := database.RunMigrations(); err != nil {
		_ = database.CloseDB()
		return nil, err
	}

	app, err := initServices(ctx, cfg, version)
	if err != nil {
		_ = database.CloseDB()
		return nil, err
	}

	loggy.Info("Application initialized successfully")
	return app, nil
}

// OpenDatabase loads the configuration, starts logging and opens the database
// without applying migrations. Empty arguments use the default locations.
func OpenDatabase(configDir, configFile string) (*config.Config, error) {
	cfg, err := initConfig(configDir, configFile)
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	if err := database.InitDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, nil
}

// initConfig loads and sets up the application configuration
func initConfig(configDir, configFile string) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(configDir, configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func initServices(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	logger := loggy.GetGlobalLogger()

	db, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	repo := generation.NewSQLRepository(db, logger, cfg.Database.QueryTimeout)

	// A provider that cannot be built is not fatal; generate calls fail with
	// llm.ErrNotInitialized until one is configured.
	factory := llm.NewFactory(ctx, cfg, logger)
	if available := factory.Available(); len(available) == 0 {
		loggy.Warn("No LLM provider configured, generation is disabled")
	} else {
		loggy.Info("LLM providers available", "providers", available, "default", cfg.LLM.DefaultProvider)
	}

	var (
		mirror    *artifacts.GCSMirror
		storeSink artifacts.Mirror
	)
	if cfg.Storage.Bucket != "" {
		mirror, err = artifacts.NewGCSMirror(ctx, cfg.Storage.Bucket, cfg.Storage.Prefix, cfg.Storage.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize artifact mirror: %w", err)
		}
		storeSink = mirror
		loggy.Info("Mirroring artifacts to Cloud Storage", "bucket", cfg.Storage.Bucket, "prefix", cfg.Storage.Prefix)
	}

	store, err := artifacts.NewStore(cfg.Artifacts.Root, storeSink, logger)
	if err != nil {
		if mirror != nil {
			_ = mirror.Close()
		}
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	testRunner := runner.New(runner.Config{
		MakePath:       cfg.Runner.MakePath,
		LcovPath:       cfg.Runner.LcovPath,
		GenhtmlPath:    cfg.Runner.GenhtmlPath,
		Timeout:        cfg.Runner.Timeout,
		MaxOutputBytes: cfg.Runner.MaxOutputBytes,
	}, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	generations := generation.NewService(repo, factory, store, testRunner, m, generationConfig(cfg), logger)

	return &App{
		Config:      cfg,
		Version:     version,
		Logger:      logger,
		LLM:         factory,
		Metrics:     m,
		Artifacts:   store,
		Uploads:     parser.NewService(logger, 0),
		Generations: generations,
		mirror:      mirror,
	}, nil
}

// generationConfig picks the model settings of the default provider
func generationConfig(cfg *config.Config) generation.Config {
	gc := generation.Config{Timeout: cfg.LLM.RequestTimeout}
	switch cfg.LLM.DefaultProvider {
	case config.ProviderVertex:
		t := cfg.Vertex.Temperature
		gc.Model = cfg.Vertex.Model
		gc.MaxTokens = cfg.Vertex.MaxTokens
		gc.Temperature = &t
	default:
		t := cfg.Gemini.Temperature
		gc.Model = cfg.Gemini.Model
		gc.MaxTokens = cfg.Gemini.MaxTokens
		gc.Temperature = &t
	}
	return gc
}

// NewServer builds the HTTP API over the application services
func (app *App) NewServer() *server.Server {
	return server.New(
		app.Config.Server,
		app.Config.Tracing.ServiceName,
		app.Generations,
		app.Uploads,
		app.Metrics,
		app.Logger,
	)
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	if app.mirror != nil {
		if err := app.mirror.Close(); err != nil {
			loggy.Error("Error closing artifact mirror", "error", err)
		}
	}

	if err := database.CloseDB(); err != nil {
		loggy.Error("Error closing database connection", "error", err)
	}

	return nil
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
