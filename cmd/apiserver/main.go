// Command apiserver serves the SMARTSexplore HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/SMARTSexplore/internal/app"
	"github.com/turtacn/SMARTSexplore/internal/config"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/SMARTSexplore/internal/interfaces/http"
	"github.com/turtacn/SMARTSexplore/internal/interfaces/http/handlers"
	"github.com/turtacn/SMARTSexplore/internal/interfaces/http/middleware"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: SMARTSX_* environment only)")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("apiserver stopped with error", logging.Err(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.WithSource("apiserver"))
	if err != nil {
		return err
	}
	defer a.Close()

	if configPath != "" {
		err := config.Watch(configPath, func(*config.Config) {
			logger.Info("configuration file changed, restart to apply", logging.String("path", configPath))
		}, func(err error) {
			logger.Warn("configuration file changed but is invalid", logging.Err(err))
		})
		if err != nil {
			logger.Warn("cannot watch configuration file", logging.Err(err))
		}
	}

	rc := httpserver.RouterConfig{
		SMARTSHandler:   handlers.NewSMARTSHandler(a.SMARTS, logger),
		MoleculeHandler: handlers.NewMoleculeHandler(a.Molecules, cfg.Upload.MaxBodyBytes, logger),
		HealthHandler:   handlers.NewHealthHandler(version, healthCheckers(a)...),
		Compress:        cfg.Server.Compress,
		Logger:          logger,
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.CORSOrigins
		rc.CORS = &cors
	}
	if a.Metrics != nil {
		rc.HTTPObserver = a.Metrics
		rc.MetricsPath = cfg.Metrics.Path
		rc.MetricsHandler = a.Collector.Handler()
	}

	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(rc), logger)
	logger.Info("starting apiserver", logging.String("addr", srv.Addr()), logging.String("version", version))
	return srv.Run(ctx)
}
