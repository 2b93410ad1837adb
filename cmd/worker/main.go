// Command worker consumes pipeline events from Kafka and renders the images
// of newly imported SMARTS and newly found subset edges.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/SMARTSexplore/internal/app"
	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/config"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/SMARTSexplore/internal/interfaces/http"
	"github.com/turtacn/SMARTSexplore/internal/interfaces/http/handlers"
)

const defaultHealthPort = 8081

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: SMARTSX_* environment only)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port of the health and metrics endpoints")
	flag.Parse()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *healthPort, logger); err != nil {
		logger.Error("worker stopped with error", logging.Err(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, healthPort int, logger logging.Logger) error {
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka must be enabled for the worker")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	topics, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
	if err != nil {
		return err
	}
	err = topics.EnsureTopics(ctx, cfg.Kafka.TopicPrefix)
	topics.Close()
	if err != nil {
		return err
	}

	// The worker only renders; it never publishes pipeline events itself.
	a, err := app.New(ctx, cfg, logger, app.WithSource("worker"), app.WithoutEvents())
	if err != nil {
		return err
	}
	defer a.Close()

	consumer, err := kafka.NewConsumer(cfg.Kafka,
		[]string{ports.EventLibraryImported, ports.EventEdgesCalculated}, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()
	(&renderHandlers{smarts: a.SMARTS, logger: logger.Named("render")}).register(consumer)

	rc := httpserver.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(version, healthCheckers(a)...),
		Logger:        logger,
	}
	if a.Metrics != nil {
		rc.HTTPObserver = a.Metrics
		rc.MetricsPath = cfg.Metrics.Path
		rc.MetricsHandler = a.Collector.Handler()
	}
	srvCfg := cfg.Server
	srvCfg.Port = healthPort
	srv := httpserver.NewServer(srvCfg, httpserver.NewRouter(rc), logger)

	logger.Info("starting worker", logging.String("health_addr", srv.Addr()), logging.String("version", version))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })
	err = g.Wait()
	logger.Info("worker stopped")
	return err
}

func healthCheckers(a *app.App) []handlers.HealthChecker {
	checks := a.HealthChecks()
	out := make([]handlers.HealthChecker, 0, len(checks))
	for _, c := range checks {
		out = append(out, handlers.CheckFunc{Component: c.Name, Fn: c.Check})
	}
	return out
}
