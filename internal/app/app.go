// Package app assembles the services and their infrastructure from a
// Config. The CLI, the API server and the worker share it so every binary
// sees the same store, image backend and optional redis, kafka and neo4j
// integrations.
package app

import (
	"context"
	"fmt"

	appmolecule "github.com/turtacn/SMARTSexplore/internal/application/molecule"
	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	appsmarts "github.com/turtacn/SMARTSexplore/internal/application/smarts"
	"github.com/turtacn/SMARTSexplore/internal/config"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/database/neo4j"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/database/postgres"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/database/redis"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/database/sqlite"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/process"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/storage"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/storage/minio"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// App owns every long-lived client. Close releases them in reverse order of
// creation.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Store     store.Store
	Images    ports.ImagePort
	Events    ports.EventPort
	Metrics   *prometheus.AppMetrics
	Collector prometheus.MetricsCollector
	SMARTS    appsmarts.Service
	Molecules appmolecule.Service

	pg      *postgres.Connection
	cache   ports.CachePort
	checks  []HealthCheck
	closers []func() error
}

// Option adjusts how New assembles the App.
type Option func(*options)

type options struct {
	source     string
	runner     process.Runner
	skipEvents bool
}

// WithSource sets the source field of published event envelopes.
func WithSource(source string) Option {
	return func(o *options) { o.source = source }
}

// WithRunner replaces the os/exec runner, e.g. with a scripted one in tests.
func WithRunner(r process.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithoutEvents keeps the App from publishing, even when kafka is enabled.
func WithoutEvents() Option {
	return func(o *options) { o.skipEvents = true }
}

// New connects to everything cfg enables. On error the clients opened so far
// are closed again.
func New(ctx context.Context, cfg *config.Config, log logging.Logger, opts ...Option) (_ *App, err error) {
	o := options{source: "smartsexplore"}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	a := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err = a.initMetrics(); err != nil {
		return nil, err
	}
	if err = a.initStore(); err != nil {
		return nil, err
	}
	if err = a.initImages(ctx); err != nil {
		return nil, err
	}

	lock, cache, err := a.initRedis()
	if err != nil {
		return nil, err
	}
	a.cache = cache

	a.Events = ports.NewNopEvents()
	if cfg.Kafka.Enabled && !o.skipEvents {
		producer, perr := kafka.NewProducer(cfg.Kafka, o.source, log)
		if perr != nil {
			return nil, perr
		}
		a.Events = producer
		a.closers = append(a.closers, producer.Close)
	}

	var exporter ports.GraphExportPort
	if cfg.Neo4j.URI != "" {
		driver, derr := neo4j.NewDriver(cfg.Neo4j, log)
		if derr != nil {
			return nil, derr
		}
		a.closers = append(a.closers, driver.Close)
		a.checks = append(a.checks, HealthCheck{Name: "neo4j", Check: driver.HealthCheck})
		exporter = neo4j.NewGraphExporter(driver, log)
	}

	runner := o.runner
	if runner == nil {
		runnerOpts := []process.Option{process.WithDefaultTimeout(cfg.Tools.Timeout)}
		if a.Metrics != nil {
			runnerOpts = append(runnerOpts, process.WithObserver(a.Metrics))
		}
		runner = process.NewExecRunner(log, runnerOpts...)
	}

	var metrics ports.MetricsPort = ports.NewNopMetrics()
	if a.Metrics != nil {
		metrics = a.Metrics
	}

	a.SMARTS = appsmarts.NewService(appsmarts.ConfigFrom(cfg.Tools, cfg.Redis.CacheTTL), appsmarts.Deps{
		Store:    a.Store,
		Runner:   runner,
		Logger:   log,
		Lock:     lock,
		Cache:    cache,
		Events:   a.Events,
		Metrics:  metrics,
		Images:   a.Images,
		Exporter: exporter,
	})
	a.Molecules = appmolecule.NewService(appmolecule.ConfigFrom(cfg.Tools, cfg.Upload), appmolecule.Deps{
		Store:   a.Store,
		Runner:  runner,
		Logger:  log,
		Events:  a.Events,
		Metrics: metrics,
		Images:  a.Images,
	})

	log.Info("application assembled",
		logging.String("database", cfg.Database.Driver),
		logging.Bool("redis", cfg.Redis.Enabled),
		logging.Bool("kafka", cfg.Kafka.Enabled && !o.skipEvents),
		logging.Bool("minio", cfg.MinIO.Enabled),
		logging.Bool("neo4j", exporter != nil),
	)
	return a, nil
}

func (a *App) initMetrics() error {
	if !a.Config.Metrics.Enabled {
		return nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            a.Config.Metrics.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, a.Logger)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create metrics collector")
	}
	a.Collector = collector
	a.Metrics = prometheus.NewAppMetrics(collector)
	return nil
}

func (a *App) initStore() error {
	db := a.Config.Database
	switch db.Driver {
	case config.DriverPostgres:
		conn, err := postgres.NewConnection(db, a.Logger)
		if err != nil {
			return err
		}
		a.pg = conn
		if db.AutoMigrate {
			m, err := postgres.NewMigrator(conn, db.MigrationPath, a.Logger)
			if err != nil {
				conn.Close()
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrator")
			}
			if err := m.Up(); err != nil {
				conn.Close()
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to migrate database")
			}
		}
		a.Store = repositories.NewStore(conn, a.Logger)
	case config.DriverSQLite:
		s, err := sqlite.Open(db.SQLitePath, a.Logger)
		if err != nil {
			return err
		}
		a.Store = s
	default:
		return errors.Newf(errors.ErrCodeValidation, "unknown database driver %q", db.Driver)
	}
	a.closers = append(a.closers, a.Store.Close)
	a.checks = append(a.checks, HealthCheck{Name: "store", Check: a.Store.Ping})
	return nil
}

func (a *App) initImages(ctx context.Context) error {
	if !a.Config.MinIO.Enabled {
		fs, err := storage.NewFileStore(a.Config.Images.RootDir)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to open image directory").
				WithDetail(a.Config.Images.RootDir)
		}
		a.Images = fs
		return nil
	}
	client, err := minio.NewMinIOClient(a.Config.MinIO, a.Logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)
	if err := client.EnsureBucket(ctx); err != nil {
		return err
	}
	a.Images = minio.NewImageStore(client, a.Logger)
	a.checks = append(a.checks, HealthCheck{Name: "minio", Check: client.Ping})
	return nil
}

func (a *App) initRedis() (ports.LockPort, ports.CachePort, error) {
	rc := a.Config.Redis
	if !rc.Enabled {
		return ports.NewNopLock(), ports.NewNopCache(), nil
	}
	client, err := redis.NewClient(rc, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.checks = append(a.checks, HealthCheck{Name: "redis", Check: client.Ping})

	lock := redis.NewPipelineLock(client, a.Logger, redis.WithLockTTL(rc.LockTTL), redis.WithLockWait(rc.LockWait))
	cache := redis.NewCache(client, a.Logger, redis.WithDefaultTTL(rc.CacheTTL))
	return lock, cache, nil
}

// HealthChecks lists the probes of every connected dependency.
func (a *App) HealthChecks() []HealthCheck {
	return append([]HealthCheck(nil), a.checks...)
}

// Migrator returns the schema migrator. Only PostgreSQL has one; the SQLite
// schema is migrated when the store opens.
func (a *App) Migrator() (*postgres.Migrator, error) {
	if a.pg == nil {
		return nil, errors.Newf(errors.ErrCodeFeatureDisabled,
			"migrations are only available for the %s driver", config.DriverPostgres)
	}
	return postgres.NewMigrator(a.pg, a.Config.Database.MigrationPath, a.Logger)
}

// ResetAll deletes every row of the store together with the rendered images
// and cached graphs.
func (a *App) ResetAll(ctx context.Context) error {
	if err := a.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.ResetAll(ctx)
	}); err != nil {
		return err
	}
	for _, prefix := range []string{ports.SMARTSImagePrefix, ports.SubsetImagePrefix, ports.MoleculeImagePrefix} {
		if err := a.Images.DeletePrefix(ctx, prefix); err != nil {
			return err
		}
	}
	if _, err := a.cache.DeleteByPrefix(ctx, ""); err != nil {
		a.Logger.Warn("failed to clear cache", logging.Err(err))
	}
	a.Logger.Info("database reset")
	return nil
}

// Close releases every client. It is safe to call on a partially built App.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	if first != nil {
		return fmt.Errorf("close: %w", first)
	}
	return nil
}
