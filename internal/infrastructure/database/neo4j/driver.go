// Package neo4j exports the SMARTS subset graph to a Neo4j database.
package neo4j

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/SMARTSexplore/internal/config"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// Result abstracts neo4j.ResultWithContext.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Transaction abstracts neo4j.ManagedTransaction.
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

type internalSession interface {
	ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error)
	Close(ctx context.Context) error
}

type internalDriver interface {
	VerifyConnectivity(ctx context.Context) error
	NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession
	Close(ctx context.Context) error
}

// The official driver types are wrapped so tests can replace sessions.
type resultAdapter struct{ neo4j.ResultWithContext }

type txAdapter struct{ tx neo4j.ManagedTransaction }

func (t txAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return resultAdapter{res}, nil
}

type sessionAdapter struct{ s neo4j.SessionWithContext }

func (a sessionAdapter) ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return a.s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) { return work(txAdapter{tx}) })
}

func (a sessionAdapter) ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return a.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) { return work(txAdapter{tx}) })
}

func (a sessionAdapter) Close(ctx context.Context) error { return a.s.Close(ctx) }

type driverAdapter struct{ d neo4j.DriverWithContext }

func (a driverAdapter) VerifyConnectivity(ctx context.Context) error { return a.d.VerifyConnectivity(ctx) }

func (a driverAdapter) NewSession(ctx context.Context, cfg neo4j.SessionConfig) internalSession {
	return sessionAdapter{a.d.NewSession(ctx, cfg)}
}

func (a driverAdapter) Close(ctx context.Context) error { return a.d.Close(ctx) }

// Driver runs graph export transactions against one Neo4j database.
type Driver struct {
	driver internalDriver
	cfg    config.Neo4jConfig
	logger logging.Logger
	once   sync.Once
}

// NewDriver connects to cfg.URI and verifies connectivity.
func NewDriver(cfg config.Neo4jConfig, log logging.Logger) (*Driver, error) {
	if cfg.URI == "" {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "neo4j uri is not configured")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = 10
		c.MaxConnectionLifetime = time.Hour
		c.ConnectionAcquisitionTimeout = 30 * time.Second
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create neo4j driver")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(context.Background())
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to neo4j").WithDetail(cfg.URI)
	}

	log.Info("connected to Neo4j", logging.String("uri", cfg.URI), logging.String("database", cfg.Database))
	return &Driver{driver: driverAdapter{driver}, cfg: cfg, logger: log.Named("neo4j")}, nil
}

func (d *Driver) session(ctx context.Context, mode neo4j.AccessMode) internalSession {
	db := d.cfg.Database
	if db == "" {
		db = "neo4j"
	}
	return d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: db, AccessMode: mode})
}

func (d *Driver) ExecuteRead(ctx context.Context, work func(Transaction) (interface{}, error)) (interface{}, error) {
	session := d.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, work)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j read failed")
	}
	return result, nil
}

func (d *Driver) ExecuteWrite(ctx context.Context, work func(Transaction) (interface{}, error)) (interface{}, error) {
	session := d.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		d.logger.Error("neo4j write failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j write failed")
	}
	return result, nil
}

// HealthCheck verifies connectivity and runs a trivial read.
func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j connectivity check failed")
	}

	_, err := d.ExecuteRead(ctx, func(tx Transaction) (interface{}, error) {
		result, err := tx.Run(ctx, "RETURN 1 AS health", nil)
		if err != nil {
			return nil, err
		}
		return ExtractSingleRecord(ctx, result, func(r *neo4j.Record) (any, error) { return r.Values[0], nil })
	})
	return err
}

func (d *Driver) Close() error {
	var err error
	d.once.Do(func() {
		if err = d.driver.Close(context.Background()); err != nil {
			d.logger.Warn("neo4j close failed", logging.Err(err))
		}
	})
	return err
}

// ExtractSingleRecord maps the first record of result, or fails with
// ErrCodeNotFound when there is none.
func ExtractSingleRecord[T any](ctx context.Context, result Result, mapper func(*neo4j.Record) (T, error)) (T, error) {
	var zero T
	if result.Next(ctx) {
		return mapper(result.Record())
	}
	if err := result.Err(); err != nil {
		return zero, err
	}
	return zero, errors.New(errors.ErrCodeNotFound, "no record found")
}
