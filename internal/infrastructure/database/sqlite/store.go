// Package sqlite implements store.Store on an embedded SQLite database
// through gorm, for single-user deployments and tests.
package sqlite

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// MemoryPath selects a private in-memory database.
const MemoryPath = ":memory:"

const batchSize = 500

// Store is a gorm-backed store.Store.
type Store struct {
	db     *gorm.DB
	logger logging.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and migrates the schema.
// Foreign keys are enabled on every connection.
func Open(path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open sqlite database").WithDetail(path)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open sqlite database")
	}
	// One connection serializes writers and keeps an in-memory database alive.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(allModels...); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to migrate sqlite schema")
	}

	log.Info("opened SQLite store", logging.String("path", path))
	return &Store{db: db, logger: log.Named("store")}, nil
}

func dsn(path string) string {
	if path == "" || path == MemoryPath {
		return "file::memory:?_foreign_keys=on"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if strings.HasPrefix(path, "file:") {
		return path + sep + "_foreign_keys=on"
	}
	return "file:" + (&url.URL{Path: path}).EscapedPath() + sep + "_foreign_keys=on"
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(ctx, &gormTx{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return mapError(err, "failed to commit transaction")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "database health check failed")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "database health check failed")
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormTx implements store.Tx on one gorm transaction.
type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) ResetAll(ctx context.Context) error {
	for i := len(allModels) - 1; i >= 0; i-- {
		if err := t.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(allModels[i]).Error; err != nil {
			return mapError(err, "failed to reset database")
		}
	}
	var seq int64
	if err := t.db.Raw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'`).Scan(&seq).Error; err != nil {
		return mapError(err, "failed to reset database")
	}
	if seq > 0 {
		if err := t.db.Exec(`DELETE FROM sqlite_sequence`).Error; err != nil {
			return mapError(err, "failed to reset id sequences")
		}
	}
	return nil
}

func mapError(err error, msg string) error {
	switch {
	case stderrors.Is(err, gorm.ErrDuplicatedKey):
		return errors.Wrap(err, errors.ErrCodeConflict, msg)
	case stderrors.Is(err, gorm.ErrForeignKeyViolated):
		return errors.Wrap(err, errors.ErrCodeEdgeInvariant, msg)
	}
	var sqlErr sqlite3.Error
	if stderrors.As(err, &sqlErr) {
		switch sqlErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return errors.Wrap(err, errors.ErrCodeConflict, msg)
		case sqlite3.ErrConstraintForeignKey, sqlite3.ErrConstraintCheck:
			return errors.Wrap(err, errors.ErrCodeEdgeInvariant, msg)
		}
	}
	return errors.Wrap(err, errors.ErrCodeDatabaseError, msg)
}

func countRows(db *gorm.DB, model interface{}, what string) (int64, error) {
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		return 0, mapError(err, fmt.Sprintf("failed to count %s", what))
	}
	return n, nil
}
