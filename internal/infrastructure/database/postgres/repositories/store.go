// Package repositories implements store.Store on PostgreSQL through
// database/sql.
package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/database/postgres"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// PostgreSQL SQLSTATE codes mapped to domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// batchSize bounds the rows of one multi-row INSERT.
const batchSize = 500

// queryExecutor abstracts sql.DB and sql.Tx.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// Store runs every unit of work in one database transaction.
type Store struct {
	conn   *postgres.Connection
	logger logging.Logger
}

var _ store.Store = (*Store)(nil)

func NewStore(conn *postgres.Connection, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Store{conn: conn, logger: log.Named("store")}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	sqlTx, err := s.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &pgTx{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", logging.Err(rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapError(err, "failed to commit transaction")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// pgTx implements store.Tx on one sql.Tx.
type pgTx struct {
	q queryExecutor
}

func (t *pgTx) ResetAll(ctx context.Context) error {
	_, err := t.q.ExecContext(ctx, `TRUNCATE matches, molecules, molecule_sets, directed_edges, undirected_edges, smarts RESTART IDENTITY`)
	if err != nil {
		return mapError(err, "failed to reset database")
	}
	return nil
}

// mapError classifies driver errors: unique violations become Conflict and
// broken references or checks become EdgeInvariant.
func mapError(err error, msg string) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Wrap(err, errors.ErrCodeConflict, msg).WithDetail(pgErr.ConstraintName)
		case pgForeignKeyViolation, pgCheckViolation:
			return errors.Wrap(err, errors.ErrCodeEdgeInvariant, msg).WithDetail(pgErr.ConstraintName)
		}
	}
	return errors.Wrap(err, errors.ErrCodeDatabaseError, msg)
}

// insertReturningIDs inserts n rows of cols columns with multi-row INSERTs
// of at most batchSize rows and passes each generated id to setID in row
// order. head is "INSERT INTO t (a, b)".
func insertReturningIDs(ctx context.Context, q queryExecutor, head string, cols, n int,
	row func(i int) []interface{}, setID func(i int, id int64)) error {
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}

		var sb strings.Builder
		sb.WriteString(head)
		sb.WriteString(" VALUES ")
		args := make([]interface{}, 0, (end-start)*cols)
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for c := 0; c < cols; c++ {
				if c > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "$%d", len(args)+c+1)
			}
			sb.WriteByte(')')
			args = append(args, row(i)...)
		}
		sb.WriteString(" RETURNING id")

		rows, err := q.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		i := start
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			if i < end {
				setID(i, id)
			}
			i++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		if i != end {
			return fmt.Errorf("insert returned %d ids for %d rows", i-start, end-start)
		}
	}
	return nil
}

func count(ctx context.Context, q queryExecutor, query, what string) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, mapError(err, "failed to count "+what)
	}
	return n, nil
}
