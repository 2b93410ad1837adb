package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/SMARTSexplore/internal/domain/molecule"
	"github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/database/postgres"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

type StoreTestSuite struct {
	suite.Suite
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)
	s.store = NewStore(postgres.NewConnectionWithDB(s.db, nil), logging.NewNopLogger())
}

func (s *StoreTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *StoreTestSuite) inTx(fn func(ctx context.Context, tx store.Tx) error) error {
	return s.store.InTx(context.Background(), fn)
}

func (s *StoreTestSuite) TestInTx_Commits() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM smarts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	s.mock.ExpectCommit()

	var n int64
	err := s.inTx(func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.CountSMARTS(ctx)
		return err
	})
	s.NoError(err)
	s.Equal(int64(4), n)
}

func (s *StoreTestSuite) TestInTx_RollsBackAndReturnsError() {
	sentinel := errors.New(errors.ErrCodeInternal, "boom")
	s.mock.ExpectBegin()
	s.mock.ExpectRollback()

	err := s.inTx(func(ctx context.Context, tx store.Tx) error { return sentinel })
	s.ErrorIs(err, sentinel)
}

func (s *StoreTestSuite) TestInTx_RollsBackOnPanic() {
	s.mock.ExpectBegin()
	s.mock.ExpectRollback()

	s.Panics(func() {
		_ = s.inTx(func(ctx context.Context, tx store.Tx) error { panic("bad") })
	})
}

func (s *StoreTestSuite) TestInTx_BeginFails() {
	s.mock.ExpectBegin().WillReturnError(fmt.Errorf("no connection"))

	err := s.inTx(func(ctx context.Context, tx store.Tx) error { return nil })
	s.True(errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func (s *StoreTestSuite) TestCreateSMARTS_SetsIDs() {
	items := []*smarts.SMARTS{
		{Name: "a", Pattern: "[#6]", Library: "lib"},
		{Name: "b", Pattern: "[#7]", Library: "lib"},
	}
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`INSERT INTO smarts \(name, pattern, library\) VALUES \(\$1, \$2, \$3\), \(\$4, \$5, \$6\) RETURNING id`).
		WithArgs("a", "[#6]", "lib", "b", "[#7]", "lib").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7).AddRow(8))
	s.mock.ExpectCommit()

	s.NoError(s.inTx(func(ctx context.Context, tx store.Tx) error { return tx.CreateSMARTS(ctx, items) }))
	s.Equal(int64(7), items[0].ID)
	s.Equal(int64(8), items[1].ID)
}

func (s *StoreTestSuite) TestCreateSMARTS_MissingIDs() {
	items := []*smarts.SMARTS{{Pattern: "A"}, {Pattern: "B"}}
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`INSERT INTO smarts`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	s.mock.ExpectRollback()

	err := s.inTx(func(ctx context.Context, tx store.Tx) error { return tx.CreateSMARTS(ctx, items) })
	s.True(errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func (s *StoreTestSuite) TestInsertMatches_Batches() {
	matches := make([]*molecule.Match, batchSize+1)
	first := sqlmock.NewRows([]string{"id"})
	for i := range matches {
		matches[i] = &molecule.Match{MoleculeID: int64(i + 1), SMARTSID: 1}
		if i < batchSize {
			first.AddRow(int64(i + 1))
		}
	}
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`INSERT INTO matches`).WillReturnRows(first)
	s.mock.ExpectQuery(`INSERT INTO matches \(molecule_id, smarts_id\) VALUES \(\$1, \$2\) RETURNING id`).
		WithArgs(int64(batchSize+1), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9000))
	s.mock.ExpectCommit()

	s.NoError(s.inTx(func(ctx context.Context, tx store.Tx) error { return tx.InsertMatches(ctx, matches) }))
	s.Equal(int64(1), matches[0].ID)
	s.Equal(int64(9000), matches[batchSize].ID)
}

func (s *StoreTestSuite) TestGetSMARTS_NotFound() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`FROM smarts WHERE id = \$1`).WithArgs(int64(42)).WillReturnError(sql.ErrNoRows)
	s.mock.ExpectRollback()

	err := s.inTx(func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetSMARTS(ctx, 42)
		return err
	})
	s.True(errors.IsCode(err, errors.ErrCodeSMARTSNotFound))
	s.True(errors.IsNotFound(err))
}

func (s *StoreTestSuite) TestListSMARTSByIDs_ArrayArgument() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`WHERE id = ANY\(\$1::bigint\[\]\) ORDER BY id`).
		WithArgs("{3,1}").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "pattern", "library"}).
			AddRow(1, "a", "A", "lib").
			AddRow(3, "c", "C", "lib"))
	s.mock.ExpectCommit()

	var got []*smarts.SMARTS
	s.NoError(s.inTx(func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.ListSMARTSByIDs(ctx, []int64{3, 1})
		return err
	}))
	s.Len(got, 2)
	s.Equal("C", got[1].Pattern)
}

func (s *StoreTestSuite) TestEdgePairs_UnsupportedMode() {
	s.mock.ExpectBegin()
	s.mock.ExpectRollback()

	err := s.inTx(func(ctx context.Context, tx store.Tx) error {
		_, err := tx.EdgePairs(ctx, smarts.ModeIdentical)
		return err
	})
	s.True(errors.IsCode(err, errors.ErrCodeModeNotImplemented))
}

func (s *StoreTestSuite) TestInsertDirectedEdges_DuplicateIsConflict() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`INSERT INTO directed_edges`).
		WithArgs(int64(1), int64(2), 0.5, 0.25).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "directed_edges_from_id_to_id_key"})
	s.mock.ExpectRollback()

	err := s.inTx(func(ctx context.Context, tx store.Tx) error {
		return tx.InsertDirectedEdges(ctx, []*smarts.DirectedEdge{{FromID: 1, ToID: 2, MCSSim: 0.5, SPSim: 0.25}})
	})
	s.True(errors.IsCode(err, errors.ErrCodeConflict))
}

func (s *StoreTestSuite) TestInsertUndirectedEdges_UnknownEndpoint() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`INSERT INTO undirected_edges`).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	s.mock.ExpectRollback()

	err := s.inTx(func(ctx context.Context, tx store.Tx) error {
		return tx.InsertUndirectedEdges(ctx, []*smarts.UndirectedEdge{{LowID: 1, HighID: 99}})
	})
	s.True(errors.IsCode(err, errors.ErrCodeEdgeInvariant))
}

func (s *StoreTestSuite) TestListDirectedEdges_Range() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`WHERE spsim BETWEEN \$1 AND \$2 ORDER BY id`).
		WithArgs(0.2, 0.5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "from_id", "to_id", "mcssim", "spsim"}).
			AddRow(1, 2, 1, 0.1, 0.2).
			AddRow(2, 1, 2, 0.3, 0.5))
	s.mock.ExpectCommit()

	var got []*smarts.DirectedEdge
	s.NoError(s.inTx(func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.ListDirectedEdges(ctx, 0.2, 0.5)
		return err
	}))
	s.Require().Len(got, 2)
	s.Equal(smarts.Pair{A: 1, B: 2}, got[1].Pair())
}

func (s *StoreTestSuite) TestListSubsetEdges_AllWhenNoIDs() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`JOIN smarts o ON o.id = e.to_id ORDER BY e.id`).

		WillReturnRows(sqlmock.NewRows([]string{"id", "from_id", "to_id", "mcssim", "spsim", "pattern", "pattern"}).
			AddRow(5, 1, 2, 0.1, 0.2, "[#6]", "[#6][#7]"))
	s.mock.ExpectCommit()

	var got []*smarts.SubsetEdge
	s.NoError(s.inTx(func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.ListSubsetEdges(ctx, nil)
		return err
	}))
	s.Require().Len(got, 1)
	s.Equal("[#6][#7]", got[0].ToPattern)
}

func (s *StoreTestSuite) TestCreateSet_InsertsMolecules() {
	set := &molecule.MoleculeSet{
		Name:      "upload.smi",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Molecules: []*molecule.Molecule{{Pattern: "CCO", Name: "ethanol"}, {Pattern: "C"}},
	}
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`INSERT INTO molecule_sets \(name, created_at\) VALUES \(\$1, \$2\) RETURNING id`).
		WithArgs("upload.smi", set.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	s.mock.ExpectQuery(`INSERT INTO molecules \(set_id, name, pattern\)`).
		WithArgs(int64(3), "ethanol", "CCO", int64(3), "", "C").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10).AddRow(11))
	s.mock.ExpectCommit()

	s.NoError(s.inTx(func(ctx context.Context, tx store.Tx) error { return tx.CreateSet(ctx, set) }))
	s.Equal(int64(3), set.ID)
	s.Equal([]int64{10, 11}, set.MoleculeIDs())
	s.Equal(int64(3), set.Molecules[1].SetID)
}

func (s *StoreTestSuite) TestGetSet_NotFound() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`FROM molecule_sets WHERE id = \$1`).WithArgs(int64(8)).WillReturnError(sql.ErrNoRows)
	s.mock.ExpectRollback()

	err := s.inTx(func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetSet(ctx, 8)
		return err
	})
	s.True(errors.IsCode(err, errors.ErrCodeMoleculeSetNotFound))
}

func (s *StoreTestSuite) TestDeleteSet_NothingDeleted() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`DELETE FROM molecule_sets WHERE id = \$1`).WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectRollback()

	err := s.inTx(func(ctx context.Context, tx store.Tx) error { return tx.DeleteSet(ctx, 8) })
	s.True(errors.IsCode(err, errors.ErrCodeMoleculeSetNotFound))
}

func (s *StoreTestSuite) TestListMatches_Ordered() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(`ORDER BY m.id, x.smarts_id`).WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "smarts_id"}).
			AddRow(4, "ethanol", 1).
			AddRow(4, "ethanol", 3))
	s.mock.ExpectCommit()

	var got []molecule.MatchView
	s.NoError(s.inTx(func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.ListMatches(ctx, 2)
		return err
	}))
	s.Equal([]molecule.MatchView{
		{MoleculeID: 4, MoleculeName: "ethanol", SMARTSID: 1},
		{MoleculeID: 4, MoleculeName: "ethanol", SMARTSID: 3},
	}, got)
}

func (s *StoreTestSuite) TestResetAll() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`TRUNCATE matches, molecules, molecule_sets, directed_edges, undirected_edges, smarts RESTART IDENTITY`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectCommit()

	s.NoError(s.inTx(func(ctx context.Context, tx store.Tx) error { return tx.ResetAll(ctx) }))
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{"unique", &pgconn.PgError{Code: pgUniqueViolation}, errors.ErrCodeConflict},
		{"foreign key", &pgconn.PgError{Code: pgForeignKeyViolation}, errors.ErrCodeEdgeInvariant},
		{"check", &pgconn.PgError{Code: pgCheckViolation}, errors.ErrCodeEdgeInvariant},
		{"other pg", &pgconn.PgError{Code: "42P01"}, errors.ErrCodeDatabaseError},
		{"plain", fmt.Errorf("connection reset"), errors.ErrCodeDatabaseError},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation}), errors.ErrCodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.IsCode(mapError(tt.err, "op"), tt.want))
		})
	}
}
