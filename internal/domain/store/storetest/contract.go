// Package storetest holds the behavioural contract every store.Store
// implementation must satisfy. Implementations call Run from their own tests
// with a factory returning an empty store.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SMARTSexplore/internal/domain/molecule"
	"github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) store.Store

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("SMARTS_CreateListGet", func(t *testing.T) { testSMARTS(t, newStore(t)) })
	t.Run("Rollback_DiscardsWrites", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("Edges_InsertPairsRange", func(t *testing.T) { testEdges(t, newStore(t)) })
	t.Run("Edges_UniqueKeys", func(t *testing.T) { testEdgeUniqueness(t, newStore(t)) })
	t.Run("MoleculeSet_Cascade", func(t *testing.T) { testMoleculeSets(t, newStore(t)) })
	t.Run("DeleteLibrary_Cascade", func(t *testing.T) { testDeleteLibrary(t, newStore(t)) })
	t.Run("Reset", func(t *testing.T) { testReset(t, newStore(t)) })
}

func inTx(t *testing.T, s store.Store, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), fn))
}

func seedSMARTS(t *testing.T, s store.Store, library string, patterns ...string) []*smarts.SMARTS {
	t.Helper()
	items := make([]*smarts.SMARTS, len(patterns))
	for i, p := range patterns {
		items[i] = &smarts.SMARTS{Name: "s-" + p, Pattern: p, Library: library}
	}
	inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateSMARTS(ctx, items) })
	return items
}

func seedSet(t *testing.T, s store.Store, patterns ...string) *molecule.MoleculeSet {
	t.Helper()
	mols := make([]*molecule.Molecule, len(patterns))
	for i, p := range patterns {
		mols[i] = &molecule.Molecule{Pattern: p, Name: "m-" + p}
	}
	set, err := molecule.NewMoleculeSet("seed", mols)
	require.NoError(t, err)
	inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.CreateSet(ctx, set) })
	return set
}

func testSMARTS(t *testing.T, s store.Store) {
	items := seedSMARTS(t, s, "lib", "[#6]", "[#7]", "[#8]")
	for _, it := range items {
		assert.NotZero(t, it.ID)
	}
	assert.NotEqual(t, items[0].ID, items[1].ID)

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		all, err := tx.ListSMARTS(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "[#6]", all[0].Pattern)
		assert.Equal(t, "lib", all[0].Library)
		assert.Less(t, all[0].ID, all[1].ID)

		got, err := tx.GetSMARTS(ctx, items[1].ID)
		require.NoError(t, err)
		assert.Equal(t, "s-[#7]", got.Name)

		_, err = tx.GetSMARTS(ctx, items[2].ID+1000)
		assert.True(t, errors.IsCode(err, errors.ErrCodeSMARTSNotFound))

		some, err := tx.ListSMARTSByIDs(ctx, []int64{items[2].ID, items[0].ID})
		require.NoError(t, err)
		assert.Len(t, some, 2)

		n, err := tx.CountSMARTS(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		ok, err := tx.LibraryExists(ctx, "lib")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.LibraryExists(ctx, "other")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
}

func testRollback(t *testing.T, s store.Store) {
	sentinel := errors.New(errors.ErrCodeInternal, "boom")
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateSMARTS(ctx, []*smarts.SMARTS{{Pattern: "C", Library: "x"}}); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.CountSMARTS(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	})
}

func testEdges(t *testing.T, s store.Store) {
	items := seedSMARTS(t, s, "lib", "A", "B", "C")
	a, b, c := items[0].ID, items[1].ID, items[2].ID

	directed := []*smarts.DirectedEdge{
		{FromID: b, ToID: a, MCSSim: 0.1, SPSim: 0.2},
		{FromID: a, ToID: b, MCSSim: 0.3, SPSim: 0.5},
		{FromID: c, ToID: a, MCSSim: 0.7, SPSim: 0.9},
	}
	undirected := []*smarts.UndirectedEdge{{LowID: a, HighID: c, MCSSim: 0.4, SPSim: 0.4}}
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertDirectedEdges(ctx, directed))
		return tx.InsertUndirectedEdges(ctx, undirected)
	})
	for _, e := range directed {
		assert.NotZero(t, e.ID)
	}
	assert.NotZero(t, undirected[0].ID)

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		pairs, err := tx.EdgePairs(ctx, smarts.ModeSubsetOfFirst)
		require.NoError(t, err)
		assert.ElementsMatch(t, []smarts.Pair{{A: b, B: a}, {A: a, B: b}, {A: c, B: a}}, pairs)

		pairs, err = tx.EdgePairs(ctx, smarts.ModeSimilarity)
		require.NoError(t, err)
		assert.Equal(t, []smarts.Pair{{A: a, B: c}}, pairs)

		inRange, err := tx.ListDirectedEdges(ctx, 0.2, 0.5)
		require.NoError(t, err)
		require.Len(t, inRange, 2)
		assert.Equal(t, 0.2, inRange[0].SPSim)
		assert.Equal(t, 0.5, inRange[1].SPSim)

		subs, err := tx.ListSubsetEdges(ctx, []int64{directed[2].ID})
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "C", subs[0].FromPattern)
		assert.Equal(t, "A", subs[0].ToPattern)

		all, err := tx.ListSubsetEdges(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		require.NoError(t, tx.DeleteEdges(ctx))
		pairs, err = tx.EdgePairs(ctx, smarts.ModeSubsetOfFirst)
		require.NoError(t, err)
		assert.Empty(t, pairs)
		return nil
	})
}

func testEdgeUniqueness(t *testing.T, s store.Store) {
	items := seedSMARTS(t, s, "lib", "A", "B")
	a, b := items[0].ID, items[1].ID
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertDirectedEdges(ctx, []*smarts.DirectedEdge{{FromID: a, ToID: b}})
	})

	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertDirectedEdges(ctx, []*smarts.DirectedEdge{{FromID: a, ToID: b, SPSim: 1}})
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertUndirectedEdges(ctx, []*smarts.UndirectedEdge{{LowID: a, HighID: b}}))
		return nil
	})
	err = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertUndirectedEdges(ctx, []*smarts.UndirectedEdge{{LowID: a, HighID: b}})
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
}

func testMoleculeSets(t *testing.T, s store.Store) {
	items := seedSMARTS(t, s, "lib", "A", "B")
	set := seedSet(t, s, "CCO", "c1ccccc1")
	require.NotZero(t, set.ID)
	for _, m := range set.Molecules {
		assert.NotZero(t, m.ID)
		assert.Equal(t, set.ID, m.SetID)
	}

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertMatches(ctx, []*molecule.Match{
			{MoleculeID: set.Molecules[1].ID, SMARTSID: items[0].ID},
			{MoleculeID: set.Molecules[0].ID, SMARTSID: items[1].ID},
			{MoleculeID: set.Molecules[0].ID, SMARTSID: items[0].ID},
		})
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetSet(ctx, set.ID)
		require.NoError(t, err)
		require.Len(t, got.Molecules, 2)
		assert.Equal(t, "CCO", got.Molecules[0].Pattern)

		views, err := tx.ListMatches(ctx, set.ID)
		require.NoError(t, err)
		require.Len(t, views, 3)
		assert.Equal(t, molecule.MatchView{MoleculeID: set.Molecules[0].ID, MoleculeName: "m-CCO", SMARTSID: items[0].ID}, views[0])

		mol, err := tx.GetMolecule(ctx, set.Molecules[1].ID)
		require.NoError(t, err)
		assert.Equal(t, "c1ccccc1", mol.Pattern)

		sets, err := tx.ListSets(ctx)
		require.NoError(t, err)
		assert.Len(t, sets, 1)
		return nil
	})

	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertMatches(ctx, []*molecule.Match{{MoleculeID: set.Molecules[0].ID, SMARTSID: items[0].ID}})
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))

	inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.DeleteSet(ctx, set.ID) })

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetSet(ctx, set.ID)
		assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeSetNotFound))
		_, err = tx.GetMolecule(ctx, set.Molecules[0].ID)
		assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeNotFound))

		n, err := tx.CountMolecules(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = tx.CountMatches(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = tx.CountSMARTS(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return nil
	})

	err = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error { return tx.DeleteSet(ctx, set.ID) })
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeSetNotFound))
}

func testDeleteLibrary(t *testing.T, s store.Store) {
	keep := seedSMARTS(t, s, "keep", "K")
	drop := seedSMARTS(t, s, "drop", "D1", "D2")
	set := seedSet(t, s, "CC")
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertDirectedEdges(ctx, []*smarts.DirectedEdge{
			{FromID: drop[0].ID, ToID: keep[0].ID},
			{FromID: drop[0].ID, ToID: drop[1].ID},
		}))
		require.NoError(t, tx.InsertUndirectedEdges(ctx, []*smarts.UndirectedEdge{{LowID: keep[0].ID, HighID: drop[1].ID}}))
		return tx.InsertMatches(ctx, []*molecule.Match{
			{MoleculeID: set.Molecules[0].ID, SMARTSID: drop[0].ID},
			{MoleculeID: set.Molecules[0].ID, SMARTSID: keep[0].ID},
		})
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.DeleteLibrary(ctx, "drop")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return nil
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		pairs, err := tx.EdgePairs(ctx, smarts.ModeSubsetOfFirst)
		require.NoError(t, err)
		assert.Empty(t, pairs)
		pairs, err = tx.EdgePairs(ctx, smarts.ModeSimilarity)
		require.NoError(t, err)
		assert.Empty(t, pairs)
		n, err := tx.CountMatches(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	})
}

func testReset(t *testing.T, s store.Store) {
	items := seedSMARTS(t, s, "lib", "A", "B")
	set := seedSet(t, s, "CC")
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertDirectedEdges(ctx, []*smarts.DirectedEdge{{FromID: items[0].ID, ToID: items[1].ID}}))
		return tx.InsertMatches(ctx, []*molecule.Match{{MoleculeID: set.Molecules[0].ID, SMARTSID: items[0].ID}})
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.DeleteAllMolecules(ctx) })
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.CountSets(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = tx.CountSMARTS(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return nil
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error { return tx.ResetAll(ctx) })
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.CountSMARTS(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		pairs, err := tx.EdgePairs(ctx, smarts.ModeSubsetOfFirst)
		require.NoError(t, err)
		assert.Empty(t, pairs)
		return nil
	})
}
