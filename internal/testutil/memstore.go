package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/turtacn/SMARTSexplore/internal/domain/molecule"
	"github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// MemStore is an in-memory store.Store. Each transaction works on a copy of
// the state that replaces the committed state only when fn succeeds, so
// rollbacks behave like the SQL stores. Transactions are serialized.
type MemStore struct {
	mu    sync.Mutex
	state *memState
	fail  map[string]error
}

var _ store.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{state: newMemState(), fail: map[string]error{}}
}

// FailOn makes the next call of the named Tx method (e.g. "InsertMatches")
// return err.
func (m *MemStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[method] = err
}

func (m *MemStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memTx{st: work, fail: m.fail}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemStore) Ping(context.Context) error { return nil }
func (m *MemStore) Close() error               { return nil }

type memState struct {
	nextID     int64
	smarts     map[int64]smarts.SMARTS
	undirected map[int64]smarts.UndirectedEdge
	directed   map[int64]smarts.DirectedEdge
	sets       map[int64]molecule.MoleculeSet
	molecules  map[int64]molecule.Molecule
	matches    map[int64]molecule.Match
}

func newMemState() *memState {
	return &memState{
		smarts:     map[int64]smarts.SMARTS{},
		undirected: map[int64]smarts.UndirectedEdge{},
		directed:   map[int64]smarts.DirectedEdge{},
		sets:       map[int64]molecule.MoleculeSet{},
		molecules:  map[int64]molecule.Molecule{},
		matches:    map[int64]molecule.Match{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	return &memState{
		nextID:     s.nextID,
		smarts:     cloneMap(s.smarts),
		undirected: cloneMap(s.undirected),
		directed:   cloneMap(s.directed),
		sets:       cloneMap(s.sets),
		molecules:  cloneMap(s.molecules),
		matches:    cloneMap(s.matches),
	}
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

type memTx struct {
	st   *memState
	fail map[string]error
}

func (t *memTx) injected(method string) error {
	if err, ok := t.fail[method]; ok {
		delete(t.fail, method)
		return err
	}
	return nil
}

func (t *memTx) CreateSMARTS(_ context.Context, items []*smarts.SMARTS) error {
	if err := t.injected("CreateSMARTS"); err != nil {
		return err
	}
	for _, it := range items {
		it.ID = t.st.id()
		t.st.smarts[it.ID] = *it
	}
	return nil
}

func (t *memTx) ListSMARTS(context.Context) ([]*smarts.SMARTS, error) {
	if err := t.injected("ListSMARTS"); err != nil {
		return nil, err
	}
	out := make([]*smarts.SMARTS, 0, len(t.st.smarts))
	for _, id := range sortedKeys(t.st.smarts) {
		s := t.st.smarts[id]
		out = append(out, &s)
	}
	return out, nil
}

func (t *memTx) GetSMARTS(_ context.Context, id int64) (*smarts.SMARTS, error) {
	s, ok := t.st.smarts[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeSMARTSNotFound, "SMARTS %d not found", id)
	}
	return &s, nil
}

func (t *memTx) ListSMARTSByIDs(_ context.Context, ids []int64) ([]*smarts.SMARTS, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*smarts.SMARTS
	for _, id := range sortedKeys(t.st.smarts) {
		if want[id] {
			s := t.st.smarts[id]
			out = append(out, &s)
		}
	}
	return out, nil
}

func (t *memTx) CountSMARTS(context.Context) (int64, error) {
	return int64(len(t.st.smarts)), nil
}

func (t *memTx) LibraryExists(_ context.Context, library string) (bool, error) {
	for _, s := range t.st.smarts {
		if s.Library == library {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) DeleteLibrary(_ context.Context, library string) (int64, error) {
	var n int64
	for id, s := range t.st.smarts {
		if s.Library == library {
			t.deleteSMARTS(id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) deleteSMARTS(id int64) {
	delete(t.st.smarts, id)
	for eid, e := range t.st.undirected {
		if e.LowID == id || e.HighID == id {
			delete(t.st.undirected, eid)
		}
	}
	for eid, e := range t.st.directed {
		if e.FromID == id || e.ToID == id {
			delete(t.st.directed, eid)
		}
	}
	for mid, m := range t.st.matches {
		if m.SMARTSID == id {
			delete(t.st.matches, mid)
		}
	}
}

func (t *memTx) EdgePairs(_ context.Context, mode smarts.Mode) ([]smarts.Pair, error) {
	var out []smarts.Pair
	switch mode {
	case smarts.ModeSimilarity:
		for _, id := range sortedKeys(t.st.undirected) {
			e := t.st.undirected[id]
			out = append(out, e.Pair())
		}
	case smarts.ModeSubsetOfFirst:
		for _, id := range sortedKeys(t.st.directed) {
			e := t.st.directed[id]
			out = append(out, e.Pair())
		}
	default:
		return nil, errors.Newf(errors.ErrCodeModeNotImplemented, "no edges are stored for mode %s", mode)
	}
	return out, nil
}

func (t *memTx) InsertUndirectedEdges(_ context.Context, edges []*smarts.UndirectedEdge) error {
	if err := t.injected("InsertUndirectedEdges"); err != nil {
		return err
	}
	for _, e := range edges {
		for _, ex := range t.st.undirected {
			if ex.Pair() == e.Pair() {
				return errors.Newf(errors.ErrCodeConflict, "similarity edge (%d, %d) already exists", e.LowID, e.HighID)
			}
		}
		e.ID = t.st.id()
		t.st.undirected[e.ID] = *e
	}
	return nil
}

func (t *memTx) InsertDirectedEdges(_ context.Context, edges []*smarts.DirectedEdge) error {
	if err := t.injected("InsertDirectedEdges"); err != nil {
		return err
	}
	for _, e := range edges {
		for _, ex := range t.st.directed {
			if ex.Pair() == e.Pair() {
				return errors.Newf(errors.ErrCodeConflict, "subset edge (%d, %d) already exists", e.FromID, e.ToID)
			}
		}
		e.ID = t.st.id()
		t.st.directed[e.ID] = *e
	}
	return nil
}

func (t *memTx) ListDirectedEdges(_ context.Context, minSP, maxSP float64) ([]*smarts.DirectedEdge, error) {
	var out []*smarts.DirectedEdge
	for _, id := range sortedKeys(t.st.directed) {
		e := t.st.directed[id]
		if e.SPSim >= minSP && e.SPSim <= maxSP {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (t *memTx) ListSubsetEdges(_ context.Context, ids []int64) ([]*smarts.SubsetEdge, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*smarts.SubsetEdge
	for _, id := range sortedKeys(t.st.directed) {
		if len(ids) > 0 && !want[id] {
			continue
		}
		e := t.st.directed[id]
		out = append(out, &smarts.SubsetEdge{
			DirectedEdge: e,
			FromPattern:  t.st.smarts[e.FromID].Pattern,
			ToPattern:    t.st.smarts[e.ToID].Pattern,
		})
	}
	return out, nil
}

func (t *memTx) DeleteEdges(context.Context) error {
	t.st.undirected = map[int64]smarts.UndirectedEdge{}
	t.st.directed = map[int64]smarts.DirectedEdge{}
	return nil
}

func (t *memTx) CreateSet(_ context.Context, set *molecule.MoleculeSet) error {
	if err := t.injected("CreateSet"); err != nil {
		return err
	}
	set.ID = t.st.id()
	stored := *set
	stored.Molecules = nil
	t.st.sets[set.ID] = stored
	for _, m := range set.Molecules {
		m.ID = t.st.id()
		m.SetID = set.ID
		t.st.molecules[m.ID] = *m
	}
	return nil
}

func (t *memTx) GetSet(_ context.Context, id int64) (*molecule.MoleculeSet, error) {
	s, ok := t.st.sets[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeMoleculeSetNotFound, "molecule set %d not found", id)
	}
	for _, mid := range sortedKeys(t.st.molecules) {
		m := t.st.molecules[mid]
		if m.SetID == id {
			s.Molecules = append(s.Molecules, &m)
		}
	}
	return &s, nil
}

func (t *memTx) ListSets(context.Context) ([]*molecule.MoleculeSet, error) {
	var out []*molecule.MoleculeSet
	for _, id := range sortedKeys(t.st.sets) {
		s := t.st.sets[id]
		out = append(out, &s)
	}
	return out, nil
}

func (t *memTx) CountSets(context.Context) (int64, error) { return int64(len(t.st.sets)), nil }

func (t *memTx) CountMolecules(context.Context) (int64, error) {
	return int64(len(t.st.molecules)), nil
}

func (t *memTx) DeleteSet(_ context.Context, id int64) error {
	if err := t.injected("DeleteSet"); err != nil {
		return err
	}
	if _, ok := t.st.sets[id]; !ok {
		return errors.Newf(errors.ErrCodeMoleculeSetNotFound, "molecule set %d not found", id)
	}
	delete(t.st.sets, id)
	for mid, m := range t.st.molecules {
		if m.SetID != id {
			continue
		}
		delete(t.st.molecules, mid)
		for xid, x := range t.st.matches {
			if x.MoleculeID == mid {
				delete(t.st.matches, xid)
			}
		}
	}
	return nil
}

func (t *memTx) GetMolecule(_ context.Context, id int64) (*molecule.Molecule, error) {
	m, ok := t.st.molecules[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeMoleculeNotFound, "molecule %d not found", id)
	}
	return &m, nil
}

func (t *memTx) InsertMatches(_ context.Context, matches []*molecule.Match) error {
	if err := t.injected("InsertMatches"); err != nil {
		return err
	}
	for _, m := range matches {
		for _, ex := range t.st.matches {
			if ex.MoleculeID == m.MoleculeID && ex.SMARTSID == m.SMARTSID {
				return errors.Newf(errors.ErrCodeConflict, "match (%d, %d) already exists", m.MoleculeID, m.SMARTSID)
			}
		}
		m.ID = t.st.id()
		t.st.matches[m.ID] = *m
	}
	return nil
}

func (t *memTx) ListMatches(_ context.Context, setID int64) ([]molecule.MatchView, error) {
	var out []molecule.MatchView
	for _, id := range sortedKeys(t.st.matches) {
		x := t.st.matches[id]
		mol, ok := t.st.molecules[x.MoleculeID]
		if !ok || mol.SetID != setID {
			continue
		}
		out = append(out, molecule.MatchView{MoleculeID: mol.ID, MoleculeName: mol.Name, SMARTSID: x.SMARTSID})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MoleculeID != out[j].MoleculeID {
			return out[i].MoleculeID < out[j].MoleculeID
		}
		return out[i].SMARTSID < out[j].SMARTSID
	})
	return out, nil
}

func (t *memTx) CountMatches(context.Context) (int64, error) { return int64(len(t.st.matches)), nil }

func (t *memTx) DeleteAllMolecules(context.Context) error {
	t.st.sets = map[int64]molecule.MoleculeSet{}
	t.st.molecules = map[int64]molecule.Molecule{}
	t.st.matches = map[int64]molecule.Match{}
	return nil
}

func (t *memTx) ResetAll(ctx context.Context) error {
	_ = t.DeleteAllMolecules(ctx)
	_ = t.DeleteEdges(ctx)
	t.st.smarts = map[int64]smarts.SMARTS{}
	return nil
}
