package smarts

import (
	"strconv"

	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// CompareSource yields a declared mode followed by data records.
// *CompareParser implements it.
type CompareSource interface {
	Mode() (Mode, error)
	Next() bool
	Record() CompareRecord
	Err() error
}

// Reconciliation is the result of one reconciliation run.
type Reconciliation struct {
	Mode       Mode
	Processed  int
	Undirected []*UndirectedEdge
	Directed   []*DirectedEdge
	Duplicates []Pair
}

// Added is the number of staged edges.
func (r *Reconciliation) Added() int { return len(r.Undirected) + len(r.Directed) }

// edgeStrategy holds the per-mode rules.
type edgeStrategy interface {
	// key orients the (left, right) ids of a tool record into the edge key.
	key(left, right int64) (Pair, error)
	// stage appends a new edge for key to out.
	stage(out *Reconciliation, key Pair, rec CompareRecord) error
}

type similarityStrategy struct{}

func (similarityStrategy) key(left, right int64) (Pair, error) {
	if left == right {
		return Pair{}, errors.Newf(errors.ErrCodeEdgeInvariant, "similarity record compares SMARTS %d with itself", left)
	}
	if left < right {
		return Pair{left, right}, nil
	}
	return Pair{right, left}, nil
}

func (similarityStrategy) stage(out *Reconciliation, key Pair, rec CompareRecord) error {
	e, err := NewUndirectedEdge(key.A, key.B, rec.MCSSim, rec.SPSim)
	if err != nil {
		return err
	}
	out.Undirected = append(out.Undirected, e)
	return nil
}

// subsetOfFirstStrategy reverses the record: the right pattern is the edge's
// origin and the left pattern its target.
type subsetOfFirstStrategy struct{}

func (subsetOfFirstStrategy) key(left, right int64) (Pair, error) {
	return Pair{A: right, B: left}, nil
}

func (subsetOfFirstStrategy) stage(out *Reconciliation, key Pair, rec CompareRecord) error {
	e, err := NewDirectedEdge(key.A, key.B, rec.MCSSim, rec.SPSim)
	if err != nil {
		return err
	}
	out.Directed = append(out.Directed, e)
	return nil
}

func strategyFor(m Mode) (edgeStrategy, error) {
	switch m {
	case ModeSimilarity:
		return similarityStrategy{}, nil
	case ModeSubsetOfFirst:
		return subsetOfFirstStrategy{}, nil
	case ModeIdentical, ModeSubsetOfSecond:
		return nil, errors.Newf(errors.ErrCodeModeNotImplemented, "mode %s is not implemented", m)
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownMode, "unknown mode %s", m)
	}
}

// Reconciler turns comparison records into edges that do not exist yet.
// It owns a snapshot of the existing edge keys taken once before the run and
// adds every staged key to it, so duplicates inside one tool output are
// skipped as well.
type Reconciler struct {
	mode     Mode
	strategy edgeStrategy
	existing map[Pair]struct{}
	known    map[int64]struct{}
}

// NewReconciler prepares a run for mode. existing holds the keys of the edges
// already stored for that mode; known holds every stored SMARTS id.
func NewReconciler(mode Mode, existing []Pair, known []int64) (*Reconciler, error) {
	st, err := strategyFor(mode)
	if err != nil {
		return nil, err
	}
	r := &Reconciler{
		mode:     mode,
		strategy: st,
		existing: make(map[Pair]struct{}, len(existing)),
		known:    make(map[int64]struct{}, len(known)),
	}
	for _, p := range existing {
		r.existing[p] = struct{}{}
	}
	for _, id := range known {
		r.known[id] = struct{}{}
	}
	return r, nil
}

// Reconcile consumes src. The declared mode must equal the requested mode.
// Nothing is written anywhere; the caller persists the staged edges as one
// unit.
func (r *Reconciler) Reconcile(src CompareSource) (*Reconciliation, error) {
	declared, err := src.Mode()
	if err != nil {
		return nil, err
	}
	if declared != r.mode {
		return nil, errors.Newf(errors.ErrCodeModeMismatch,
			"comparison output declares mode %s, requested %s", declared, r.mode)
	}

	out := &Reconciliation{Mode: r.mode}
	for src.Next() {
		rec := src.Record()
		out.Processed++

		left, err := r.resolve(rec.LeftID, rec.Line)
		if err != nil {
			return nil, err
		}
		right, err := r.resolve(rec.RightID, rec.Line)
		if err != nil {
			return nil, err
		}

		key, err := r.strategy.key(left, right)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeEdgeInvariant, "comparison output line %d", rec.Line)
		}
		if _, dup := r.existing[key]; dup {
			out.Duplicates = append(out.Duplicates, key)
			continue
		}
		if err := r.strategy.stage(out, key, rec); err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeEdgeInvariant, "comparison output line %d", rec.Line)
		}
		r.existing[key] = struct{}{}
	}
	if err := src.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Reconciler) resolve(tag string, line int) (int64, error) {
	id, err := strconv.ParseInt(tag, 10, 64)
	if err != nil {
		return 0, errors.Newf(errors.ErrCodeEdgeInvariant, "comparison output line %d: tag %q is not a SMARTS id", line, tag)
	}
	if _, ok := r.known[id]; !ok {
		return 0, errors.Newf(errors.ErrCodeEdgeInvariant, "comparison output line %d: unknown SMARTS id %d", line, id)
	}
	return id, nil
}
