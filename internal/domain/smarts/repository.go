package smarts

import "context"

// Repository is the persistence contract for SMARTS and their edges. It is
// always used inside a store transaction; implementations never commit.
type Repository interface {
	// CreateSMARTS inserts items and sets their ids.
	CreateSMARTS(ctx context.Context, items []*SMARTS) error
	// ListSMARTS returns every SMARTS ordered by id.
	ListSMARTS(ctx context.Context) ([]*SMARTS, error)
	// GetSMARTS returns ErrCodeSMARTSNotFound for unknown ids.
	GetSMARTS(ctx context.Context, id int64) (*SMARTS, error)
	ListSMARTSByIDs(ctx context.Context, ids []int64) ([]*SMARTS, error)
	CountSMARTS(ctx context.Context) (int64, error)
	LibraryExists(ctx context.Context, library string) (bool, error)
	// DeleteLibrary removes the library's SMARTS and, by cascade, their edges
	// and matches.
	DeleteLibrary(ctx context.Context, library string) (int64, error)

	// EdgePairs returns the keys of every stored edge of mode: (low, high) for
	// Similarity and (from, to) for SubsetOfFirst.
	EdgePairs(ctx context.Context, mode Mode) ([]Pair, error)
	// InsertUndirectedEdges and InsertDirectedEdges set the ids of the edges.
	// A key that already exists yields ErrCodeConflict.
	InsertUndirectedEdges(ctx context.Context, edges []*UndirectedEdge) error
	InsertDirectedEdges(ctx context.Context, edges []*DirectedEdge) error
	// ListDirectedEdges returns directed edges with minSP <= spsim <= maxSP,
	// ordered by id.
	ListDirectedEdges(ctx context.Context, minSP, maxSP float64) ([]*DirectedEdge, error)
	// ListSubsetEdges joins directed edges with their patterns. An empty ids
	// slice means every edge.
	ListSubsetEdges(ctx context.Context, ids []int64) ([]*SubsetEdge, error)
	DeleteEdges(ctx context.Context) error
}
