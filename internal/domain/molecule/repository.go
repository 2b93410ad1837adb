package molecule

import "context"

// Repository is the persistence contract for molecule sets and matches. It
// is used inside a store transaction.
type Repository interface {
	// CreateSet inserts set and its molecules, setting every id.
	CreateSet(ctx context.Context, set *MoleculeSet) error
	// GetSet returns the set with its molecules, or ErrCodeMoleculeSetNotFound.
	GetSet(ctx context.Context, id int64) (*MoleculeSet, error)
	ListSets(ctx context.Context) ([]*MoleculeSet, error)
	CountSets(ctx context.Context) (int64, error)
	CountMolecules(ctx context.Context) (int64, error)
	// DeleteSet removes the set, its molecules and their matches.
	DeleteSet(ctx context.Context, id int64) error
	// GetMolecule returns ErrCodeMoleculeNotFound for unknown ids.
	GetMolecule(ctx context.Context, id int64) (*Molecule, error)

	InsertMatches(ctx context.Context, matches []*Match) error
	// ListMatches returns the matches of the set's molecules ordered by
	// molecule id then SMARTS id.
	ListMatches(ctx context.Context, setID int64) ([]MatchView, error)
	CountMatches(ctx context.Context) (int64, error)

	// DeleteAllMolecules removes every set, molecule and match.
	DeleteAllMolecules(ctx context.Context) error
}
