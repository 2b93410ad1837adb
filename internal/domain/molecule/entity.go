// Package molecule models uploaded molecule sets, their molecules and the
// matches of stored SMARTS against them.
package molecule

import (
	"time"

	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// MoleculeSet groups the molecules imported by one upload. Deleting a set
// deletes its molecules and their matches.
type MoleculeSet struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Molecules []*Molecule `json:"molecules,omitempty"`
}

// Molecule is a SMILES pattern with an optional name.
type Molecule struct {
	ID      int64  `json:"id"`
	SetID   int64  `json:"set_id"`
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

func (m *Molecule) RecordID() int64       { return m.ID }
func (m *Molecule) RecordPattern() string { return m.Pattern }

// NewMoleculeSet builds an unsaved set. Molecules with an empty pattern are
// rejected.
func NewMoleculeSet(name string, molecules []*Molecule) (*MoleculeSet, error) {
	for i, m := range molecules {
		if m == nil || m.Pattern == "" {
			return nil, errors.Newf(errors.ErrCodeMoleculeParsingFailed, "molecule %d has no pattern", i+1)
		}
	}
	return &MoleculeSet{Name: name, CreatedAt: time.Now().UTC(), Molecules: molecules}, nil
}

// MoleculeIDs returns the ids of the set's molecules in order.
func (s *MoleculeSet) MoleculeIDs() []int64 {
	ids := make([]int64, len(s.Molecules))
	for i, m := range s.Molecules {
		ids[i] = m.ID
	}
	return ids
}

// Match records that a SMARTS matches a molecule. (MoleculeID, SMARTSID) is
// unique.
type Match struct {
	ID         int64 `json:"id"`
	MoleculeID int64 `json:"molecule_id"`
	SMARTSID   int64 `json:"smarts_id"`
}

// MatchView is a match joined with its molecule name, as listed per set.
type MatchView struct {
	MoleculeID   int64  `json:"molecule_id"`
	MoleculeName string `json:"molecule_name"`
	SMARTSID     int64  `json:"smarts_id"`
}
