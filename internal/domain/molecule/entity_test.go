package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

func TestNewMoleculeSet(t *testing.T) {
	set, err := NewMoleculeSet("upload.smi", []*Molecule{{Pattern: "CCO", Name: "ethanol"}})
	require.NoError(t, err)
	assert.Equal(t, "upload.smi", set.Name)
	assert.False(t, set.CreatedAt.IsZero())
	assert.Len(t, set.Molecules, 1)
}

func TestNewMoleculeSet_EmptyPattern(t *testing.T) {
	_, err := NewMoleculeSet("x", []*Molecule{{Pattern: "C"}, {Pattern: ""}})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMoleculeParsingFailed))
	assert.Contains(t, err.Error(), "molecule 2")
}

func TestMoleculeSet_MoleculeIDs(t *testing.T) {
	set := &MoleculeSet{Molecules: []*Molecule{{ID: 4}, {ID: 2}}}
	assert.Equal(t, []int64{4, 2}, set.MoleculeIDs())
	m := set.Molecules[0]
	assert.Equal(t, int64(4), m.RecordID())
}
