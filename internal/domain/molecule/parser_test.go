package molecule

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

func TestParseMatchOutput(t *testing.T) {
	recs, err := ParseMatchOutput(strings.NewReader("3\t10\n 4 \t 11 \textra\n"))
	require.NoError(t, err)
	assert.Equal(t, []MatchRecord{
		{Line: 1, SMARTSID: 3, MoleculeID: 10},
		{Line: 2, SMARTSID: 4, MoleculeID: 11},
	}, recs)
}

func TestParseMatchOutput_Empty(t *testing.T) {
	recs, err := ParseMatchOutput(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseMatchOutput_Errors(t *testing.T) {
	for _, in := range []string{"3 10\n", "x\t10\n", "3\ty\n", "1\t2\n\n"} {
		_, err := ParseMatchOutput(strings.NewReader(in))
		require.Error(t, err, "%q", in)
		assert.True(t, errors.IsCode(err, errors.ErrCodeParseGrammar), "%q", in)
	}
}

func testSet() *MoleculeSet {
	return &MoleculeSet{ID: 1, Molecules: []*Molecule{{ID: 10, SetID: 1}, {ID: 11, SetID: 1}}}
}

func TestResolveMatches_Dedupes(t *testing.T) {
	recs := []MatchRecord{
		{Line: 1, SMARTSID: 3, MoleculeID: 10},
		{Line: 2, SMARTSID: 3, MoleculeID: 10},
		{Line: 3, SMARTSID: 4, MoleculeID: 11},
	}
	got, err := ResolveMatches(recs, testSet(), []int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []*Match{{MoleculeID: 10, SMARTSID: 3}, {MoleculeID: 11, SMARTSID: 4}}, got)
}

func TestResolveMatches_UnknownIDs(t *testing.T) {
	_, err := ResolveMatches([]MatchRecord{{Line: 1, SMARTSID: 3, MoleculeID: 99}}, testSet(), []int64{3})
	assert.True(t, errors.IsCode(err, errors.ErrCodeEdgeInvariant))

	_, err = ResolveMatches([]MatchRecord{{Line: 1, SMARTSID: 8, MoleculeID: 10}}, testSet(), []int64{3})
	assert.True(t, errors.IsCode(err, errors.ErrCodeEdgeInvariant))
}
