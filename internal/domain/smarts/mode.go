package smarts

import (
	"fmt"

	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// Mode is a comparison mode of the SMARTS comparison tool. The numeric value
// is the id passed on the tool's command line.
type Mode int

const (
	ModeIdentical      Mode = 1
	ModeSubsetOfFirst  Mode = 2
	ModeSubsetOfSecond Mode = 3
	ModeSimilarity     Mode = 4
)

var modeNames = map[Mode]string{
	ModeIdentical:      "Identical",
	ModeSubsetOfFirst:  "SubsetOfFirst",
	ModeSubsetOfSecond: "SubsetOfSecond",
	ModeSimilarity:     "Similarity",
}

// AllModes lists every mode the tool understands, in id order.
var AllModes = []Mode{ModeIdentical, ModeSubsetOfFirst, ModeSubsetOfSecond, ModeSimilarity}

// ImplementedModes lists the modes edge calculation supports.
var ImplementedModes = []Mode{ModeSimilarity, ModeSubsetOfFirst}

func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ID is the tool's "-m" argument.
func (m Mode) ID() int { return int(m) }

// Valid reports whether m is one of the four tool modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Implemented reports whether edges can be reconciled for m.
func (m Mode) Implemented() bool {
	return m == ModeSimilarity || m == ModeSubsetOfFirst
}

// Directed reports whether m produces DirectedEdges.
func (m Mode) Directed() bool { return m == ModeSubsetOfFirst }

// ParseMode maps an exact, case-sensitive mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	for m, n := range modeNames {
		if n == s {
			return m, nil
		}
	}
	return 0, errors.Newf(errors.ErrCodeUnknownMode, "unknown mode %q", s).
		WithDetail("expected one of Identical, SubsetOfFirst, SubsetOfSecond, Similarity")
}

// ParseRequestedMode is ParseMode restricted to implemented modes. Callers
// use it before touching the store or starting any process.
func ParseRequestedMode(s string) (Mode, error) {
	m, err := ParseMode(s)
	if err != nil {
		return 0, err
	}
	if !m.Implemented() {
		return 0, errors.Newf(errors.ErrCodeModeNotImplemented, "mode %s is not implemented", m).
			WithDetail("implemented modes: Similarity, SubsetOfFirst")
	}
	return m, nil
}
