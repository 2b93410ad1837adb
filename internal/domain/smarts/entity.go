// Package smarts models SMARTS patterns and the similarity and subset edges
// between them, together with the comparison tool output grammar and the
// rules that turn tool output into new edges.
package smarts

import (
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// SMARTS is a stored substructure pattern belonging to a named library.
type SMARTS struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Library string `json:"library"`
}

func (s *SMARTS) RecordID() int64       { return s.ID }
func (s *SMARTS) RecordPattern() string { return s.Pattern }

// UndirectedEdge is a similarity edge. LowID < HighID always holds.
type UndirectedEdge struct {
	ID     int64   `json:"id"`
	LowID  int64   `json:"low_id"`
	HighID int64   `json:"high_id"`
	MCSSim float64 `json:"mcssim"`
	SPSim  float64 `json:"spsim"`
}

// NewUndirectedEdge orders a and b so the smaller id is stored as LowID.
func NewUndirectedEdge(a, b int64, mcs, sp float64) (*UndirectedEdge, error) {
	if a == b {
		return nil, errors.Newf(errors.ErrCodeEdgeInvariant, "similarity edge connects SMARTS %d to itself", a)
	}
	if a > b {
		a, b = b, a
	}
	return &UndirectedEdge{LowID: a, HighID: b, MCSSim: mcs, SPSim: sp}, nil
}

// Pair returns the (low, high) key of the edge.
func (e *UndirectedEdge) Pair() Pair { return Pair{e.LowID, e.HighID} }

// DirectedEdge is a subset edge from FromID to ToID.
type DirectedEdge struct {
	ID     int64   `json:"id"`
	FromID int64   `json:"from_id"`
	ToID   int64   `json:"to_id"`
	MCSSim float64 `json:"mcssim"`
	SPSim  float64 `json:"spsim"`
}

// NewDirectedEdge builds a subset edge; from and to must differ.
func NewDirectedEdge(from, to int64, mcs, sp float64) (*DirectedEdge, error) {
	if from == to {
		return nil, errors.Newf(errors.ErrCodeEdgeInvariant, "subset edge connects SMARTS %d to itself", from)
	}
	return &DirectedEdge{FromID: from, ToID: to, MCSSim: mcs, SPSim: sp}, nil
}

// Pair returns the (from, to) key of the edge.
func (e *DirectedEdge) Pair() Pair { return Pair{e.FromID, e.ToID} }

// Pair is an edge key: (low, high) for undirected edges and (from, to) for
// directed ones.
type Pair struct {
	A int64
	B int64
}

// SubsetEdge is a directed edge joined with the patterns at both ends, as
// needed to render it.
type SubsetEdge struct {
	DirectedEdge
	FromPattern string
	ToPattern   string
}
