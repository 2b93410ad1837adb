// Package graph holds the JSON shapes of the HTTP surface consumed by the
// SMARTSexplore frontend and by pkg/client.
package graph

// Node is one SMARTS pattern.
type Node struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Library string `json:"library"`
	Pattern string `json:"pattern"`
}

// Edge is one directed subset relationship, source being the subset.
type Edge struct {
	ID     int64   `json:"id"`
	Source int64   `json:"source"`
	Target int64   `json:"target"`
	MCSSim float64 `json:"mcssim"`
	SPSim  float64 `json:"spsim"`
}

// Graph is the response of the graph data endpoint.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Query selects edges whose SP similarity lies in [SPSimMin, SPSimMax]. Both
// bounds are pointers so a missing key can be told apart from zero.
type Query struct {
	SPSimMin *float64 `json:"spsim_min"`
	SPSimMax *float64 `json:"spsim_max"`
}

// Match is one (molecule, SMARTS) hit.
type Match struct {
	MoleculeID   int64  `json:"molecule_id"`
	MoleculeName string `json:"molecule_name"`
	SMARTSID     int64  `json:"smarts_id"`
}

// MatchList is the response of the upload and match listing endpoints.
type MatchList struct {
	MoleculeSetID int64   `json:"molecule_set_id"`
	Matches       []Match `json:"matches"`
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Health is the body of /healthz and /readyz.
type Health struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}
