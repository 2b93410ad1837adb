package ports

// Event types. The kafka adapter maps each type to a topic under the
// configured prefix, e.g. "smartsx.edges.calculated".
const (
	EventLibraryImported  = "library.imported"
	EventEdgesCalculated  = "edges.calculated"
	EventMoleculesMatched = "molecules.matched"
)

// Event is one pipeline notification. Key selects the partition.
type Event struct {
	Type    string
	Key     string
	Payload interface{}
}

// LibraryImported is published after a library import committed.
type LibraryImported struct {
	Library   string  `json:"library"`
	SMARTSIDs []int64 `json:"smarts_ids"`
	Replaced  int64   `json:"replaced"`
}

// EdgesCalculated is published after an edge calculation committed new edges.
type EdgesCalculated struct {
	Mode            string  `json:"mode"`
	Added           int     `json:"added"`
	Duplicates      int     `json:"duplicates"`
	DirectedEdgeIDs []int64 `json:"directed_edge_ids,omitempty"`
}

// MoleculesMatched is published after a molecule set and its matches committed.
type MoleculesMatched struct {
	MoleculeSetID int64 `json:"molecule_set_id"`
	Molecules     int   `json:"molecules"`
	Matches       int   `json:"matches"`
}
