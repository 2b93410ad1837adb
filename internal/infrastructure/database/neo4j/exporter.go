package neo4j

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

const exportBatchSize = 1000

const (
	cypherConstraint = `CREATE CONSTRAINT smarts_id IF NOT EXISTS FOR (s:SMARTS) REQUIRE s.id IS UNIQUE`

	cypherMergeNodes = `
UNWIND $rows AS row
MERGE (s:SMARTS {id: row.id})
SET s.name = row.name, s.library = row.library, s.pattern = row.pattern
RETURN count(s) AS n`

	cypherMergeEdges = `
UNWIND $rows AS row
MATCH (a:SMARTS {id: row.from}), (b:SMARTS {id: row.to})
MERGE (a)-[r:SUBSET_OF {id: row.id}]->(b)
SET r.mcssim = row.mcssim, r.spsim = row.spsim
RETURN count(r) AS n`
)

// writer is the part of Driver the exporter needs.
type writer interface {
	ExecuteWrite(ctx context.Context, work func(Transaction) (interface{}, error)) (interface{}, error)
}

// GraphExporter merges SMARTS as (:SMARTS) nodes and directed edges as
// [:SUBSET_OF] relationships. Re-exporting updates properties in place.
type GraphExporter struct {
	db     writer
	logger logging.Logger
}

var _ ports.GraphExportPort = (*GraphExporter)(nil)

func NewGraphExporter(d *Driver, log logging.Logger) *GraphExporter {
	return newGraphExporter(d, log)
}

func newGraphExporter(db writer, log logging.Logger) *GraphExporter {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &GraphExporter{db: db, logger: log.Named("graph-export")}
}

// ExportGraph writes nodes, then edges, in batches. Edges whose endpoints are
// not among the exported nodes are not written and not counted.
func (e *GraphExporter) ExportGraph(ctx context.Context, nodes []*smarts.SMARTS, edges []*smarts.DirectedEdge) (*ports.ExportStats, error) {
	if _, err := e.db.ExecuteWrite(ctx, func(tx Transaction) (interface{}, error) {
		res, err := tx.Run(ctx, cypherConstraint, nil)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
		}
		return nil, res.Err()
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create SMARTS constraint")
	}

	stats := &ports.ExportStats{}
	for start := 0; start < len(nodes); start += exportBatchSize {
		end := min(start+exportBatchSize, len(nodes))
		rows := make([]map[string]any, 0, end-start)
		for _, n := range nodes[start:end] {
			rows = append(rows, map[string]any{
				"id": n.ID, "name": n.Name, "library": n.Library, "pattern": n.Pattern,
			})
		}
		n, err := e.mergeBatch(ctx, cypherMergeNodes, rows)
		if err != nil {
			return stats, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to export SMARTS nodes")
		}
		stats.Nodes += n
	}

	for start := 0; start < len(edges); start += exportBatchSize {
		end := min(start+exportBatchSize, len(edges))
		rows := make([]map[string]any, 0, end-start)
		for _, ed := range edges[start:end] {
			rows = append(rows, map[string]any{
				"id": ed.ID, "from": ed.FromID, "to": ed.ToID, "mcssim": ed.MCSSim, "spsim": ed.SPSim,
			})
		}
		n, err := e.mergeBatch(ctx, cypherMergeEdges, rows)
		if err != nil {
			return stats, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to export subset edges")
		}
		stats.Edges += n
	}

	if stats.Edges < len(edges) {
		e.logger.Warn("subset edges skipped, endpoints missing", logging.Int("skipped", len(edges)-stats.Edges))
	}
	return stats, nil
}

func (e *GraphExporter) mergeBatch(ctx context.Context, cypher string, rows []map[string]any) (int, error) {
	out, err := e.db.ExecuteWrite(ctx, func(tx Transaction) (interface{}, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"rows": rows})
		if err != nil {
			return nil, err
		}
		n, err := ExtractSingleRecord(ctx, res, func(r *neo4j.Record) (int64, error) {
			v, ok := r.Get("n")
			if !ok {
				return 0, errors.New(errors.ErrCodeDatabaseError, "count column missing")
			}
			n, _ := v.(int64)
			return n, nil
		})
		return n, err
	})
	if err != nil {
		return 0, err
	}
	n, _ := out.(int64)
	return int(n), nil
}
