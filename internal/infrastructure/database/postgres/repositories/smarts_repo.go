package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/lib/pq"

	"github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

const smartsColumns = `id, name, pattern, library`

func scanSMARTS(row scanner) (*smarts.SMARTS, error) {
	s := &smarts.SMARTS{}
	if err := row.Scan(&s.ID, &s.Name, &s.Pattern, &s.Library); err != nil {
		return nil, err
	}
	return s, nil
}

func (t *pgTx) querySMARTS(ctx context.Context, query string, args ...interface{}) ([]*smarts.SMARTS, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "failed to query SMARTS")
	}
	defer rows.Close()

	var out []*smarts.SMARTS
	for rows.Next() {
		s, err := scanSMARTS(rows)
		if err != nil {
			return nil, mapError(err, "failed to scan SMARTS")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate SMARTS")
	}
	return out, nil
}

func (t *pgTx) CreateSMARTS(ctx context.Context, items []*smarts.SMARTS) error {
	err := insertReturningIDs(ctx, t.q, `INSERT INTO smarts (name, pattern, library)`, 3, len(items),
		func(i int) []interface{} { return []interface{}{items[i].Name, items[i].Pattern, items[i].Library} },
		func(i int, id int64) { items[i].ID = id },
	)
	if err != nil {
		return mapError(err, "failed to insert SMARTS")
	}
	return nil
}

func (t *pgTx) ListSMARTS(ctx context.Context) ([]*smarts.SMARTS, error) {
	return t.querySMARTS(ctx, `SELECT `+smartsColumns+` FROM smarts ORDER BY id`)
}

func (t *pgTx) GetSMARTS(ctx context.Context, id int64) (*smarts.SMARTS, error) {
	s, err := scanSMARTS(t.q.QueryRowContext(ctx, `SELECT `+smartsColumns+` FROM smarts WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf(errors.ErrCodeSMARTSNotFound, "SMARTS %d not found", id)
	}
	if err != nil {
		return nil, mapError(err, "failed to get SMARTS")
	}
	return s, nil
}

func (t *pgTx) ListSMARTSByIDs(ctx context.Context, ids []int64) ([]*smarts.SMARTS, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.querySMARTS(ctx, `SELECT `+smartsColumns+` FROM smarts WHERE id = ANY($1::bigint[]) ORDER BY id`, pq.Array(ids))
}

func (t *pgTx) CountSMARTS(ctx context.Context) (int64, error) {
	return count(ctx, t.q, `SELECT COUNT(*) FROM smarts`, "SMARTS")
}

func (t *pgTx) LibraryExists(ctx context.Context, library string) (bool, error) {
	var ok bool
	err := t.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM smarts WHERE library = $1)`, library).Scan(&ok)
	if err != nil {
		return false, mapError(err, "failed to look up library")
	}
	return ok, nil
}

func (t *pgTx) DeleteLibrary(ctx context.Context, library string) (int64, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM smarts WHERE library = $1`, library)
	if err != nil {
		return 0, mapError(err, "failed to delete library")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(err, "failed to delete library")
	}
	return n, nil
}

func (t *pgTx) EdgePairs(ctx context.Context, mode smarts.Mode) ([]smarts.Pair, error) {
	var query string
	switch mode {
	case smarts.ModeSimilarity:
		query = `SELECT low_id, high_id FROM undirected_edges`
	case smarts.ModeSubsetOfFirst:
		query = `SELECT from_id, to_id FROM directed_edges`
	default:
		return nil, errors.Newf(errors.ErrCodeModeNotImplemented, "mode %s is not implemented", mode)
	}

	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err, "failed to query edge keys")
	}
	defer rows.Close()

	var out []smarts.Pair
	for rows.Next() {
		var p smarts.Pair
		if err := rows.Scan(&p.A, &p.B); err != nil {
			return nil, mapError(err, "failed to scan edge key")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate edge keys")
	}
	return out, nil
}

func (t *pgTx) InsertUndirectedEdges(ctx context.Context, edges []*smarts.UndirectedEdge) error {
	err := insertReturningIDs(ctx, t.q, `INSERT INTO undirected_edges (low_id, high_id, mcssim, spsim)`, 4, len(edges),
		func(i int) []interface{} {
			e := edges[i]
			return []interface{}{e.LowID, e.HighID, e.MCSSim, e.SPSim}
		},
		func(i int, id int64) { edges[i].ID = id },
	)
	if err != nil {
		return mapError(err, "failed to insert similarity edges")
	}
	return nil
}

func (t *pgTx) InsertDirectedEdges(ctx context.Context, edges []*smarts.DirectedEdge) error {
	err := insertReturningIDs(ctx, t.q, `INSERT INTO directed_edges (from_id, to_id, mcssim, spsim)`, 4, len(edges),
		func(i int) []interface{} {
			e := edges[i]
			return []interface{}{e.FromID, e.ToID, e.MCSSim, e.SPSim}
		},
		func(i int, id int64) { edges[i].ID = id },
	)
	if err != nil {
		return mapError(err, "failed to insert subset edges")
	}
	return nil
}

func (t *pgTx) ListDirectedEdges(ctx context.Context, minSP, maxSP float64) ([]*smarts.DirectedEdge, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT id, from_id, to_id, mcssim, spsim FROM directed_edges WHERE spsim BETWEEN $1 AND $2 ORDER BY id`,
		minSP, maxSP)
	if err != nil {
		return nil, mapError(err, "failed to query subset edges")
	}
	defer rows.Close()

	var out []*smarts.DirectedEdge
	for rows.Next() {
		e := &smarts.DirectedEdge{}
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &e.MCSSim, &e.SPSim); err != nil {
			return nil, mapError(err, "failed to scan subset edge")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate subset edges")
	}
	return out, nil
}

const subsetEdgeQuery = `
	SELECT e.id, e.from_id, e.to_id, e.mcssim, e.spsim, f.pattern, o.pattern
	FROM directed_edges e
	JOIN smarts f ON f.id = e.from_id
	JOIN smarts o ON o.id = e.to_id`

func (t *pgTx) ListSubsetEdges(ctx context.Context, ids []int64) ([]*smarts.SubsetEdge, error) {
	query := subsetEdgeQuery + ` ORDER BY e.id`
	var args []interface{}
	if len(ids) > 0 {
		query = subsetEdgeQuery + ` WHERE e.id = ANY($1::bigint[]) ORDER BY e.id`
		args = append(args, pq.Array(ids))
	}

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "failed to query subset edges")
	}
	defer rows.Close()

	var out []*smarts.SubsetEdge
	for rows.Next() {
		e := &smarts.SubsetEdge{}
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &e.MCSSim, &e.SPSim, &e.FromPattern, &e.ToPattern); err != nil {
			return nil, mapError(err, "failed to scan subset edge")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate subset edges")
	}
	return out, nil
}

func (t *pgTx) DeleteEdges(ctx context.Context) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM directed_edges`); err != nil {
		return mapError(err, "failed to delete subset edges")
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM undirected_edges`); err != nil {
		return mapError(err, "failed to delete similarity edges")
	}
	return nil
}
