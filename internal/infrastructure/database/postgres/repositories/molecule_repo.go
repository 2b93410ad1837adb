package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/turtacn/SMARTSexplore/internal/domain/molecule"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

func (t *pgTx) CreateSet(ctx context.Context, set *molecule.MoleculeSet) error {
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO molecule_sets (name, created_at) VALUES ($1, $2) RETURNING id`,
		set.Name, set.CreatedAt,
	).Scan(&set.ID)
	if err != nil {
		return mapError(err, "failed to insert molecule set")
	}

	mols := set.Molecules
	err = insertReturningIDs(ctx, t.q, `INSERT INTO molecules (set_id, name, pattern)`, 3, len(mols),
		func(i int) []interface{} { return []interface{}{set.ID, mols[i].Name, mols[i].Pattern} },
		func(i int, id int64) {
			mols[i].ID = id
			mols[i].SetID = set.ID
		},
	)
	if err != nil {
		return mapError(err, "failed to insert molecules")
	}
	return nil
}

func (t *pgTx) GetSet(ctx context.Context, id int64) (*molecule.MoleculeSet, error) {
	set := &molecule.MoleculeSet{}
	err := t.q.QueryRowContext(ctx, `SELECT id, name, created_at FROM molecule_sets WHERE id = $1`, id).
		Scan(&set.ID, &set.Name, &set.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf(errors.ErrCodeMoleculeSetNotFound, "molecule set %d not found", id)
	}
	if err != nil {
		return nil, mapError(err, "failed to get molecule set")
	}

	rows, err := t.q.QueryContext(ctx, `SELECT id, set_id, name, pattern FROM molecules WHERE set_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, mapError(err, "failed to query molecules")
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMolecule(rows)
		if err != nil {
			return nil, mapError(err, "failed to scan molecule")
		}
		set.Molecules = append(set.Molecules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate molecules")
	}
	return set, nil
}

func scanMolecule(row scanner) (*molecule.Molecule, error) {
	m := &molecule.Molecule{}
	if err := row.Scan(&m.ID, &m.SetID, &m.Name, &m.Pattern); err != nil {
		return nil, err
	}
	return m, nil
}

func (t *pgTx) ListSets(ctx context.Context) ([]*molecule.MoleculeSet, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT id, name, created_at FROM molecule_sets ORDER BY id`)
	if err != nil {
		return nil, mapError(err, "failed to query molecule sets")
	}
	defer rows.Close()

	var out []*molecule.MoleculeSet
	for rows.Next() {
		s := &molecule.MoleculeSet{}
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, mapError(err, "failed to scan molecule set")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate molecule sets")
	}
	return out, nil
}

func (t *pgTx) CountSets(ctx context.Context) (int64, error) {
	return count(ctx, t.q, `SELECT COUNT(*) FROM molecule_sets`, "molecule sets")
}

func (t *pgTx) CountMolecules(ctx context.Context) (int64, error) {
	return count(ctx, t.q, `SELECT COUNT(*) FROM molecules`, "molecules")
}

func (t *pgTx) DeleteSet(ctx context.Context, id int64) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM molecule_sets WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "failed to delete molecule set")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err, "failed to delete molecule set")
	}
	if n == 0 {
		return errors.Newf(errors.ErrCodeMoleculeSetNotFound, "molecule set %d not found", id)
	}
	return nil
}

func (t *pgTx) GetMolecule(ctx context.Context, id int64) (*molecule.Molecule, error) {
	m, err := scanMolecule(t.q.QueryRowContext(ctx, `SELECT id, set_id, name, pattern FROM molecules WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf(errors.ErrCodeMoleculeNotFound, "molecule %d not found", id)
	}
	if err != nil {
		return nil, mapError(err, "failed to get molecule")
	}
	return m, nil
}

func (t *pgTx) InsertMatches(ctx context.Context, matches []*molecule.Match) error {
	err := insertReturningIDs(ctx, t.q, `INSERT INTO matches (molecule_id, smarts_id)`, 2, len(matches),
		func(i int) []interface{} { return []interface{}{matches[i].MoleculeID, matches[i].SMARTSID} },
		func(i int, id int64) { matches[i].ID = id },
	)
	if err != nil {
		return mapError(err, "failed to insert matches")
	}
	return nil
}

func (t *pgTx) ListMatches(ctx context.Context, setID int64) ([]molecule.MatchView, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT m.id, m.name, x.smarts_id
		FROM matches x
		JOIN molecules m ON m.id = x.molecule_id
		WHERE m.set_id = $1
		ORDER BY m.id, x.smarts_id`, setID)
	if err != nil {
		return nil, mapError(err, "failed to query matches")
	}
	defer rows.Close()

	var out []molecule.MatchView
	for rows.Next() {
		var v molecule.MatchView
		if err := rows.Scan(&v.MoleculeID, &v.MoleculeName, &v.SMARTSID); err != nil {
			return nil, mapError(err, "failed to scan match")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate matches")
	}
	return out, nil
}

func (t *pgTx) CountMatches(ctx context.Context) (int64, error) {
	return count(ctx, t.q, `SELECT COUNT(*) FROM matches`, "matches")
}

func (t *pgTx) DeleteAllMolecules(ctx context.Context) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM molecule_sets`); err != nil {
		return mapError(err, "failed to delete molecule sets")
	}
	return nil
}
