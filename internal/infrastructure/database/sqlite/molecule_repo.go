package sqlite

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/turtacn/SMARTSexplore/internal/domain/molecule"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

func toMolecule(m moleculeModel) *molecule.Molecule {
	return &molecule.Molecule{ID: m.ID, SetID: m.SetID, Name: m.Name, Pattern: m.Pattern}
}

func (t *gormTx) CreateSet(ctx context.Context, set *molecule.MoleculeSet) error {
	db := t.db.WithContext(ctx)
	sm := moleculeSetModel{Name: set.Name, CreatedAt: set.CreatedAt}
	if err := db.Create(&sm).Error; err != nil {
		return mapError(err, "failed to insert molecule set")
	}
	set.ID = sm.ID

	if len(set.Molecules) == 0 {
		return nil
	}
	rows := make([]moleculeModel, len(set.Molecules))
	for i, m := range set.Molecules {
		rows[i] = moleculeModel{SetID: sm.ID, Name: m.Name, Pattern: m.Pattern}
	}
	if err := db.CreateInBatches(&rows, batchSize).Error; err != nil {
		return mapError(err, "failed to insert molecules")
	}
	for i := range rows {
		set.Molecules[i].ID = rows[i].ID
		set.Molecules[i].SetID = sm.ID
	}
	return nil
}

func (t *gormTx) GetSet(ctx context.Context, id int64) (*molecule.MoleculeSet, error) {
	db := t.db.WithContext(ctx)
	var sm moleculeSetModel
	err := db.First(&sm, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Newf(errors.ErrCodeMoleculeSetNotFound, "molecule set %d not found", id)
	}
	if err != nil {
		return nil, mapError(err, "failed to get molecule set")
	}

	var rows []moleculeModel
	if err := db.Where("set_id = ?", id).Order("id").Find(&rows).Error; err != nil {
		return nil, mapError(err, "failed to query molecules")
	}
	set := &molecule.MoleculeSet{ID: sm.ID, Name: sm.Name, CreatedAt: sm.CreatedAt}
	for _, m := range rows {
		set.Molecules = append(set.Molecules, toMolecule(m))
	}
	return set, nil
}

func (t *gormTx) ListSets(ctx context.Context) ([]*molecule.MoleculeSet, error) {
	var rows []moleculeSetModel
	if err := t.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, mapError(err, "failed to query molecule sets")
	}
	out := make([]*molecule.MoleculeSet, 0, len(rows))
	for _, m := range rows {
		out = append(out, &molecule.MoleculeSet{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt})
	}
	return out, nil
}

func (t *gormTx) CountSets(ctx context.Context) (int64, error) {
	return countRows(t.db.WithContext(ctx), &moleculeSetModel{}, "molecule sets")
}

func (t *gormTx) CountMolecules(ctx context.Context) (int64, error) {
	return countRows(t.db.WithContext(ctx), &moleculeModel{}, "molecules")
}

func (t *gormTx) DeleteSet(ctx context.Context, id int64) error {
	res := t.db.WithContext(ctx).Delete(&moleculeSetModel{}, id)
	if res.Error != nil {
		return mapError(res.Error, "failed to delete molecule set")
	}
	if res.RowsAffected == 0 {
		return errors.Newf(errors.ErrCodeMoleculeSetNotFound, "molecule set %d not found", id)
	}
	return nil
}

func (t *gormTx) GetMolecule(ctx context.Context, id int64) (*molecule.Molecule, error) {
	var m moleculeModel
	err := t.db.WithContext(ctx).First(&m, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Newf(errors.ErrCodeMoleculeNotFound, "molecule %d not found", id)
	}
	if err != nil {
		return nil, mapError(err, "failed to get molecule")
	}
	return toMolecule(m), nil
}

func (t *gormTx) InsertMatches(ctx context.Context, matches []*molecule.Match) error {
	if len(matches) == 0 {
		return nil
	}
	rows := make([]matchModel, len(matches))
	for i, m := range matches {
		rows[i] = matchModel{MoleculeID: m.MoleculeID, SMARTSID: m.SMARTSID}
	}
	if err := t.db.WithContext(ctx).CreateInBatches(&rows, batchSize).Error; err != nil {
		return mapError(err, "failed to insert matches")
	}
	for i := range rows {
		matches[i].ID = rows[i].ID
	}
	return nil
}

type matchViewRow struct {
	MoleculeID   int64  `gorm:"column:molecule_id"`
	MoleculeName string `gorm:"column:molecule_name"`
	SMARTSID     int64  `gorm:"column:smarts_id"`
}

func (t *gormTx) ListMatches(ctx context.Context, setID int64) ([]molecule.MatchView, error) {
	var rows []matchViewRow
	err := t.db.WithContext(ctx).Table("matches AS x").
		Select("m.id AS molecule_id, m.name AS molecule_name, x.smarts_id AS smarts_id").
		Joins("JOIN molecules m ON m.id = x.molecule_id").
		Where("m.set_id = ?", setID).
		Order("m.id, x.smarts_id").
		Scan(&rows).Error
	if err != nil {
		return nil, mapError(err, "failed to query matches")
	}
	out := make([]molecule.MatchView, 0, len(rows))
	for _, r := range rows {
		out = append(out, molecule.MatchView(r))
	}
	return out, nil
}

func (t *gormTx) CountMatches(ctx context.Context) (int64, error) {
	return countRows(t.db.WithContext(ctx), &matchModel{}, "matches")
}

func (t *gormTx) DeleteAllMolecules(ctx context.Context) error {
	err := t.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&moleculeSetModel{}).Error
	if err != nil {
		return mapError(err, "failed to delete molecule sets")
	}
	return nil
}
