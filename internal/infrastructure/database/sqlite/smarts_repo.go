package sqlite

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

func toSMARTS(m smartsModel) *smarts.SMARTS {
	return &smarts.SMARTS{ID: m.ID, Name: m.Name, Pattern: m.Pattern, Library: m.Library}
}

func toSMARTSList(rows []smartsModel) []*smarts.SMARTS {
	out := make([]*smarts.SMARTS, 0, len(rows))
	for _, m := range rows {
		out = append(out, toSMARTS(m))
	}
	return out
}

func (t *gormTx) CreateSMARTS(ctx context.Context, items []*smarts.SMARTS) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]smartsModel, len(items))
	for i, s := range items {
		rows[i] = smartsModel{Name: s.Name, Pattern: s.Pattern, Library: s.Library}
	}
	if err := t.db.WithContext(ctx).CreateInBatches(&rows, batchSize).Error; err != nil {
		return mapError(err, "failed to insert SMARTS")
	}
	for i := range rows {
		items[i].ID = rows[i].ID
	}
	return nil
}

func (t *gormTx) ListSMARTS(ctx context.Context) ([]*smarts.SMARTS, error) {
	var rows []smartsModel
	if err := t.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, mapError(err, "failed to query SMARTS")
	}
	return toSMARTSList(rows), nil
}

func (t *gormTx) GetSMARTS(ctx context.Context, id int64) (*smarts.SMARTS, error) {
	var m smartsModel
	err := t.db.WithContext(ctx).First(&m, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Newf(errors.ErrCodeSMARTSNotFound, "SMARTS %d not found", id)
	}
	if err != nil {
		return nil, mapError(err, "failed to get SMARTS")
	}
	return toSMARTS(m), nil
}

func (t *gormTx) ListSMARTSByIDs(ctx context.Context, ids []int64) ([]*smarts.SMARTS, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []smartsModel
	if err := t.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return nil, mapError(err, "failed to query SMARTS")
	}
	return toSMARTSList(rows), nil
}

func (t *gormTx) CountSMARTS(ctx context.Context) (int64, error) {
	return countRows(t.db.WithContext(ctx), &smartsModel{}, "SMARTS")
}

func (t *gormTx) LibraryExists(ctx context.Context, library string) (bool, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&smartsModel{}).Where("library = ?", library).Limit(1).Count(&n).Error
	if err != nil {
		return false, mapError(err, "failed to look up library")
	}
	return n > 0, nil
}

func (t *gormTx) DeleteLibrary(ctx context.Context, library string) (int64, error) {
	res := t.db.WithContext(ctx).Where("library = ?", library).Delete(&smartsModel{})
	if res.Error != nil {
		return 0, mapError(res.Error, "failed to delete library")
	}
	return res.RowsAffected, nil
}

func (t *gormTx) EdgePairs(ctx context.Context, mode smarts.Mode) ([]smarts.Pair, error) {
	q := t.db.WithContext(ctx)
	switch mode {
	case smarts.ModeSimilarity:
		q = q.Model(&undirectedEdgeModel{}).Select("low_id AS a, high_id AS b")
	case smarts.ModeSubsetOfFirst:
		q = q.Model(&directedEdgeModel{}).Select("from_id AS a, to_id AS b")
	default:
		return nil, errors.Newf(errors.ErrCodeModeNotImplemented, "mode %s is not implemented", mode)
	}
	var pairs []smarts.Pair
	if err := q.Order("id").Scan(&pairs).Error; err != nil {
		return nil, mapError(err, "failed to query edge keys")
	}
	return pairs, nil
}

func (t *gormTx) InsertUndirectedEdges(ctx context.Context, edges []*smarts.UndirectedEdge) error {
	if len(edges) == 0 {
		return nil
	}
	rows := make([]undirectedEdgeModel, len(edges))
	for i, e := range edges {
		rows[i] = undirectedEdgeModel{LowID: e.LowID, HighID: e.HighID, MCSSim: e.MCSSim, SPSim: e.SPSim}
	}
	if err := t.db.WithContext(ctx).CreateInBatches(&rows, batchSize).Error; err != nil {
		return mapError(err, "failed to insert similarity edges")
	}
	for i := range rows {
		edges[i].ID = rows[i].ID
	}
	return nil
}

func (t *gormTx) InsertDirectedEdges(ctx context.Context, edges []*smarts.DirectedEdge) error {
	if len(edges) == 0 {
		return nil
	}
	rows := make([]directedEdgeModel, len(edges))
	for i, e := range edges {
		rows[i] = directedEdgeModel{FromID: e.FromID, ToID: e.ToID, MCSSim: e.MCSSim, SPSim: e.SPSim}
	}
	if err := t.db.WithContext(ctx).CreateInBatches(&rows, batchSize).Error; err != nil {
		return mapError(err, "failed to insert subset edges")
	}
	for i := range rows {
		edges[i].ID = rows[i].ID
	}
	return nil
}

func toDirected(m directedEdgeModel) smarts.DirectedEdge {
	return smarts.DirectedEdge{ID: m.ID, FromID: m.FromID, ToID: m.ToID, MCSSim: m.MCSSim, SPSim: m.SPSim}
}

func (t *gormTx) ListDirectedEdges(ctx context.Context, minSP, maxSP float64) ([]*smarts.DirectedEdge, error) {
	var rows []directedEdgeModel
	err := t.db.WithContext(ctx).Where("spsim >= ? AND spsim <= ?", minSP, maxSP).Order("id").Find(&rows).Error
	if err != nil {
		return nil, mapError(err, "failed to query subset edges")
	}
	out := make([]*smarts.DirectedEdge, 0, len(rows))
	for _, m := range rows {
		e := toDirected(m)
		out = append(out, &e)
	}
	return out, nil
}

type subsetEdgeRow struct {
	ID          int64   `gorm:"column:id"`
	FromID      int64   `gorm:"column:from_id"`
	ToID        int64   `gorm:"column:to_id"`
	MCSSim      float64 `gorm:"column:mcssim"`
	SPSim       float64 `gorm:"column:spsim"`
	FromPattern string  `gorm:"column:from_pattern"`
	ToPattern   string  `gorm:"column:to_pattern"`
}

func (t *gormTx) ListSubsetEdges(ctx context.Context, ids []int64) ([]*smarts.SubsetEdge, error) {
	q := t.db.WithContext(ctx).Table("directed_edges AS e").
		Select("e.id, e.from_id, e.to_id, e.mcssim, e.spsim, f.pattern AS from_pattern, o.pattern AS to_pattern").
		Joins("JOIN smarts f ON f.id = e.from_id").
		Joins("JOIN smarts o ON o.id = e.to_id")
	if len(ids) > 0 {
		q = q.Where("e.id IN ?", ids)
	}
	var rows []subsetEdgeRow
	if err := q.Order("e.id").Scan(&rows).Error; err != nil {
		return nil, mapError(err, "failed to query subset edges")
	}
	out := make([]*smarts.SubsetEdge, 0, len(rows))
	for _, r := range rows {
		out = append(out, &smarts.SubsetEdge{
			DirectedEdge: smarts.DirectedEdge{ID: r.ID, FromID: r.FromID, ToID: r.ToID, MCSSim: r.MCSSim, SPSim: r.SPSim},
			FromPattern:  r.FromPattern,
			ToPattern:    r.ToPattern,
		})
	}
	return out, nil
}

func (t *gormTx) DeleteEdges(ctx context.Context) error {
	db := t.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := db.Delete(&directedEdgeModel{}).Error; err != nil {
		return mapError(err, "failed to delete subset edges")
	}
	if err := db.Delete(&undirectedEdgeModel{}).Error; err != nil {
		return mapError(err, "failed to delete similarity edges")
	}
	return nil
}
