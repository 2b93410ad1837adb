package sqlite

import "time"

type smartsModel struct {
	ID      int64  `gorm:"primaryKey;autoIncrement"`
	Name    string `gorm:"not null;default:''"`
	Pattern string `gorm:"not null"`
	Library string `gorm:"not null;index"`
}

func (smartsModel) TableName() string { return "smarts" }

type undirectedEdgeModel struct {
	ID     int64        `gorm:"primaryKey;autoIncrement"`
	LowID  int64        `gorm:"not null;uniqueIndex:idx_undirected_pair;check:low_id < high_id"`
	HighID int64        `gorm:"not null;uniqueIndex:idx_undirected_pair"`
	MCSSim float64      `gorm:"column:mcssim;not null"`
	SPSim  float64      `gorm:"column:spsim;not null"`
	Low    *smartsModel `gorm:"foreignKey:LowID;constraint:OnDelete:CASCADE"`
	High   *smartsModel `gorm:"foreignKey:HighID;constraint:OnDelete:CASCADE"`
}

func (undirectedEdgeModel) TableName() string { return "undirected_edges" }

type directedEdgeModel struct {
	ID     int64        `gorm:"primaryKey;autoIncrement"`
	FromID int64        `gorm:"not null;uniqueIndex:idx_directed_pair;check:from_id <> to_id"`
	ToID   int64        `gorm:"not null;uniqueIndex:idx_directed_pair"`
	MCSSim float64      `gorm:"column:mcssim;not null"`
	SPSim  float64      `gorm:"column:spsim;not null;index"`
	From   *smartsModel `gorm:"foreignKey:FromID;constraint:OnDelete:CASCADE"`
	To     *smartsModel `gorm:"foreignKey:ToID;constraint:OnDelete:CASCADE"`
}

func (directedEdgeModel) TableName() string { return "directed_edges" }

type moleculeSetModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"not null;default:''"`
	CreatedAt time.Time
}

func (moleculeSetModel) TableName() string { return "molecule_sets" }

type moleculeModel struct {
	ID      int64             `gorm:"primaryKey;autoIncrement"`
	SetID   int64             `gorm:"not null;index"`
	Name    string            `gorm:"not null;default:''"`
	Pattern string            `gorm:"not null"`
	Set     *moleculeSetModel `gorm:"foreignKey:SetID;constraint:OnDelete:CASCADE"`
}

func (moleculeModel) TableName() string { return "molecules" }

type matchModel struct {
	ID         int64          `gorm:"primaryKey;autoIncrement"`
	MoleculeID int64          `gorm:"not null;uniqueIndex:idx_match_pair"`
	SMARTSID   int64          `gorm:"column:smarts_id;not null;uniqueIndex:idx_match_pair;index"`
	Molecule   *moleculeModel `gorm:"foreignKey:MoleculeID;constraint:OnDelete:CASCADE"`
	SMARTS     *smartsModel   `gorm:"foreignKey:SMARTSID;constraint:OnDelete:CASCADE"`
}

func (matchModel) TableName() string { return "matches" }

// allModels is in dependency order for AutoMigrate.
var allModels = []interface{}{
	&smartsModel{},
	&undirectedEdgeModel{},
	&directedEdgeModel{},
	&moleculeSetModel{},
	&moleculeModel{},
	&matchModel{},
}
