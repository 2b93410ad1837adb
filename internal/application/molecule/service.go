// Package molecule provides the application-level service for molecule sets:
// upload validation, SMARTS matching with compensation, molecule depiction
// and match listing.
package molecule

import (
	"context"
	"io"
	"time"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/config"
	domain "github.com/turtacn/SMARTSexplore/internal/domain/molecule"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/process"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

// Tool labels passed to the process runner.
const (
	ToolMatch   = "matchtool"
	ToolMol2SVG = "mol2svg"
)

const (
	kindMatches = "matches"

	outcomeOK          = "ok"
	outcomeCompensated = "compensated"
	outcomeFailed      = "failed"
)

// Service defines the molecule application operations.
type Service interface {
	// ValidateUpload checks an uploaded file before anything is stored.
	ValidateUpload(filename string, data []byte) error
	// Upload validates, imports, matches and renders one uploaded file.
	// Any failure after the set was created removes the set again.
	Upload(ctx context.Context, input *UploadInput) (*graph.MatchList, error)
	// AddMoleculeSet imports a labelled molecule file, optionally matching it.
	AddMoleculeSet(ctx context.Context, input *AddSetInput) (*AddSetResult, error)
	Matches(ctx context.Context, setID int64) (*graph.MatchList, error)
	RenderSet(ctx context.Context, setID int64) (int, error)
	OpenMoleculeImage(ctx context.Context, setID, moleculeID int64) (io.ReadCloser, error)
	// OpenMoleculeImageByID resolves the molecule's set first.
	OpenMoleculeImageByID(ctx context.Context, moleculeID int64) (io.ReadCloser, error)
	ResetMolecules(ctx context.Context) error
}

// Config tunes the external tools and the upload limits.
type Config struct {
	MatchToolPath     string
	Mol2SVGPath       string
	WorkDir           string
	Timeout           time.Duration
	AllowedExtensions []string
	MaxMolecules      int
}

// ConfigFrom maps the tools and upload sections of the application config.
func ConfigFrom(tools config.ToolsConfig, upload config.UploadConfig) Config {
	return Config{
		MatchToolPath:     tools.MatchToolPath,
		Mol2SVGPath:       tools.Mol2SVGPath,
		WorkDir:           tools.WorkDir,
		Timeout:           tools.Timeout,
		AllowedExtensions: append([]string(nil), upload.AllowedExtensions...),
		MaxMolecules:      upload.MaxMolecules,
	}
}

// Deps are the collaborators of the service. Store and Runner are required;
// nil ports fall back to no-op implementations, and a nil Images disables
// rendering.
type Deps struct {
	Store   store.Store
	Runner  process.Runner
	Logger  logging.Logger
	Events  ports.EventPort
	Metrics ports.MetricsPort
	Images  ports.ImagePort
}

type serviceImpl struct {
	cfg     Config
	store   store.Store
	runner  process.Runner
	logger  logging.Logger
	events  ports.EventPort
	metrics ports.MetricsPort
	images  ports.ImagePort
}

// NewService creates the molecule application service.
func NewService(cfg Config, deps Deps) Service {
	s := &serviceImpl{
		cfg:     cfg,
		store:   deps.Store,
		runner:  deps.Runner,
		logger:  deps.Logger,
		events:  deps.Events,
		metrics: deps.Metrics,
		images:  deps.Images,
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	s.logger = s.logger.Named("molecules")
	if s.events == nil {
		s.events = ports.NewNopEvents()
	}
	if s.metrics == nil {
		s.metrics = ports.NewNopMetrics()
	}
	return s
}

// Matches lists the matches of one molecule set.
func (s *serviceImpl) Matches(ctx context.Context, setID int64) (*graph.MatchList, error) {
	var rows []domain.MatchView
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetSet(ctx, setID); err != nil {
			return err
		}
		var err error
		rows, err = tx.ListMatches(ctx, setID)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &graph.MatchList{MoleculeSetID: setID, Matches: make([]graph.Match, len(rows))}
	for i, r := range rows {
		out.Matches[i] = graph.Match{MoleculeID: r.MoleculeID, MoleculeName: r.MoleculeName, SMARTSID: r.SMARTSID}
	}
	return out, nil
}

// ResetMolecules deletes every molecule set with its molecules, matches and
// images.
func (s *serviceImpl) ResetMolecules(ctx context.Context) error {
	if err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteAllMolecules(ctx)
	}); err != nil {
		return err
	}
	if s.images != nil {
		if err := s.images.DeletePrefix(ctx, ports.MoleculeImagePrefix); err != nil {
			s.logger.Warn("failed to delete molecule images", logging.Err(err))
		}
	}
	s.logger.Info("all molecule sets deleted")
	return nil
}

// compensate removes a set whose pipeline failed. Its own failure is logged;
// the caller reports the original error.
func (s *serviceImpl) compensate(setID int64, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log := s.logger.With(logging.Int64("molecule_set_id", setID))
	log.Warn("removing molecule set after failure", logging.Err(cause))
	if err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteSet(ctx, setID)
	}); err != nil && !errors.IsNotFound(err) {
		log.Error("failed to remove molecule set", logging.Err(err))
	}
	if s.images != nil {
		if err := s.images.DeletePrefix(ctx, ports.MoleculeSetImagePrefix(setID)); err != nil {
			log.Warn("failed to remove molecule images", logging.Err(err))
		}
	}
}
