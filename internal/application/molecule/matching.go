package molecule

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	domain "github.com/turtacn/SMARTSexplore/internal/domain/molecule"
	"github.com/turtacn/SMARTSexplore/internal/domain/pattern"
	smartsdomain "github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/process"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

// UploadInput is one uploaded molecule file.
type UploadInput struct {
	Filename string
	Data     []byte
}

// AddSetInput is a molecule file imported from the command line.
type AddSetInput struct {
	Name   string
	Reader io.Reader
	Match  bool
}

// AddSetResult summarizes AddMoleculeSet.
type AddSetResult struct {
	MoleculeSetID int64 `json:"molecule_set_id"`
	Molecules     int   `json:"molecules"`
	Matches       int   `json:"matches"`
	Ignored       []int `json:"ignored,omitempty"`
}

// ValidateUpload checks the extension, the encoding and the number of
// molecule lines. Lines starting with '#' are not counted.
func (s *serviceImpl) ValidateUpload(filename string, data []byte) error {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if !strings.Contains(filename, ".") || !s.extensionAllowed(strings.ToLower(ext)) {
		return errors.New(errors.ErrCodeUploadValidation, "Please upload a "+s.extensionList()+" file!")
	}
	if !utf8.Valid(data) {
		return errors.New(errors.ErrCodeUploadValidation,
			"Could not decode file as UTF8 text! Are you sure this is a molecule file?")
	}

	n := 0
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if len(line) == 0 || bytes.HasPrefix(line, []byte("#")) {
			continue
		}
		n++
	}
	if n > s.cfg.MaxMolecules {
		return errors.Newf(errors.ErrCodeUploadValidation,
			"You seem to have uploaded %d molecules. Please upload a file with %d molecules or less!",
			n, s.cfg.MaxMolecules)
	}
	return nil
}

func (s *serviceImpl) extensionAllowed(ext string) bool {
	for _, a := range s.cfg.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// extensionList renders ["smi","smiles"] as ".smi or .smiles".
func (s *serviceImpl) extensionList() string {
	exts := make([]string, len(s.cfg.AllowedExtensions))
	for i, e := range s.cfg.AllowedExtensions {
		exts[i] = "." + e
	}
	switch len(exts) {
	case 0:
		return "molecule"
	case 1:
		return exts[0]
	default:
		return strings.Join(exts[:len(exts)-1], ", ") + " or " + exts[len(exts)-1]
	}
}

// Upload imports the file as a new molecule set, matches every stored SMARTS
// against it and renders its molecules. A failure after the set was created
// removes the set, its matches and its images.
func (s *serviceImpl) Upload(ctx context.Context, input *UploadInput) (*graph.MatchList, error) {
	if err := s.ValidateUpload(input.Filename, input.Data); err != nil {
		return nil, err
	}
	parsed, err := pattern.ParseImport(bytes.NewReader(input.Data), pattern.LabelOptional)
	if err != nil {
		return nil, err
	}

	set, _, err := s.importSet(ctx, input.Filename, parsed.Entries, true)
	if err != nil {
		return nil, err
	}
	if s.images != nil {
		if _, err := s.renderSet(ctx, set); err != nil {
			s.compensate(set.ID, err)
			s.metrics.ObservePipeline(kindMatches, outcomeCompensated, 0)
			return nil, errors.Wrap(err, errors.ErrCodePipelineFailure, "molecule rendering failed")
		}
	}
	return s.Matches(ctx, set.ID)
}

// AddMoleculeSet imports "pattern label" lines as a molecule set.
func (s *serviceImpl) AddMoleculeSet(ctx context.Context, input *AddSetInput) (*AddSetResult, error) {
	parsed, err := pattern.ParseImport(input.Reader, pattern.LabelRequired)
	if err != nil {
		return nil, err
	}
	if ierr := parsed.IgnoredError(); ierr != nil {
		s.logger.Warn("molecule lines ignored", logging.String("name", input.Name), logging.Err(ierr))
	}

	set, matched, err := s.importSet(ctx, input.Name, parsed.Entries, input.Match)
	if err != nil {
		return nil, err
	}
	return &AddSetResult{
		MoleculeSetID: set.ID,
		Molecules:     len(set.Molecules),
		Matches:       matched,
		Ignored:       parsed.Ignored,
	}, nil
}

// importSet stores entries as a new set and, when match is set, runs the
// match tool against every stored SMARTS.
func (s *serviceImpl) importSet(ctx context.Context, name string, entries []pattern.Entry, match bool) (*domain.MoleculeSet, int, error) {
	start := time.Now()
	mols := make([]*domain.Molecule, len(entries))
	for i, e := range entries {
		mols[i] = &domain.Molecule{Name: e.Name, Pattern: e.Pattern}
	}
	set, err := domain.NewMoleculeSet(name, mols)
	if err != nil {
		return nil, 0, err
	}

	var items []*smartsdomain.SMARTS
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateSet(ctx, set); err != nil {
			return err
		}
		if !match {
			return nil
		}
		var err error
		items, err = tx.ListSMARTS(ctx)
		return err
	})
	if err != nil {
		s.metrics.ObservePipeline(kindMatches, outcomeFailed, time.Since(start))
		return nil, 0, err
	}
	log := s.logger.With(logging.Int64("molecule_set_id", set.ID), logging.Int("molecules", len(set.Molecules)))

	matched := 0
	if match && len(items) > 0 && len(set.Molecules) > 0 {
		matched, err = s.matchSet(ctx, set, items)
		if err != nil {
			s.compensate(set.ID, err)
			s.metrics.ObservePipeline(kindMatches, outcomeCompensated, time.Since(start))
			return nil, 0, errors.Wrap(err, errors.ErrCodePipelineFailure, "molecule matching failed")
		}
	} else if match && len(items) == 0 {
		log.Warn("no SMARTS stored, molecule set kept without matches")
	}

	log.Info("molecule set imported", logging.Int("matches", matched), logging.Duration("duration", time.Since(start)))
	s.metrics.AddMatches(matched)
	s.metrics.ObservePipeline(kindMatches, outcomeOK, time.Since(start))
	s.publish(ctx, ports.Event{
		Type:    ports.EventMoleculesMatched,
		Key:     name,
		Payload: ports.MoleculesMatched{MoleculeSetID: set.ID, Molecules: len(set.Molecules), Matches: matched},
	})
	return set, matched, nil
}

// matchSet runs the match tool in strict mode and stores the resolved
// matches in one transaction.
func (s *serviceImpl) matchSet(ctx context.Context, set *domain.MoleculeSet, items []*smartsdomain.SMARTS) (int, error) {
	molIn, err := pattern.WriteToolInput(s.cfg.WorkDir, "molecules", set.Molecules)
	if err != nil {
		return 0, err
	}
	defer molIn.Close()
	smartsIn, err := pattern.WriteToolInput(s.cfg.WorkDir, "smarts", items)
	if err != nil {
		return 0, err
	}
	defer smartsIn.Close()

	out, err := os.CreateTemp(s.cfg.WorkDir, "matchtool-*.out")
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create match output file")
	}
	defer func() {
		out.Close()
		os.Remove(out.Name())
	}()

	if _, err := s.runner.Run(ctx, process.Command{
		Tool:    ToolMatch,
		Path:    s.cfg.MatchToolPath,
		Args:    []string{"-i", "2", "-m", molIn.Path, "-s", smartsIn.Path},
		Timeout: s.cfg.Timeout,
		Stdout:  out,
		Strict:  true,
	}); err != nil {
		return 0, err
	}
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorageError, "failed to rewind match output")
	}

	records, err := domain.ParseMatchOutput(out)
	if err != nil {
		return 0, err
	}
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	matches, err := domain.ResolveMatches(records, set, ids)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}
	if err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertMatches(ctx, matches)
	}); err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (s *serviceImpl) publish(ctx context.Context, evt ports.Event) {
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish event", logging.String("type", evt.Type), logging.Err(err))
	}
}
