package molecule

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	domain "github.com/turtacn/SMARTSexplore/internal/domain/molecule"
	"github.com/turtacn/SMARTSexplore/internal/domain/pattern"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/process"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

const imageKindMolecule = "molecule"

// RenderSet draws every molecule of a stored set and returns the number of
// images stored.
func (s *serviceImpl) RenderSet(ctx context.Context, setID int64) (int, error) {
	var set *domain.MoleculeSet
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		set, err = tx.GetSet(ctx, setID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return s.renderSet(ctx, set)
}

// mol2svgName is the file mol2svg writes for the given 1-based input line:
// img_<line> zero-padded to the digit count of n.
func mol2svgName(line, n int) string {
	digits := int(math.Ceil(math.Log10(float64(n + 1))))
	return fmt.Sprintf("img_%0*d.svg", digits, line)
}

// renderSet runs mol2svg once for the whole set and stores each output under
// the molecule's image key. A missing output file is logged and skipped.
func (s *serviceImpl) renderSet(ctx context.Context, set *domain.MoleculeSet) (int, error) {
	if s.images == nil {
		return 0, errors.New(errors.ErrCodeFeatureDisabled, "image storage is not configured")
	}
	if len(set.Molecules) == 0 {
		return 0, nil
	}
	start := time.Now()

	in, err := pattern.WriteToolInput(s.cfg.WorkDir, "molecules", set.Molecules)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	dir, err := os.MkdirTemp(s.cfg.WorkDir, "mol2svg-*")
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create render dir")
	}
	defer os.RemoveAll(dir)

	if _, err := s.runner.Run(ctx, process.Command{
		Tool:    ToolMol2SVG,
		Path:    s.cfg.Mol2SVGPath,
		Args:    []string{"-i", in.Path, "-o", filepath.Join(dir, "img.svg"), "-a", "-P"},
		Timeout: s.cfg.Timeout,
		Strict:  true,
	}); err != nil {
		return 0, err
	}

	log := s.logger.With(logging.Int64("molecule_set_id", set.ID))
	stored, missing := 0, 0
	for line := 1; line <= in.Count; line++ {
		molID, ok := in.Index.ID(line)
		if !ok {
			continue
		}
		src := filepath.Join(dir, mol2svgName(line, in.Count))
		if _, err := os.Stat(src); err != nil {
			missing++
			log.Warn("mol2svg output missing", logging.Int("line", line), logging.Int64("molecule_id", molID))
			continue
		}
		if err := s.images.PutFile(ctx, ports.MoleculeImageKey(set.ID, molID), src); err != nil {
			return stored, err
		}
		stored++
	}

	s.metrics.AddImages(imageKindMolecule, stored, missing)
	log.Info("molecules rendered",
		logging.Int("rendered", stored),
		logging.Int("missing", missing),
		logging.Duration("duration", time.Since(start)))
	return stored, nil
}

// OpenMoleculeImage returns the stored depiction of one molecule.
func (s *serviceImpl) OpenMoleculeImage(ctx context.Context, setID, moleculeID int64) (io.ReadCloser, error) {
	if s.images == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "image storage is not configured")
	}
	return s.images.Open(ctx, ports.MoleculeImageKey(setID, moleculeID))
}

func (s *serviceImpl) OpenMoleculeImageByID(ctx context.Context, moleculeID int64) (io.ReadCloser, error) {
	var mol *domain.Molecule
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		mol, err = tx.GetMolecule(ctx, moleculeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.OpenMoleculeImage(ctx, mol.SetID, moleculeID)
}
