package smarts

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/domain/pattern"
	domain "github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// ImportLibraryInput is one library file. Force replaces a library that was
// imported before under the same name.
type ImportLibraryInput struct {
	Name   string
	Reader io.Reader
	Force  bool
}

// ImportLibraryResult summarizes a library import.
type ImportLibraryResult struct {
	Library  string  `json:"library"`
	Added    int     `json:"added"`
	Replaced int64   `json:"replaced,omitempty"`
	IDs      []int64 `json:"ids"`
	// Ignored lists the 1-based numbers of unusable lines.
	Ignored []int `json:"ignored,omitempty"`
}

// LibraryName derives a library name from a file path: the base name with a
// trailing ".smarts" removed.
func LibraryName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".smarts")
}

// ImportLibrary parses "pattern label" lines and stores them as one library
// in a single transaction.
func (s *serviceImpl) ImportLibrary(ctx context.Context, input *ImportLibraryInput) (*ImportLibraryResult, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "library name is required")
	}
	start := time.Now()
	log := s.logger.With(logging.String("library", input.Name))

	parsed, err := pattern.ParseImport(input.Reader, pattern.LabelRequired)
	if err != nil {
		return nil, err
	}
	if ierr := parsed.IgnoredError(); ierr != nil {
		log.Warn("library lines ignored", logging.Err(ierr))
	}

	items := make([]*domain.SMARTS, len(parsed.Entries))
	for i, e := range parsed.Entries {
		items[i] = &domain.SMARTS{Name: e.Name, Pattern: e.Pattern, Library: input.Name}
	}
	result := &ImportLibraryResult{Library: input.Name, Ignored: parsed.Ignored}

	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		exists, err := tx.LibraryExists(ctx, input.Name)
		if err != nil {
			return err
		}
		if exists {
			if !input.Force {
				return errors.Newf(errors.ErrCodeLibraryExists, "library %q already imported", input.Name)
			}
			if result.Replaced, err = tx.DeleteLibrary(ctx, input.Name); err != nil {
				return err
			}
		}
		if len(items) == 0 {
			return nil
		}
		return tx.CreateSMARTS(ctx, items)
	})
	if err != nil {
		s.metrics.ObservePipeline(kindLibrary, outcomeFailed, time.Since(start))
		return nil, err
	}

	result.Added = len(items)
	result.IDs = smartsIDs(items)
	log.Info("library imported",
		logging.Int("added", result.Added),
		logging.Int64("replaced", result.Replaced),
		logging.Int("ignored", len(result.Ignored)))
	s.metrics.ObservePipeline(kindLibrary, outcomeOK, time.Since(start))

	s.invalidateGraphs(ctx)
	s.publish(ctx, ports.Event{
		Type:    ports.EventLibraryImported,
		Key:     input.Name,
		Payload: ports.LibraryImported{Library: input.Name, SMARTSIDs: result.IDs, Replaced: result.Replaced},
	})
	return result, nil
}
