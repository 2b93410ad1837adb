package smarts

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/domain/pattern"
	domain "github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/process"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// CalculateEdgesInput selects the comparison mode. Strict makes a failing
// comparison tool an error instead of a degraded report; it is also forced on
// by Config.Strict.
type CalculateEdgesInput struct {
	Mode   string
	Strict bool
}

// EdgeReport summarizes one edge calculation.
type EdgeReport struct {
	Mode       string        `json:"mode"`
	SMARTS     int           `json:"smarts"`
	Processed  int           `json:"processed"`
	Added      int           `json:"added"`
	Duplicates int           `json:"duplicates"`
	Skipped    bool          `json:"skipped,omitempty"`
	ToolFailed bool          `json:"tool_failed,omitempty"`
	Duration   time.Duration `json:"duration"`
	// DirectedEdgeIDs lists the ids of new directed edges.
	DirectedEdgeIDs []int64 `json:"directed_edge_ids,omitempty"`
}

// compareArgs builds the comparison tool command line.
func compareArgs(mode domain.Mode, input string, cfg Config) []string {
	args := []string{input, "-M", "-1"}
	if mode == domain.ModeSimilarity {
		args = append(args, "-t", strconv.FormatFloat(cfg.SimilarityThreshold, 'f', -1, 64))
	}
	return append(args,
		"-p", strconv.Itoa(cfg.CompareWorkers),
		"-d", "|",
		"-D", "`",
		"-m", strconv.Itoa(mode.ID()),
	)
}

// CalculateEdges runs the comparison tool over every stored SMARTS and stores
// the edges that do not exist yet. All edges of one run are committed
// together; any parse or consistency error rolls the whole run back.
func (s *serviceImpl) CalculateEdges(ctx context.Context, input *CalculateEdgesInput) (*EdgeReport, error) {
	mode, err := domain.ParseRequestedMode(input.Mode)
	if err != nil {
		return nil, err
	}
	strict := input.Strict || s.cfg.Strict
	log := s.logger.With(logging.String("mode", mode.String()))
	start := time.Now()
	report := &EdgeReport{Mode: mode.String()}

	release, err := s.lock.Acquire(ctx, edgesLockName)
	if err != nil {
		return nil, err
	}
	defer s.release(release)

	var items []*domain.SMARTS
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		items, err = tx.ListSMARTS(ctx)
		return err
	})
	if err != nil {
		s.metrics.ObservePipeline(kindEdges, outcomeFailed, time.Since(start))
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to load SMARTS")
	}
	report.SMARTS = len(items)
	if len(items) == 0 {
		log.Warn("no SMARTS stored, skipping edge calculation")
		report.Skipped = true
		report.Duration = time.Since(start)
		s.metrics.ObservePipeline(kindEdges, outcomeSkipped, report.Duration)
		return report, nil
	}

	in, err := pattern.WriteToolInput(s.cfg.WorkDir, "smarts", items)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	out, err := os.CreateTemp(s.cfg.WorkDir, "smartscompare-*.out")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create comparison output file")
	}
	defer func() {
		out.Close()
		os.Remove(out.Name())
	}()

	res, err := s.runner.Run(ctx, process.Command{
		Tool:    ToolCompare,
		Path:    s.cfg.ComparePath,
		Args:    compareArgs(mode, in.Path, s.cfg),
		Timeout: s.cfg.Timeout,
		Stdout:  out,
		Strict:  strict,
	})
	if err != nil {
		s.metrics.ObservePipeline(kindEdges, outcomeFailed, time.Since(start))
		return nil, err
	}
	if res.Failed() {
		log.Warn("comparison tool failed, no edges written", logging.Int("exit_code", res.ExitCode))
		report.ToolFailed = true
		report.Duration = time.Since(start)
		s.metrics.ObservePipeline(kindEdges, outcomeToolFailed, report.Duration)
		return report, nil
	}
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to rewind comparison output")
	}

	var rec *domain.Reconciliation
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.EdgePairs(ctx, mode)
		if err != nil {
			return err
		}
		current, err := tx.ListSMARTS(ctx)
		if err != nil {
			return err
		}
		r, err := domain.NewReconciler(mode, existing, smartsIDs(current))
		if err != nil {
			return err
		}
		rec, err = r.Reconcile(domain.NewCompareParser(out))
		if err != nil {
			return err
		}
		if len(rec.Undirected) > 0 {
			if err := tx.InsertUndirectedEdges(ctx, rec.Undirected); err != nil {
				return err
			}
		}
		if len(rec.Directed) > 0 {
			if err := tx.InsertDirectedEdges(ctx, rec.Directed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("edge calculation rolled back", logging.Err(err))
		s.metrics.ObservePipeline(kindEdges, outcomeFailed, time.Since(start))
		return nil, err
	}

	report.Processed = rec.Processed
	report.Added = rec.Added()
	report.Duplicates = len(rec.Duplicates)
	for _, e := range rec.Directed {
		report.DirectedEdgeIDs = append(report.DirectedEdgeIDs, e.ID)
	}
	report.Duration = time.Since(start)

	log.Info("edge calculation finished",
		logging.Int("processed", report.Processed),
		logging.Int("added", report.Added),
		logging.Int("duplicates", report.Duplicates),
		logging.Duration("duration", report.Duration))

	s.metrics.AddEdges(mode.String(), report.Added, report.Duplicates)
	s.metrics.ObservePipeline(kindEdges, outcomeOK, report.Duration)
	if report.Added > 0 {
		s.invalidateGraphs(ctx)
		s.publish(ctx, ports.Event{
			Type: ports.EventEdgesCalculated,
			Key:  mode.String(),
			Payload: ports.EdgesCalculated{
				Mode:            mode.String(),
				Added:           report.Added,
				Duplicates:      report.Duplicates,
				DirectedEdgeIDs: report.DirectedEdgeIDs,
			},
		})
	}
	return report, nil
}
