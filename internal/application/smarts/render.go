package smarts

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	domain "github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/process"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// Image kinds reported to the metrics port.
const (
	imageKindSMARTS = "smarts"
	imageKindSubset = "subset"
)

// viewerStyle is the fixed drawing style of every SMARTS view.
var viewerStyle = []string{"-p", "0", "0", "0", "0", "0", "0", "0", "1", "-d", "300", "300"}

// RenderReport counts the images of one render run. Failed renders are
// logged and counted, never returned as errors.
type RenderReport struct {
	Rendered int           `json:"rendered"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

type renderJob struct {
	key  string
	args func(out string) []string
}

// RenderSMARTS draws the SMARTS with the given ids, or every SMARTS when ids
// is empty.
func (s *serviceImpl) RenderSMARTS(ctx context.Context, ids []int64) (*RenderReport, error) {
	if s.images == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "image storage is not configured")
	}
	var items []*domain.SMARTS
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if len(ids) == 0 {
			items, err = tx.ListSMARTS(ctx)
		} else {
			items, err = tx.ListSMARTSByIDs(ctx, ids)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]renderJob, len(items))
	for i, it := range items {
		pat := it.Pattern
		jobs[i] = renderJob{
			key: ports.SMARTSImageKey(it.ID),
			args: func(out string) []string {
				return append(append([]string{}, viewerStyle...), "-o", out, "-s", pat)
			},
		}
	}
	return s.render(ctx, imageKindSMARTS, jobs)
}

// RenderSubsets draws the directed edges with the given ids, or every
// directed edge when edgeIDs is empty.
func (s *serviceImpl) RenderSubsets(ctx context.Context, edgeIDs []int64) (*RenderReport, error) {
	if s.images == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "image storage is not configured")
	}
	var edges []*domain.SubsetEdge
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		edges, err = tx.ListSubsetEdges(ctx, edgeIDs)
		return err
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]renderJob, len(edges))
	for i, e := range edges {
		from, to := e.FromPattern, e.ToPattern
		jobs[i] = renderJob{
			key: ports.SubsetImageKey(e.ID),
			args: func(out string) []string {
				return append(append([]string{}, viewerStyle...), "-o", out, "-s", from, to, "-m3")
			},
		}
	}
	return s.render(ctx, imageKindSubset, jobs)
}

// render runs the viewer for every job on a pool of RenderWorkers goroutines.
func (s *serviceImpl) render(ctx context.Context, kind string, jobs []renderJob) (*RenderReport, error) {
	start := time.Now()
	report := &RenderReport{}
	if len(jobs) == 0 {
		return report, nil
	}

	dir, err := os.MkdirTemp(s.cfg.WorkDir, "render-"+kind+"-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create render dir")
	}
	defer os.RemoveAll(dir)

	var rendered, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.RenderWorkers)
	for i, job := range jobs {
		g.Go(func() error {
			out := filepath.Join(dir, strconv.Itoa(i)+".svg")
			res, err := s.runner.Run(gctx, process.Command{
				Tool:    ToolViewer,
				Path:    s.cfg.ViewerPath,
				Args:    job.args(out),
				Timeout: s.cfg.Timeout,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				s.logger.Warn("render failed", logging.String("key", job.key), logging.Err(err))
				return nil
			}
			if res.Failed() {
				failed.Add(1)
				return nil
			}
			if err := s.images.PutFile(gctx, job.key, out); err != nil {
				failed.Add(1)
				s.logger.Warn("failed to store image", logging.String("key", job.key), logging.Err(err))
				return nil
			}
			rendered.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTimeout, "rendering interrupted")
	}

	report.Rendered = int(rendered.Load())
	report.Failed = int(failed.Load())
	report.Duration = time.Since(start)
	s.metrics.AddImages(kind, report.Rendered, report.Failed)
	s.logger.Info("images rendered",
		logging.String("kind", kind),
		logging.Int("rendered", report.Rendered),
		logging.Int("failed", report.Failed),
		logging.Duration("duration", report.Duration))
	return report, nil
}

// OpenSMARTSImage returns the stored view of one SMARTS.
func (s *serviceImpl) OpenSMARTSImage(ctx context.Context, id int64) (io.ReadCloser, error) {
	if s.images == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "image storage is not configured")
	}
	return s.images.Open(ctx, ports.SMARTSImageKey(id))
}

// OpenSubsetImage returns the stored view of one directed edge.
func (s *serviceImpl) OpenSubsetImage(ctx context.Context, edgeID int64) (io.ReadCloser, error) {
	if s.images == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "image storage is not configured")
	}
	return s.images.Open(ctx, ports.SubsetImageKey(edgeID))
}
