// Package smarts provides the application-level service for SMARTS
// libraries: library import, edge calculation, graph queries, image
// rendering and graph export.
package smarts

import (
	"context"
	"io"
	"time"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	"github.com/turtacn/SMARTSexplore/internal/config"
	domain "github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/process"
	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

// Tool labels passed to the process runner.
const (
	ToolCompare = "smartscompare"
	ToolViewer  = "smartsviewer"
)

// Pipeline kinds and outcomes reported to the metrics port.
const (
	kindEdges   = "edges"
	kindLibrary = "library"

	outcomeOK         = "ok"
	outcomeSkipped    = "skipped"
	outcomeToolFailed = "tool_failed"
	outcomeFailed     = "failed"
)

const (
	edgesLockName    = "pipeline:edges"
	graphCachePrefix = "graph:"
)

// Service defines the SMARTS application operations.
type Service interface {
	ImportLibrary(ctx context.Context, input *ImportLibraryInput) (*ImportLibraryResult, error)
	CalculateEdges(ctx context.Context, input *CalculateEdgesInput) (*EdgeReport, error)
	Graph(ctx context.Context, minSP, maxSP float64) (*graph.Graph, error)
	RenderSMARTS(ctx context.Context, ids []int64) (*RenderReport, error)
	RenderSubsets(ctx context.Context, edgeIDs []int64) (*RenderReport, error)
	OpenSMARTSImage(ctx context.Context, id int64) (io.ReadCloser, error)
	OpenSubsetImage(ctx context.Context, edgeID int64) (io.ReadCloser, error)
	ExportGraph(ctx context.Context) (*ports.ExportStats, error)
	ResetEdges(ctx context.Context) error
}

// Config tunes the external tools.
type Config struct {
	ComparePath         string
	ViewerPath          string
	WorkDir             string
	Timeout             time.Duration
	CompareWorkers      int
	SimilarityThreshold float64
	RenderWorkers       int
	Strict              bool
	CacheTTL            time.Duration
}

// ConfigFrom maps the tools section of the application config.
func ConfigFrom(tools config.ToolsConfig, cacheTTL time.Duration) Config {
	return Config{
		ComparePath:         tools.SMARTSComparePath,
		ViewerPath:          tools.SMARTSCompareViewerPath,
		WorkDir:             tools.WorkDir,
		Timeout:             tools.Timeout,
		CompareWorkers:      tools.CompareWorkers,
		SimilarityThreshold: tools.SimilarityThreshold,
		RenderWorkers:       tools.RenderWorkers,
		Strict:              tools.Strict,
		CacheTTL:            cacheTTL,
	}
}

// Deps are the collaborators of the service. Store and Runner are required;
// nil ports fall back to no-op implementations, and a nil Exporter disables
// ExportGraph.
type Deps struct {
	Store    store.Store
	Runner   process.Runner
	Logger   logging.Logger
	Lock     ports.LockPort
	Cache    ports.CachePort
	Events   ports.EventPort
	Metrics  ports.MetricsPort
	Images   ports.ImagePort
	Exporter ports.GraphExportPort
}

type serviceImpl struct {
	cfg      Config
	store    store.Store
	runner   process.Runner
	logger   logging.Logger
	lock     ports.LockPort
	cache    ports.CachePort
	events   ports.EventPort
	metrics  ports.MetricsPort
	images   ports.ImagePort
	exporter ports.GraphExportPort
}

// NewService creates the SMARTS application service.
func NewService(cfg Config, deps Deps) Service {
	if cfg.CompareWorkers < 1 {
		cfg.CompareWorkers = 1
	}
	if cfg.RenderWorkers < 1 {
		cfg.RenderWorkers = 1
	}
	s := &serviceImpl{
		cfg:      cfg,
		store:    deps.Store,
		runner:   deps.Runner,
		logger:   deps.Logger,
		lock:     deps.Lock,
		cache:    deps.Cache,
		events:   deps.Events,
		metrics:  deps.Metrics,
		images:   deps.Images,
		exporter: deps.Exporter,
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	s.logger = s.logger.Named("smarts")
	if s.lock == nil {
		s.lock = ports.NewNopLock()
	}
	if s.cache == nil {
		s.cache = ports.NewNopCache()
	}
	if s.events == nil {
		s.events = ports.NewNopEvents()
	}
	if s.metrics == nil {
		s.metrics = ports.NewNopMetrics()
	}
	return s
}

// ResetEdges deletes every edge and invalidates cached graphs.
func (s *serviceImpl) ResetEdges(ctx context.Context) error {
	release, err := s.lock.Acquire(ctx, edgesLockName)
	if err != nil {
		return err
	}
	defer s.release(release)

	if err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteEdges(ctx)
	}); err != nil {
		return err
	}
	s.invalidateGraphs(ctx)
	if s.images != nil {
		if err := s.images.DeletePrefix(ctx, ports.SubsetImagePrefix); err != nil {
			s.logger.Warn("failed to delete subset images", logging.Err(err))
		}
	}
	s.logger.Info("all edges deleted")
	return nil
}

func (s *serviceImpl) release(release func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := release(ctx); err != nil {
		s.logger.Warn("failed to release pipeline lock", logging.Err(err))
	}
}

func (s *serviceImpl) invalidateGraphs(ctx context.Context) {
	n, err := s.cache.DeleteByPrefix(ctx, graphCachePrefix)
	if err != nil {
		s.logger.Warn("failed to invalidate cached graphs", logging.Err(err))
		return
	}
	if n > 0 {
		s.logger.Debug("cached graphs invalidated", logging.Int64("keys", n))
	}
}

func (s *serviceImpl) publish(ctx context.Context, evt ports.Event) {
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish event", logging.String("type", evt.Type), logging.Err(err))
	}
}

func smartsIDs(items []*domain.SMARTS) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
