package smarts

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	domain "github.com/turtacn/SMARTSexplore/internal/domain/smarts"
	"github.com/turtacn/SMARTSexplore/internal/domain/store"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

func graphCacheKey(minSP, maxSP float64) string {
	return fmt.Sprintf("%s%g:%g", graphCachePrefix, minSP, maxSP)
}

// Graph returns every SMARTS and the directed edges with minSP <= spsim <= maxSP.
func (s *serviceImpl) Graph(ctx context.Context, minSP, maxSP float64) (*graph.Graph, error) {
	for _, v := range []float64{minSP, maxSP} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New(errors.ErrCodeBadRequest, "similarity bounds must be finite numbers")
		}
	}

	var g graph.Graph
	err := s.cache.GetOrSet(ctx, graphCacheKey(minSP, maxSP), &g, s.cfg.CacheTTL, func(ctx context.Context) (interface{}, error) {
		return s.loadGraph(ctx, minSP, maxSP)
	})
	if err != nil {
		return nil, err
	}
	if g.Nodes == nil {
		g.Nodes = []graph.Node{}
	}
	if g.Edges == nil {
		g.Edges = []graph.Edge{}
	}
	return &g, nil
}

func (s *serviceImpl) loadGraph(ctx context.Context, minSP, maxSP float64) (*graph.Graph, error) {
	var (
		nodes []*domain.SMARTS
		edges []*domain.DirectedEdge
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if nodes, err = tx.ListSMARTS(ctx); err != nil {
			return err
		}
		edges, err = tx.ListDirectedEdges(ctx, minSP, maxSP)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toGraph(nodes, edges), nil
}

func toGraph(nodes []*domain.SMARTS, edges []*domain.DirectedEdge) *graph.Graph {
	g := &graph.Graph{
		Nodes: make([]graph.Node, len(nodes)),
		Edges: make([]graph.Edge, len(edges)),
	}
	for i, n := range nodes {
		g.Nodes[i] = graph.Node{ID: n.ID, Name: n.Name, Library: n.Library, Pattern: n.Pattern}
	}
	for i, e := range edges {
		g.Edges[i] = graph.Edge{ID: e.ID, Source: e.FromID, Target: e.ToID, MCSSim: e.MCSSim, SPSim: e.SPSim}
	}
	return g
}

// ExportGraph writes every SMARTS and every directed edge to the graph
// exporter.
func (s *serviceImpl) ExportGraph(ctx context.Context) (*ports.ExportStats, error) {
	if s.exporter == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "graph export is not configured")
	}
	start := time.Now()

	var (
		nodes []*domain.SMARTS
		edges []*domain.DirectedEdge
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if nodes, err = tx.ListSMARTS(ctx); err != nil {
			return err
		}
		edges, err = tx.ListDirectedEdges(ctx, -math.MaxFloat64, math.MaxFloat64)
		return err
	})
	if err != nil {
		return nil, err
	}

	stats, err := s.exporter.ExportGraph(ctx, nodes, edges)
	if err != nil {
		return nil, err
	}
	s.logger.Info("graph exported",
		logging.Int("nodes", stats.Nodes),
		logging.Int("edges", stats.Edges),
		logging.Duration("duration", time.Since(start)))
	return stats, nil
}
