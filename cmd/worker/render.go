package main

import (
	"context"

	"github.com/turtacn/SMARTSexplore/internal/application/ports"
	appsmarts "github.com/turtacn/SMARTSexplore/internal/application/smarts"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
)

// renderHandlers draws the images of SMARTS and subset edges announced by
// pipeline events.
type renderHandlers struct {
	smarts appsmarts.Service
	logger logging.Logger
}

func (h *renderHandlers) register(c interface {
	Handle(eventType string, fn kafka.Handler)
}) {
	c.Handle(ports.EventLibraryImported, h.libraryImported)
	c.Handle(ports.EventEdgesCalculated, h.edgesCalculated)
}

func (h *renderHandlers) libraryImported(ctx context.Context, env *kafka.EventEnvelope) error {
	var evt ports.LibraryImported
	if err := env.DecodePayload(&evt); err != nil {
		return err
	}
	// An empty id list would make RenderSMARTS draw every pattern.
	if len(evt.SMARTSIDs) == 0 {
		return nil
	}
	report, err := h.smarts.RenderSMARTS(ctx, evt.SMARTSIDs)
	if err != nil {
		return err
	}
	h.logger.Info("rendered library",
		logging.String("library", evt.Library),
		logging.String("event_id", env.EventID),
		logging.Int("rendered", report.Rendered),
		logging.Int("failed", report.Failed),
	)
	return nil
}

func (h *renderHandlers) edgesCalculated(ctx context.Context, env *kafka.EventEnvelope) error {
	var evt ports.EdgesCalculated
	if err := env.DecodePayload(&evt); err != nil {
		return err
	}
	if len(evt.DirectedEdgeIDs) == 0 {
		return nil
	}
	report, err := h.smarts.RenderSubsets(ctx, evt.DirectedEdgeIDs)
	if err != nil {
		return err
	}
	h.logger.Info("rendered subsets",
		logging.String("mode", evt.Mode),
		logging.String("event_id", env.EventID),
		logging.Int("rendered", report.Rendered),
		logging.Int("failed", report.Failed),
	)
	return nil
}
