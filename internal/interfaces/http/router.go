// Package http assembles the chi router and the HTTP server of the API.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/internal/interfaces/http/handlers"
	"github.com/turtacn/SMARTSexplore/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware of the route tree.
// Nil handlers leave their routes unmounted.
type RouterConfig struct {
	SMARTSHandler   *handlers.SMARTSHandler
	MoleculeHandler *handlers.MoleculeHandler
	HealthHandler   *handlers.HealthHandler

	CORS     *middleware.CORSConfig
	Compress bool

	Logger         logging.Logger
	HTTPObserver   middleware.HTTPObserver
	MetricsPath    string
	MetricsHandler http.Handler
}

// NewRouter builds the route tree. Paths match the ones the frontend
// requests, so there is no version prefix.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogging(cfg.Logger.Named("http"), middleware.DefaultLoggingConfig(), cfg.HTTPObserver))
	r.Use(chimw.Recoverer)
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.Compress {
		r.Use(chimw.Compress(5, "application/json", "image/svg+xml"))
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsHandler)
	}

	registerSMARTSRoutes(r, cfg.SMARTSHandler)
	registerMoleculeRoutes(r, cfg.MoleculeHandler)
	return r
}

func registerSMARTSRoutes(r chi.Router, h *handlers.SMARTSHandler) {
	if h == nil {
		return
	}
	r.Route("/smarts", func(sr chi.Router) {
		sr.Get("/data", h.GetGraph)
		sr.Post("/data", h.QueryGraph)
		sr.Get("/smartsview/{id}", h.SMARTSImage)
		sr.Get("/smartssubsets/{id}", h.SubsetImage)
	})
}

func registerMoleculeRoutes(r chi.Router, h *handlers.MoleculeHandler) {
	if h == nil {
		return
	}
	r.Route("/molecules", func(mr chi.Router) {
		mr.Post("/upload", h.Upload)
		mr.Get("/matches/{id}", h.Matches)
		mr.Get("/images/{setid}/{molid}", h.SetImage)
		mr.Get("/images/{id}", h.Image)
	})
}
