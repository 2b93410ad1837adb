package handlers

import (
	"encoding/json"
	"math"
	"net/http"

	appsmarts "github.com/turtacn/SMARTSexplore/internal/application/smarts"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

const invalidRequest = "Invalid request."

// SMARTSHandler serves the graph data and the SMARTS and subset images.
type SMARTSHandler struct {
	svc    appsmarts.Service
	logger logging.Logger
}

func NewSMARTSHandler(svc appsmarts.Service, log logging.Logger) *SMARTSHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &SMARTSHandler{svc: svc, logger: log.Named("smarts-handler")}
}

// GetGraph handles GET /smarts/data and returns the full graph.
func (h *SMARTSHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	h.graph(w, r, 0, 1)
}

// QueryGraph handles POST /smarts/data with {spsim_min, spsim_max}.
func (h *SMARTSHandler) QueryGraph(w http.ResponseWriter, r *http.Request) {
	var q graph.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeBadRequest(w, invalidRequest)
		return
	}
	if q.SPSimMin == nil || q.SPSimMax == nil {
		writeBadRequest(w, invalidRequest)
		return
	}
	if !finite(*q.SPSimMin) || !finite(*q.SPSimMax) {
		writeBadRequest(w, invalidRequest)
		return
	}
	h.graph(w, r, *q.SPSimMin, *q.SPSimMax)
}

func (h *SMARTSHandler) graph(w http.ResponseWriter, r *http.Request, minSP, maxSP float64) {
	g, err := h.svc.Graph(r.Context(), minSP, maxSP)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// SMARTSImage handles GET /smarts/smartsview/{id}.
func (h *SMARTSHandler) SMARTSImage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	rc, err := h.svc.OpenSMARTSImage(r.Context(), id)
	serveSVG(w, r, h.logger, rc, err)
}

// SubsetImage handles GET /smarts/smartssubsets/{id}, id being a directed
// edge id.
func (h *SMARTSHandler) SubsetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	rc, err := h.svc.OpenSubsetImage(r.Context(), id)
	serveSVG(w, r, h.logger, rc, err)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
