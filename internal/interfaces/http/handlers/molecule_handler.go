package handlers

import (
	"io"
	"net/http"

	appmolecule "github.com/turtacn/SMARTSexplore/internal/application/molecule"
	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

const defaultMaxUploadBytes = 32 << 20

// MoleculeHandler serves molecule uploads, match listings and molecule
// images.
type MoleculeHandler struct {
	svc      appmolecule.Service
	logger   logging.Logger
	maxBytes int64
}

// NewMoleculeHandler caps upload bodies at maxBytes; zero picks 32 MiB.
func NewMoleculeHandler(svc appmolecule.Service, maxBytes int64, log logging.Logger) *MoleculeHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &MoleculeHandler{svc: svc, logger: log.Named("molecule-handler"), maxBytes: maxBytes}
}

// Upload handles POST /molecules/upload with the molecule file in the
// multipart field "file", and answers with the matches of the new set.
func (h *MoleculeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusBadRequest, graph.ErrorResponse{
				Error: "The uploaded file is too large.",
				Code:  string(errors.ErrCodeUploadValidation),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, graph.ErrorResponse{
			Error: "Request seems to be missing a molecule file.",
			Code:  string(errors.ErrCodeUploadValidation),
		})
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, graph.ErrorResponse{
			Error: "Request seems to be missing a molecule file.",
			Code:  string(errors.ErrCodeUploadValidation),
		})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeAppError(w, h.logger, errors.Wrap(err, errors.ErrCodeUploadValidation, "Could not read the uploaded file."))
		return
	}

	list, err := h.svc.Upload(r.Context(), &appmolecule.UploadInput{Filename: header.Filename, Data: data})
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	h.logger.Info("molecule set uploaded",
		logging.String("filename", header.Filename),
		logging.Int64("molecule_set_id", list.MoleculeSetID),
		logging.Int("matches", len(list.Matches)),
	)
	writeJSON(w, http.StatusOK, list)
}

// Matches handles GET /molecules/matches/{id}.
func (h *MoleculeHandler) Matches(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeJSON(w, http.StatusNotFound, graph.ErrorResponse{Error: "Unknown molecule set."})
		return
	}
	list, err := h.svc.Matches(r.Context(), id)
	if err != nil {
		if errors.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, graph.ErrorResponse{
				Error: "Unknown molecule set.",
				Code:  string(errors.ErrCodeMoleculeSetNotFound),
			})
			return
		}
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SetImage handles GET /molecules/images/{setid}/{molid}.
func (h *MoleculeHandler) SetImage(w http.ResponseWriter, r *http.Request) {
	setID, ok1 := idParam(r, "setid")
	molID, ok2 := idParam(r, "molid")
	if !ok1 || !ok2 {
		http.NotFound(w, r)
		return
	}
	rc, err := h.svc.OpenMoleculeImage(r.Context(), setID, molID)
	serveSVG(w, r, h.logger, rc, err)
}

// Image handles GET /molecules/images/{id}, resolving the molecule's set.
func (h *MoleculeHandler) Image(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	rc, err := h.svc.OpenMoleculeImageByID(r.Context(), id)
	serveSVG(w, r, h.logger, rc, err)
}
