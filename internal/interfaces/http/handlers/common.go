// Package handlers implements the HTTP endpoints consumed by the
// SMARTSexplore frontend.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SMARTSexplore/pkg/errors"
	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// statusFor maps an error to its HTTP status. Tool failures anywhere in the
// chain are reported as 502 even when wrapped by a pipeline error.
func statusFor(err error) int {
	if errors.IsCode(err, errors.ErrCodeExternalTool) || errors.IsCode(err, errors.ErrCodeExternalToolTimeout) {
		return http.StatusBadGateway
	}
	if errors.IsNotFound(err) {
		return http.StatusNotFound
	}
	return errors.HTTPStatusForCode(errors.GetCode(err))
}

// writeAppError answers with {"error": msg, "code": code}. Messages of
// server-side failures are replaced so internals do not leak.
func writeAppError(w http.ResponseWriter, log logging.Logger, err error) {
	status := statusFor(err)
	code := string(errors.GetCode(err))
	msg := err.Error()
	var ae *errors.AppError
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logging.Int("status", status), logging.Err(err))
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}
	writeJSON(w, status, graph.ErrorResponse{Error: msg, Code: code})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, graph.ErrorResponse{Error: msg, Code: string(errors.ErrCodeValidation)})
}

// idParam parses the named chi URL parameter as a positive integer.
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// serveSVG streams an image; an unknown or missing image is a plain 404
// like a missing static file.
func serveSVG(w http.ResponseWriter, r *http.Request, log logging.Logger, rc io.ReadCloser, err error) {
	if err != nil {
		if errors.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		writeAppError(w, log, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn("failed to stream image", logging.Err(err))
	}
}
