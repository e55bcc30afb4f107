// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/streamctl/internal/log"
	"github.com/ManuGH/streamctl/internal/streamprofile"
	"github.com/ManuGH/streamctl/internal/transition"
	"github.com/ManuGH/streamctl/internal/viewer"
)

// Error codes returned in the "error" field.
const (
	codeBadRequest       = "bad_request"
	codeInvalidQuality   = "invalid_quality"
	codeNotFound         = "not_found"
	codeViewerNotMounted = "viewer_not_mounted"
	codeViewerClosed     = "viewer_closed"
	codeShuttingDown     = "shutting_down"
	codeMethodNotAllowed = "method_not_allowed"
	codeInternal         = "internal_error"
	codeUnavailable      = "unavailable"
)

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     code,
		Message:   msg,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeDomainError maps viewer and transition errors to HTTP responses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, transition.ErrInvalidQuality), errors.Is(err, streamprofile.ErrUnknownQuality):
		writeError(w, r, http.StatusBadRequest, codeInvalidQuality, err.Error())
	case errors.Is(err, viewer.ErrNotMounted):
		writeError(w, r, http.StatusNotFound, codeViewerNotMounted, err.Error())
	case errors.Is(err, transition.ErrClosed):
		writeError(w, r, http.StatusConflict, codeViewerClosed, err.Error())
	case errors.Is(err, viewer.ErrShutdown):
		writeError(w, r, http.StatusServiceUnavailable, codeShuttingDown, err.Error())
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(log.FieldEvent, "api.unexpected_error").
			Str(log.FieldPath, r.URL.Path).
			Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
