// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/streamctl/internal/session"
	"github.com/ManuGH/streamctl/internal/streamprofile"
	"github.com/ManuGH/streamctl/internal/telemetry"
	"github.com/ManuGH/streamctl/internal/transition"
	"github.com/ManuGH/streamctl/internal/viewer"
)

const maxBodyBytes = 4 << 10

type mountRequest struct {
	Quality     string `json:"quality,omitempty"`
	ShowOverlay bool   `json:"showOverlay,omitempty"`
}

type qualityRequest struct {
	Quality     string `json:"quality"`
	ShowOverlay bool   `json:"showOverlay"`
	InitialLoad bool   `json:"initialLoad"`
}

func viewerKey(r *http.Request) (session.Key, error) {
	key := session.Key{
		Host:   strings.TrimSpace(chi.URLParam(r, "host")),
		Device: strings.TrimSpace(chi.URLParam(r, "device")),
	}
	if key.Host == "" || key.Device == "" {
		return key, errors.New("host and device are required")
	}
	return key, nil
}

// decodeBody decodes an optional JSON body into dst. An empty body is fine.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseQuality(raw string) (streamprofile.Quality, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return streamprofile.Parse(raw)
}

func annotate(r *http.Request, key session.Key, sessionID string) {
	trace.SpanFromContext(r.Context()).SetAttributes(telemetry.ViewerAttributes(key.Host, key.Device, sessionID)...)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*viewer.Viewer, bool) {
	key, err := viewerKey(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return nil, false
	}
	v, ok := s.viewers.Get(key)
	if !ok {
		writeDomainError(w, r, viewer.ErrNotMounted)
		return nil, false
	}
	annotate(r, key, v.Session.ID)
	return v, true
}

func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	key, err := viewerKey(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	var req mountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	q, err := parseQuality(req.Quality)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	v, created, err := s.viewers.Mount(r.Context(), key, viewer.MountOptions{Quality: q, ShowOverlay: req.ShowOverlay})
	if v == nil {
		writeDomainError(w, r, err)
		return
	}
	annotate(r, key, v.Session.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, v.Controller.Snapshot())
}

func (s *Server) handleGetViewer(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v.Controller.Snapshot())
}

func (s *Server) handleListViewers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"viewers": s.viewers.Snapshots()})
}

func (s *Server) handleUnmount(w http.ResponseWriter, r *http.Request) {
	key, err := viewerKey(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	v, err := s.viewers.Unmount(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	annotate(r, key, v.Session.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRequestQuality(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req qualityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	q, err := parseQuality(req.Quality)
	if err == nil && q == "" {
		err = fmt.Errorf("%w: quality is required", transition.ErrInvalidQuality)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	err = v.Controller.RequestSwitch(r.Context(), q, transition.SwitchOptions{
		ShowOverlay: req.ShowOverlay,
		InitialLoad: req.InitialLoad,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v.Controller.Snapshot())
}

func (s *Server) handlePlayerReady(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}
	v.Controller.PlayerReady()
	w.WriteHeader(http.StatusNoContent)
}
