// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ManuGH/streamctl/internal/bus"
	xglog "github.com/ManuGH/streamctl/internal/log"
	"github.com/ManuGH/streamctl/internal/transition"
)

const (
	eventWriteWait = 5 * time.Second
	eventReadLimit = 512
)

// snapshotMessage is the first frame on every event stream.
type snapshotMessage struct {
	Kind     string              `json:"kind"`
	Snapshot transition.Snapshot `json:"snapshot"`
}

// handleEvents upgrades to a WebSocket and forwards the viewer's bus topic.
// The stream ends when the client goes away or the topic subscription closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, r, http.StatusServiceUnavailable, codeUnavailable, "event stream disabled")
		return
	}
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	sub, err := s.events.Subscribe(ctx, bus.ViewerTopic(v.Key.Host, v.Key.Device))
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, codeUnavailable, err.Error())
		return
	}
	defer func() { _ = sub.Close() }()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Str(xglog.FieldEvent, "api.ws_upgrade_failed").Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	logger := s.logger.With().
		Str(xglog.FieldHost, v.Key.Host).
		Str(xglog.FieldDevice, v.Key.Device).
		Str(xglog.FieldSessionID, v.Session.ID).
		Logger()
	logger.Debug().Str(xglog.FieldEvent, "api.ws_connected").Str("remote_addr", r.RemoteAddr).Msg("event stream connected")
	defer logger.Debug().Str(xglog.FieldEvent, "api.ws_disconnected").Msg("event stream disconnected")

	// Reader: only control frames are expected; any read error ends the stream.
	conn.SetReadLimit(eventReadLimit)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeJSONFrame(conn, snapshotMessage{Kind: "snapshot", Snapshot: v.Controller.Snapshot()}); err != nil {
		return
	}

	ping := time.NewTicker(s.cfg.EventPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(eventWriteWait))
				return
			}
			if err := s.writeJSONFrame(conn, ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeJSONFrame(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
	return conn.WriteJSON(v)
}
