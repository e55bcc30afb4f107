// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hostclient

import (
	"time"

	"github.com/ManuGH/streamctl/internal/streamprofile"
)

// Restart reasons sent to the host.
const (
	ReasonSwitch = "switch"
	ReasonRetry  = "retry"
	ReasonRevert = "revert"
)

// RestartRequest asks the host to tear down and restart the encoder of one
// device stream at the given quality.
type RestartRequest struct {
	Host    string
	Device  string
	Quality streamprofile.Quality
	Reason  string
}

type restartBody struct {
	Quality streamprofile.Quality        `json:"quality"`
	Profile streamprofile.EncoderProfile `json:"profile"`
	Reason  string                       `json:"reason,omitempty"`
}

// ProbeResult is the host's view of the stream artifact of one device.
type ProbeResult struct {
	Exists    bool      `json:"exists"`
	Stable    bool      `json:"stable"`
	Quality   string    `json:"quality,omitempty"`
	Segments  int       `json:"segments"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReadyFor reports whether the artifact is present, stable and (when the host
// reports one) encoded at target.
func (r ProbeResult) ReadyFor(target streamprofile.Quality) bool {
	if !r.Exists || !r.Stable {
		return false
	}
	if r.Quality == "" {
		return true
	}
	q, err := streamprofile.Parse(r.Quality)
	return err == nil && q == target
}
