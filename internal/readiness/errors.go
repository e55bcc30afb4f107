// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package readiness

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/streamctl/internal/hostclient"
	"github.com/ManuGH/streamctl/internal/streamprofile"
)

var ErrReadyTimeout = errors.New("timeout waiting for stream readiness")

// TimeoutError describes an exhausted poll budget together with the last
// state the host reported.
type TimeoutError struct {
	Target  streamprofile.Quality
	Polls   int
	Budget  time.Duration
	Last    hostclient.ProbeResult
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%v: target=%s polls=%d budget=%s exists=%t stable=%t reported_quality=%q",
		ErrReadyTimeout, e.Target, e.Polls, e.Budget, e.Last.Exists, e.Last.Stable, e.Last.Quality)
	if e.LastErr != nil {
		msg = fmt.Sprintf("%s: last probe error: %v", msg, e.LastErr)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return ErrReadyTimeout
}
