// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transition

import (
	"errors"
	"fmt"

	"github.com/ManuGH/streamctl/internal/streamprofile"
)

var (
	// ErrTransport means the restart command was rejected or the host was unreachable.
	ErrTransport = errors.New("stream restart command failed")
	// ErrReadinessTimeout means the restarted stream did not become ready within the poll budget.
	ErrReadinessTimeout = errors.New("stream did not become ready in time")
	// ErrTransitionFailed is the terminal failure after the retry was used up.
	ErrTransitionFailed = errors.New("quality transition failed")
	ErrInvalidQuality   = errors.New("invalid quality")
	ErrClosed           = errors.New("transition controller closed")
)

// Error describes a failed quality transition. errors.Is matches both Kind and
// the underlying cause.
type Error struct {
	Kind     error
	Target   streamprofile.Quality
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("switch to %q", e.Target)
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	msg = fmt.Sprintf("%s: %v", msg, e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
