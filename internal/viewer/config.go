// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package viewer

import (
	"time"

	"github.com/ManuGH/streamctl/internal/config"
	"github.com/ManuGH/streamctl/internal/readiness"
	"github.com/ManuGH/streamctl/internal/streamprofile"
)

// Config holds the per-viewer timings. A changed Config only affects viewers
// mounted afterwards.
type Config struct {
	Baseline      streamprofile.Quality
	Poll          readiness.Config
	RetryDelay    time.Duration
	RevealTimeout time.Duration
	RevertTimeout time.Duration
}

// ConfigFromStream maps the stream section of the daemon config.
func ConfigFromStream(s config.StreamConfig) Config {
	return Config{
		Baseline: s.BaselineQuality,
		Poll: readiness.Config{
			Interval:     s.PollInterval,
			Jitter:       s.PollJitter,
			Budget:       s.PollBudget,
			StableProbes: s.StableProbes,
		},
		RetryDelay:    s.RetryDelay,
		RevealTimeout: s.RevealTimeout,
		RevertTimeout: s.RevertTimeout,
	}
}
