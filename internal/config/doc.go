// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads streamctl configuration with precedence
// ENV > file > defaults, validates it and reloads it on file changes.
//
// Files are YAML and parsed strictly: unknown keys are an error. Every key has
// an environment override named STREAMCTL_<SECTION>_<KEY>, for example
// STREAMCTL_STREAM_POLL_BUDGET=20s.
package config
