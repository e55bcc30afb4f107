// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Viewer / stream fields
	FieldHost       = "host"
	FieldDevice     = "device"
	FieldQuality    = "quality"
	FieldTarget     = "target_quality"
	FieldBaseline   = "baseline_quality"
	FieldGeneration = "generation"
	FieldAttempt    = "attempt"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Network fields
	FieldBaseURL = "base_url"
	FieldPath    = "path"
	FieldStatus  = "status"
)
