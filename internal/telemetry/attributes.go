// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across streamctl.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Viewer attributes
	ViewerHostKey    = "viewer.host"
	ViewerDeviceKey  = "viewer.device"
	ViewerSessionKey = "viewer.session_id"

	// Transition attributes
	TransitionTargetKey     = "transition.target_quality"
	TransitionGenerationKey = "transition.generation"
	TransitionAttemptKey    = "transition.attempt"
	TransitionOverlayKey    = "transition.show_overlay"
	TransitionInitialKey    = "transition.initial_load"
	TransitionSourceKey     = "transition.settled_by"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ViewerAttributes identifies the viewing surface; empty values are omitted.
func ViewerAttributes(host, device, sessionID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if host != "" {
		attrs = append(attrs, attribute.String(ViewerHostKey, host))
	}
	if device != "" {
		attrs = append(attrs, attribute.String(ViewerDeviceKey, device))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(ViewerSessionKey, sessionID))
	}
	return attrs
}

// TransitionAttributes describes a quality transition at its start.
func TransitionAttributes(target string, generation uint64, showOverlay, initialLoad bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TransitionTargetKey, target),
		attribute.Int64(TransitionGenerationKey, int64(generation)),
		attribute.Bool(TransitionOverlayKey, showOverlay),
		attribute.Bool(TransitionInitialKey, initialLoad),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
