// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package viewer keeps the registry of mounted viewing surfaces. A mount wires
// a session, its playback gate, a transition controller and the teardown guard;
// an unmount runs the guard. Gate changes and settled transitions are published
// to the event bus.
package viewer
