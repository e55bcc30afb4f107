// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package streamprofile defines the encoding qualities a device stream can run at
// and the encoder profile the host applies for each of them.
package streamprofile

import (
	"errors"
	"fmt"
	"strings"
)

// Quality is the encoding quality of a live device stream.
type Quality string

const (
	QualityLow      Quality = "low"
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
)

// DefaultBaseline is the quality a viewer falls back to when nobody is watching.
const DefaultBaseline = QualityLow

var ErrUnknownQuality = errors.New("unknown stream quality")

// All returns the supported qualities ordered from lowest to highest.
func All() []Quality {
	return []Quality{QualityLow, QualityStandard, QualityHigh}
}

// Valid reports whether q is one of the supported qualities.
func (q Quality) Valid() bool {
	switch q {
	case QualityLow, QualityStandard, QualityHigh:
		return true
	default:
		return false
	}
}

func (q Quality) String() string {
	return string(q)
}

// Rank orders qualities; unknown values rank below low.
func (q Quality) Rank() int {
	switch q {
	case QualityLow:
		return 1
	case QualityStandard:
		return 2
	case QualityHigh:
		return 3
	default:
		return 0
	}
}

// Parse normalises user input ("HIGH", " standard ") into a Quality.
// "medium" and "hd" are accepted as aliases used by older console builds.
func Parse(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "sd":
		return QualityLow, nil
	case "standard", "medium":
		return QualityStandard, nil
	case "high", "hd":
		return QualityHigh, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownQuality, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so config files and JSON bodies
// go through Parse.
func (q *Quality) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
