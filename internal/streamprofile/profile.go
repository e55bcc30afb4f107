// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package streamprofile

// EncoderProfile holds the encoder settings the host applies when restarting
// a device stream at a given quality.
type EncoderProfile struct {
	Width           int    `json:"width"`           // Output width in pixels
	Height          int    `json:"height"`          // Output height in pixels
	FPS             int    `json:"fps"`             // Target frame rate
	VideoBitrate    string `json:"videoBitrate"`    // Target video bitrate (e.g. "2500k")
	MaxBitrate      string `json:"maxBitrate"`      // Max video bitrate (e.g. "3000k")
	KeyframeSeconds int    `json:"keyframeSeconds"` // GOP length in seconds
	SegmentDuration int    `json:"segmentDuration"` // HLS segment duration in seconds
}

// DefaultProfile returns the encoder profile for q.
// Unknown qualities get the baseline profile.
func DefaultProfile(q Quality) EncoderProfile {
	switch q {
	case QualityHigh:
		return EncoderProfile{
			Width:           1920,
			Height:          1080,
			FPS:             30,
			VideoBitrate:    "6000k",
			MaxBitrate:      "8000k",
			KeyframeSeconds: 1,
			SegmentDuration: 1,
		}
	case QualityStandard:
		return EncoderProfile{
			Width:           1280,
			Height:          720,
			FPS:             30,
			VideoBitrate:    "2500k",
			MaxBitrate:      "3000k",
			KeyframeSeconds: 1,
			SegmentDuration: 1,
		}
	default:
		return EncoderProfile{
			Width:           854,
			Height:          480,
			FPS:             15,
			VideoBitrate:    "800k",
			MaxBitrate:      "1000k",
			KeyframeSeconds: 2,
			SegmentDuration: 2,
		}
	}
}
