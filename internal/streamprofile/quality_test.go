// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package streamprofile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Quality
		wantErr bool
	}{
		{in: "low", want: QualityLow},
		{in: " HIGH ", want: QualityHigh},
		{in: "medium", want: QualityStandard},
		{in: "hd", want: QualityHigh},
		{in: "ultra", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownQuality)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQualityJSON(t *testing.T) {
	var body struct {
		Quality Quality `json:"quality"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"quality":"Standard"}`), &body))
	assert.Equal(t, QualityStandard, body.Quality)

	err := json.Unmarshal([]byte(`{"quality":"4k"}`), &body)
	assert.ErrorIs(t, err, ErrUnknownQuality)
}

func TestRankAndValid(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Rank(), all[i].Rank())
	}
	assert.False(t, Quality("bogus").Valid())
	assert.Equal(t, 0, Quality("bogus").Rank())
}

func TestDefaultProfileScalesWithQuality(t *testing.T) {
	low := DefaultProfile(QualityLow)
	std := DefaultProfile(QualityStandard)
	high := DefaultProfile(QualityHigh)

	assert.Less(t, low.Height, std.Height)
	assert.Less(t, std.Height, high.Height)
	assert.Equal(t, low, DefaultProfile("unknown"))
}
