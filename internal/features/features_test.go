// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seismonet/quakewatch/pkg/schema"
)

func sineSegment(n int, rate, freq, amp float64) *schema.WaveformSegment {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return &schema.WaveformSegment{
		Channel:    schema.ChannelID{Network: "NC", Station: "S1", Location: "00", Channel: "HHZ"},
		Start:      time.Unix(0, 0).UTC(),
		SampleRate: rate,
		Count:      n,
		Samples:    samples,
	}
}

func testFeaturesConfig() schema.FeaturesConfig {
	return schema.FeaturesConfig{
		SchemaID:      "v1",
		Bands:         [][2]float64{{1, 3}, {3, 10}, {10, 20}},
		Wavelet:       "haar",
		WaveletLevels: 3,
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	seg := sineSegment(1024, 100, 5, 20)
	cfg := testFeaturesConfig()

	v1, err := Extract(seg, cfg)
	require.NoError(t, err)
	v2, err := Extract(seg, cfg)
	require.NoError(t, err)

	require.Equal(t, v1.Values, v2.Values)
}

func TestExtractProducesCorrectDimension(t *testing.T) {
	seg := sineSegment(1024, 100, 5, 20)
	cfg := testFeaturesConfig()

	v, err := Extract(seg, cfg)
	require.NoError(t, err)

	fschema, err := BuildSchema(cfg)
	require.NoError(t, err)
	require.Equal(t, fschema.Dimension(), len(v.Values))
	require.NoError(t, v.Validate(fschema))
}

func TestExtractDominantFrequencyMatchesSineInput(t *testing.T) {
	seg := sineSegment(2048, 100, 5, 20)
	cfg := schema.FeaturesConfig{SchemaID: "v1"}

	v, err := Extract(seg, cfg)
	require.NoError(t, err)

	dominantFreq := v.Values[8] // freq.dominant_frequency index
	require.InDelta(t, 5.0, dominantFreq, 1.0)
}

func TestExtractRejectsEmptySegment(t *testing.T) {
	seg := &schema.WaveformSegment{SampleRate: 100}
	_, err := Extract(seg, testFeaturesConfig())
	require.Error(t, err)
}

func TestExtractRejectsUnsupportedWavelet(t *testing.T) {
	seg := sineSegment(1024, 100, 5, 20)
	cfg := testFeaturesConfig()
	cfg.Wavelet = "db4"

	_, err := Extract(seg, cfg)
	require.Error(t, err)
}

func TestHaarEnergiesPreservesEnergyAtLevel1(t *testing.T) {
	x := []float64{1, -1, 1, -1, 1, -1, 1, -1}
	energies := haarEnergies(x, 1)
	require.InDelta(t, 8.0, energies[0], 1e-9) // sum of x[i]^2
}
