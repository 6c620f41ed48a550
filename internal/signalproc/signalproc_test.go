// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package signalproc

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/pkg/schema"
)

func flatSegment(n int, rate float64, value float64) *schema.WaveformSegment {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = value
	}
	return &schema.WaveformSegment{
		Channel:    schema.ChannelID{Network: "NC", Station: "S1", Location: "00", Channel: "HHZ"},
		Start:      time.Unix(0, 0).UTC(),
		SampleRate: rate,
		Count:      n,
		Samples:    samples,
	}
}

func TestDetrendConstantRemovesMean(t *testing.T) {
	seg := flatSegment(100, 100, 5.0)
	out := Detrend(seg, DetrendConstant)

	for _, v := range out.Samples {
		require.InDelta(t, 0, v, 1e-9)
	}
	// original is untouched
	require.Equal(t, 5.0, seg.Samples[0])
}

func TestDetrendLinearRemovesRamp(t *testing.T) {
	n := 200
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(i) * 0.5
	}
	seg := &schema.WaveformSegment{SampleRate: 100, Count: n, Samples: samples, Start: time.Unix(0, 0)}

	out := Detrend(seg, DetrendLinear)
	var maxAbs float64
	for _, v := range out.Samples {
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
		}
	}
	require.Less(t, maxAbs, 1.0)
}

func TestBandpassRejectsFHighAtOrAboveNyquist(t *testing.T) {
	seg := flatSegment(1000, 100, 0)
	_, err := Bandpass(seg, 1, 50, 4)
	require.Error(t, err)
	require.Equal(t, errs.Validation, errs.KindOf(err))
}

func TestBandpassAcceptsValidRange(t *testing.T) {
	seg := flatSegment(1000, 100, 0)
	out, err := Bandpass(seg, 1, 20, 4)
	require.NoError(t, err)
	require.Len(t, out.Samples, 1000)
}

func TestResampleRejectsUpsampleWithoutFlag(t *testing.T) {
	seg := flatSegment(1000, 100, 1)
	_, err := Resample(seg, 200, false)
	require.Error(t, err)
}

func TestResampleDownsamples(t *testing.T) {
	seg := flatSegment(2000, 200, 1)
	out, err := Resample(seg, 50, false)
	require.NoError(t, err)
	require.Equal(t, 50.0, out.SampleRate)
	require.Less(t, len(out.Samples), len(seg.Samples))
}

func TestSNRHighForLoudSignalOverQuietNoise(t *testing.T) {
	n := 1000
	samples := make([]float64, n)
	for i := 0; i < 500; i++ {
		samples[i] = 0.01
	}
	for i := 500; i < n; i++ {
		samples[i] = 10.0
	}
	seg := &schema.WaveformSegment{SampleRate: 100, Count: n, Samples: samples, Start: time.Unix(0, 0).UTC()}

	noiseWindow := schema.Window{Start: seg.Start, End: seg.Start.Add(5 * time.Second)}
	signalWindow := schema.Window{Start: seg.Start.Add(5 * time.Second), End: seg.End()}

	snr, err := SNR(seg, signalWindow, noiseWindow)
	require.NoError(t, err)
	require.Greater(t, snr, 20.0)
}

func TestQualityScoreBounded(t *testing.T) {
	seg := flatSegment(1000, 100, 0.5)
	score := QualityScore(seg, 30, DefaultQualityWeights)
	require.GreaterOrEqual(t, score, 0.0)
	require.LessOrEqual(t, score, 1.0)
}
