// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package resampler

import "math"

// firTaps builds a windowed-sinc low-pass filter kernel for cutoffHz
// at the given sampleRate, using a Hann window to control stopband
// ripple. The kernel length scales with the ratio of sample rate to
// cutoff so steep decimations get a longer, sharper filter.
func firTaps(sampleRate, cutoffHz float64) []float64 {
	numTaps := int(sampleRate/cutoffHz) * 4
	if numTaps < 9 {
		numTaps = 9
	}
	if numTaps%2 == 0 {
		numTaps++
	}
	if numTaps > 401 {
		numTaps = 401
	}

	taps := make([]float64, numTaps)
	fc := cutoffHz / sampleRate
	mid := (numTaps - 1) / 2

	sum := 0.0
	for i := 0; i < numTaps; i++ {
		n := i - mid
		var sinc float64
		if n == 0 {
			sinc = 2 * fc
		} else {
			sinc = math.Sin(2*math.Pi*fc*float64(n)) / (math.Pi * float64(n))
		}
		window := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(numTaps-1))
		taps[i] = sinc * window
		sum += taps[i]
	}

	for i := range taps {
		taps[i] /= sum
	}
	return taps
}

// convolveSame convolves data with taps, returning a slice the same
// length as data (edges are computed against zero-padding).
func convolveSame(data, taps []float64) []float64 {
	n := len(data)
	m := len(taps)
	half := m / 2

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		for k := 0; k < m; k++ {
			srcIdx := i + k - half
			if srcIdx < 0 || srcIdx >= n {
				continue
			}
			acc += data[srcIdx] * taps[k]
		}
		out[i] = acc
	}
	return out
}

