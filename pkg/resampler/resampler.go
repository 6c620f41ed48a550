// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package resampler implements downsampling for waveform sample slices.
// SimpleResampler keeps the teacher's stride-decimation shape; Resample
// adds the anti-aliasing low-pass pass the teacher's version never
// needed (metric time series, unlike seismic waveforms, carry no
// energy near Nyquist worth aliasing).
package resampler

import (
	"errors"
	"fmt"
)

// SimpleResampler decimates data by an integer stride oldRate/newRate,
// with no anti-aliasing. Kept for callers that pre-filter themselves.
func SimpleResampler(data []float64, oldRate, newRate int64) ([]float64, error) {
	if oldRate == 0 || newRate == 0 {
		return nil, errors.New("either old or new frequency is set to 0")
	}
	if oldRate%newRate != 0 {
		return nil, fmt.Errorf("old sampling frequency %d must be a multiple of the new frequency %d", oldRate, newRate)
	}

	step := int(oldRate / newRate)
	newLen := len(data) / step
	if newLen == 0 || len(data) < 100 || newLen >= len(data) {
		return data, nil
	}

	out := make([]float64, newLen)
	for i := range out {
		out[i] = data[i*step]
	}
	return out, nil
}

// Resample anti-alias-decimates data from oldRate to targetRate Hz.
// Downsampling only: a targetRate at or above oldRate returns a copy of
// data unchanged. Callers (internal/signalproc) reject targetRate above
// oldRate unless an explicit upsample flag is set, per spec §4.4.
//
// A zero-phase FIR low-pass at targetRate/2 runs before decimation so
// energy above the new Nyquist frequency is attenuated rather than
// folded back into the passband.
func Resample(data []float64, oldRate, targetRate float64) ([]float64, error) {
	if oldRate <= 0 || targetRate <= 0 {
		return nil, errors.New("sample rates must be positive")
	}
	if targetRate >= oldRate {
		return append([]float64(nil), data...), nil
	}

	filtered := lowPassFIR(data, oldRate, targetRate/2)

	ratio := oldRate / targetRate
	newLen := int(float64(len(data)) / ratio)
	if newLen < 1 {
		newLen = 1
	}

	out := make([]float64, newLen)
	for i := range out {
		srcIdx := int(float64(i) * ratio)
		if srcIdx >= len(filtered) {
			srcIdx = len(filtered) - 1
		}
		out[i] = filtered[srcIdx]
	}
	return out, nil
}

// lowPassFIR applies a windowed-sinc low-pass filter at cutoffHz,
// run forward then backward over the signal so the net effect is
// zero-phase (no group delay carried into the decimated signal).
func lowPassFIR(data []float64, sampleRate, cutoffHz float64) []float64 {
	taps := firTaps(sampleRate, cutoffHz)
	fwd := convolveSame(data, taps)
	back := convolveSame(reverse(fwd), taps)
	return reverse(back)
}

func reverse(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
