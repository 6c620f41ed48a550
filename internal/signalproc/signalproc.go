// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package signalproc implements the Signal Processor (C4): detrending,
// bandpass filtering, resampling, SNR, and quality scoring. Every
// operation is pure — it returns a new segment and never mutates its
// input, per spec §4.4.
package signalproc

import (
	"math"
	"time"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/pkg/resampler"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// DetrendMode selects the trend model removed by Detrend.
type DetrendMode int

const (
	DetrendConstant DetrendMode = iota
	DetrendLinear
)

// Detrend removes a constant or linear trend from the segment's samples.
func Detrend(seg *schema.WaveformSegment, mode DetrendMode) *schema.WaveformSegment {
	out := seg.Clone()
	n := len(out.Samples)
	if n == 0 {
		return out
	}

	switch mode {
	case DetrendConstant:
		mean := 0.0
		for _, v := range out.Samples {
			mean += v
		}
		mean /= float64(n)
		for i := range out.Samples {
			out.Samples[i] -= mean
		}
	case DetrendLinear:
		slope, intercept := linearFit(out.Samples)
		for i := range out.Samples {
			out.Samples[i] -= slope*float64(i) + intercept
		}
	}
	return out
}

func linearFit(y []float64) (slope, intercept float64) {
	n := float64(len(y))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// Bandpass applies a Butterworth-style bandpass filter between fLow and
// fHigh, run forward then backward (two-pass) so the result is
// zero-phase for every order, per spec §4.4.
func Bandpass(seg *schema.WaveformSegment, fLow, fHigh float64, order int) (*schema.WaveformSegment, error) {
	const op = "signalproc.Bandpass"

	nyquist := seg.SampleRate / 2
	if !(0 < fLow && fLow < fHigh && fHigh < nyquist) {
		return nil, errs.New(errs.Validation, op, "requires 0 < fLow < fHigh < fNyq", nil)
	}
	if order < 1 {
		return nil, errs.New(errs.Validation, op, "order must be >= 1", nil)
	}

	// Two-pass (forward then time-reversed) cascaded filtering cancels
	// the single-pass filter's phase response, giving a zero-phase
	// result regardless of order's parity.
	out := seg.Clone()
	forward := out.Samples
	for i := 0; i < order; i++ {
		forward = onePoleBandpassPass(forward, seg.SampleRate, fLow, fHigh)
	}

	backward := reverseFloat64(forward)
	for i := 0; i < order; i++ {
		backward = onePoleBandpassPass(backward, seg.SampleRate, fLow, fHigh)
	}
	out.Samples = reverseFloat64(backward)

	return out, nil
}

func reverseFloat64(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

// onePoleBandpassPass implements a cascaded high-pass (removes below
// fLow) then low-pass (removes above fHigh) single-pole IIR stage.
func onePoleBandpassPass(x []float64, rate, fLow, fHigh float64) []float64 {
	hp := highPass(x, rate, fLow)
	return lowPass(hp, rate, fHigh)
}

func highPass(x []float64, rate, cutoff float64) []float64 {
	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / rate
	alpha := rc / (rc + dt)

	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = alpha * (out[i-1] + x[i] - x[i-1])
	}
	return out
}

func lowPass(x []float64, rate, cutoff float64) []float64 {
	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / rate
	alpha := dt / (rc + dt)

	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = out[i-1] + alpha*(x[i]-out[i-1])
	}
	return out
}

// Resample anti-alias-decimates the segment to targetRate Hz. Upsampling
// (targetRate > original rate) is rejected unless allowUpsample is set,
// per spec §4.4.
func Resample(seg *schema.WaveformSegment, targetRate float64, allowUpsample bool) (*schema.WaveformSegment, error) {
	const op = "signalproc.Resample"

	if targetRate <= 0 {
		return nil, errs.New(errs.Validation, op, "target rate must be positive", nil)
	}
	if targetRate > seg.SampleRate && !allowUpsample {
		return nil, errs.New(errs.Validation, op, "upsampling requires an explicit upsample flag", nil)
	}

	samples, err := resampler.Resample(seg.Samples, seg.SampleRate, targetRate)
	if err != nil {
		return nil, errs.New(errs.Internal, op, "resample failed", err)
	}

	out := seg.Clone()
	out.Samples = samples
	out.SampleRate = targetRate
	out.Count = len(samples)
	return out, nil
}

// SNR estimates signal-to-noise ratio in dB between two windows of the
// same segment using RMS amplitude.
func SNR(seg *schema.WaveformSegment, signalWindow, noiseWindow schema.Window) (float64, error) {
	const op = "signalproc.SNR"

	signalSamples, err := windowSamples(seg, signalWindow)
	if err != nil {
		return 0, errs.New(errs.Validation, op, "signal window out of segment bounds", err)
	}
	noiseSamples, err := windowSamples(seg, noiseWindow)
	if err != nil {
		return 0, errs.New(errs.Validation, op, "noise window out of segment bounds", err)
	}

	signalRMS := rms(signalSamples)
	noiseRMS := rms(noiseSamples)
	if noiseRMS == 0 {
		if signalRMS == 0 {
			return 0, nil
		}
		return math.Inf(1), nil
	}
	return 20 * math.Log10(signalRMS/noiseRMS), nil
}

func windowSamples(seg *schema.WaveformSegment, w schema.Window) ([]float64, error) {
	if w.Start.Before(seg.Start) || w.End.After(seg.End()) || !w.Start.Before(w.End) {
		return nil, errs.New(errs.Validation, "signalproc.windowSamples", "window outside segment bounds", nil)
	}
	startIdx := int(w.Start.Sub(seg.Start).Seconds() * seg.SampleRate)
	endIdx := int(w.End.Sub(seg.Start).Seconds() * seg.SampleRate)
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > len(seg.Samples) {
		endIdx = len(seg.Samples)
	}
	if startIdx >= endIdx {
		return nil, nil
	}
	return seg.Samples[startIdx:endIdx], nil
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// QualityWeights documents the weighting qualityScore uses to combine
// gap fraction, saturation fraction and SNR into a single [0,1] score.
type QualityWeights struct {
	GapWeight        float64
	SaturationWeight float64
	SNRWeight        float64
}

// DefaultQualityWeights sums to 1.0: gap and saturation fraction are
// penalties (1-fraction contributes), SNR is normalized against a
// 40 dB reference ceiling.
var DefaultQualityWeights = QualityWeights{GapWeight: 0.3, SaturationWeight: 0.3, SNRWeight: 0.4}

const saturationThresholdFraction = 0.99

// QualityScore combines gap fraction, saturation fraction and the
// caller-supplied snrDB (normalized against 40 dB) into a
// documented-weighting [0,1] score.
func QualityScore(seg *schema.WaveformSegment, snrDB float64, weights QualityWeights) float64 {
	gapFraction := gapFraction(seg)
	saturationFraction := saturationFraction(seg)

	snrNorm := snrDB / 40.0
	if snrNorm < 0 {
		snrNorm = 0
	}
	if snrNorm > 1 {
		snrNorm = 1
	}

	score := weights.GapWeight*(1-gapFraction) +
		weights.SaturationWeight*(1-saturationFraction) +
		weights.SNRWeight*snrNorm

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func gapFraction(seg *schema.WaveformSegment) float64 {
	total := seg.End().Sub(seg.Start)
	if total <= 0 {
		return 0
	}
	var gapTotal time.Duration
	for _, g := range seg.Gaps {
		gapTotal += g.End.Sub(g.Start)
	}
	return float64(gapTotal) / float64(total)
}

func saturationFraction(seg *schema.WaveformSegment) float64 {
	if len(seg.Samples) == 0 {
		return 0
	}
	maxAbs := 0.0
	for _, v := range seg.Samples {
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
		}
	}
	if maxAbs == 0 {
		return 0
	}
	saturated := 0
	for _, v := range seg.Samples {
		if math.Abs(v) >= maxAbs*saturationThresholdFraction {
			saturated++
		}
	}
	return float64(saturated) / float64(len(seg.Samples))
}
