// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package features

import (
	"math"

	"github.com/seismonet/quakewatch/pkg/schema"
)

func peakAmplitude(x []float64) float64 {
	peak := 0.0
	for _, v := range x {
		if math.Abs(v) > peak {
			peak = math.Abs(v)
		}
	}
	return peak
}

func rmsAmplitude(x []float64) float64 {
	if len(x) == 0 {
		return schema.FeatureSentinel
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func zeroCrossingRate(x []float64, rate float64) float64 {
	if len(x) < 2 {
		return schema.FeatureSentinel
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	duration := float64(len(x)) / rate
	if duration == 0 {
		return schema.FeatureSentinel
	}
	return float64(crossings) / duration
}

// envelopeMoments returns mean, variance, skewness and kurtosis of the
// amplitude envelope (|x|), the time-domain proxy spec §4.5 names.
func envelopeMoments(x []float64) (mean, variance, skewness, kurtosis float64) {
	n := len(x)
	if n == 0 {
		return schema.FeatureSentinel, schema.FeatureSentinel, schema.FeatureSentinel, schema.FeatureSentinel
	}

	envelope := make([]float64, n)
	for i, v := range x {
		envelope[i] = math.Abs(v)
	}

	for _, v := range envelope {
		mean += v
	}
	mean /= float64(n)

	var m2, m3, m4 float64
	for _, v := range envelope {
		d := v - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= float64(n)
	m3 /= float64(n)
	m4 /= float64(n)

	variance = m2
	if m2 == 0 {
		return mean, variance, schema.FeatureSentinel, schema.FeatureSentinel
	}
	std := math.Sqrt(m2)
	skewness = m3 / (std * std * std)
	kurtosis = m4/(m2*m2) - 3 // excess kurtosis

	return mean, variance, skewness, kurtosis
}

// durationAboveThreshold returns the total time, in seconds, during which
// the absolute amplitude exceeds twice the segment's RMS.
func durationAboveThreshold(x []float64, rate float64) float64 {
	if len(x) == 0 {
		return schema.FeatureSentinel
	}
	threshold := rmsAmplitude(x) * 2
	count := 0
	for _, v := range x {
		if math.Abs(v) > threshold {
			count++
		}
	}
	return float64(count) / rate
}
