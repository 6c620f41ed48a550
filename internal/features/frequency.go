// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package features

import (
	"math"

	"github.com/seismonet/quakewatch/pkg/schema"
)

func dominantFrequency(power, freqs []float64) float64 {
	if len(power) == 0 {
		return schema.FeatureSentinel
	}
	maxIdx := 0
	for i, p := range power {
		if p > power[maxIdx] {
			maxIdx = i
		}
	}
	if power[maxIdx] == 0 {
		return schema.FeatureSentinel
	}
	return freqs[maxIdx]
}

func spectralCentroid(power, freqs []float64) float64 {
	var num, den float64
	for i, p := range power {
		num += freqs[i] * p
		den += p
	}
	if den == 0 {
		return schema.FeatureSentinel
	}
	return num / den
}

func spectralBandwidth(power, freqs []float64, centroid float64) float64 {
	if centroid == schema.FeatureSentinel {
		return schema.FeatureSentinel
	}
	var num, den float64
	for i, p := range power {
		d := freqs[i] - centroid
		num += d * d * p
		den += p
	}
	if den == 0 {
		return schema.FeatureSentinel
	}
	return math.Sqrt(num / den)
}

func spectralEntropy(power []float64) float64 {
	var total float64
	for _, p := range power {
		total += p
	}
	if total == 0 {
		return schema.FeatureSentinel
	}

	var entropy float64
	for _, p := range power {
		if p == 0 {
			continue
		}
		pn := p / total
		entropy -= pn * math.Log2(pn)
	}
	maxEntropy := math.Log2(float64(len(power)))
	if maxEntropy == 0 {
		return schema.FeatureSentinel
	}
	return entropy / maxEntropy
}

// bandPowerRatio returns the fraction of total spectral power falling
// within [loHz, hiHz).
func bandPowerRatio(power, freqs []float64, loHz, hiHz float64) float64 {
	var bandPower, totalPower float64
	for i, p := range power {
		totalPower += p
		if freqs[i] >= loHz && freqs[i] < hiHz {
			bandPower += p
		}
	}
	if totalPower == 0 {
		return schema.FeatureSentinel
	}
	return bandPower / totalPower
}
