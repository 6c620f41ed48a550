// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package features

import "math"

// haarEnergies runs a multilevel Haar discrete wavelet transform and
// returns the energy (sum of squared detail coefficients) at each
// level, level 1 first (finest/highest frequency detail). Only the
// "haar" mother wavelet is supported; it is the simplest orthogonal
// wavelet and needs no external DSP library (see DESIGN.md).
func haarEnergies(x []float64, levels int) []float64 {
	energies := make([]float64, levels)

	approx := make([]float64, len(x))
	copy(approx, x)

	for level := 0; level < levels; level++ {
		if len(approx) < 2 {
			break
		}
		nextApprox, detail := haarStep(approx)

		var energy float64
		for _, d := range detail {
			energy += d * d
		}
		energies[level] = energy

		approx = nextApprox
	}

	return energies
}

// haarStep performs one level of the Haar transform: pairs of samples
// are combined into an averaged approximation coefficient and a
// differenced detail coefficient, each scaled by 1/sqrt(2) to preserve
// energy (Parseval's theorem).
func haarStep(x []float64) (approx, detail []float64) {
	n := len(x) / 2
	approx = make([]float64, n)
	detail = make([]float64, n)

	const s = 1 / math.Sqrt2
	for i := 0; i < n; i++ {
		a := x[2*i]
		b := x[2*i+1]
		approx[i] = (a + b) * s
		detail[i] = (a - b) * s
	}
	return approx, detail
}
