// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package features

import "math/cmplx"

// fft computes the discrete Fourier transform of real-valued x via a
// recursive radix-2 Cooley-Tukey FFT. x is zero-padded to the next
// power of two. No FFT library appears anywhere in the retrieval pack
// (see DESIGN.md), so this is the one hand-rolled numerical routine in
// the module, built directly on stdlib math/cmplx.
func fft(x []float64) []complex128 {
	n := nextPow2(len(x))
	padded := make([]complex128, n)
	for i, v := range x {
		padded[i] = complex(v, 0)
	}
	return fftRecursive(padded)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	if p == 0 {
		p = 1
	}
	return p
}

func fftRecursive(x []complex128) []complex128 {
	n := len(x)
	if n <= 1 {
		return x
	}

	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = x[2*i]
		odd[i] = x[2*i+1]
	}

	evenFFT := fftRecursive(even)
	oddFFT := fftRecursive(odd)

	out := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		twiddle := cmplx.Rect(1, -2*pi*float64(k)/float64(n)) * oddFFT[k]
		out[k] = evenFFT[k] + twiddle
		out[k+n/2] = evenFFT[k] - twiddle
	}
	return out
}

const pi = 3.14159265358979323846

// powerSpectrum returns the one-sided power spectrum magnitude-squared
// and the frequency (Hz) of each bin, for a real input sampled at rate.
func powerSpectrum(x []float64, rate float64) (power, freqs []float64) {
	spec := fft(x)
	n := len(spec)
	half := n/2 + 1

	power = make([]float64, half)
	freqs = make([]float64, half)
	for i := 0; i < half; i++ {
		mag := cmplx.Abs(spec[i])
		power[i] = mag * mag
		freqs[i] = float64(i) * rate / float64(n)
	}
	return power, freqs
}
