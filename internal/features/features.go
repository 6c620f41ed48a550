// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package features implements the Feature Extractor (C5): a
// deterministic, fixed-width feature vector producer over time,
// frequency, and time-frequency (wavelet) domains, per spec §4.5.
package features

import (
	"fmt"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/pkg/schema"
)

const (
	nameTimePeakAmplitude  = "time.peak_amplitude"
	nameTimeRMS            = "time.rms"
	nameTimeZeroCrossing   = "time.zero_crossing_rate"
	nameTimeEnvelopeMean   = "time.envelope_mean"
	nameTimeEnvelopeVar    = "time.envelope_variance"
	nameTimeEnvelopeSkew   = "time.envelope_skewness"
	nameTimeEnvelopeKurt   = "time.envelope_kurtosis"
	nameTimeDurationAbove  = "time.duration_above_threshold"

	nameFreqDominant  = "freq.dominant_frequency"
	nameFreqCentroid  = "freq.spectral_centroid"
	nameFreqBandwidth = "freq.spectral_bandwidth"
	nameFreqEntropy   = "freq.spectral_entropy"

	nameWaveletEnergyFmt = "wavelet.energy_level_%d"
)

// BuildSchema constructs the ordered FeatureSchema for a FeaturesConfig:
// the fixed time- and frequency-domain features, one band-power-ratio
// feature per configured band, and one wavelet-energy feature per
// configured level. The same config always yields the same schema, and
// hence the same feature ordering, satisfying spec §3's "same schema_id
// ⇒ same order" invariant. Only the "haar" mother wavelet is
// implemented (see wavelet.go); any other configured value is rejected
// here rather than silently producing Haar energies under the wrong
// name.
func BuildSchema(cfg schema.FeaturesConfig) (schema.FeatureSchema, error) {
	if cfg.WaveletLevels > 0 && cfg.Wavelet != "" && cfg.Wavelet != "haar" {
		return schema.FeatureSchema{}, errs.New(errs.Validation, "features.BuildSchema",
			fmt.Sprintf("unsupported wavelet %q: only %q is implemented", cfg.Wavelet, "haar"), nil)
	}

	names := []string{
		nameTimePeakAmplitude,
		nameTimeRMS,
		nameTimeZeroCrossing,
		nameTimeEnvelopeMean,
		nameTimeEnvelopeVar,
		nameTimeEnvelopeSkew,
		nameTimeEnvelopeKurt,
		nameTimeDurationAbove,
		nameFreqDominant,
		nameFreqCentroid,
		nameFreqBandwidth,
		nameFreqEntropy,
	}
	for _, band := range cfg.Bands {
		names = append(names, fmt.Sprintf("freq.band_power_ratio_%g_%g", band[0], band[1]))
	}
	for level := 1; level <= cfg.WaveletLevels; level++ {
		names = append(names, fmt.Sprintf(nameWaveletEnergyFmt, level))
	}

	return schema.FeatureSchema{ID: cfg.SchemaID, Names: names}, nil
}

// Extract computes the feature vector for seg under cfg. The segment
// must already be processed (detrended, bandpassed) by the Signal
// Processor; Extract does not repeat that work.
func Extract(seg *schema.WaveformSegment, cfg schema.FeaturesConfig) (schema.FeatureVector, error) {
	const op = "features.Extract"

	fschema, err := BuildSchema(cfg)
	if err != nil {
		return schema.FeatureVector{}, err
	}
	if len(seg.Samples) == 0 {
		return schema.FeatureVector{}, errs.New(errs.Validation, op, "segment has no samples", nil)
	}

	values := make([]float64, 0, fschema.Dimension())

	mean, variance, skew, kurt := envelopeMoments(seg.Samples)
	values = append(values,
		peakAmplitude(seg.Samples),
		rmsAmplitude(seg.Samples),
		zeroCrossingRate(seg.Samples, seg.SampleRate),
		mean, variance, skew, kurt,
		durationAboveThreshold(seg.Samples, seg.SampleRate),
	)

	power, freqs := powerSpectrum(seg.Samples, seg.SampleRate)
	centroid := spectralCentroid(power, freqs)
	values = append(values,
		dominantFrequency(power, freqs),
		centroid,
		spectralBandwidth(power, freqs, centroid),
		spectralEntropy(power),
	)

	for _, band := range cfg.Bands {
		values = append(values, bandPowerRatio(power, freqs, band[0], band[1]))
	}

	if cfg.WaveletLevels > 0 {
		energies := haarEnergies(seg.Samples, cfg.WaveletLevels)
		values = append(values, energies...)
	}

	vec := schema.FeatureVector{SchemaID: fschema.ID, Values: values}
	if err := vec.Validate(fschema); err != nil {
		return schema.FeatureVector{}, errs.New(errs.SchemaMismatch, op, "extracted vector failed schema validation", err)
	}
	return vec, nil
}
