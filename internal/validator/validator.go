// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package validator implements the structural and physical-range
// sanity checks on Catalog Events and Waveform Segments (spec §4.3).
// Every check is a pure function: a failure is fatal to the record,
// never to the pipeline.
package validator

import (
	"fmt"
	"math"
	"time"

	"github.com/seismonet/quakewatch/pkg/schema"
)

// Result is the outcome of validating one record.
type Result struct {
	Reasons []string
}

// OK reports whether the record passed every check.
func (r Result) OK() bool { return len(r.Reasons) == 0 }

var (
	minOriginTime = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
)

// ValidateCatalogEvent checks a Catalog Event against spec §4.3's rules.
func ValidateCatalogEvent(e schema.CatalogEvent) Result {
	var reasons []string

	if e.ID == "" {
		reasons = append(reasons, "missing id")
	}

	now := time.Now().UTC()
	if e.OriginTime.Before(minOriginTime) || e.OriginTime.After(now.Add(time.Hour)) {
		reasons = append(reasons, fmt.Sprintf("origin time %s outside [1900, now+1h]", e.OriginTime))
	}

	if e.Hypocenter.Latitude < -90 || e.Hypocenter.Latitude > 90 {
		reasons = append(reasons, fmt.Sprintf("latitude %g out of range", e.Hypocenter.Latitude))
	}
	if e.Hypocenter.Longitude < -180 || e.Hypocenter.Longitude > 180 {
		reasons = append(reasons, fmt.Sprintf("longitude %g out of range", e.Hypocenter.Longitude))
	}
	if e.Hypocenter.DepthKm < 0 || e.Hypocenter.DepthKm > 800 {
		reasons = append(reasons, fmt.Sprintf("depth %g km out of range [0, 800]", e.Hypocenter.DepthKm))
	}

	if e.Magnitude.Value < -2 || e.Magnitude.Value > 10 {
		reasons = append(reasons, fmt.Sprintf("magnitude %g out of range [-2, 10]", e.Magnitude.Value))
	}
	if !e.Magnitude.Scale.Valid() {
		reasons = append(reasons, fmt.Sprintf("unrecognized magnitude scale %q", e.Magnitude.Scale))
	}

	return Result{Reasons: reasons}
}

// ValidateWaveformSegment checks a Waveform Segment against spec §4.3's rules.
func ValidateWaveformSegment(s *schema.WaveformSegment) Result {
	var reasons []string

	if s.SampleRate < 0.1 || s.SampleRate > 20000 {
		reasons = append(reasons, fmt.Sprintf("sample rate %g Hz out of range [0.1, 20000]", s.SampleRate))
	}

	if s.SampleRate > 0 {
		expectedDuration := float64(s.Count) / s.SampleRate
		actualDuration := s.End().Sub(s.Start).Seconds()
		sampleInterval := 1 / s.SampleRate
		if math.Abs(expectedDuration-actualDuration) > sampleInterval {
			reasons = append(reasons, "sample count does not match segment duration within one sample")
		}
	}

	for i, v := range s.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			reasons = append(reasons, fmt.Sprintf("sample %d is NaN/Inf", i))
			break
		}
	}

	for _, g := range s.Gaps {
		if !g.Start.Before(g.End) {
			reasons = append(reasons, "gap interval is not well-formed")
			break
		}
		if g.Start.Before(s.Start) || g.End.After(s.End()) {
			reasons = append(reasons, "gap interval extends outside segment bounds")
			break
		}
	}
	if overlaps, reason := gapsOverlap(s.Gaps); overlaps {
		reasons = append(reasons, reason)
	}

	return Result{Reasons: reasons}
}

func gapsOverlap(gaps []schema.Gap) (bool, string) {
	for i := 0; i < len(gaps); i++ {
		for j := i + 1; j < len(gaps); j++ {
			if gaps[i].Start.Before(gaps[j].End) && gaps[j].Start.Before(gaps[i].End) {
				return true, "gap intervals are not disjoint"
			}
		}
	}
	return false, ""
}
