// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package magnitude implements the Magnitude Estimator (C8): a linear
// regression over a Feature Vector with a bootstrap-derived confidence
// interval from a held-out residual distribution bundled with the
// artifact, per spec §4.8.
package magnitude

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/seismonet/quakewatch/pkg/schema"
)

// Artifact bundles the regression weights and the held-out residual
// sample the bootstrap confidence interval is drawn from.
type Artifact struct {
	Version   string                 `json:"version"`
	SchemaID  string                 `json:"schema_id"`
	Scale     schema.MagnitudeScale  `json:"scale"`
	// Weights has one coefficient per feature plus a trailing bias term.
	Weights   []float64 `json:"weights"`
	// Residuals is the held-out (observed-predicted) sample used to
	// derive the [alpha/2, 1-alpha/2] bootstrap interval around a
	// point estimate.
	Residuals []float64 `json:"residuals"`
	Alpha     float64   `json:"alpha"`
}

// LoadArtifact reads and validates a magnitude model artifact from path.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("magnitude: reading artifact %s: %w", path, err)
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("magnitude: decoding artifact %s: %w", path, err)
	}
	if len(a.Residuals) == 0 {
		return nil, fmt.Errorf("magnitude: artifact %s has no held-out residual sample", path)
	}
	if a.Alpha <= 0 || a.Alpha >= 1 {
		a.Alpha = 0.05
	}
	sort.Float64s(a.Residuals)
	return &a, nil
}

func (a *Artifact) dimension() int {
	if len(a.Weights) == 0 {
		return 0
	}
	return len(a.Weights) - 1
}

// quantile returns the q-th quantile (0<=q<=1) of the sorted residual
// sample via linear interpolation between order statistics.
func (a *Artifact) quantile(q float64) float64 {
	n := len(a.Residuals)
	if n == 1 {
		return a.Residuals[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	if lo >= n-1 {
		return a.Residuals[n-1]
	}
	frac := pos - float64(lo)
	return a.Residuals[lo]*(1-frac) + a.Residuals[lo+1]*frac
}
