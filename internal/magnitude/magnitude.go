// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package magnitude

import (
	"sync"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// Registry holds the active magnitude Artifact, reloadable the same
// way classifier.Registry is (spec §5 "swapping a new artifact").
type Registry struct {
	mu       sync.RWMutex
	artifact *Artifact
}

// NewRegistry loads the artifact at path.
func NewRegistry(path string) (*Registry, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return &Registry{artifact: a}, nil
}

// Reload atomically swaps in a freshly loaded artifact from path.
func (r *Registry) Reload(path string) error {
	a, err := LoadArtifact(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifact = a
	return nil
}

// Estimate regresses a magnitude value from fv and derives a bootstrap
// confidence interval from the artifact's held-out residual sample,
// the [alpha/2, 1-alpha/2] quantiles added to the point estimate
// (spec §4.8). The invariant low <= value <= high always holds: the
// bounds are swapped if out of order, then clamped to the point
// estimate where a quantile offset would put them past it.
func (r *Registry) Estimate(fv schema.FeatureVector) (schema.MagnitudeEstimate, error) {
	const op = "magnitude.Estimate"

	r.mu.RLock()
	a := r.artifact
	r.mu.RUnlock()

	if fv.SchemaID != a.SchemaID {
		return schema.MagnitudeEstimate{}, errs.New(errs.SchemaMismatch, op,
			"feature vector schema "+fv.SchemaID+" does not match model schema "+a.SchemaID, nil)
	}
	if len(fv.Values) != a.dimension() {
		return schema.MagnitudeEstimate{}, errs.New(errs.SchemaMismatch, op, "feature vector dimension mismatch", nil)
	}

	value := a.Weights[len(a.Weights)-1] // bias
	for i, x := range fv.Values {
		value += a.Weights[i] * x
	}

	low := value + a.quantile(a.Alpha/2)
	high := value + a.quantile(1-a.Alpha/2)
	if low > high {
		low, high = high, low
	}
	if low > value {
		low = value
	}
	if high < value {
		high = value
	}

	return schema.MagnitudeEstimate{Value: value, Low: low, High: high, Scale: a.Scale}, nil
}

// BatchEstimate estimates each input independently, per spec §4.8.
func (r *Registry) BatchEstimate(fvs []schema.FeatureVector) ([]schema.MagnitudeEstimate, error) {
	out := make([]schema.MagnitudeEstimate, len(fvs))
	for i, fv := range fvs {
		est, err := r.Estimate(fv)
		if err != nil {
			return nil, err
		}
		out[i] = est
	}
	return out, nil
}
