// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package classifier

import (
	"math"
	"sync"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// Registry holds the active model Artifact behind a read-write lock so
// that a POST model-reload (spec §6) can swap it without a classifier
// worker ever observing a half-updated artifact: Reload takes the
// write lock, which drains (quiesces) any Classify call already
// holding a read lock before the swap proceeds.
type Registry struct {
	mu       sync.RWMutex
	artifact *Artifact
}

// NewRegistry loads the artifact at path and builds a Registry around it.
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

// Artifact returns the currently active artifact.
func (r *Registry) Artifact() *Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.artifact
}

// Classify returns the calibrated label and confidence for fv. A
// feature vector whose schema does not match the artifact's expected
// schema is a SchemaMismatch — fatal to the call, flagged to operators,
// never fatal to the process (spec §4.7, §7).
func (r *Registry) Classify(fv schema.FeatureVector) (schema.Classification, error) {
	const op = "classifier.Classify"

	r.mu.RLock()
	a := r.artifact
	r.mu.RUnlock()

	if fv.SchemaID != a.SchemaID {
		return schema.Classification{}, errs.New(errs.SchemaMismatch, op,
			"feature vector schema "+fv.SchemaID+" does not match model schema "+a.SchemaID, nil)
	}
	if len(fv.Values) != a.dimension() {
		return schema.Classification{}, errs.New(errs.SchemaMismatch, op, "feature vector dimension mismatch", nil)
	}

	logits := make([]float64, len(a.Labels))
	for k, row := range a.Weights {
		sum := row[len(row)-1] // bias
		for i, x := range fv.Values {
			sum += row[i] * x
		}
		logits[k] = sum / a.Temperature
	}

	probs := softmax(logits)

	bestIdx := 0
	for i, p := range probs {
		if p > probs[bestIdx] {
			bestIdx = i
		}
	}

	return schema.Classification{
		Label:      a.Labels[bestIdx],
		Confidence: probs[bestIdx],
	}, nil
}

// softmax is the calibration layer: temperature scaling (already
// applied to the logits by the caller) followed by a numerically
// stable softmax, producing a calibrated probability simplex the way
// a Platt-scaled multinomial classifier would (spec §4.7).
func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	exps := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		e := math.Exp(l - max)
		exps[i] = e
		sum += e
	}
	for i := range exps {
		exps[i] /= sum
	}
	return exps
}
