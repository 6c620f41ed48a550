// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package classifier implements the Classifier (C7): loading a
// versioned model artifact and serving calibrated label predictions
// over a fixed-schema Feature Vector, per spec §4.7. Model *training*
// is out of scope (spec §1); this package only loads and serves an
// artifact produced elsewhere.
package classifier

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/seismonet/quakewatch/pkg/schema"
)

// Artifact is the immutable, versioned model the Classifier serves.
// It is a multinomial logistic-regression weight matrix with a
// temperature-scaling calibration term (Platt-style scalar calibration
// generalized to the multi-class case), bundled with the label set it
// was trained to emit.
type Artifact struct {
	Version     string        `json:"version"`
	SchemaID    string        `json:"schema_id"`
	Labels      []schema.Label `json:"labels"`
	// Weights is len(Labels) rows of len(dimension)+1 columns (last
	// column is the bias term), one row per label.
	Weights     [][]float64 `json:"weights"`
	Temperature float64     `json:"temperature"`
}

// LoadArtifact reads and validates a model artifact from path.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: reading artifact %s: %w", path, err)
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("classifier: decoding artifact %s: %w", path, err)
	}
	if len(a.Labels) < 4 {
		return nil, fmt.Errorf("classifier: artifact %s declares fewer than 4 labels", path)
	}
	if len(a.Weights) != len(a.Labels) {
		return nil, fmt.Errorf("classifier: artifact %s has %d weight rows for %d labels", path, len(a.Weights), len(a.Labels))
	}
	if a.Temperature <= 0 {
		a.Temperature = 1
	}
	return &a, nil
}

func (a *Artifact) dimension() int {
	if len(a.Weights) == 0 {
		return 0
	}
	return len(a.Weights[0]) - 1
}
