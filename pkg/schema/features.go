// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"fmt"
	"math"
)

// FeatureSentinel is emitted in place of NaN for features that are
// undefined for a given input (e.g. dominant frequency of a flat segment).
// NaN itself is forbidden in a Feature Vector (spec §3).
const FeatureSentinel = -999.0

// FeatureSchema names, in order, the scalar features a FeatureVector of
// a given SchemaID carries. Two vectors with the same SchemaID always
// list their Names in this same order.
type FeatureSchema struct {
	ID    string   `json:"schema_id"`
	Names []string `json:"names"`
}

func (s FeatureSchema) Dimension() int { return len(s.Names) }

// FeatureVector is a fixed-width, named, versioned real vector.
type FeatureVector struct {
	SchemaID string    `json:"schema_id"`
	Values   []float64 `json:"values"`
}

// Validate checks the vector against its declared schema: correct width
// and no NaN/Inf values (the sentinel is used for "undefined" instead).
func (v FeatureVector) Validate(schema FeatureSchema) error {
	if v.SchemaID != schema.ID {
		return fmt.Errorf("feature vector schema %q does not match expected schema %q", v.SchemaID, schema.ID)
	}
	if len(v.Values) != schema.Dimension() {
		return fmt.Errorf("feature vector has %d values, schema %q expects %d", len(v.Values), schema.ID, schema.Dimension())
	}
	for i, x := range v.Values {
		if math.IsNaN(x) {
			return fmt.Errorf("feature vector: NaN at index %d (%s); use schema.FeatureSentinel instead", i, schema.Names[i])
		}
	}
	return nil
}
