// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package magnitude

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/pkg/schema"
)

const testArtifact = `{
	"version": "v1",
	"schema_id": "fv-v1",
	"scale": "Ml",
	"weights": [1.5, 0.5, 1.0],
	"residuals": [-0.4, -0.2, -0.1, 0.0, 0.1, 0.2, 0.4],
	"alpha": 0.1
}`

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "magnitude.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test artifact: %v", err)
	}
	return path
}

func TestEstimateBracketsPointValue(t *testing.T) {
	reg, err := NewRegistry(writeArtifact(t, testArtifact))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	est, err := reg.Estimate(schema.FeatureVector{SchemaID: "fv-v1", Values: []float64{1, 2}})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if !(est.Low <= est.Value && est.Value <= est.High) {
		t.Fatalf("expected low <= value <= high, got low=%v value=%v high=%v", est.Low, est.Value, est.High)
	}
	if est.Scale != schema.ScaleMl {
		t.Fatalf("expected scale Ml, got %v", est.Scale)
	}
}

func TestEstimateRejectsSchemaMismatch(t *testing.T) {
	reg, err := NewRegistry(writeArtifact(t, testArtifact))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	_, err = reg.Estimate(schema.FeatureVector{SchemaID: "fv-v2", Values: []float64{1, 2}})
	if errs.KindOf(err) != errs.SchemaMismatch {
		t.Fatalf("expected SchemaMismatch, got %v", err)
	}
}

func TestBatchEstimateStopsOnFirstError(t *testing.T) {
	reg, err := NewRegistry(writeArtifact(t, testArtifact))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	_, err = reg.BatchEstimate([]schema.FeatureVector{
		{SchemaID: "fv-v1", Values: []float64{1, 2}},
		{SchemaID: "wrong", Values: []float64{1, 2}},
	})
	if err == nil {
		t.Fatalf("expected an error from the second, mismatched vector")
	}
}

func TestLoadArtifactRejectsEmptyResiduals(t *testing.T) {
	path := writeArtifact(t, `{"version":"v1","schema_id":"fv-v1","scale":"Ml","weights":[1,1],"residuals":[],"alpha":0.1}`)
	if _, err := LoadArtifact(path); err == nil {
		t.Fatalf("expected an error for an empty residual sample")
	}
}
