// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package classifier

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
	"labels": ["noise", "local_quake", "regional_quake", "teleseism"],
	"weights": [
		[0, 0, 10],
		[5, 0, 0],
		[0, 5, 0],
		[0, 0, -5]
	],
	"temperature": 1
}`

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "classifier.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test artifact: %v", err)
	}
	return path
}

func TestClassifyPicksHighestProbabilityLabel(t *testing.T) {
	reg, err := NewRegistry(writeArtifact(t, testArtifact))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	got, err := reg.Classify(schema.FeatureVector{SchemaID: "fv-v1", Values: []float64{1, 0}})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Label != "noise" {
		t.Fatalf("expected noise to dominate via its large bias, got %s", got.Label)
	}
	if got.Confidence <= 0 || got.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", got.Confidence)
	}
}

func TestClassifyRejectsSchemaMismatch(t *testing.T) {
	reg, err := NewRegistry(writeArtifact(t, testArtifact))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	_, err = reg.Classify(schema.FeatureVector{SchemaID: "fv-v2", Values: []float64{1, 0}})
	if errs.KindOf(err) != errs.SchemaMismatch {
		t.Fatalf("expected SchemaMismatch, got %v", err)
	}
}

func TestReloadSwapsArtifactAtomically(t *testing.T) {
	reg, err := NewRegistry(writeArtifact(t, testArtifact))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	before := reg.Artifact().Version
	newPath := writeArtifact(t, `{"version":"v2","schema_id":"fv-v1","labels":["noise","local_quake","regional_quake","teleseism"],"weights":[[0,0,0],[0,0,0],[0,0,0],[0,0,0]],"temperature":1}`)
	if err := reg.Reload(newPath); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if reg.Artifact().Version == before {
		t.Fatalf("expected artifact version to change after reload")
	}
}

func TestLoadArtifactRejectsTooFewLabels(t *testing.T) {
	path := writeArtifact(t, `{"version":"v1","schema_id":"fv-v1","labels":["noise"],"weights":[[0,0]],"temperature":1}`)
	if _, err := LoadArtifact(path); err == nil {
		t.Fatalf("expected an error for fewer than 4 labels")
	}
}
