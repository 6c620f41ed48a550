// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `{
	"addr": "127.0.0.1:9090",
	"catalog": {"rate_limit_rps": 5, "burst": 10, "timeout_ms": 2000},
	"waveform": {"rate_limit_rps": 5, "burst": 10, "timeout_ms": 2000},
	"detector": {
		"sta_s": 1, "lta_s": 30, "r_on": 3, "r_off": 1.5,
		"d_min_s": 2, "d_max_s": 120, "pre_roll_s": 5,
		"post_roll_s": 10, "refractory_s": 5
	},
	"processor": {"bandpass_low_hz": 1, "bandpass_high_hz": 20, "bandpass_order": 4},
	"features": {"schema_id": "v1"},
	"model": {
		"classifier": {"path": "models/classifier-v1.json", "expected_schema_id": "v1"},
		"magnitude": {"path": "models/magnitude-v1.json", "expected_schema_id": "v1"}
	},
	"locator": {"min_stations": 4, "grid_step_deg": 0.1, "max_iter": 50, "eps_km": 0.5},
	"pipeline": {"queue_capacity": 1024, "worker_count": 4},
	"alerts": {"dedup_window_s": 60},
	"store": {"dir": "/var/lib/quakewatch", "fsync": "per_write"}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestInitMissingFileKeepsDefaults(t *testing.T) {
	before := Keys
	if err := Init(filepath.Join(t.TempDir(), "does-not-exist.json")); err != nil {
		t.Fatalf("Init with a missing file should not error, got: %v", err)
	}
	if Keys.Addr != before.Addr {
		t.Fatalf("expected defaults to survive a missing config file")
	}
}

func TestInitOverlaysValidConfig(t *testing.T) {
	if err := Init(writeConfig(t, validConfig)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Keys.Addr != "127.0.0.1:9090" {
		t.Fatalf("expected overlay to replace addr, got %q", Keys.Addr)
	}
	if Keys.Models.Classifier.Path != "models/classifier-v1.json" {
		t.Fatalf("expected classifier model path to be decoded, got %q", Keys.Models.Classifier.Path)
	}
}

func TestInitRejectsSchemaInvalidConfig(t *testing.T) {
	if err := Init(writeConfig(t, `{"addr": "127.0.0.1:9090"}`)); err == nil {
		t.Fatalf("expected a schema validation error for a config missing required sections")
	}
}

func TestInitRejectsUnknownFields(t *testing.T) {
	bad := `{"addr": "127.0.0.1:9090", "totally_unknown_field": true,` +
		validConfig[strings.Index(validConfig, `"catalog"`):]
	if err := Init(writeConfig(t, bad)); err == nil {
		t.Fatalf("expected an error for an unknown top-level field")
	}
}
