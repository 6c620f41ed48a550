// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"bytes"
	"testing"
)

func TestValidateConfig(t *testing.T) {
	json := []byte(`{
		"addr": "127.0.0.1:8080",
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
	}`)

	if err := Validate(Config, bytes.NewReader(json)); err != nil {
		t.Errorf("Error is not nil! %v", err)
	}
}

func TestValidateConfigRejectsMissingRequired(t *testing.T) {
	json := []byte(`{"addr": "127.0.0.1:8080"}`)

	if err := Validate(Config, bytes.NewReader(json)); err == nil {
		t.Errorf("expected validation error for missing required sections")
	}
}
