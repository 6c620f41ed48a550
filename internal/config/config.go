// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the program configuration file
// described in spec §6, following cc-backend's internal/config pattern:
// a package-level Keys variable carries defaults, Init overlays a JSON
// file validated against an embedded JSON Schema, and unknown keys are
// rejected outright.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/seismonet/quakewatch/pkg/schema"
)

// Keys holds the effective configuration, defaults first, overlaid by
// Init from the on-disk config file. cmd/quakewatch reads it once after
// Init and passes the relevant sections to each component's constructor.
var Keys = schema.ProgramConfig{
	Addr:                  ":8080",
	DisableAuthentication: false,

	Catalog: schema.ResilienceConfig{
		RateLimitRPS: 5, Burst: 5, TimeoutMS: 10_000,
		RetryMax: 3, RetryBackoffMS: 250,
		BreakerThreshold: 5, BreakerCoolDownMS: 10_000,
	},
	Waveform: schema.ResilienceConfig{
		RateLimitRPS: 5, Burst: 5, TimeoutMS: 10_000,
		RetryMax: 3, RetryBackoffMS: 250,
		BreakerThreshold: 5, BreakerCoolDownMS: 10_000,
	},
	Detector: schema.DetectorConfig{
		STASeconds: 1, LTASeconds: 10,
		TriggerOnRatio: 4, TriggerOffRatio: 2,
		MinEventSeconds: 1, MaxEventSeconds: 30,
		PreRollSeconds: 2, PostRollSeconds: 5, RefractorySeconds: 5,
	},
	Processor: schema.ProcessorConfig{
		BandpassLowHz: 1, BandpassHighHz: 20, BandpassOrder: 4,
	},
	Features: schema.FeaturesConfig{
		SchemaID:      "v1",
		Bands:         [][2]float64{{1, 3}, {3, 10}, {10, 20}},
		Wavelet:       "haar",
		WaveletLevels: 4,
	},
	Locator: schema.LocatorConfig{
		MinStations: 4, GridStepDeg: 0.1, MaxIter: 50, EpsKm: 0.1,
	},
	Pipeline: schema.PipelineConfig{
		QueueCapacity: 256, ReorderWindowMS: 5_000, WorkerCount: 8,
	},
	Alerts: schema.AlertsConfig{
		DedupWindowS: 300, PerSubscriberRPS: 2,
	},
	Store: schema.StoreConfig{
		Dir: "./var/store", Fsync: "per_write",
	},
}

// Init reads flagConfigFile, validates it against the embedded JSON
// Schema, and decodes it on top of the defaults in Keys. A missing
// file is not an error — the defaults above are used as-is, matching
// cc-backend's "config is optional" startup behavior. A malformed or
// schema-invalid file is fatal at startup (spec §6 exit code 1).
func Init(flagConfigFile string) error {
	if flagConfigFile == "" {
		return nil
	}
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", flagConfigFile, err)
	}

	if err := schema.Validate(schema.Config, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("config: %s failed schema validation: %w", flagConfigFile, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decoding %s: %w", flagConfigFile, err)
	}
	return nil
}
