// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// ResilienceConfig configures the ResilientCaller shared by the Catalog
// Client (C1) and the Waveform Client (C2): rate limiting, retry backoff
// and the circuit breaker.
type ResilienceConfig struct {
	RateLimitRPS      float64 `json:"rate_limit_rps"`
	Burst             int     `json:"burst"`
	TimeoutMS         int     `json:"timeout_ms"`
	RetryMax          int     `json:"retry_max"`
	RetryBackoffMS    int     `json:"retry_backoff_ms"`
	BreakerThreshold  int     `json:"breaker_threshold"`
	BreakerCoolDownMS int     `json:"breaker_cool_down_ms"`
}

// DetectorConfig configures the STA/LTA trigger state machine (C6).
type DetectorConfig struct {
	STASeconds        float64 `json:"sta_s"`
	LTASeconds        float64 `json:"lta_s"`
	TriggerOnRatio    float64 `json:"r_on"`
	TriggerOffRatio   float64 `json:"r_off"`
	MinEventSeconds   float64 `json:"d_min_s"`
	MaxEventSeconds   float64 `json:"d_max_s"`
	PreRollSeconds    float64 `json:"pre_roll_s"`
	PostRollSeconds   float64 `json:"post_roll_s"`
	RefractorySeconds float64 `json:"refractory_s"`
}

// ProcessorConfig configures the Signal Processor's bandpass stage (C4).
type ProcessorConfig struct {
	BandpassLowHz  float64 `json:"bandpass_low_hz"`
	BandpassHighHz float64 `json:"bandpass_high_hz"`
	BandpassOrder  int     `json:"bandpass_order"`
}

// FeaturesConfig configures the Feature Extractor (C5).
type FeaturesConfig struct {
	SchemaID      string       `json:"schema_id"`
	Bands         [][2]float64 `json:"bands"`
	Wavelet       string       `json:"wavelet"`
	WaveletLevels int          `json:"wavelet_levels"`
}

// ModelConfig points a model consumer at a versioned artifact on disk
// and the feature schema it was trained against.
type ModelConfig struct {
	Path             string `json:"path"`
	ExpectedSchemaID string `json:"expected_schema_id"`
}

// ModelsConfig points the Classifier (C7) and Magnitude Estimator (C8)
// each at their own artifact: the two stages are trained and versioned
// independently even though both consume the same Feature Vector.
type ModelsConfig struct {
	Classifier ModelConfig `json:"classifier"`
	Magnitude  ModelConfig `json:"magnitude"`
}

// StationEntry is one row of the locator's station coordinate registry.
type StationEntry struct {
	Network    string  `json:"network"`
	Station    string  `json:"station"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	ElevationM float64 `json:"elevation_m"`
}

// LocatorConfig configures the multi-station hypocenter inversion (C9).
type LocatorConfig struct {
	MinStations int            `json:"min_stations"`
	GridStepDeg float64        `json:"grid_step_deg"`
	MaxIter     int            `json:"max_iter"`
	EpsKm       float64        `json:"eps_km"`
	Stations    []StationEntry `json:"stations"`
}

// PipelineConfig configures the concurrent orchestrator graph (C10).
type PipelineConfig struct {
	QueueCapacity   int `json:"queue_capacity"`
	ReorderWindowMS int `json:"reorder_window_ms"`
	WorkerCount     int `json:"worker_count"`
}

// SubscriberConfig names one outbound webhook alert subscriber.
type SubscriberConfig struct {
	ID         string `json:"id"`
	WebhookURL string `json:"webhook_url"`
}

// AlertsConfig configures the deduplicated, rate-limited dispatcher (C12).
type AlertsConfig struct {
	Rules            []AlertRule        `json:"rules"`
	DedupWindowS     int                `json:"dedup_window_s"`
	PerSubscriberRPS float64            `json:"per_subscriber_rps"`
	Subscribers      []SubscriberConfig `json:"subscribers"`
}

// StoreConfig configures the durable, indexed Event Store (C11).
type StoreConfig struct {
	Dir    string `json:"dir"`
	Fsync  string `json:"fsync"` // "per_write" | "periodic"
	Period int    `json:"fsync_period_ms"`
}

// JWTConfig configures bearer-token validation on the public HTTP API.
// The core only verifies tokens minted by an external trust anchor; it
// never issues them.
type JWTConfig struct {
	Issuer    string `json:"issuer"`
	Audience  string `json:"audience"`
	Algorithm string `json:"algorithm"`
	Secret    string `json:"secret"`
}

// ProgramConfig is the top-level, JSON-Schema-validated configuration
// file decoded at startup (spec §6). Unknown keys are rejected by the
// decoder that loads it (see internal/config).
type ProgramConfig struct {
	// Address the http(s) server will listen on (for example: 'localhost:8080').
	Addr string `json:"addr"`

	// Drop root permissions once the port was taken.
	User  string `json:"user"`
	Group string `json:"group"`

	// Disable authentication for every endpoint. Only meant for local dev.
	DisableAuthentication bool `json:"disable-authentication"`

	CatalogBaseURL  string `json:"catalog-base-url"`
	WaveformBaseURL string `json:"waveform-base-url"`

	Catalog  ResilienceConfig `json:"catalog"`
	Waveform ResilienceConfig `json:"waveform"`

	Detector  DetectorConfig  `json:"detector"`
	Processor ProcessorConfig `json:"processor"`
	Features  FeaturesConfig  `json:"features"`
	Models    ModelsConfig    `json:"model"`
	Locator   LocatorConfig   `json:"locator"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Alerts    AlertsConfig    `json:"alerts"`
	Store     StoreConfig     `json:"store"`
	JWT       JWTConfig       `json:"jwt"`

	// If both are set, serve HTTPS using these certificates.
	HttpsCertFile string `json:"https-cert-file"`
	HttpsKeyFile  string `json:"https-key-file"`
}
