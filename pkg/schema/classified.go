// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// Label is the closed set of classifier output categories (spec §4.7),
// extended at runtime by whatever a model artifact additionally declares.
type Label string

const (
	LabelEarthquake Label = "earthquake"
	LabelExplosion  Label = "explosion"
	LabelVolcanic   Label = "volcanic"
	LabelNoise      Label = "noise"
)

// Classification is the classifier's calibrated output.
type Classification struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// MagnitudeEstimate is a bootstrap confidence interval around a point estimate.
// Invariant: Low <= Value <= High.
type MagnitudeEstimate struct {
	Value float64 `json:"value"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Scale MagnitudeScale `json:"scale"`
}

// LocationEstimate is the output of the hypocenter inversion (C9).
type LocationEstimate struct {
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	DepthKm         float64 `json:"depth_km"`
	HorizontalErrKm float64 `json:"horizontal_err_km"`
	DepthErrKm      float64 `json:"depth_err_km"`
	RMSResidualS    float64 `json:"rms_residual_s"`
}

// PipelineTiming records per-stage latency for observability, not correctness.
type PipelineTiming struct {
	DetectedAt   time.Time     `json:"detected_at"`
	ProcessedAt  time.Time     `json:"processed_at"`
	ClassifiedAt time.Time     `json:"classified_at"`
	CommittedAt  time.Time     `json:"committed_at"`
	TotalLatency time.Duration `json:"total_latency_ns"`
}

// ClassifiedEvent is the join of a Candidate Event with its derived
// products; immutable once written to the Event Store (C11).
type ClassifiedEvent struct {
	ID               string             `json:"id"`
	Seq              uint64             `json:"seq"`
	TriggerInstant   time.Time          `json:"trigger_instant"`
	Channel          ChannelID          `json:"channel"`
	Features         FeatureVector      `json:"features"`
	Classification   Classification     `json:"classification"`
	Magnitude        MagnitudeEstimate  `json:"magnitude"`
	Location         LocationEstimate   `json:"location"`
	ContributingStations []ChannelID    `json:"contributing_stations"`
	Timing           PipelineTiming     `json:"timing"`
}
