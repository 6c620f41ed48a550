// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// CandidateState is the lifecycle stage of a Candidate Event.
type CandidateState int

const (
	StateProvisional CandidateState = iota
	StateConfirmed
	StateRejected
)

func (s CandidateState) String() string {
	switch s {
	case StateProvisional:
		return "PROVISIONAL"
	case StateConfirmed:
		return "CONFIRMED"
	case StateRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// RejectReason explains why a Candidate Event never reached CONFIRMED,
// used to annotate the dead-letter stream.
type RejectReason string

const (
	RejectBelowMinDuration RejectReason = "below_min_duration"
	RejectGap              RejectReason = "stream_gap"
	RejectValidation       RejectReason = "validation_failed"
	RejectSchemaMismatch   RejectReason = "schema_mismatch"
	RejectLocatorFailure   RejectReason = "locator_failed"
	RejectCancelled        RejectReason = "cancelled"
)

// Window is a closed-open [Start, End) time interval attached to a candidate.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CandidateEvent is an internal-origin detection produced by the Event Detector (C6).
type CandidateEvent struct {
	// Seq is a monotonically increasing sequence number assigned at emit
	// time; it is the correlation key the orchestrator uses to re-order
	// Classified Event commits without a back-reference to the detector.
	Seq uint64 `json:"seq"`

	DetectorID      string         `json:"detector_id"`
	Channel         ChannelID      `json:"channel"`
	TriggerInstant  time.Time      `json:"trigger_instant"`
	TriggerRatio    float64        `json:"trigger_ratio"`
	DetriggerInstant time.Time     `json:"detrigger_instant,omitempty"`
	PreRoll         Window         `json:"pre_roll"`
	PostRoll        Window         `json:"post_roll"`
	State           CandidateState `json:"state"`
	RejectReason    RejectReason   `json:"reject_reason,omitempty"`
}

// Duration returns the confirmed event duration (trigger to detrigger).
func (c *CandidateEvent) Duration() time.Duration {
	if c.DetriggerInstant.IsZero() {
		return 0
	}
	return c.DetriggerInstant.Sub(c.TriggerInstant)
}
