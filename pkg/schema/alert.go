// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import "time"

// AlertLevel is the severity a rule assigns to a Classified Event.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarn     AlertLevel = "WARN"
	AlertCritical AlertLevel = "CRITICAL"
)

// AlertRule is a closed, JSON-decodable predicate — deliberately not a
// general expression language (see SPEC_FULL.md, "Alert rule predicates").
type AlertRule struct {
	MinMagnitude  *float64 `json:"min_magnitude,omitempty"`
	Label         *Label   `json:"label,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	Level         AlertLevel `json:"level"`
	DedupTemplate string     `json:"dedup_template"`
}

// Matches reports whether a rule's predicate is satisfied by an event.
func (r AlertRule) Matches(e *ClassifiedEvent) bool {
	if r.MinMagnitude != nil && e.Magnitude.Value < *r.MinMagnitude {
		return false
	}
	if r.Label != nil && e.Classification.Label != *r.Label {
		return false
	}
	if r.MinConfidence != nil && e.Classification.Confidence < *r.MinConfidence {
		return false
	}
	return true
}

// Alert is the outbound notification emitted by the Alert Dispatcher (C12).
type Alert struct {
	EventID   string     `json:"event_id"`
	Level     AlertLevel `json:"level"`
	IssuedAt  time.Time  `json:"issued_at"`
	Payload   string     `json:"payload"`
	DedupKey  string     `json:"dedup_key"`
}
