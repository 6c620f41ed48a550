// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"fmt"
	"time"
)

// ChannelID identifies one (network, station, location, channel) tuple,
// the unit a Stream and a WaveformSegment are addressed by.
type ChannelID struct {
	Network  string `json:"network"`
	Station  string `json:"station"`
	Location string `json:"location"`
	Channel  string `json:"channel"`
}

func (c ChannelID) String() string {
	return fmt.Sprintf("%s.%s.%s.%s", c.Network, c.Station, c.Location, c.Channel)
}

// Gap is a half-open interval [Start, End) where data is absent from a segment.
type Gap struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// QualityFlag summarizes upstream data-quality indicators attached to a segment.
type QualityFlag int

const (
	QualityUnknown QualityFlag = iota
	QualityGood
	QualityQuestionable
	QualityBad
)

// WaveformSegment is a finite, contiguous sample sequence for one channel.
//
// Invariant: Start.Add(duration) == End, where duration is Count/SampleRate
// seconds; Gaps are disjoint and strictly within [Start, End).
type WaveformSegment struct {
	Channel    ChannelID   `json:"channel"`
	Start      time.Time   `json:"start"`
	SampleRate float64     `json:"sample_rate_hz"`
	Count      int         `json:"count"`
	Samples    []float64   `json:"samples"`
	Gaps       []Gap       `json:"gaps,omitempty"`
	Quality    QualityFlag `json:"quality"`
}

// End returns the exclusive end instant implied by Start, Count and SampleRate.
func (s *WaveformSegment) End() time.Time {
	if s.SampleRate <= 0 {
		return s.Start
	}
	d := time.Duration(float64(s.Count) / s.SampleRate * float64(time.Second))
	return s.Start.Add(d)
}

// Clone returns a deep copy so that downstream stages never mutate shared samples.
func (s *WaveformSegment) Clone() *WaveformSegment {
	out := *s
	out.Samples = append([]float64(nil), s.Samples...)
	out.Gaps = append([]Gap(nil), s.Gaps...)
	return &out
}

// Duration returns the nominal segment duration.
func (s *WaveformSegment) Duration() time.Duration {
	return s.End().Sub(s.Start)
}
