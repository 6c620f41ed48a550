// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package detector implements the Event Detector (C6): a per-channel
// STA/LTA trigger state machine over a live sample stream, per spec
// §4.6. A Detector is stateful and single-consumer — exactly one
// goroutine may call ProcessSample for a given instance.
package detector

import (
	"time"

	"github.com/seismonet/quakewatch/pkg/schema"
)

// State is the detector's lifecycle stage for its channel.
type State int

const (
	Idle State = iota
	Armed
	Triggered
)

// Sample is one (time, amplitude) observation fed to the detector.
type Sample struct {
	Time  time.Time
	Value float64
}

// SeqSource hands out strictly increasing sequence numbers shared by
// every Detector in the pipeline, used by C10 to re-order Classified
// Event commits without a back-reference to the detector (spec §9).
type SeqSource func() uint64

// Detector is the per-channel STA/LTA state machine.
type Detector struct {
	id      string
	channel schema.ChannelID
	rate    float64
	cfg     schema.DetectorConfig
	nextSeq SeqSource

	state State

	sta *energyRing
	lta *energyRing

	ltaFrozen bool

	triggerInstant time.Time
	triggerRatio   float64

	refractoryUntil time.Time

	lastSampleTime time.Time
	haveLast       bool
}

// New builds a Detector for one channel at a fixed sample rate.
func New(id string, channel schema.ChannelID, rate float64, cfg schema.DetectorConfig, nextSeq SeqSource) *Detector {
	return &Detector{
		id:      id,
		channel: channel,
		rate:    rate,
		cfg:     cfg,
		nextSeq: nextSeq,
		state:   Idle,
		sta:     newEnergyRing(windowSamples(cfg.STASeconds, rate)),
		lta:     newEnergyRing(windowSamples(cfg.LTASeconds, rate)),
	}
}

func windowSamples(seconds, rate float64) int {
	n := int(seconds * rate)
	if n < 1 {
		n = 1
	}
	return n
}

// State returns the detector's current lifecycle stage.
func (d *Detector) State() State { return d.state }

// ProcessGap notifies the detector of a stream gap [start, end), per
// the gap policy in spec §4.6: ARMED → IDLE (reset); TRIGGERED → ARMED
// with a REJECTED finalization (reason stream_gap).
func (d *Detector) ProcessGap(start, end time.Time) *schema.CandidateEvent {
	d.haveLast = false

	switch d.state {
	case Armed:
		d.sta.reset()
		d.lta.reset()
		d.state = Idle
		return nil
	case Triggered:
		return d.finalize(end, schema.RejectGap, schema.StateRejected)
	default:
		return nil
	}
}

// ProcessSample advances the state machine by one sample, strictly in
// time order. It returns a finalized Candidate Event (CONFIRMED or
// REJECTED) when this sample causes one, or nil otherwise.
func (d *Detector) ProcessSample(s Sample) *schema.CandidateEvent {
	energy := s.Value * s.Value
	d.lastSampleTime = s.Time
	d.haveLast = true

	d.sta.push(energy)
	if !d.ltaFrozen {
		d.lta.push(energy)
	}

	switch d.state {
	case Idle:
		if d.lta.full() {
			d.state = Armed
		}
		return nil

	case Armed:
		if !d.sta.full() || !d.lta.full() {
			return nil
		}
		if !d.canTrigger(s.Time) {
			return nil
		}
		ratio := d.ratio()
		if ratio >= d.cfg.TriggerOnRatio {
			d.state = Triggered
			d.ltaFrozen = true
			d.triggerInstant = s.Time
			d.triggerRatio = ratio
		}
		return nil

	case Triggered:
		duration := s.Time.Sub(d.triggerInstant)
		ratio := d.ratio()

		maxDuration := time.Duration(d.cfg.MaxEventSeconds * float64(time.Second))
		if duration >= maxDuration {
			return d.finalize(d.triggerInstant.Add(maxDuration), "", schema.StateConfirmed)
		}

		if ratio <= d.cfg.TriggerOffRatio {
			// The STA window trails the signal, so the ratio only falls to
			// rOff about one STA window after the event's energy ended; the
			// detrigger instant is taken one STA window back.
			detrigger := s.Time.Add(-time.Duration(d.cfg.STASeconds * float64(time.Second)))
			if detrigger.Before(d.triggerInstant) {
				detrigger = d.triggerInstant
			}
			minDuration := time.Duration(d.cfg.MinEventSeconds * float64(time.Second))
			if detrigger.Sub(d.triggerInstant) >= minDuration {
				return d.finalize(detrigger, "", schema.StateConfirmed)
			}
			return d.finalize(detrigger, schema.RejectBelowMinDuration, schema.StateRejected)
		}
		return nil
	}

	return nil
}

func (d *Detector) ratio() float64 {
	lta := d.lta.average()
	if lta <= 0 {
		return 0
	}
	return d.sta.average() / lta
}

func (d *Detector) canTrigger(now time.Time) bool {
	return !now.Before(d.refractoryUntil)
}

func (d *Detector) finalize(detriggerInstant time.Time, reason schema.RejectReason, state schema.CandidateState) *schema.CandidateEvent {
	preRoll := schema.Window{
		Start: d.triggerInstant.Add(-time.Duration(d.cfg.PreRollSeconds * float64(time.Second))),
		End:   d.triggerInstant,
	}
	postRoll := schema.Window{
		Start: detriggerInstant,
		End:   detriggerInstant.Add(time.Duration(d.cfg.PostRollSeconds * float64(time.Second))),
	}

	// A rejected candidate never emits (spec §4.6) and so never consumes
	// a sequence number; only a CONFIRMED candidate draws one from the
	// shared source, at the instant it is handed to the orchestrator.
	var seq uint64
	if state == schema.StateConfirmed {
		seq = d.nextSeq()
	}

	ev := &schema.CandidateEvent{
		Seq:              seq,
		DetectorID:       d.id,
		Channel:          d.channel,
		TriggerInstant:   d.triggerInstant,
		TriggerRatio:     d.triggerRatio,
		DetriggerInstant: detriggerInstant,
		PreRoll:          preRoll,
		PostRoll:         postRoll,
		State:            state,
		RejectReason:     reason,
	}

	d.ltaFrozen = false
	d.state = Armed
	d.refractoryUntil = detriggerInstant.Add(time.Duration(d.cfg.RefractorySeconds * float64(time.Second)))

	return ev
}
