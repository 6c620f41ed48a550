// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package orchestrator implements the Pipeline Orchestrator (C10): it
// wires the Event Detector's Candidate Events into a bounded worker
// pool that fetches the surrounding waveform window, runs the Signal
// Processor and Feature Extractor, classifies and estimates magnitude
// in parallel, locates the hypocenter, and commits the result to the
// Event Store in trigger-instant order (spec §4.10).
package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/seismonet/quakewatch/internal/classifier"
	"github.com/seismonet/quakewatch/internal/deadletter"
	"github.com/seismonet/quakewatch/internal/detector"
	"github.com/seismonet/quakewatch/internal/features"
	"github.com/seismonet/quakewatch/internal/locator"
	"github.com/seismonet/quakewatch/internal/magnitude"
	"github.com/seismonet/quakewatch/internal/signalproc"
	"github.com/seismonet/quakewatch/internal/store"
	"github.com/seismonet/quakewatch/internal/waveformclient"
	"github.com/seismonet/quakewatch/pkg/log"
	"github.com/seismonet/quakewatch/pkg/metrics"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// pickSigmaSeconds is the fixed arrival-time uncertainty assigned to
// every pick; the bundled travel-time model (SPEC_FULL.md "Locator
// travel-time model") does not estimate per-pick uncertainty, so a
// single conservative constant stands in for it.
const pickSigmaSeconds = 0.3

// Pipeline composes C4 through C9 downstream of the per-channel
// detectors into the bounded, ordered commit path spec §4.10 describes.
type Pipeline struct {
	processorCfg schema.ProcessorConfig
	featuresCfg  schema.FeaturesConfig
	locatorCfg   schema.LocatorConfig

	waveform   *waveformclient.Client
	classifier *classifier.Registry
	magnitude  *magnitude.Registry
	locator    *locator.Locator
	stations   *locator.Registry
	store      *store.Store
	deadletter *deadletter.Sink

	seq uint64

	queue chan *schema.CandidateEvent
	sem   *semaphore.Weighted

	reorder *reorderBuffer
}

// Deps bundles every component the orchestrator wires together.
type Deps struct {
	Waveform   *waveformclient.Client
	Classifier *classifier.Registry
	Magnitude  *magnitude.Registry
	Locator    *locator.Locator
	Stations   *locator.Registry
	Store      *store.Store
	DeadLetter *deadletter.Sink
}

// New builds a Pipeline. startSeq should be the store's MaxSeq()+1 on a
// warm restart so sequence numbers and the reorder buffer stay
// consistent with what was already committed.
func New(cfg schema.ProgramConfig, startSeq uint64, deps Deps) *Pipeline {
	p := &Pipeline{
		processorCfg: cfg.Processor,
		featuresCfg:  cfg.Features,
		locatorCfg:   cfg.Locator,
		waveform:     deps.Waveform,
		classifier:   deps.Classifier,
		magnitude:    deps.Magnitude,
		locator:      deps.Locator,
		stations:     deps.Stations,
		store:        deps.Store,
		deadletter:   deps.DeadLetter,
		seq:          startSeq,
		queue:        make(chan *schema.CandidateEvent, cfg.Pipeline.QueueCapacity),
		sem:          semaphore.NewWeighted(int64(cfg.Pipeline.WorkerCount)),
	}
	window := time.Duration(cfg.Pipeline.ReorderWindowMS) * time.Millisecond
	p.reorder = newReorderBuffer(startSeq, window, p.commit)
	return p
}

// NextSeq hands out the next monotonically increasing sequence number,
// the detector.SeqSource every per-channel Detector shares (spec §9).
func (p *Pipeline) NextSeq() uint64 {
	return atomic.AddUint64(&p.seq, 1) - 1
}

// NewDetector builds a Detector wired to this pipeline's shared
// sequence source, so every channel's Candidate Events interleave into
// one strictly increasing sequence space for the reorder buffer.
func (p *Pipeline) NewDetector(id string, channel schema.ChannelID, rate float64, cfg schema.DetectorConfig) *detector.Detector {
	return detector.New(id, channel, rate, cfg, p.NextSeq)
}

// Submit hands a finalized Candidate Event to the worker pool, blocking
// until a queue slot is free. Backpressure, never drop, per spec §4.10.
func (p *Pipeline) Submit(ctx context.Context, ev *schema.CandidateEvent) error {
	select {
	case p.queue <- ev:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue with a bounded worker pool until ctx is
// cancelled or the queue is closed. On cancellation, candidates still
// waiting in the queue are written to the dead-letter sink as REJECTED
// with reason cancelled rather than dropped. Each worker's
// processing error is logged and routed to the dead-letter sink rather
// than aborting the group, since one bad Candidate Event must never
// take down the pipeline (spec §7).
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		interval := p.reorder.window
		if interval <= 0 {
			interval = 100 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := p.reorder.Flush(); err != nil {
					log.Errorf("orchestrator: reorder flush: %s", err)
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case ev, ok := <-p.queue:
				if !ok {
					return nil
				}
				metrics.QueueDepth.Set(float64(len(p.queue)))
				if err := p.sem.Acquire(gctx, 1); err != nil {
					return err
				}
				metrics.WorkersBusy.Add(1)
				g.Go(func() error {
					defer p.sem.Release(1)
					defer metrics.WorkersBusy.Add(-1)
					p.handle(gctx, ev)
					return nil
				})
			case <-ctx.Done():
				for {
					select {
					case ev, ok := <-p.queue:
						if !ok {
							return nil
						}
						ev.State = schema.StateRejected
						ev.RejectReason = schema.RejectCancelled
						if err := p.deadletter.RejectCandidate("orchestrator", ev); err != nil {
							log.Errorf("orchestrator: writing cancelled candidate to dead-letter: %s", err)
						}
					default:
						return nil
					}
				}
			}
		}
	})

	return g.Wait()
}

// Close stops accepting new work; callers must have stopped feeding
// Submit before calling this.
func (p *Pipeline) Close() {
	close(p.queue)
}

func (p *Pipeline) handle(ctx context.Context, ev *schema.CandidateEvent) {
	if ev.State == schema.StateRejected {
		if err := p.deadletter.RejectCandidate("detector", ev); err != nil {
			log.Errorf("orchestrator: writing rejected candidate to dead-letter: %s", err)
		}
		metrics.EventsRejected.WithLabelValues("detector", string(ev.RejectReason)).Inc()
		return
	}

	classified, rejectReason, err := p.process(ctx, ev)
	if err != nil {
		log.Errorf("orchestrator: processing candidate seq=%d channel=%s: %s", ev.Seq, ev.Channel, err)
		ev.State = schema.StateRejected
		ev.RejectReason = rejectReason
		if dlErr := p.deadletter.RejectCandidate("orchestrator", ev); dlErr != nil {
			log.Errorf("orchestrator: writing dead-letter: %s", dlErr)
		}
		metrics.EventsRejected.WithLabelValues("orchestrator", string(rejectReason)).Inc()
		// ev.Seq was already reserved by the detector at CONFIRMED emit
		// time; close the hole so the reorder buffer doesn't stall
		// waiting for a seq that will never be submitted.
		if skipErr := p.reorder.Skip(ev.Seq); skipErr != nil {
			log.Errorf("orchestrator: reorder skip seq=%d: %s", ev.Seq, skipErr)
		}
		return
	}

	if err := p.reorder.Submit(classified); err != nil {
		log.Errorf("orchestrator: committing seq=%d: %s", classified.Seq, err)
	}
}

// process runs C4 through C9 for one confirmed Candidate Event and
// returns the Classified Event ready for commit.
func (p *Pipeline) process(ctx context.Context, ev *schema.CandidateEvent) (schema.ClassifiedEvent, schema.RejectReason, error) {
	detectedAt := time.Now()

	window := schema.TimeRange{Start: ev.PreRoll.Start, End: ev.PostRoll.End}
	channels := p.locatorChannels(ev.Channel)

	segments, err := p.waveform.GetWaveforms(ctx, channels, window)
	if err != nil {
		return schema.ClassifiedEvent{}, schema.RejectValidation, fmt.Errorf("fetching waveforms: %w", err)
	}

	primary, ok := segmentFor(segments, ev.Channel)
	if !ok {
		return schema.ClassifiedEvent{}, schema.RejectValidation, fmt.Errorf("no waveform segment for trigger channel %s", ev.Channel)
	}

	processed, err := p.processSegment(primary)
	if err != nil {
		return schema.ClassifiedEvent{}, schema.RejectValidation, fmt.Errorf("signal processing: %w", err)
	}

	fv, err := features.Extract(processed, p.featuresCfg)
	if err != nil {
		return schema.ClassifiedEvent{}, schema.RejectSchemaMismatch, fmt.Errorf("feature extraction: %w", err)
	}
	processedAt := time.Now()

	var classification schema.Classification
	var magEstimate schema.MagnitudeEstimate
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		classification, err = p.classifier.Classify(fv)
		return err
	})
	g.Go(func() error {
		var err error
		magEstimate, err = p.magnitude.Estimate(fv)
		return err
	})
	if err := g.Wait(); err != nil {
		return schema.ClassifiedEvent{}, schema.RejectSchemaMismatch, fmt.Errorf("classification/magnitude: %w", err)
	}
	classifiedAt := time.Now()

	picks, contributing := p.buildPicks(segments)
	var location schema.LocationEstimate
	if len(picks) >= p.locatorCfg.MinStations {
		location, err = p.locator.Locate(ctx, picks)
		if err != nil {
			return schema.ClassifiedEvent{}, schema.RejectLocatorFailure, fmt.Errorf("location: %w", err)
		}
	} else {
		log.Debugf("orchestrator: seq=%d only %d station picks, skipping location", ev.Seq, len(picks))
	}

	now := time.Now()
	classifiedEvent := schema.ClassifiedEvent{
		ID:                   uuid.NewString(),
		Seq:                  ev.Seq,
		TriggerInstant:       ev.TriggerInstant,
		Channel:              ev.Channel,
		Features:             fv,
		Classification:       classification,
		Magnitude:            magEstimate,
		Location:             location,
		ContributingStations: contributing,
		Timing: schema.PipelineTiming{
			DetectedAt:   detectedAt,
			ProcessedAt:  processedAt,
			ClassifiedAt: classifiedAt,
			CommittedAt:  now,
			TotalLatency: now.Sub(detectedAt),
		},
	}
	return classifiedEvent, "", nil
}

func (p *Pipeline) processSegment(seg schema.WaveformSegment) (*schema.WaveformSegment, error) {
	detrended := signalproc.Detrend(&seg, signalproc.DetrendLinear)
	return signalproc.Bandpass(detrended, p.processorCfg.BandpassLowHz, p.processorCfg.BandpassHighHz, p.processorCfg.BandpassOrder)
}

// locatorChannels returns the trigger channel plus one channel per
// registered station sharing its location/band code, the "channels
// participating in the locator by station proximity" set spec §4.10
// names; the registry is small enough that every known station is
// treated as a locator candidate.
func (p *Pipeline) locatorChannels(trigger schema.ChannelID) []schema.ChannelID {
	channels := []schema.ChannelID{trigger}
	if p.stations == nil {
		return channels
	}
	for _, entry := range p.stations.Entries() {
		if entry.Network == trigger.Network && entry.Station == trigger.Station {
			continue
		}
		channels = append(channels, schema.ChannelID{
			Network:  entry.Network,
			Station:  entry.Station,
			Location: trigger.Location,
			Channel:  trigger.Channel,
		})
	}
	return channels
}

func segmentFor(segments []schema.WaveformSegment, ch schema.ChannelID) (schema.WaveformSegment, bool) {
	for _, s := range segments {
		if s.Channel == ch {
			return s, true
		}
	}
	return schema.WaveformSegment{}, false
}

// buildPicks derives one locator.Pick per fetched segment by taking the
// time of its peak absolute amplitude as a crude P-wave arrival
// estimate, good enough to seed the grid search in spec §4.9.
func (p *Pipeline) buildPicks(segments []schema.WaveformSegment) ([]locator.Pick, []schema.ChannelID) {
	picks := make([]locator.Pick, 0, len(segments))
	contributing := make([]schema.ChannelID, 0, len(segments))
	for _, seg := range segments {
		if len(seg.Samples) == 0 {
			continue
		}
		picks = append(picks, locator.Pick{
			Network:     seg.Channel.Network,
			Station:     seg.Channel.Station,
			ArrivalTime: peakTime(seg),
			SigmaS:      pickSigmaSeconds,
		})
		contributing = append(contributing, seg.Channel)
	}
	return picks, contributing
}

func peakTime(seg schema.WaveformSegment) time.Time {
	bestIdx := 0
	best := 0.0
	for i, v := range seg.Samples {
		if abs := v; abs < 0 {
			abs = -abs
			if abs > best {
				best, bestIdx = abs, i
			}
		} else if abs > best {
			best, bestIdx = abs, i
		}
	}
	return seg.Start.Add(time.Duration(float64(bestIdx) / seg.SampleRate * float64(time.Second)))
}

// commit appends a Classified Event to the store in sequence order;
// called only by the reorder buffer.
func (p *Pipeline) commit(ev schema.ClassifiedEvent) error {
	if err := p.store.Append(context.Background(), ev); err != nil {
		return err
	}
	metrics.EventsCommitted.WithLabelValues(string(ev.Classification.Label)).Inc()
	return nil
}
