// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest drives the detection path (spec §2: "External waveform
// feed ⇒ C2 ⇒ C3 ⇒ C4 ⇒ C6") and the catalog metadata path ("External
// catalog ⇒ C1 ⇒ C3") by polling the Waveform Client and Catalog Client
// on a fixed interval and feeding validated data into the per-channel
// detectors and the orchestrator, in the style of the teacher's
// internal/repository archiver poll loop (archiver.go).
package ingest

import (
	"context"
	"time"

	"github.com/seismonet/quakewatch/internal/deadletter"
	"github.com/seismonet/quakewatch/internal/detector"
	"github.com/seismonet/quakewatch/internal/orchestrator"
	"github.com/seismonet/quakewatch/internal/validator"
	"github.com/seismonet/quakewatch/internal/waveformclient"
	"github.com/seismonet/quakewatch/pkg/log"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// channelFeed tracks one channel's detector and stream-ordering state.
// The Detector is built lazily on the first segment observed, since its
// STA/LTA window sizes are expressed in samples and depend on the
// upstream-reported sample rate (spec §3's Stream invariant).
type channelFeed struct {
	channel  schema.ChannelID
	det      *detector.Detector
	lastEnd  time.Time
	haveLast bool
}

// StreamIngestor polls the Waveform Client for each configured channel
// and feeds validated samples into that channel's Event Detector (C6),
// submitting CONFIRMED Candidate Events to the Pipeline Orchestrator
// and routing rejected input to the dead-letter sink (spec §7).
type StreamIngestor struct {
	waveform   *waveformclient.Client
	pipeline   *orchestrator.Pipeline
	deadletter *deadletter.Sink
	cfg        schema.DetectorConfig

	pollInterval time.Duration
	feeds        map[schema.ChannelID]*channelFeed
}

// NewStreamIngestor builds a StreamIngestor over one Detector per
// channel in channels, all sharing the pipeline's sequence source.
func NewStreamIngestor(waveform *waveformclient.Client, pipeline *orchestrator.Pipeline, dl *deadletter.Sink, cfg schema.DetectorConfig, pollInterval time.Duration, channels []schema.ChannelID) *StreamIngestor {
	feeds := make(map[schema.ChannelID]*channelFeed, len(channels))
	for _, ch := range channels {
		feeds[ch] = &channelFeed{channel: ch}
	}
	return &StreamIngestor{
		waveform:     waveform,
		pipeline:     pipeline,
		deadletter:   dl,
		cfg:          cfg,
		pollInterval: pollInterval,
		feeds:        feeds,
	}
}

// Run polls every configured channel on pollInterval until ctx is
// cancelled. Each channel is polled independently so a slow or failing
// upstream fetch for one channel never delays another's (spec §5: no
// cross-channel ordering is promised, only per-channel strict order).
func (si *StreamIngestor) Run(ctx context.Context) {
	for ch := range si.feeds {
		go si.pollChannel(ctx, si.feeds[ch])
	}
	<-ctx.Done()
}

func (si *StreamIngestor) pollChannel(ctx context.Context, feed *channelFeed) {
	ticker := time.NewTicker(si.pollInterval)
	defer ticker.Stop()

	if !feed.haveLast {
		feed.lastEnd = time.Now().Add(-si.pollInterval)
		feed.haveLast = true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			si.fetchAndProcess(ctx, feed, schema.TimeRange{Start: feed.lastEnd, End: now})
		}
	}
}

func (si *StreamIngestor) fetchAndProcess(ctx context.Context, feed *channelFeed, window schema.TimeRange) {
	segments, err := si.waveform.GetWaveforms(ctx, []schema.ChannelID{feed.channel}, window)
	if err != nil {
		log.Warnf("ingest: fetching waveforms for %s: %s", feed.channel, err)
		return
	}

	for i := range segments {
		si.processSegment(feed, &segments[i])
	}
}

func (si *StreamIngestor) processSegment(feed *channelFeed, seg *schema.WaveformSegment) {
	if res := validator.ValidateWaveformSegment(seg); !res.OK() {
		if err := si.deadletter.RejectInput("ingest.stream", seg.Channel.String()+": "+res.Reasons[0]); err != nil {
			log.Errorf("ingest: writing dead-letter: %s", err)
		}
		return
	}

	if feed.det == nil {
		feed.det = si.pipeline.NewDetector(feed.channel.String(), feed.channel, seg.SampleRate, si.cfg)
	}

	if !feed.lastEnd.IsZero() && seg.Start.After(feed.lastEnd) {
		if ev := feed.det.ProcessGap(feed.lastEnd, seg.Start); ev != nil {
			si.submit(feed, ev)
		}
	}

	interval := time.Duration(float64(time.Second) / seg.SampleRate)
	t := seg.Start
	for _, v := range seg.Samples {
		if ev := feed.det.ProcessSample(detector.Sample{Time: t, Value: v}); ev != nil {
			si.submit(feed, ev)
		}
		t = t.Add(interval)
	}

	feed.lastEnd = seg.End()
}

func (si *StreamIngestor) submit(feed *channelFeed, ev *schema.CandidateEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := si.pipeline.Submit(ctx, ev); err != nil {
		log.Errorf("ingest: submitting candidate seq=%d channel=%s: %s", ev.Seq, feed.channel, err)
	}
}
