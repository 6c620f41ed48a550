// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package waveformclient implements the rate-limited fetcher of
// time-bounded multi-channel waveforms from an external data center
// (spec §4.2), decoding the framed wire format described in §6.
package waveformclient

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/internal/resilience"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// Encoding is the per-segment sample encoding named in the wire header.
type Encoding uint8

const (
	EncodingFloat32 Encoding = 1
	EncodingInt32   Encoding = 2
	EncodingInt16Gain Encoding = 3
)

// Client fetches Waveform Segments over HTTP, guarded by a ResilientCaller.
type Client struct {
	baseURL string
	http    *http.Client
	caller  *resilience.Caller
}

func New(baseURL string, cfg schema.ResilienceConfig) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		caller:  resilience.New("waveform", cfg),
	}
}

// GetWaveforms returns segments for channelSet within [t0,t1), one
// ordered non-overlapping run per channel. Upstream-reported overlaps
// are deduplicated by keeping the earlier segment.
func (c *Client) GetWaveforms(ctx context.Context, channelSet []schema.ChannelID, window schema.TimeRange) ([]schema.WaveformSegment, error) {
	const op = "waveformclient.GetWaveforms"

	if window.Empty() {
		return nil, errs.New(errs.Validation, op, "time window is empty", nil)
	}
	if len(channelSet) == 0 {
		return nil, errs.New(errs.Validation, op, "channel set is empty", nil)
	}

	var segments []schema.WaveformSegment
	err := c.caller.Do(ctx, op, func(ctx context.Context) error {
		fetched, err := c.doGetWaveforms(ctx, channelSet, window)
		if err != nil {
			return err
		}
		segments = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	return dedupOverlaps(segments), nil
}

func (c *Client) doGetWaveforms(ctx context.Context, channelSet []schema.ChannelID, window schema.TimeRange) ([]schema.WaveformSegment, error) {
	const op = "waveformclient.doGetWaveforms"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/waveforms", nil)
	if err != nil {
		return nil, errs.New(errs.Internal, op, "failed to build request", err)
	}
	q := req.URL.Query()
	q.Set("t0", window.Start.UTC().Format(time.RFC3339Nano))
	q.Set("t1", window.End.UTC().Format(time.RFC3339Nano))
	for _, ch := range channelSet {
		q.Add("channel", ch.String())
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.New(errs.Transient, op, "http request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.New(errs.RateLimited, op, "upstream rate limited", nil)
	}
	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.Transient, op, fmt.Sprintf("upstream %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.Validation, op, fmt.Sprintf("upstream %d", resp.StatusCode), nil)
	}

	return DecodeFrames(resp.Body)
}

// frameHeader is the fixed-width wire header preceding each segment's samples.
type frameHeader struct {
	Network, Station, Location, Channel [8]byte
	StartNS                             int64
	RateHz                              float64
	Count                               uint32
	Encoding                            uint8
	Gain                                float64
}

const frameHeaderSize = 8*4 + 8 + 8 + 4 + 1 + 8

// DecodeFrames reads a concatenated sequence of framed segments from r
// until EOF, per the wire contract in spec §6.
func DecodeFrames(r io.Reader) ([]schema.WaveformSegment, error) {
	const op = "waveformclient.DecodeFrames"

	var segments []schema.WaveformSegment
	for {
		hdr, err := readFrameHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.New(errs.Corruption, op, "failed to read frame header", err)
		}

		values, err := readSamples(r, hdr)
		if err != nil {
			return nil, errs.New(errs.Corruption, op, "failed to read frame samples", err)
		}

		start := time.Unix(0, hdr.StartNS).UTC()
		segments = append(segments, schema.WaveformSegment{
			Channel: schema.ChannelID{
				Network:  trimZero(hdr.Network[:]),
				Station:  trimZero(hdr.Station[:]),
				Location: trimZero(hdr.Location[:]),
				Channel:  trimZero(hdr.Channel[:]),
			},
			Start:      start,
			SampleRate: hdr.RateHz,
			Count:      int(hdr.Count),
			Samples:    values,
			Quality:    schema.QualityGood,
		})
	}
	return segments, nil
}

func readFrameHeader(r io.Reader) (frameHeader, error) {
	buf := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return frameHeader{}, io.ErrUnexpectedEOF
		}
		return frameHeader{}, err
	}

	var hdr frameHeader
	off := 0
	copy(hdr.Network[:], buf[off:off+8])
	off += 8
	copy(hdr.Station[:], buf[off:off+8])
	off += 8
	copy(hdr.Location[:], buf[off:off+8])
	off += 8
	copy(hdr.Channel[:], buf[off:off+8])
	off += 8
	hdr.StartNS = int64(binary.BigEndian.Uint64(buf[off : off+8]))
	off += 8
	hdr.RateHz = math.Float64frombits(binary.BigEndian.Uint64(buf[off : off+8]))
	off += 8
	hdr.Count = binary.BigEndian.Uint32(buf[off : off+4])
	off += 4
	hdr.Encoding = buf[off]
	off++
	hdr.Gain = math.Float64frombits(binary.BigEndian.Uint64(buf[off : off+8]))

	return hdr, nil
}

func readSamples(r io.Reader, hdr frameHeader) ([]float64, error) {
	values := make([]float64, hdr.Count)

	switch Encoding(hdr.Encoding) {
	case EncodingFloat32:
		buf := make([]byte, 4)
		for i := range values {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			values[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(buf)))
		}
	case EncodingInt32:
		buf := make([]byte, 4)
		for i := range values {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			values[i] = float64(int32(binary.BigEndian.Uint32(buf)))
		}
	case EncodingInt16Gain:
		buf := make([]byte, 2)
		for i := range values {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			values[i] = float64(int16(binary.BigEndian.Uint16(buf))) * hdr.Gain
		}
	default:
		return nil, fmt.Errorf("unknown sample encoding %d", hdr.Encoding)
	}

	return values, nil
}

func trimZero(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// dedupOverlaps sorts segments per channel by start time and drops any
// segment that overlaps an earlier one for the same channel, keeping
// the earlier segment as spec §4.2 requires.
func dedupOverlaps(segments []schema.WaveformSegment) []schema.WaveformSegment {
	byChannel := make(map[schema.ChannelID][]schema.WaveformSegment)
	for _, s := range segments {
		byChannel[s.Channel] = append(byChannel[s.Channel], s)
	}

	var out []schema.WaveformSegment
	channels := make([]schema.ChannelID, 0, len(byChannel))
	for ch := range byChannel {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].String() < channels[j].String() })

	for _, ch := range channels {
		segs := byChannel[ch]
		sort.Slice(segs, func(i, j int) bool { return segs[i].Start.Before(segs[j].Start) })

		var lastEnd time.Time
		for _, s := range segs {
			if !lastEnd.IsZero() && s.Start.Before(lastEnd) {
				continue
			}
			out = append(out, s)
			seg := s
			lastEnd = seg.End()
		}
	}

	return out
}
