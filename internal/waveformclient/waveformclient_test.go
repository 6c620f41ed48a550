// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package waveformclient

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seismonet/quakewatch/pkg/schema"
)

func writeFrame(buf *bytes.Buffer, network, station, location, channel string, startNS int64, rateHz float64, samples []float32) {
	writeFixed := func(s string) {
		b := make([]byte, 8)
		copy(b, s)
		buf.Write(b)
	}
	writeFixed(network)
	writeFixed(station)
	writeFixed(location)
	writeFixed(channel)

	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(startNS))
	buf.Write(tmp[:])
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(rateHz))
	buf.Write(tmp[:])

	var cnt [4]byte
	binary.BigEndian.PutUint32(cnt[:], uint32(len(samples)))
	buf.Write(cnt[:])

	buf.WriteByte(byte(EncodingFloat32))
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(1.0))
	buf.Write(tmp[:])

	for _, v := range samples {
		var s [4]byte
		binary.BigEndian.PutUint32(s[:], math.Float32bits(v))
		buf.Write(s[:])
	}
}

func TestDecodeFramesSingleSegment(t *testing.T) {
	var buf bytes.Buffer
	writeFrame(&buf, "NC", "STA1", "00", "HHZ", 1000, 100.0, []float32{1, 2, 3})

	segments, err := DecodeFrames(&buf)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, "NC", segments[0].Channel.Network)
	require.Equal(t, "STA1", segments[0].Channel.Station)
	require.Equal(t, 100.0, segments[0].SampleRate)
	require.Equal(t, []float64{1, 2, 3}, segments[0].Samples)
}

func TestDedupOverlapsKeepsEarlierSegment(t *testing.T) {
	ch := schema.ChannelID{Network: "NC", Station: "STA1", Location: "00", Channel: "HHZ"}
	base := time.Unix(0, 0).UTC()

	segs := []schema.WaveformSegment{
		{Channel: ch, Start: base, SampleRate: 1, Count: 10, Samples: make([]float64, 10)},
		{Channel: ch, Start: base.Add(5 * time.Second), SampleRate: 1, Count: 10, Samples: make([]float64, 10)},
	}

	out := dedupOverlaps(segs)
	require.Len(t, out, 1)
	require.Equal(t, base, out[0].Start)
}

func TestGetWaveformsRejectsEmptyChannelSet(t *testing.T) {
	c := New("http://unused.invalid", schema.ResilienceConfig{RateLimitRPS: 10, Burst: 10, TimeoutMS: 100})
	_, err := c.GetWaveforms(nil, nil, schema.TimeRange{Start: time.Unix(0, 0), End: time.Unix(1, 0)})
	require.Error(t, err)
}
