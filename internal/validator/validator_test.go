// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package validator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seismonet/quakewatch/pkg/schema"
)

func validCatalogEvent() schema.CatalogEvent {
	return schema.CatalogEvent{
		ID:         "us1",
		OriginTime: time.Now().UTC().Add(-time.Hour),
		Hypocenter: schema.Hypocenter{Latitude: 35.0, Longitude: -118.0, DepthKm: 10},
		Magnitude:  schema.Magnitude{Value: 4.5, Scale: schema.ScaleMl},
	}
}

func TestValidateCatalogEventAccepts(t *testing.T) {
	require.True(t, ValidateCatalogEvent(validCatalogEvent()).OK())
}

func TestValidateCatalogEventRejectsBadLatitude(t *testing.T) {
	e := validCatalogEvent()
	e.Hypocenter.Latitude = 120
	result := ValidateCatalogEvent(e)
	require.False(t, result.OK())
}

func TestValidateCatalogEventRejectsUnrecognizedScale(t *testing.T) {
	e := validCatalogEvent()
	e.Magnitude.Scale = "XX"
	require.False(t, ValidateCatalogEvent(e).OK())
}

func TestValidateCatalogEventRejectsFutureOriginTime(t *testing.T) {
	e := validCatalogEvent()
	e.OriginTime = time.Now().UTC().Add(48 * time.Hour)
	require.False(t, ValidateCatalogEvent(e).OK())
}

func validSegment() *schema.WaveformSegment {
	return &schema.WaveformSegment{
		Channel:    schema.ChannelID{Network: "NC", Station: "S1", Location: "00", Channel: "HHZ"},
		Start:      time.Unix(0, 0).UTC(),
		SampleRate: 100,
		Count:      1000,
		Samples:    make([]float64, 1000),
	}
}

func TestValidateWaveformSegmentAccepts(t *testing.T) {
	require.True(t, ValidateWaveformSegment(validSegment()).OK())
}

func TestValidateWaveformSegmentRejectsBadSampleRate(t *testing.T) {
	s := validSegment()
	s.SampleRate = 50000
	require.False(t, ValidateWaveformSegment(s).OK())
}

func TestValidateWaveformSegmentRejectsNaN(t *testing.T) {
	s := validSegment()
	s.Samples[5] = math.NaN()
	require.False(t, ValidateWaveformSegment(s).OK())
}

func TestValidateWaveformSegmentRejectsOverlappingGaps(t *testing.T) {
	s := validSegment()
	s.Gaps = []schema.Gap{
		{Start: s.Start.Add(time.Second), End: s.Start.Add(3 * time.Second)},
		{Start: s.Start.Add(2 * time.Second), End: s.Start.Add(4 * time.Second)},
	}
	require.False(t, ValidateWaveformSegment(s).OK())
}

func TestValidateWaveformSegmentRejectsGapOutsideBounds(t *testing.T) {
	s := validSegment()
	s.Gaps = []schema.Gap{
		{Start: s.Start.Add(-time.Second), End: s.Start.Add(time.Second)},
	}
	require.False(t, ValidateWaveformSegment(s).OK())
}
