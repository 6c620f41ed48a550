// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/quakewatch/pkg/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(schema.StoreConfig{Dir: dir, Fsync: "per_write"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvent(seq uint64, label schema.Label, mag float64, when time.Time) schema.ClassifiedEvent {
	return schema.ClassifiedEvent{
		ID:             uuid.NewString(),
		Seq:            seq,
		TriggerInstant: when,
		Channel:        schema.ChannelID{Network: "NT", Station: "STA1", Location: "00", Channel: "HHZ"},
		Classification: schema.Classification{Label: label, Confidence: 0.9},
		Magnitude:      schema.MagnitudeEstimate{Value: mag, Low: mag - 0.1, High: mag + 0.1, Scale: schema.ScaleMl},
		Location:       schema.LocationEstimate{Latitude: 1, Longitude: 2, DepthKm: 10},
	}
}

func TestAppendAndGetByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := sampleEvent(1, schema.LabelEarthquake, 3.5, time.Now())
	require.NoError(t, s.Append(ctx, ev))

	got, err := s.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, ev.ID, got.ID)
	require.Equal(t, ev.Classification.Label, got.Classification.Label)
	require.InDelta(t, ev.Magnitude.Value, got.Magnitude.Value, 1e-9)
}

func TestGetByIDUnknown(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetByID(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestQueryFiltersByLabelAndMagnitude(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, s.Append(ctx, sampleEvent(1, schema.LabelEarthquake, 2.0, base)))
	require.NoError(t, s.Append(ctx, sampleEvent(2, schema.LabelNoise, 5.0, base.Add(time.Minute))))
	require.NoError(t, s.Append(ctx, sampleEvent(3, schema.LabelEarthquake, 4.5, base.Add(2*time.Minute))))

	minMag := 3.0
	results, err := s.Query(ctx, QueryFilter{
		Start:        base.Add(-time.Minute),
		End:          time.Now(),
		Label:        schema.LabelEarthquake,
		MinMagnitude: &minMag,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 4.5, results[0].Magnitude.Value)
}

func TestTailReplaysThenLive(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Append(ctx, sampleEvent(1, schema.LabelEarthquake, 1.0, time.Now())))

	ch, err := s.Tail(ctx, 0)
	require.NoError(t, err)

	first := <-ch
	require.Equal(t, uint64(1), first.Seq)

	require.NoError(t, s.Append(ctx, sampleEvent(2, schema.LabelExplosion, 1.2, time.Now())))

	select {
	case second := <-ch:
		require.Equal(t, uint64(2), second.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live tail event")
	}
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	cfg := schema.StoreConfig{Dir: dir, Fsync: "per_write"}

	s1, err := Open(cfg)
	require.NoError(t, err)
	ev := sampleEvent(1, schema.LabelVolcanic, 2.2, time.Now())
	require.NoError(t, s1.Append(context.Background(), ev))
	require.NoError(t, s1.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetByID(context.Background(), ev.ID)
	require.NoError(t, err)
	require.Equal(t, ev.ID, got.ID)

	maxSeq, err := s2.MaxSeq(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), maxSeq)
}
