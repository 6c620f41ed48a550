// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seismonet/quakewatch/pkg/schema"
)

func TestAdmitDedupsWithinWindow(t *testing.T) {
	d := New(schema.AlertsConfig{DedupWindowS: 60}, nil, nil)

	require.True(t, d.admit("k1"), "first occurrence always admitted")
	require.False(t, d.admit("k1"), "second occurrence within window is suppressed")
	require.True(t, d.admit("k2"), "a different key is independent")
}

func TestAdmitReopensAfterWindow(t *testing.T) {
	d := New(schema.AlertsConfig{DedupWindowS: 0}, nil, nil)
	require.True(t, d.admit("k1"))
	time.Sleep(time.Millisecond)
	require.True(t, d.admit("k1"), "a zero-width window never suppresses")
}

func TestPurgeExpiredRemovesStaleDedupEntries(t *testing.T) {
	d := New(schema.AlertsConfig{DedupWindowS: 0}, nil, nil)
	require.True(t, d.admit("k1"))
	time.Sleep(time.Millisecond)

	d.purgeExpired(0)

	d.dedupMu.Lock()
	_, ok := d.dedup["k1"]
	d.dedupMu.Unlock()
	require.False(t, ok, "purge must evict entries older than the window")
}

func TestExpandTemplate(t *testing.T) {
	ev := schema.ClassifiedEvent{
		Channel:        schema.ChannelID{Network: "NT", Station: "STA1", Location: "00", Channel: "HHZ"},
		Classification: schema.Classification{Label: schema.LabelEarthquake},
		Magnitude:      schema.MagnitudeEstimate{Value: 4.321},
	}
	got := expandTemplate("{label}@{channel} m{magnitude}", ev)
	require.Equal(t, "earthquake@NT.STA1.00.HHZ m4.3", got)
}

func TestDeliverPostsToWebhook(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := NewSubscriber("test", srv.URL, 10)
	d := New(schema.AlertsConfig{DedupWindowS: 60}, nil, []*Subscriber{sub})

	err := d.deliver(context.Background(), sub, schema.Alert{EventID: "e1", Payload: "{}"})
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
