// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package catalogclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seismonet/quakewatch/pkg/schema"
)

func testResilience() schema.ResilienceConfig {
	return schema.ResilienceConfig{
		RateLimitRPS:      1000,
		Burst:             1000,
		TimeoutMS:         2000,
		RetryMax:          2,
		RetryBackoffMS:    1,
		BreakerThreshold:  10,
		BreakerCoolDownMS: 10,
	}
}

func TestFetchEventsDedupsAndSortsByOriginTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"features": [
				{"id": "us1", "properties": {"time": 2000, "mag": 4.5, "magType": "ml", "net": "us"}, "geometry": {"coordinates": [-118.0, 35.0, 10.0]}},
				{"id": "us2", "properties": {"time": 1000, "mag": 3.1, "magType": "mw", "net": "us"}, "geometry": {"coordinates": [-117.0, 34.0, 5.0]}},
				{"id": "us1", "properties": {"time": 2000, "mag": 4.5, "magType": "ml", "net": "us"}, "geometry": {"coordinates": [-118.0, 35.0, 10.0]}}
			]
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testResilience(), time.Minute, 1<<20)

	tr := schema.TimeRange{Start: time.Unix(0, 0), End: time.Now()}
	events, err := c.FetchEvents(context.Background(), tr, nil, nil)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "us2", events[0].ID)
	require.Equal(t, "us1", events[1].ID)
}

func TestFetchEventsRejectsEmptyTimeRange(t *testing.T) {
	c := New("http://unused.invalid", testResilience(), time.Minute, 1<<20)

	now := time.Now()
	_, err := c.FetchEvents(context.Background(), schema.TimeRange{Start: now, End: now}, nil, nil)
	require.Error(t, err)
}

func TestFetchEventsCacheHitAvoidsSecondRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testResilience(), time.Minute, 1<<20)
	tr := schema.TimeRange{Start: time.Unix(0, 0), End: time.Now()}

	_, err := c.FetchEvents(context.Background(), tr, nil, nil)
	require.NoError(t, err)
	_, err = c.FetchEvents(context.Background(), tr, nil, nil)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
}

func TestFetchEventRateLimitedSurfacesRetryAfterReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate_limited", "message": "slow down"}`))
	}))
	defer srv.Close()

	cfg := testResilience()
	cfg.RetryMax = 0
	c := New(srv.URL, cfg, time.Minute, 1<<20)

	_, err := c.FetchEvent(context.Background(), "us1")
	require.Error(t, err)
}
