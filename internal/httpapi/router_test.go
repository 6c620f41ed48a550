// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/quakewatch/internal/auth"
	"github.com/seismonet/quakewatch/internal/store"
	"github.com/seismonet/quakewatch/pkg/schema"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(schema.StoreConfig{Dir: t.TempDir(), Fsync: "per_write"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvent(seq uint64) schema.ClassifiedEvent {
	return schema.ClassifiedEvent{
		ID:             uuid.NewString(),
		Seq:            seq,
		TriggerInstant: time.Now().UTC(),
		Channel:        schema.ChannelID{Network: "NT", Station: "STA1", Location: "00", Channel: "HHZ"},
		Classification: schema.Classification{Label: schema.LabelEarthquake, Confidence: 0.9},
		Magnitude:      schema.MagnitudeEstimate{Value: 3.1, Low: 3.0, High: 3.2, Scale: schema.ScaleMl},
		Location:       schema.LocationEstimate{Latitude: 1, Longitude: 2, DepthKm: 10},
	}
}

func testAPI(t *testing.T) *API {
	t.Helper()
	return &API{
		Store:        openTestStore(t),
		Auth:         auth.New(schema.JWTConfig{Issuer: "quakewatch", Audience: "quakewatch-api", Secret: "s"}),
		AuthDisabled: true,
		Ready: Ready{
			Store:    func() bool { return true },
			Catalog:  func() bool { return true },
			Waveform: func() bool { return true },
			Model:    func() bool { return true },
		},
		PurgeCaches: func() {},
	}
}

func TestHealthAndReady(t *testing.T) {
	api := testAPI(t)
	router := api.NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReports503UntilAllDependenciesAreUp(t *testing.T) {
	api := testAPI(t)
	api.Ready.Model = func() bool { return false }
	router := api.NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueryEventsRoundTrip(t *testing.T) {
	api := testAPI(t)
	require.NoError(t, api.Store.Append(t.Context(), sampleEvent(1)))
	router := api.NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?minmagnitude=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"label":"earthquake"`)
}

func TestQueryEventsRejectsMalformedFilter(t *testing.T) {
	api := testAPI(t)
	router := api.NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?starttime=not-a-time", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCachePurgeRequiresAdminRole(t *testing.T) {
	api := testAPI(t)
	api.AuthDisabled = false
	router := api.NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/cache-purge", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
