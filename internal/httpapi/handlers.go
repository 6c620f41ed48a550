// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/internal/store"
	"github.com/seismonet/quakewatch/pkg/log"
	"github.com/seismonet/quakewatch/pkg/schema"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if !a.Ready.ok() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleQueryEvents answers GET /events with the same filters as
// store.QueryFilter, per spec §6's table ("same filters as C11.query").
func (a *API) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.QueryFilter{}
	if v := q.Get("starttime"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, errs.New(errs.Validation, "httpapi.handleQueryEvents", "invalid starttime", err))
			return
		}
		f.Start = t
	}
	if v := q.Get("endtime"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, errs.New(errs.Validation, "httpapi.handleQueryEvents", "invalid endtime", err))
			return
		}
		f.End = t
	}
	if v := q.Get("label"); v != "" {
		f.Label = schema.Label(v)
	}
	if v := q.Get("minmagnitude"); v != "" {
		mag, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, r, errs.New(errs.Validation, "httpapi.handleQueryEvents", "invalid minmagnitude", err))
			return
		}
		f.MinMagnitude = &mag
	}
	if b, err := parseBBox(q); err != nil {
		writeError(w, r, err)
		return
	} else if b != nil {
		f.MinLatitude, f.MaxLatitude, f.MinLongitude, f.MaxLongitude = &b.MinLat, &b.MaxLat, &b.MinLon, &b.MaxLon
	}

	events, err := a.Store.Query(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func parseBBox(q map[string][]string) (*schema.BBox, error) {
	get := func(key string) (float64, bool, error) {
		vs, ok := q[key]
		if !ok || len(vs) == 0 || vs[0] == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(vs[0], 64)
		if err != nil {
			return 0, false, errs.New(errs.Validation, "httpapi.parseBBox", "invalid "+key, err)
		}
		return f, true, nil
	}

	minLat, okA, err := get("minlatitude")
	if err != nil {
		return nil, err
	}
	maxLat, okB, err := get("maxlatitude")
	if err != nil {
		return nil, err
	}
	minLon, okC, err := get("minlongitude")
	if err != nil {
		return nil, err
	}
	maxLon, okD, err := get("maxlongitude")
	if err != nil {
		return nil, err
	}
	if !okA && !okB && !okC && !okD {
		return nil, nil
	}
	b := schema.BBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
	if !b.Valid() {
		return nil, errs.New(errs.Validation, "httpapi.parseBBox", "malformed bounding box", nil)
	}
	return &b, nil
}

// handleModelReload reloads both model artifacts from their configured
// paths. Each Registry's Reload swaps its artifact pointer under the
// write lock; Classify/Estimate calls already in flight finish with the
// artifact they read before the swap. Requires the operator role (spec §6).
func (a *API) handleModelReload(w http.ResponseWriter, r *http.Request) {
	if err := a.Classifier.Reload(a.ClassifierModelPath); err != nil {
		writeError(w, r, errs.New(errs.Internal, "httpapi.handleModelReload", "reloading classifier artifact", err))
		return
	}
	if err := a.Magnitude.Reload(a.MagnitudeModelPath); err != nil {
		writeError(w, r, errs.New(errs.Internal, "httpapi.handleModelReload", "reloading magnitude artifact", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// handleCachePurge evicts every client-side cache entry; requires the
// admin role (spec §6).
func (a *API) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	a.PurgeCaches()
	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

func (a *API) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev, err := a.Store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The live tail is read-only from the client's perspective; any
	// origin may subscribe, the same as the teacher's public API CORS stance.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream serves the live tail of Classified Events as a
// websocket (spec §9's Open Question: websocket chosen over SSE, see
// DESIGN.md). A client may resume with ?from_seq=N to receive every
// stored event with seq > N, then live ones; an omitted from_seq or 0
// replays everything stored, matching store.Tail's own semantics.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	var fromSeq uint64
	if v := r.URL.Query().Get("from_seq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, r, errs.New(errs.Validation, "httpapi.handleStream", "invalid from_seq", err))
			return
		}
		fromSeq = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("httpapi: websocket upgrade: %s", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	events, err := a.Store.Tail(ctx, fromSeq)
	if err != nil {
		log.Errorf("httpapi: opening tail: %s", err)
		return
	}

	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			log.Debugf("httpapi: stream subscriber disconnected: %s", err)
			return
		}
	}
}
