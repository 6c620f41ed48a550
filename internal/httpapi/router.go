// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi exposes the public HTTP surface named in spec §6:
// liveness/readiness probes, the queryable and live-tailed Classified
// Event catalog, and a Prometheus exposition endpoint, composed with
// gorilla/mux and gorilla/handlers exactly as the teacher's
// cmd/cc-backend/server.go wires its own router.
package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/seismonet/quakewatch/internal/auth"
	"github.com/seismonet/quakewatch/internal/classifier"
	"github.com/seismonet/quakewatch/internal/magnitude"
	"github.com/seismonet/quakewatch/internal/store"
	"github.com/seismonet/quakewatch/pkg/metrics"
)

// Ready reports whether the process has finished initializing its
// durable and external dependencies; /ready returns 503 until all are true.
type Ready struct {
	Store    func() bool
	Catalog  func() bool
	Waveform func() bool
	Model    func() bool
}

func (r Ready) ok() bool {
	return r.Store() && r.Catalog() && r.Waveform() && r.Model()
}

// API bundles everything the HTTP handlers need to serve spec §6.
type API struct {
	Store        *store.Store
	Auth         *auth.Validator
	AuthDisabled bool
	Ready        Ready

	Classifier *classifier.Registry
	Magnitude  *magnitude.Registry
	PurgeCaches func()

	ClassifierModelPath string
	MagnitudeModelPath  string
}

// NewRouter builds the mux.Router serving every path in spec §6's table.
func (a *API) NewRouter() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	secured := r.NewRoute().Subrouter()
	secured.Use(auth.Middleware(a.Auth, a.AuthDisabled, auth.RoleViewer))
	secured.HandleFunc("/events", a.handleQueryEvents).Methods(http.MethodGet)
	// Registered before /events/{id}, which would otherwise match "stream".
	secured.HandleFunc("/events/stream", a.handleStream).Methods(http.MethodGet)
	secured.HandleFunc("/events/{id}", a.handleGetEvent).Methods(http.MethodGet)

	operator := r.NewRoute().Subrouter()
	operator.Use(auth.Middleware(a.Auth, a.AuthDisabled, auth.RoleOperator))
	operator.HandleFunc("/admin/model-reload", a.handleModelReload).Methods(http.MethodPost)

	admin := r.NewRoute().Subrouter()
	admin.Use(auth.Middleware(a.Auth, a.AuthDisabled, auth.RoleAdmin))
	admin.HandleFunc("/admin/cache-purge", a.handleCachePurge).Methods(http.MethodPost)

	recovered := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(r)
	return requestIDMiddleware(loggingMiddleware(recovered))
}
