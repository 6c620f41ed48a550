// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ingest

import (
	"context"
	"time"

	"github.com/seismonet/quakewatch/internal/catalogclient"
	"github.com/seismonet/quakewatch/internal/validator"
	"github.com/seismonet/quakewatch/pkg/log"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// CatalogSync periodically fetches recent external Catalog Events and
// validates them (spec §2's metadata path, C1 ⇒ C3). Valid events are
// logged as provenance alongside the pipeline's own detections; a
// Catalog Event carries no feature vector, classification, magnitude
// confidence interval, or location error ellipse, so it is not a
// Classified Event and is never appended to the Event Store (C11) —
// see DESIGN.md's Open Question decisions. Invalid ones are routed to
// the dead-letter sink like any other rejected input.
type CatalogSync struct {
	client       *catalogclient.Client
	deadletter   interface{ RejectInput(stage, detail string) error }
	pollInterval time.Duration
	lookback     time.Duration
}

// NewCatalogSync builds a CatalogSync polling every pollInterval for
// events in the trailing lookback window.
func NewCatalogSync(client *catalogclient.Client, dl interface{ RejectInput(stage, detail string) error }, pollInterval, lookback time.Duration) *CatalogSync {
	return &CatalogSync{client: client, deadletter: dl, pollInterval: pollInterval, lookback: lookback}
}

// Run polls until ctx is cancelled.
func (cs *CatalogSync) Run(ctx context.Context) {
	ticker := time.NewTicker(cs.pollInterval)
	defer ticker.Stop()

	cs.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.poll(ctx)
		}
	}
}

func (cs *CatalogSync) poll(ctx context.Context) {
	now := time.Now().UTC()
	window := schema.TimeRange{Start: now.Add(-cs.lookback), End: now}
	events, err := cs.client.FetchEvents(ctx, window, nil, nil)
	if err != nil {
		log.Warnf("ingest: catalog sync fetch: %s", err)
		return
	}

	for _, ev := range events {
		res := validator.ValidateCatalogEvent(ev)
		if !res.OK() {
			if err := cs.deadletter.RejectInput("ingest.catalog", ev.ID+": "+res.Reasons[0]); err != nil {
				log.Errorf("ingest: writing dead-letter: %s", err)
			}
			continue
		}
		log.Debugf("ingest: catalog event %s at %s mag=%g", ev.ID, ev.OriginTime, ev.Magnitude.Value)
	}
}
