// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package alerts implements the Alert Dispatcher (C12): it tails the
// Event Store, matches each Classified Event against a configured rule
// set, deduplicates within a window, and delivers at-least-once to a
// set of webhook subscribers under a per-subscriber token bucket,
// per spec §4.12.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/internal/resilience"
	"github.com/seismonet/quakewatch/internal/store"
	"github.com/seismonet/quakewatch/pkg/log"
	"github.com/seismonet/quakewatch/pkg/metrics"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// Subscriber is one outbound delivery target. Delivery is at-least-once
// and subscribers are required to be idempotent on EventID (spec §4.12).
type Subscriber struct {
	ID         string
	WebhookURL string

	caller *resilience.Caller
}

// NewSubscriber builds a Subscriber rate-limited at perSubscriberRPS; the
// rate limit and circuit breaker both live in caller (internal/resilience),
// so there is exactly one throttling path per subscriber.
func NewSubscriber(id, webhookURL string, perSubscriberRPS float64) *Subscriber {
	burst := 1
	if perSubscriberRPS > 1 {
		burst = int(perSubscriberRPS)
	}
	return &Subscriber{
		ID:         id,
		WebhookURL: webhookURL,
		caller: resilience.New("alerts."+id, schema.ResilienceConfig{
			RateLimitRPS: perSubscriberRPS, Burst: burst, TimeoutMS: 5000,
			RetryMax: 3, RetryBackoffMS: 200,
			BreakerThreshold: 5, BreakerCoolDownMS: 30000,
		}),
	}
}

type dedupEntry struct {
	firstSent time.Time
	count     int
}

// Dispatcher consumes the store's live tail and routes matching events
// to every subscriber.
type Dispatcher struct {
	cfg         schema.AlertsConfig
	store       *store.Store
	httpClient  *http.Client
	subscribers []*Subscriber

	dedupMu sync.Mutex
	dedup   map[string]*dedupEntry
}

// New builds a Dispatcher for cfg's rule set, delivering to subscribers.
func New(cfg schema.AlertsConfig, st *store.Store, subscribers []*Subscriber) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg,
		store:       st,
		httpClient:  &http.Client{},
		subscribers: subscribers,
		dedup:       make(map[string]*dedupEntry),
	}
}

// Run tails the store from fromSeq and dispatches alerts until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, fromSeq uint64) error {
	ch, err := d.store.Tail(ctx, fromSeq)
	if err != nil {
		return err
	}

	go d.purgeLoop(ctx)

	for ev := range ch {
		d.handle(ctx, ev)
	}
	return ctx.Err()
}

// purgeLoop evicts expired dedup entries on a steady interval so
// dedupKeys that never recur (unlike a steadily re-triggering channel)
// don't accumulate in memory for the life of the process.
func (d *Dispatcher) purgeLoop(ctx context.Context) {
	window := time.Duration(d.cfg.DedupWindowS) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.purgeExpired(window)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) purgeExpired(window time.Duration) {
	now := time.Now()
	d.dedupMu.Lock()
	defer d.dedupMu.Unlock()
	for key, entry := range d.dedup {
		if now.Sub(entry.firstSent) > window {
			delete(d.dedup, key)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev schema.ClassifiedEvent) {
	for _, rule := range d.cfg.Rules {
		if !rule.Matches(&ev) {
			continue
		}

		dedupKey := expandTemplate(rule.DedupTemplate, ev)
		if !d.admit(dedupKey) {
			continue
		}

		payload, err := json.Marshal(ev)
		if err != nil {
			log.Errorf("alerts: encoding event %s: %s", ev.ID, err)
			continue
		}

		alert := schema.Alert{
			EventID:  ev.ID,
			Level:    rule.Level,
			IssuedAt: time.Now(),
			Payload:  string(payload),
			DedupKey: dedupKey,
		}
		d.dispatch(ctx, alert)
	}
}

// admit reports whether dedupKey should produce an outbound alert now:
// the first occurrence within a window always does; later occurrences
// within the same window only bump a counter (spec §4.12).
func (d *Dispatcher) admit(dedupKey string) bool {
	window := time.Duration(d.cfg.DedupWindowS) * time.Second

	d.dedupMu.Lock()
	defer d.dedupMu.Unlock()

	entry, ok := d.dedup[dedupKey]
	now := time.Now()
	if !ok || now.Sub(entry.firstSent) > window {
		d.dedup[dedupKey] = &dedupEntry{firstSent: now, count: 1}
		return true
	}
	entry.count++
	return false
}

func (d *Dispatcher) dispatch(ctx context.Context, alert schema.Alert) {
	metrics.AlertsDispatched.WithLabelValues(string(alert.Level)).Inc()
	for _, sub := range d.subscribers {
		sub := sub
		go func() {
			if err := d.deliver(ctx, sub, alert); err != nil {
				log.Errorf("alerts: delivery to %s failed: %s", sub.ID, err)
			}
		}()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sub *Subscriber, alert schema.Alert) error {
	const op = "alerts.deliver"
	return sub.caller.Do(ctx, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.WebhookURL, bytes.NewReader([]byte(alert.Payload)))
		if err != nil {
			return errs.New(errs.Internal, op, "building request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Quakewatch-Event-ID", alert.EventID)
		req.Header.Set("X-Quakewatch-Alert-Level", string(alert.Level))

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return errs.New(errs.Transient, op, "webhook request failed", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return errs.New(errs.Transient, op, fmt.Sprintf("subscriber %d", resp.StatusCode), nil)
		}
		if resp.StatusCode >= 400 {
			return errs.New(errs.Validation, op, fmt.Sprintf("subscriber %d", resp.StatusCode), nil)
		}
		return nil
	})
}

// expandTemplate substitutes {label}, {magnitude} and {channel} in
// template with values from ev, the minimal interpolation the closed
// predicate rule set needs (SPEC_FULL.md "Alert rule predicates").
func expandTemplate(template string, ev schema.ClassifiedEvent) string {
	r := strings.NewReplacer(
		"{label}", string(ev.Classification.Label),
		"{magnitude}", fmt.Sprintf("%.1f", ev.Magnitude.Value),
		"{channel}", ev.Channel.String(),
	)
	key := r.Replace(template)
	if key == template && template == "" {
		return ev.Channel.String() + "/" + string(ev.Classification.Label)
	}
	return key
}
