// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the process-wide Prometheus registry and the
// gauges/counters the pipeline's components publish to it: queue
// depth, circuit breaker state, call rates, and reorder-window
// violations, served at /metrics the same way the pack's dummybox
// example wires promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

var factory = promauto.With(Registry)

var (
	QueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Name: "quakewatch_pipeline_queue_depth",
		Help: "Number of Candidate Events currently buffered between the detectors and the worker pool.",
	})

	WorkersBusy = factory.NewGauge(prometheus.GaugeOpts{
		Name: "quakewatch_pipeline_workers_busy",
		Help: "Number of worker slots currently processing a Candidate Event.",
	})

	ReorderViolations = factory.NewCounter(prometheus.CounterOpts{
		Name: "quakewatch_pipeline_reorder_violations_total",
		Help: "Classified Events committed out of trigger-instant order because the reorder window was exceeded.",
	})

	EventsCommitted = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "quakewatch_events_committed_total",
		Help: "Classified Events successfully committed to the event store, by label.",
	}, []string{"label"})

	EventsRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "quakewatch_events_rejected_total",
		Help: "Candidate or Classified Events sent to the dead-letter sink, by stage and reason.",
	}, []string{"stage", "reason"})

	BreakerState = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quakewatch_resilience_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) per resilient caller.",
	}, []string{"caller"})

	CallsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "quakewatch_resilience_calls_total",
		Help: "Resilient caller invocations, by caller and outcome.",
	}, []string{"caller", "outcome"})

	AlertsDispatched = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "quakewatch_alerts_dispatched_total",
		Help: "Alerts delivered to subscribers, by level.",
	}, []string{"level"})
)

// Handler serves the Prometheus exposition format for Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
