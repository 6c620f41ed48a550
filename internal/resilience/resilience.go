// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package resilience provides the ResilientCaller used by the Catalog
// Client and the Waveform Client to guard every outbound upstream call
// with a token-bucket rate limiter, a bounded retry with backoff, and a
// circuit breaker, per spec §9.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/pkg/metrics"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// Caller wraps an upstream call with rate limiting, retry-with-backoff
// and a circuit breaker. All three guards are always applied, in that
// order: a call that is locally rate limited never touches the breaker.
type Caller struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration

	retryMax       int
	retryBackoff   time.Duration
}

// New builds a Caller for the named upstream dependency (e.g. "catalog",
// "waveform") from its ResilienceConfig.
func New(name string, cfg schema.ResilienceConfig) *Caller {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     time.Duration(cfg.BreakerCoolDownMS) * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerThreshold)
		},
	}

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Caller{
		name:         name,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst),
		breaker:      gobreaker.NewCircuitBreaker(st),
		timeout:      time.Duration(cfg.TimeoutMS) * time.Millisecond,
		retryMax:     cfg.RetryMax,
		retryBackoff: time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
	}
}

// Do executes fn under the full resilience stack: it blocks for a rate
// limiter token (respecting ctx), then calls fn through the circuit
// breaker, retrying transient failures up to retryMax times with
// exponential backoff and jitter. A call that is breaker-open fails
// immediately as errs.Unavailable without consuming a retry attempt.
func (c *Caller) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.New(errs.RateLimited, op, "rate limiter wait aborted", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		callCtx := ctx
		cancel := func() {}
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, fn(callCtx)
		})
		cancel()
		metrics.BreakerState.WithLabelValues(c.name).Set(float64(c.breaker.State()))

		if err == nil {
			metrics.CallsTotal.WithLabelValues(c.name, "success").Inc()
			return nil
		}

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			metrics.CallsTotal.WithLabelValues(c.name, "breaker_open").Inc()
			return errs.New(errs.Unavailable, op, "circuit breaker open for "+c.name, err)
		}

		lastErr = err
		if !isRetryable(err) || attempt == c.retryMax {
			metrics.CallsTotal.WithLabelValues(c.name, "failure").Inc()
			break
		}

		backoff := c.retryBackoff * time.Duration(1<<uint(attempt))
		jitter := time.Duration(rand.Int63n(int64(c.retryBackoff) + 1))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return errs.New(errs.DeadlineExceeded, op, "context cancelled during retry backoff", ctx.Err())
		}
	}

	if ctx.Err() != nil {
		return errs.New(errs.DeadlineExceeded, op, "context deadline exceeded", ctx.Err())
	}
	return errs.New(errs.Transient, op, "upstream call failed after retries", lastErr)
}

func isRetryable(err error) bool {
	return errs.KindOf(err) != errs.Validation && errs.KindOf(err) != errs.SchemaMismatch
}
