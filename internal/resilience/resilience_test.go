// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/pkg/schema"
)

func testConfig() schema.ResilienceConfig {
	return schema.ResilienceConfig{
		RateLimitRPS:      1000,
		Burst:             1000,
		TimeoutMS:         1000,
		RetryMax:          2,
		RetryBackoffMS:    1,
		BreakerThreshold:  100,
		BreakerCoolDownMS: 10,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	c := New("test", testConfig())
	calls := 0
	err := c.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	c := New("test", testConfig())
	calls := 0
	err := c.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errs.New(errs.Transient, "op", "flaky upstream", errors.New("connection reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDoDoesNotRetryValidationErrors(t *testing.T) {
	c := New("test", testConfig())
	calls := 0
	err := c.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errs.New(errs.Validation, "op", "malformed payload", nil)
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for non-retryable error, got %d", calls)
	}
}

func TestDoRespectsRateLimiterCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 0.001
	cfg.Burst = 1
	c := New("test", cfg)

	// Drain the single token.
	_ = c.Do(context.Background(), "op", func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Do(ctx, "op", func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatalf("expected rate limiter wait to fail on cancelled context")
	}
	if errs.KindOf(err) != errs.RateLimited {
		t.Fatalf("expected RateLimited kind, got %v", errs.KindOf(err))
	}
}
