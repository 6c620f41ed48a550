// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"time"

	"github.com/seismonet/quakewatch/pkg/log"
)

type queryTimingKey struct{}

// hooks satisfies the sqlhooks.Hooks interface, logging every query and
// its elapsed time on the secondary index database, the same
// instrumentation pattern as the teacher's internal/repository.Hooks.
type hooks struct{}

func (h *hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("store: query %s %v", query, args)
	return context.WithValue(ctx, queryTimingKey{}, time.Now()), nil
}

func (h *hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(queryTimingKey{}).(time.Time); ok {
		log.Debugf("store: query took %s", time.Since(begin))
	}
	return ctx, nil
}
