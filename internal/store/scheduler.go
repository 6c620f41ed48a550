// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/seismonet/quakewatch/pkg/log"
)

// Scheduler runs the store's periodic background jobs, the same
// go-co-op/gocron wiring the teacher uses for its duration/footprint
// update workers in internal/taskmanager.
type Scheduler struct {
	s     gocron.Scheduler
	store *Store
}

// NewScheduler builds (but does not start) a Scheduler for s.
func NewScheduler(s *Store) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{s: sched, store: s}, nil
}

// Start registers and launches the periodic fsync job when the store is
// configured for "periodic" fsync mode; in "per_write" mode every
// Append already syncs, so no job is needed.
func (sch *Scheduler) Start(fsyncPeriodMS int) error {
	if sch.store.fsyncMode == "periodic" {
		period := time.Duration(fsyncPeriodMS) * time.Millisecond
		if period <= 0 {
			period = time.Second
		}
		if _, err := sch.s.NewJob(gocron.DurationJob(period), gocron.NewTask(func() {
			sch.store.logMu.Lock()
			err := sch.store.logFile.Sync()
			sch.store.logMu.Unlock()
			if err != nil {
				log.Errorf("store: periodic fsync failed: %s", err)
			}
		})); err != nil {
			return err
		}
		log.Infof("store: periodic fsync registered with %s interval", period)
	}
	sch.s.Start()
	return nil
}

// Shutdown stops the scheduler, waiting for any in-flight job to finish.
func (sch *Scheduler) Shutdown() error {
	return sch.s.Shutdown()
}
