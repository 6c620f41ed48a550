// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package orchestrator

import (
	"sync"
	"time"

	"github.com/seismonet/quakewatch/pkg/log"
	"github.com/seismonet/quakewatch/pkg/metrics"
	"github.com/seismonet/quakewatch/pkg/schema"
)

// reorderBuffer enforces the commit ordering guarantee from spec §4.10:
// Classified Events reach commit in trigger-instant (sequence number)
// order within a bounded window. A worker finishing event N+1 before
// event N holds its result here until N commits, unless N is still
// missing once the window elapses — at which point the buffer gives up
// waiting and commits out of order, logging a violation.
type reorderBuffer struct {
	mu      sync.Mutex
	nextSeq uint64
	window  time.Duration
	pending map[uint64]pendingEntry
	commit  func(schema.ClassifiedEvent) error
}

type pendingEntry struct {
	ev      schema.ClassifiedEvent
	arrived time.Time
	skip    bool
}

func newReorderBuffer(startSeq uint64, window time.Duration, commit func(schema.ClassifiedEvent) error) *reorderBuffer {
	return &reorderBuffer{
		nextSeq: startSeq,
		window:  window,
		pending: make(map[uint64]pendingEntry),
		commit:  commit,
	}
}

// Submit hands a finished Classified Event to the buffer, committing it
// (and any now-contiguous successors) immediately if it is the next
// expected sequence number, or holding it otherwise.
func (b *reorderBuffer) Submit(ev schema.ClassifiedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[ev.Seq] = pendingEntry{ev: ev, arrived: time.Now()}
	return b.drainLocked()
}

// Skip marks a reserved sequence number as one that will never be
// submitted (a confirmed candidate that was rejected downstream, e.g. by
// process() failing before classification completes) so the buffer can
// close the hole immediately instead of waiting out the reorder window.
func (b *reorderBuffer) Skip(seq uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[seq] = pendingEntry{arrived: time.Now(), skip: true}
	return b.drainLocked()
}

// Flush forces the window-exceeded out-of-order commit path to run even
// absent new Submit/Skip traffic, so a held event doesn't sit uncommitted
// indefinitely waiting for a later arrival to drive the drain.
func (b *reorderBuffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drainLocked()
}

func (b *reorderBuffer) drainLocked() error {
	for {
		if entry, ok := b.pending[b.nextSeq]; ok {
			delete(b.pending, b.nextSeq)
			if !entry.skip {
				if err := b.commit(entry.ev); err != nil {
					return err
				}
			}
			b.nextSeq++
			continue
		}

		if len(b.pending) == 0 {
			return nil
		}

		minSeq, oldest, ok := b.oldestLocked()
		if !ok || time.Since(oldest.arrived) < b.window {
			return nil
		}

		delete(b.pending, minSeq)
		if !oldest.skip {
			log.Warnf("orchestrator: reorder window exceeded waiting for seq %d, committing seq %d out of order", b.nextSeq, minSeq)
			metrics.ReorderViolations.Inc()
			if err := b.commit(oldest.ev); err != nil {
				return err
			}
		}
		if minSeq >= b.nextSeq {
			b.nextSeq = minSeq + 1
		}
	}
}

func (b *reorderBuffer) oldestLocked() (uint64, pendingEntry, bool) {
	var (
		minSeq uint64
		best   pendingEntry
		found  bool
	)
	for seq, entry := range b.pending {
		if !found || seq < minSeq {
			minSeq, best, found = seq, entry, true
		}
	}
	return minSeq, best, found
}
