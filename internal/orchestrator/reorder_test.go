// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seismonet/quakewatch/pkg/schema"
)

func TestReorderBufferCommitsInSequence(t *testing.T) {
	var committed []uint64
	b := newReorderBuffer(0, time.Minute, func(ev schema.ClassifiedEvent) error {
		committed = append(committed, ev.Seq)
		return nil
	})

	require.NoError(t, b.Submit(schema.ClassifiedEvent{Seq: 2}))
	require.Empty(t, committed, "seq 2 must wait for seq 0 and 1")

	require.NoError(t, b.Submit(schema.ClassifiedEvent{Seq: 0}))
	require.Equal(t, []uint64{0}, committed)

	require.NoError(t, b.Submit(schema.ClassifiedEvent{Seq: 1}))
	require.Equal(t, []uint64{0, 1, 2}, committed)
}

func TestReorderBufferForcesProgressPastWindow(t *testing.T) {
	var committed []uint64
	b := newReorderBuffer(0, time.Millisecond, func(ev schema.ClassifiedEvent) error {
		committed = append(committed, ev.Seq)
		return nil
	})

	require.NoError(t, b.Submit(schema.ClassifiedEvent{Seq: 3}))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, b.Submit(schema.ClassifiedEvent{Seq: 4}))
	require.Equal(t, []uint64{3, 4}, committed, "seq 0-2 never arrived; the window forces out-of-order progress")
	require.Equal(t, uint64(5), b.nextSeq)
}

func TestReorderBufferSkipClosesHoleWithoutCommitting(t *testing.T) {
	var committed []uint64
	b := newReorderBuffer(0, time.Minute, func(ev schema.ClassifiedEvent) error {
		committed = append(committed, ev.Seq)
		return nil
	})

	require.NoError(t, b.Submit(schema.ClassifiedEvent{Seq: 1}))
	require.Empty(t, committed, "seq 1 must wait for seq 0")

	require.NoError(t, b.Skip(0))
	require.Equal(t, []uint64{1}, committed, "skipping seq 0 must not commit it, but must unblock seq 1")
	require.Equal(t, uint64(2), b.nextSeq)
}

func TestReorderBufferFlushForcesProgressWithoutNewTraffic(t *testing.T) {
	var committed []uint64
	b := newReorderBuffer(0, time.Millisecond, func(ev schema.ClassifiedEvent) error {
		committed = append(committed, ev.Seq)
		return nil
	})

	require.NoError(t, b.Submit(schema.ClassifiedEvent{Seq: 2}))
	require.Empty(t, committed)
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, b.Flush())
	require.Equal(t, []uint64{2}, committed, "Flush alone, with no later Submit, must force the window-exceeded commit")
}
