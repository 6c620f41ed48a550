// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package deadletter implements the diagnostic sink named in spec §7/§9
// for inputs or Candidate Events that failed validation or a downstream
// stage: an append-only JSONL file, one record per rejection, modeled
// on the teacher's plain append-only checkpoint writer
// (pkg/metricstore/checkpoint.go) but reduced to the single-file,
// single-writer case this component needs.
package deadletter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/seismonet/quakewatch/pkg/schema"
)

const filePerms = 0o644

// Record is one rejected Candidate Event or invalid input, never
// silently dropped per spec §7.
type Record struct {
	Timestamp time.Time             `json:"timestamp"`
	Stage     string                `json:"stage"`
	Reason    schema.RejectReason   `json:"reason,omitempty"`
	Detail    string                `json:"detail,omitempty"`
	Candidate *schema.CandidateEvent `json:"candidate,omitempty"`
}

// Sink appends Records to a single JSONL file, serialized by mu since
// multiple orchestrator workers may reject events concurrently.
type Sink struct {
	mu   sync.Mutex
	file *os.File
}

// Open creates (or appends to) the dead-letter file at path.
func Open(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerms)
	if err != nil {
		return nil, err
	}
	return &Sink{file: f}, nil
}

// Write appends one record, never failing the caller's operation on a
// write error beyond logging it — a dead-letter sink that itself
// blocks the pipeline would defeat its purpose.
func (s *Sink) Write(rec Record) error {
	rec.Timestamp = rec.Timestamp.UTC()
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(line)
	return err
}

// RejectCandidate records a Candidate Event that never reached CONFIRMED.
func (s *Sink) RejectCandidate(stage string, c *schema.CandidateEvent) error {
	return s.Write(Record{Stage: stage, Reason: c.RejectReason, Candidate: c})
}

// RejectInput records a Catalog Event or Waveform Segment validation failure.
func (s *Sink) RejectInput(stage, detail string) error {
	return s.Write(Record{Stage: stage, Detail: detail})
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
