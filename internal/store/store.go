// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store implements the Event Store (C11): an append-only JSONL
// log of Classified Events, durable across restarts, paired with a
// sqlite3 secondary index that makes id/time-range/label/magnitude
// queries fast without scanning the log. The wiring — a hooked sqlite3
// driver opened through sqlx, schema migrations embedded and applied
// with golang-migrate — is the same shape as the teacher's
// internal/repository package, reduced to the single-writer,
// single-backend case this component needs.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlite3drv "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/seismonet/quakewatch/internal/errs"
	"github.com/seismonet/quakewatch/pkg/log"
	"github.com/seismonet/quakewatch/pkg/schema"
)

//go:embed migrations/*
var migrationFiles embed.FS

const (
	logFileName = "events.jsonl"
	dbFileName  = "index.db"

	// logMagic identifies a quakewatch event log so a future format
	// change can refuse to append to an incompatible file (spec §6).
	logMagic      = "quakewatch-store"
	logVersion    = 1
	headerSchemaID = "store-header-v1"
)

// logHeader is the first line ever written to the log file.
type logHeader struct {
	Magic    string `json:"magic"`
	Version  int    `json:"version"`
	SchemaID string `json:"schema_id"`
}

// indexRow is the sqlite3 projection of a ClassifiedEvent, enough to
// answer Query and GetByID without touching the log file.
type indexRow struct {
	ID         string  `db:"id"`
	Seq        uint64  `db:"seq"`
	TriggerNS  int64   `db:"trigger_ns"`
	Channel    string  `db:"channel"`
	Label      string  `db:"label"`
	Confidence float64 `db:"confidence"`
	Magnitude  float64 `db:"magnitude"`
	Latitude   float64 `db:"latitude"`
	Longitude  float64 `db:"longitude"`
	DepthKm    float64 `db:"depth_km"`
	LogOffset  int64   `db:"log_offset"`
	LogLength  int64   `db:"log_length"`
}

// Store is the durable, queryable home of every Classified Event the
// orchestrator commits. One *Store owns exclusive write access to its
// directory; concurrent writers from multiple processes are not supported.
type Store struct {
	dir string

	logMu     sync.Mutex
	logFile   *os.File
	logOffset int64
	fsyncMode string

	db *sqlx.DB

	subMu       sync.Mutex
	subscribers map[int]chan schema.ClassifiedEvent
	nextSubID   int
}

var sqliteDriverOnce sync.Once

// Open creates (or reopens) the store rooted at cfg.Dir, applying
// pending migrations and appending a log header if this is a fresh file.
func Open(cfg schema.StoreConfig) (*Store, error) {
	const op = "store.Open"

	if cfg.Dir == "" {
		return nil, errs.New(errs.Validation, op, "store directory not configured", nil)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errs.New(errs.Internal, op, "creating store directory", err)
	}

	sqliteDriverOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3drv.SQLiteDriver{}, &hooks{}))
	})

	dbPath := filepath.Join(cfg.Dir, dbFileName)
	dbHandle, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", dbPath))
	if err != nil {
		return nil, errs.New(errs.Corruption, op, "opening index database", err)
	}
	// sqlite3 does not support concurrent writers; serialize through one
	// connection and let Store's own mutex order writes.
	dbHandle.SetMaxOpenConns(1)

	if err := migrateUp(dbPath, dbHandle.DB); err != nil {
		dbHandle.Close()
		return nil, errs.New(errs.Corruption, op, "applying index migrations", err)
	}

	logPath := filepath.Join(cfg.Dir, logFileName)
	fresh := true
	if fi, statErr := os.Stat(logPath); statErr == nil && fi.Size() > 0 {
		fresh = false
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		dbHandle.Close()
		return nil, errs.New(errs.Internal, op, "opening event log", err)
	}

	offset, err := logFile.Seek(0, io.SeekEnd)
	if err != nil {
		logFile.Close()
		dbHandle.Close()
		return nil, errs.New(errs.Internal, op, "seeking event log", err)
	}

	fsyncMode := cfg.Fsync
	if fsyncMode == "" {
		fsyncMode = "per_write"
	}

	s := &Store{
		dir:         cfg.Dir,
		logFile:     logFile,
		logOffset:   offset,
		fsyncMode:   fsyncMode,
		db:          dbHandle,
		subscribers: make(map[int]chan schema.ClassifiedEvent),
	}

	if fresh {
		if err := s.writeHeader(); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

func migrateUp(dbPath string, db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func (s *Store) writeHeader() error {
	line, err := json.Marshal(logHeader{Magic: logMagic, Version: logVersion, SchemaID: headerSchemaID})
	if err != nil {
		return errs.New(errs.Internal, "store.writeHeader", "encoding log header", err)
	}
	line = append(line, '\n')
	n, err := s.logFile.Write(line)
	if err != nil {
		return errs.New(errs.Internal, "store.writeHeader", "writing log header", err)
	}
	s.logOffset += int64(n)
	return s.logFile.Sync()
}

// Append durably commits ev: the JSON record is written (and fsynced,
// if configured per_write) to the log before the index row is inserted,
// so a crash between the two leaves an orphan log record rather than an
// index entry pointing at nothing.
func (s *Store) Append(ctx context.Context, ev schema.ClassifiedEvent) error {
	const op = "store.Append"

	line, err := json.Marshal(ev)
	if err != nil {
		return errs.New(errs.Internal, op, "encoding classified event", err)
	}
	line = append(line, '\n')

	s.logMu.Lock()
	offset := s.logOffset
	n, err := s.logFile.Write(line)
	if err != nil {
		s.logMu.Unlock()
		return errs.New(errs.Internal, op, "writing event log", err)
	}
	s.logOffset += int64(n)
	if s.fsyncMode == "per_write" {
		if err := s.logFile.Sync(); err != nil {
			s.logMu.Unlock()
			return errs.New(errs.Internal, op, "fsyncing event log", err)
		}
	}
	s.logMu.Unlock()

	row := indexRow{
		ID:         ev.ID,
		Seq:        ev.Seq,
		TriggerNS:  ev.TriggerInstant.UnixNano(),
		Channel:    ev.Channel.String(),
		Label:      string(ev.Classification.Label),
		Confidence: ev.Classification.Confidence,
		Magnitude:  ev.Magnitude.Value,
		Latitude:   ev.Location.Latitude,
		Longitude:  ev.Location.Longitude,
		DepthKm:    ev.Location.DepthKm,
		LogOffset:  offset,
		LogLength:  int64(len(line)),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO events (id, seq, trigger_ns, channel, label, confidence, magnitude, latitude, longitude, depth_km, log_offset, log_length)
		VALUES (:id, :seq, :trigger_ns, :channel, :label, :confidence, :magnitude, :latitude, :longitude, :depth_km, :log_offset, :log_length)
	`, row)
	if err != nil {
		return errs.New(errs.Internal, op, "inserting index row", err)
	}

	s.publish(ev)
	return nil
}

func (s *Store) readAt(offset, length int64) (schema.ClassifiedEvent, error) {
	buf := make([]byte, length)
	if _, err := s.logFile.ReadAt(buf, offset); err != nil {
		return schema.ClassifiedEvent{}, errs.New(errs.Corruption, "store.readAt", "reading event log", err)
	}
	var ev schema.ClassifiedEvent
	if err := json.Unmarshal(buf, &ev); err != nil {
		return schema.ClassifiedEvent{}, errs.New(errs.Corruption, "store.readAt", "decoding event record", err)
	}
	return ev, nil
}

// GetByID returns the Classified Event with the given id.
func (s *Store) GetByID(ctx context.Context, id string) (schema.ClassifiedEvent, error) {
	const op = "store.GetByID"

	var row indexRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM events WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return schema.ClassifiedEvent{}, errs.New(errs.Validation, op, "no event with id "+id, nil)
	}
	if err != nil {
		return schema.ClassifiedEvent{}, errs.New(errs.Internal, op, "querying index", err)
	}
	return s.readAt(row.LogOffset, row.LogLength)
}

// QueryFilter narrows a Query to a subset of stored events. Zero values
// mean "no constraint" for every field except the time range.
type QueryFilter struct {
	Start         time.Time
	End           time.Time
	Label         schema.Label
	MinMagnitude  *float64
	MinLatitude   *float64
	MaxLatitude   *float64
	MinLongitude  *float64
	MaxLongitude  *float64
}

// Query returns every stored event matching f, ordered by trigger time ascending.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]schema.ClassifiedEvent, error) {
	const op = "store.Query"

	clause := `WHERE trigger_ns >= ? AND trigger_ns <= ?`
	end := f.End
	if end.IsZero() {
		end = time.Now()
	}
	args := []interface{}{f.Start.UnixNano(), end.UnixNano()}

	if f.Label != "" {
		clause += ` AND label = ?`
		args = append(args, string(f.Label))
	}
	if f.MinMagnitude != nil {
		clause += ` AND magnitude >= ?`
		args = append(args, *f.MinMagnitude)
	}
	if f.MinLatitude != nil {
		clause += ` AND latitude >= ?`
		args = append(args, *f.MinLatitude)
	}
	if f.MaxLatitude != nil {
		clause += ` AND latitude <= ?`
		args = append(args, *f.MaxLatitude)
	}
	if f.MinLongitude != nil {
		clause += ` AND longitude >= ?`
		args = append(args, *f.MinLongitude)
	}
	if f.MaxLongitude != nil {
		clause += ` AND longitude <= ?`
		args = append(args, *f.MaxLongitude)
	}

	var rows []indexRow
	query := s.db.Rebind(`SELECT * FROM events ` + clause + ` ORDER BY trigger_ns ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errs.New(errs.Internal, op, "querying index", err)
	}

	out := make([]schema.ClassifiedEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := s.readAt(row.LogOffset, row.LogLength)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// MaxSeq returns the highest sequence number committed so far, or 0 if
// the store is empty — the replay cursor Tail resumes from.
func (s *Store) MaxSeq(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	if err := s.db.GetContext(ctx, &seq, `SELECT MAX(seq) FROM events`); err != nil {
		return 0, errs.New(errs.Internal, "store.MaxSeq", "querying index", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// Tail streams every event with Seq > fromSeq, first replaying anything
// already committed, then forwarding live Appends as they happen. The
// returned channel is closed when ctx is done.
func (s *Store) Tail(ctx context.Context, fromSeq uint64) (<-chan schema.ClassifiedEvent, error) {
	const op = "store.Tail"

	var rows []indexRow
	query := s.db.Rebind(`SELECT * FROM events WHERE seq > ? ORDER BY seq ASC`)
	if err := s.db.SelectContext(ctx, &rows, query, fromSeq); err != nil {
		return nil, errs.New(errs.Internal, op, "querying replay backlog", err)
	}

	out := make(chan schema.ClassifiedEvent, len(rows)+16)
	live := s.subscribe()

	go func() {
		defer close(out)
		defer s.unsubscribe(live)

		lastSeq := fromSeq
		for _, row := range rows {
			ev, err := s.readAt(row.LogOffset, row.LogLength)
			if err != nil {
				log.Errorf("store: tail replay: %s", err)
				continue
			}
			select {
			case out <- ev:
				lastSeq = ev.Seq
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case ev, ok := <-live.ch:
				if !ok {
					return
				}
				if ev.Seq <= lastSeq {
					continue // already replayed from the backlog above
				}
				select {
				case out <- ev:
					lastSeq = ev.Seq
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

type subscription struct {
	id int
	ch chan schema.ClassifiedEvent
}

func (s *Store) subscribe() subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan schema.ClassifiedEvent, 64)
	s.subscribers[id] = ch
	return subscription{id: id, ch: ch}
}

func (s *Store) unsubscribe(sub subscription) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subscribers[sub.id]; ok {
		delete(s.subscribers, sub.id)
		close(ch)
	}
}

// publish fans ev out to every live Tail subscriber, dropping it for a
// subscriber whose buffer is full rather than blocking the writer —
// a slow consumer can always resume with Tail(ctx, lastSeq) instead.
func (s *Store) publish(ev schema.ClassifiedEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			log.Warnf("store: subscriber %d lagging, dropping event %s from live feed", id, ev.ID)
		}
	}
}

// Close flushes and releases the log file and index database.
func (s *Store) Close() error {
	s.subMu.Lock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.subMu.Unlock()

	var firstErr error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			firstErr = err
		}
	}
	if s.logFile != nil {
		if err := s.logFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
