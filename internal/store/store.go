// Package store implements the durable batch store from spec §4.6: an
// append-only, process-wide table of pending telemetry batches keyed by a
// monotonic row id, surviving process death. Ported from the teacher's
// resources.Manager checkpoint/spill persistence (bufio-append writer,
// os.MkdirAll'd directory, JSON-encoded payloads) adapted from a page
// cache to a row store — rows are never spilled to a cache, they are the
// persisted record itself.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PendingBatch is one durable row: a batch of samples recorded for a
// session, awaiting upload or retry.
type PendingBatch struct {
	ID          int64  `json:"id"`
	SessionID   string `json:"session_id"`
	PayloadJSON []byte `json:"payload_json"`
	SampleCount int    `json:"sample_count"`
	CreatedAtMs int64  `json:"created_at_ms"`
	AttemptCount int   `json:"attempt_count"`
}

// record is the on-disk encoding for a single store mutation, appended to
// the write-ahead log. Operation is one of "insert", "delete", "incr".
type record struct {
	Op    string       `json:"op"`
	Batch PendingBatch `json:"batch,omitempty"`
	ID    int64        `json:"id,omitempty"`
}

// Store is a process-singleton, internally-serialised durable table. Every
// exported method is an independent transaction: it mutates the in-memory
// index and appends one record to the on-disk log before returning.
type Store struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *bufio.Writer
	nextID   int64
	rows     map[int64]*PendingBatch
	order    []int64 // ascending created_at_ms / insertion order
}

// DefaultDir returns a reasonable on-device directory for the pending
// telemetry log when the host does not configure one explicitly.
func DefaultDir() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "desmo-telemetry")
}

// Open opens (or creates) the store backed by a single append-only log
// file "pending_telemetry.jsonl" under dir, replaying it to rebuild the
// in-memory index. Safe to call once per process; the returned Store
// should be shared across sessions for retry continuity (spec §5 "Shared
// resources").
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	path := filepath.Join(dir, "pending_telemetry.jsonl")

	s := &Store{path: path, rows: make(map[int64]*PendingBatch)}
	if err := s.replay(path); err != nil {
		return nil, fmt.Errorf("replay store log: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open store log for append: %w", err)
	}
	s.file = f
	s.writer = bufio.NewWriter(f)
	return s, nil
}

func (s *Store) replay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			break // EOF or trailing partial line from a prior crash; stop replay
		}
		switch rec.Op {
		case "insert":
			b := rec.Batch
			s.rows[b.ID] = &b
			s.order = append(s.order, b.ID)
			if b.ID >= s.nextID {
				s.nextID = b.ID + 1
			}
		case "delete":
			delete(s.rows, rec.ID)
		case "incr":
			if b, ok := s.rows[rec.ID]; ok {
				b.AttemptCount++
			}
		}
	}
	return nil
}

// Close flushes the writer and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func (s *Store) appendRecord(rec record) error {
	enc := json.NewEncoder(s.writer)
	if err := enc.Encode(rec); err != nil {
		return err
	}
	return s.writer.Flush()
}

// Insert atomically persists a new batch and returns its row id.
func (s *Store) Insert(sessionID string, payloadJSON []byte, sampleCount int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	batch := PendingBatch{
		ID:          id,
		SessionID:   sessionID,
		PayloadJSON: payloadJSON,
		SampleCount: sampleCount,
		CreatedAtMs: time.Now().UnixMilli(),
	}
	if err := s.appendRecord(record{Op: "insert", Batch: batch}); err != nil {
		return 0, fmt.Errorf("persist insert: %w", err)
	}
	s.rows[id] = &batch
	s.order = append(s.order, id)
	return id, nil
}

// AllPending returns every row ordered by created_at_ms ascending.
func (s *Store) AllPending() []PendingBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(func(PendingBatch) bool { return true })
}

// PendingFor returns rows belonging to sessionID, ordered the same way.
func (s *Store) PendingFor(sessionID string) []PendingBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(func(b PendingBatch) bool { return b.SessionID == sessionID })
}

func (s *Store) snapshotLocked(keep func(PendingBatch) bool) []PendingBatch {
	out := make([]PendingBatch, 0, len(s.order))
	for _, id := range s.order {
		b, ok := s.rows[id]
		if !ok {
			continue // already deleted
		}
		if keep(*b) {
			out = append(out, *b)
		}
	}
	return out
}

// Delete removes a row by id. Idempotent: deleting a row twice is a no-op
// the second time.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return nil
	}
	if err := s.appendRecord(record{Op: "delete", ID: id}); err != nil {
		return fmt.Errorf("persist delete: %w", err)
	}
	delete(s.rows, id)
	return nil
}

// IncrementAttempts increments a row's attempt_count by one.
func (s *Store) IncrementAttempts(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[id]
	if !ok {
		return nil
	}
	if err := s.appendRecord(record{Op: "incr", ID: id}); err != nil {
		return fmt.Errorf("persist increment: %w", err)
	}
	b.AttemptCount++
	return nil
}

// EvictStale deletes every row whose attempt_count >= maxAttempts,
// returning the count of rows evicted.
func (s *Store) EvictStale(maxAttempts int) (int, error) {
	s.mu.Lock()
	stale := make([]int64, 0)
	for _, id := range s.order {
		if b, ok := s.rows[id]; ok && b.AttemptCount >= maxAttempts {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		if err := s.Delete(id); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// Count returns the number of rows currently pending.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
