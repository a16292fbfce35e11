// Package buffer implements the bounded, thread-safe FIFO sample buffer
// described in spec §4.3: oldest-drop overflow, atomic drain, explicit
// clear. Ported from the teacher's mutex-guarded LRU/spill bookkeeping in
// resources.Manager, simplified to a plain slice-backed ring since no
// eviction-to-disk is required here (the durable store, internal/store,
// is the spill target for whole batches, not individual samples).
package buffer

import "sync"

// Sample is buffered as an opaque value; the buffer package does not need
// to know its shape (kept generic so it can be reused verbatim if the wire
// model changes).
type Sample = any

// Buffer is a bounded, mutex-guarded FIFO of samples with oldest-drop
// overflow semantics.
type Buffer struct {
	mu       sync.Mutex
	items    []Sample
	capacity int

	dropped int64

	// onDrop, when set, is called with the cumulative overflow count every
	// time Add evicts samples (desmo.buffer.dropped_total).
	onDrop func(totalDropped int64)
}

// New constructs a Buffer bounded at capacity (spec default MAX_BUFFER = 10_000).
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &Buffer{capacity: capacity}
}

// SetDropHook installs a callback invoked after every overflow eviction
// with the cumulative dropped count. Wired by the coordinator to a
// metrics counter (spec SPEC_FULL §4.11 "desmo.buffer.dropped_total").
func (b *Buffer) SetDropHook(hook func(totalDropped int64)) {
	b.mu.Lock()
	b.onDrop = hook
	b.mu.Unlock()
}

// Add appends sample, then evicts from the front until len <= capacity.
// Amortised O(1); a single overflowing add is O(k) in the overflow count.
func (b *Buffer) Add(sample Sample) {
	b.mu.Lock()
	b.items = append(b.items, sample)
	var dropped int64 = -1
	if over := len(b.items) - b.capacity; over > 0 {
		b.items = b.items[over:]
		b.dropped += int64(over)
		dropped = b.dropped
	}
	hook := b.onDrop
	b.mu.Unlock()
	if dropped >= 0 && hook != nil {
		hook(dropped)
	}
}

// Drain takes the whole contents and returns them, leaving the buffer
// empty. The returned slice preserves the order in which samples won the
// mutex.
func (b *Buffer) Drain() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	out := b.items
	b.items = nil
	return out
}

// Clear discards all contents without returning them (used for the
// stale-buffer purge on coordinator entry, spec §4.2.1).
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.items = nil
	b.mu.Unlock()
}

// Len reports the current buffer length.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// IsNotEmpty reports whether Drain would currently return a non-nil slice.
func (b *Buffer) IsNotEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items) > 0
}

// Dropped returns the cumulative count of samples evicted by overflow.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
