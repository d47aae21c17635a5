package bash

import (
	"sync"
	"time"
)

// HistoryEntry records one executed command.
type HistoryEntry struct {
	Seq        uint64    `json:"seq"`
	Command    string    `json:"command"`
	StartedAt  time.Time `json:"started_at"`
	ExitCode   *int      `json:"exit_code"`
	Classifier string    `json:"classifier"`
}

// History is a fixed-capacity ring of command entries, oldest evicted
// first. It is mutated only by the owning session's worker but may be
// read concurrently.
type History struct {
	entries []HistoryEntry
	head    int
	size    int
	mu      sync.RWMutex
}

// NewHistory creates a ring with the given capacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{entries: make([]HistoryEntry, capacity)}
}

// Add appends an entry, evicting the oldest when full.
func (h *History) Add(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.head] = entry
	h.head = (h.head + 1) % len(h.entries)
	if h.size < len(h.entries) {
		h.size++
	}
}

// Recent returns up to limit entries, newest first.
func (h *History) Recent(limit int) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit > h.size {
		limit = h.size
	}
	result := make([]HistoryEntry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (h.head - 1 - i + len(h.entries)) % len(h.entries)
		result = append(result, h.entries[idx])
	}
	return result
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}
