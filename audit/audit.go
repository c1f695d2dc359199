// Package audit records lifecycle decisions in a bounded in-memory log.
// The log is a fixed-capacity ring: once full, each append evicts the
// oldest entry. An optional Sink receives every entry for durability.
package audit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sean-she/photoflow-storage/storage"
)

// DefaultCapacity is the ring size when none is configured.
const DefaultCapacity = 10000

// Entry is one recorded lifecycle decision.
type Entry struct {
	Timestamp   time.Time            `json:"timestamp"`
	FileKey     string               `json:"file_key"`
	Action      string               `json:"action"`
	RuleID      string               `json:"rule_id,omitempty"`
	Blocked     bool                 `json:"blocked,omitempty"`
	BlockReason string               `json:"block_reason,omitempty"`
	File        storage.FileMetadata `json:"file"`
	ExecutionID string               `json:"execution_id,omitempty"`
}

// Filter selects entries from a Query. Zero-value fields match everything.
type Filter struct {
	// KeyPrefix keeps entries whose FileKey starts with the prefix.
	KeyPrefix string

	// Action keeps entries with this exact action.
	Action string

	// ExecutionID keeps entries from one scanner run.
	ExecutionID string

	// From and To bound the entry timestamp inclusively.
	From time.Time
	To   time.Time

	// Limit caps the number of returned entries; non-positive means all.
	Limit int
}

func (f *Filter) matches(e *Entry) bool {
	if f.KeyPrefix != "" && !strings.HasPrefix(e.FileKey, f.KeyPrefix) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ExecutionID != "" && e.ExecutionID != f.ExecutionID {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Log is a mutex-guarded ring buffer of audit entries.
type Log struct {
	mu    sync.Mutex
	ring  []Entry
	start int
	count int
	sink  Sink
}

// NewLog returns a log retaining the most recent capacity entries.
// Non-positive capacity falls back to DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{ring: make([]Entry, capacity)}
}

// SetSink attaches a durability sink invoked on every append. Passing nil
// detaches it.
func (l *Log) SetSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = s
}

// Append records e, evicting the oldest entry when the ring is full.
// A zero Timestamp is filled with the current time. The sink, if any, is
// written outside the lock; its failure does not lose the in-memory entry.
func (l *Log) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	if l.count < len(l.ring) {
		l.ring[(l.start+l.count)%len(l.ring)] = e
		l.count++
	} else {
		l.ring[l.start] = e
		l.start = (l.start + 1) % len(l.ring)
	}
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Write(e); err != nil {
			return fmt.Errorf("audit: sink write: %w", err)
		}
	}
	return nil
}

// Query returns matching entries newest-first.
func (l *Log) Query(f Filter) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0)
	for i := l.count - 1; i >= 0; i-- {
		e := l.ring[(l.start+i)%len(l.ring)]
		if !f.matches(&e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Len reports the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Capacity reports the ring size.
func (l *Log) Capacity() int {
	return len(l.ring)
}

// Reset drops all retained entries. Intended for test harnesses.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start, l.count = 0, 0
}
