// Package usage accumulates monthly delivery statistics for the admin
// dashboard's cost reporting.
package usage

import (
	"sync"
	"time"
)

// Month identifies one calendar month
type Month struct {
	Year  int
	Month time.Month
}

// Stats holds the counters accumulated for one month
type Stats struct {
	Downloads   int64
	BytesServed int64
}

// Tracker accumulates per-month download counts and bytes served. The
// accumulator is keyed by (year, month) explicitly; a new month starts a
// fresh entry on first use, no reset job required.
type Tracker struct {
	mu     sync.Mutex
	months map[Month]*Stats
	now    func() time.Time
}

// New creates a monthly usage tracker
func New() *Tracker {
	return &Tracker{
		months: make(map[Month]*Stats),
		now:    time.Now,
	}
}

// NewWithClock creates a tracker with an injectable clock for tests
func NewWithClock(now func() time.Time) *Tracker {
	return &Tracker{
		months: make(map[Month]*Stats),
		now:    now,
	}
}

// RecordDownload adds one download of the given size to the current month
func (t *Tracker) RecordDownload(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.currentLocked()
	s.Downloads++
	s.BytesServed += bytes
}

// Current returns a copy of the running month's counters
func (t *Tracker) Current() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.currentLocked()
}

// For returns a copy of the counters for a specific month
func (t *Tracker) For(m Month) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.months[m]; ok {
		return *s
	}
	return Stats{}
}

func (t *Tracker) currentLocked() *Stats {
	now := t.now().UTC()
	key := Month{Year: now.Year(), Month: now.Month()}
	s, ok := t.months[key]
	if !ok {
		s = &Stats{}
		t.months[key] = s
	}
	return s
}
