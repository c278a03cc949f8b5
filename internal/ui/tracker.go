package ui

import (
	"sync"
	"time"
)

// Tracker accumulates load progress. It is safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	last      ProgressEvent
	start     time.Time
	rejected  int
	flushes   int
	lastCalc  time.Time
	lastCount int
	rate      float64 // records/sec, smoothed
	peak      float64
	now       func() time.Time
}

// Snapshot is a point-in-time copy of a Tracker.
type Snapshot struct {
	ProgressEvent
	Fraction float64 // of TotalBytes, 0 when unknown
	Rate     float64
	Peak     float64
	Rejected int
	Flushes  int
	Elapsed  time.Duration
}

// NewTracker creates a tracker starting now.
func NewTracker() *Tracker {
	return newTrackerAt(time.Now)
}

func newTrackerAt(now func() time.Time) *Tracker {
	t := now()
	return &Tracker{start: t, lastCalc: t, now: now}
}

// Update records a progress event. A transition into StageFlushing counts a flush.
func (t *Tracker) Update(ev ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Stage == StageFlushing && t.last.Stage != StageFlushing {
		t.flushes++
	}
	t.last = ev

	now := t.now()
	elapsed := now.Sub(t.lastCalc)
	if elapsed < 500*time.Millisecond {
		return
	}
	if delta := ev.Records - t.lastCount; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		if t.rate == 0 {
			t.rate = speed
		} else {
			t.rate = 0.2*speed + 0.8*t.rate
		}
		if speed > t.peak {
			t.peak = speed
		}
	}
	t.lastCalc = now
	t.lastCount = ev.Records
}

// Reject counts a rejected record.
func (t *Tracker) Reject() {
	t.mu.Lock()
	t.rejected++
	t.mu.Unlock()
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		ProgressEvent: t.last,
		Rate:          t.rate,
		Peak:          t.peak,
		Rejected:      t.rejected,
		Flushes:       t.flushes,
		Elapsed:       t.now().Sub(t.start),
	}
	if t.last.TotalBytes > 0 {
		s.Fraction = float64(t.last.Bytes) / float64(t.last.TotalBytes)
		if s.Fraction > 1 {
			s.Fraction = 1
		}
	}
	return s
}
