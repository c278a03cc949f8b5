// Package telemetry keeps in-process operation metrics for an index:
// call counts, errors, cache hits and a latency histogram per operation.
package telemetry

import (
	"sync"
	"time"
)

// Op is a measured index operation.
type Op string

const (
	OpGet   Op = "get"
	OpQuery Op = "query"
	OpFlush Op = "flush"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketMicro LatencyBucket = "lt1ms"   // <1ms
	BucketFast  LatencyBucket = "lt10ms"  // 1-10ms
	BucketMid   LatencyBucket = "lt100ms" // 10-100ms
	BucketSlow  LatencyBucket = "lt1s"    // 100ms-1s
	BucketStall LatencyBucket = "ge1s"    // >=1s
)

// Buckets lists the buckets in ascending order.
var Buckets = []LatencyBucket{BucketMicro, BucketFast, BucketMid, BucketSlow, BucketStall}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < time.Millisecond:
		return BucketMicro
	case d < 10*time.Millisecond:
		return BucketFast
	case d < 100*time.Millisecond:
		return BucketMid
	case d < time.Second:
		return BucketSlow
	default:
		return BucketStall
	}
}

// Event is one measured operation. Items is the number of entries a flush
// committed; reads leave it zero.
type Event struct {
	Op      Op
	Latency time.Duration
	Cached  bool
	Failed  bool
	Items   int
	At      time.Time
}

// OpStats aggregates the events of one operation.
type OpStats struct {
	Count     int64                   `json:"count"`
	Errors    int64                   `json:"errors"`
	CacheHits int64                   `json:"cache_hits"`
	Items     int64                   `json:"items,omitempty"`
	Total     time.Duration           `json:"total_ns"`
	Max       time.Duration           `json:"max_ns"`
	Buckets   map[LatencyBucket]int64 `json:"buckets"`
}

// Mean returns the average latency.
func (s OpStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// CacheHitRate returns the share of calls answered from cache.
func (s OpStats) CacheHitRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.Count)
}

// Snapshot is a point-in-time copy of a Recorder.
type Snapshot struct {
	Ops    map[Op]OpStats `json:"ops"`
	Recent []Event        `json:"-"`
}

// Op returns the stats of op, zero if never recorded.
func (s Snapshot) Op(op Op) OpStats { return s.Ops[op] }

// DefaultRecentEvents is how many events a Recorder keeps for inspection.
const DefaultRecentEvents = 64

// Recorder aggregates events. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	ops    map[Op]*OpStats
	recent *CircularBuffer[Event]
}

// NewRecorder creates a Recorder keeping the last recent events.
func NewRecorder(recent int) *Recorder {
	if recent <= 0 {
		recent = DefaultRecentEvents
	}
	return &Recorder{
		ops:    make(map[Op]*OpStats),
		recent: NewCircularBuffer[Event](recent),
	}
}

// Record adds one event.
func (r *Recorder) Record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.ops[e.Op]
	if !ok {
		s = &OpStats{Buckets: make(map[LatencyBucket]int64, len(Buckets))}
		r.ops[e.Op] = s
	}
	s.Count++
	if e.Failed {
		s.Errors++
	}
	if e.Cached {
		s.CacheHits++
	}
	s.Items += int64(e.Items)
	s.Total += e.Latency
	if e.Latency > s.Max {
		s.Max = e.Latency
	}
	s.Buckets[LatencyToBucket(e.Latency)]++
	r.recent.Add(e)
}

// Since records op as started at start.
func (r *Recorder) Since(op Op, start time.Time, cached bool, err error) {
	r.Record(Event{Op: op, Latency: time.Since(start), Cached: cached, Failed: err != nil})
}

// Snapshot copies the current aggregates.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{Ops: make(map[Op]OpStats, len(r.ops)), Recent: r.recent.Items()}
	for op, s := range r.ops {
		c := *s
		c.Buckets = make(map[LatencyBucket]int64, len(s.Buckets))
		for b, n := range s.Buckets {
			c.Buckets[b] = n
		}
		snap.Ops[op] = c
	}
	return snap
}

// Reset clears every aggregate.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ops = make(map[Op]*OpStats)
	r.recent.Clear()
}
