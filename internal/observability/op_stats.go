// Package observability provides operation statistics tracking for store
// performance monitoring.
package observability

import (
	"sort"
	"sync"
	"time"
)

// OpStats tracks per-operation frequency and latency for the record store.
type OpStats struct {
	mu  sync.RWMutex
	ops map[string]*OpRecord
}

// OpRecord holds statistics for one operation kind.
type OpRecord struct {
	Op        string
	Count     int64
	Errors    int64
	TotalTime time.Duration
	LastSeen  time.Time
}

// MeanLatency returns the average duration per call, zero if never called.
func (r OpRecord) MeanLatency() time.Duration {
	if r.Count == 0 {
		return 0
	}
	return r.TotalTime / time.Duration(r.Count)
}

// NewOpStats creates a new operation statistics tracker.
func NewOpStats() *OpStats {
	return &OpStats{ops: make(map[string]*OpRecord)}
}

// Record records one completed operation. This method is O(1) and
// thread-safe.
func (o *OpStats) Record(op string, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, exists := o.ops[op]
	if !exists {
		rec = &OpRecord{Op: op}
		o.ops[op] = rec
	}

	rec.Count++
	rec.TotalTime += elapsed
	rec.LastSeen = time.Now()
	if err != nil {
		rec.Errors++
	}
}

// Snapshot returns a copy of all operation records sorted by count
// (descending), ties broken by operation name.
func (o *OpStats) Snapshot() []OpRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()

	records := make([]OpRecord, 0, len(o.ops))
	for _, rec := range o.ops {
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Count != records[j].Count {
			return records[i].Count > records[j].Count
		}
		return records[i].Op < records[j].Op
	})
	return records
}

// Reset clears all recorded statistics.
func (o *OpStats) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = make(map[string]*OpRecord)
}
