package testutil

import (
	"sync"
	"time"
)

// ExecutionRecord holds the start and end times of one object's pipeline.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Recorder collects execution records keyed by object path.
type Recorder struct {
	mu      sync.Mutex
	records map[string]*ExecutionRecord
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{records: make(map[string]*ExecutionRecord)}
}

// Start marks key as started now.
func (r *Recorder) Start(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[key] = &ExecutionRecord{Start: time.Now()}
}

// End marks key as finished now.
func (r *Recorder) End(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[key]; ok {
		rec.End = time.Now()
	}
}

// Get returns a copy of key's record.
func (r *Recorder) Get(key string) (ExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}

// Before reports whether a finished before b started.
func (r *Recorder) Before(a, b string) bool {
	ra, okA := r.Get(a)
	rb, okB := r.Get(b)
	return okA && okB && !ra.End.IsZero() && !ra.End.After(rb.Start)
}

// Overlap reports whether a and b were running at the same time.
func (r *Recorder) Overlap(a, b string) bool {
	ra, okA := r.Get(a)
	rb, okB := r.Get(b)
	if !okA || !okB || ra.End.IsZero() || rb.End.IsZero() {
		return false
	}
	return ra.Start.Before(rb.End) && rb.Start.Before(ra.End)
}
