package executor

import (
	"time"
)

// State is the lifecycle state of one backup object in a run.
type State int

const (
	Pending State = iota
	Running
	Succeeded
	Failed
	Cancelled
	RolledBack
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case RolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// ObjectReport is the outcome of one object.
type ObjectReport struct {
	Path  string
	Group string
	State State
	// Written is what the pipeline produced; Retained is what the backend kept.
	Written  int64
	Retained int64
	Codes    []int
	Err      error
	Start    time.Time
	End      time.Time
}

// Report is the outcome of one backup run.
type Report struct {
	TaskID string
	RunID  string
	Prefix string
	// Objects are in declaration order.
	Objects []*ObjectReport
	// Dispatched lists object paths in the order they were handed to workers.
	Dispatched []string
	// Rotated lists the prefixes removed by rotation.
	Rotated []string
	Start   time.Time
	End     time.Time
	Err     error
}

// Object returns the report for path.
func (r *Report) Object(path string) (*ObjectReport, bool) {
	for _, o := range r.Objects {
		if o.Path == path {
			return o, true
		}
	}
	return nil, false
}

// Count returns how many objects ended in state s.
func (r *Report) Count(s State) int {
	n := 0
	for _, o := range r.Objects {
		if o.State == s {
			n++
		}
	}
	return n
}

// Retained sums the bytes the backend kept for this run.
func (r *Report) Retained() int64 {
	var n int64
	for _, o := range r.Objects {
		if o.State == Succeeded {
			n += o.Retained
		}
	}
	return n
}
