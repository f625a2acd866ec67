package dispatch

import "sync/atomic"

// Stats is a running snapshot of a Map/Each call's progress: jobs
// dispatched, jobs completed, and the worker count it was given. Attach one
// with WithStats to read it from another goroutine while Map is still
// running (spec §6's supplemented, non-conflicting addition; see
// DESIGN.md).
type Stats struct {
	dispatched atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	workers    atomic.Int64
}

// Dispatched returns the number of jobs handed to a worker so far.
func (s *Stats) Dispatched() int64 { return s.dispatched.Load() }

// Completed returns the number of jobs that returned a result successfully.
func (s *Stats) Completed() int64 { return s.completed.Load() }

// Failed returns the number of jobs that returned a non-nil error.
func (s *Stats) Failed() int64 { return s.failed.Load() }

// Workers returns the worker count Map resolved for this call.
func (s *Stats) Workers() int64 { return s.workers.Load() }

func (s *Stats) onStart(int) {
	if s != nil {
		s.dispatched.Add(1)
	}
}

func (s *Stats) onFinish(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.failed.Add(1)
		return
	}
	s.completed.Add(1)
}

func (s *Stats) setWorkers(n int) {
	if s != nil {
		s.workers.Store(int64(n))
	}
}
