package model

import "sync/atomic"

// Stats are live counters shared between a running scan and its progress reporters.
// All methods are safe on a nil receiver so components can take an optional *Stats.
type Stats struct {
	JobsTotal     int
	JobsDone      atomic.Int64
	Candidates    atomic.Int64
	RecordsFound  atomic.Int64
	RecordsStored atomic.Int64
	Skipped       atomic.Int64
	Blocked       atomic.Int64
	Errors        atomic.Int64
}

func (s *Stats) AddCandidate() {
	if s != nil {
		s.Candidates.Add(1)
	}
}

func (s *Stats) AddSkipped() {
	if s != nil {
		s.Skipped.Add(1)
	}
}

func (s *Stats) AddBlocked() {
	if s != nil {
		s.Blocked.Add(1)
	}
}

func (s *Stats) AddFound(n int) {
	if s != nil {
		s.RecordsFound.Add(int64(n))
	}
}
