package session

import (
	"sync"
	"time"
)

// scheduler runs delayed callbacks tied to a session epoch. CancelAll bumps
// the epoch, so callbacks scheduled before a session ended never fire into
// the next session even if their timers race the cancellation.
type scheduler struct {
	mu     sync.Mutex
	epoch  uint64
	timers map[*time.Timer]struct{}
	after  func(d time.Duration, fn func()) *time.Timer
}

func newScheduler() *scheduler {
	return &scheduler{
		timers: make(map[*time.Timer]struct{}),
		after:  time.AfterFunc,
	}
}

// After schedules fn after d. A zero or negative delay still goes through a
// timer so that CancelAll wins any race with dispatch.
func (s *scheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	epoch := s.epoch
	var t *time.Timer
	t = s.after(d, func() {
		s.mu.Lock()
		live := s.epoch == epoch
		delete(s.timers, t)
		s.mu.Unlock()

		if live {
			fn()
		}
	})
	s.timers[t] = struct{}{}
}

// CancelAll drops every pending callback and invalidates any that already
// fired but have not yet run.
func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}
