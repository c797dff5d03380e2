package renderjobs

import (
	"sync"
	"time"
)

// Scheduler runs a callback once per id after a delay.
type Scheduler interface {
	// Arm schedules onExpire(id) after delay, replacing any pending timer for id.
	Arm(id string, delay time.Duration, onExpire func(id string))
	// Disarm cancels the pending timer for id, if any.
	Disarm(id string)
}

// TimerScheduler is a Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[string]*time.Timer),
	}
}

func (s *TimerScheduler) Arm(id string, delay time.Duration, onExpire func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[id]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		// A timer that fired while being replaced or disarmed is no longer
		// in the table and must not run its callback.
		s.mu.Lock()
		cur, ok := s.timers[id]
		current := ok && cur == t
		if current {
			delete(s.timers, id)
		}
		s.mu.Unlock()

		if current {
			onExpire(id)
		}
	})
	s.timers[id] = t
}

func (s *TimerScheduler) Disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// Pending reports how many timers are armed.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
