package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Handler executes a fired job. Handlers run serially inside the
// scheduler loop, so two jobs for the same argument can never be in
// flight at once.
type Handler func(ctx context.Context, job, arg string)

// entry is one pending job instance, keyed by (job, arg).
type entry struct {
	job string
	arg string
	due time.Time

	// every, when non-zero, re-arms the entry after each fire.
	every time.Duration
}

// Scheduler runs jobs at scheduled times using an injected clock.
// Scheduling a (job, arg) pair that is already pending replaces the
// previous schedule; canceling an absent pair is a no-op.
type Scheduler struct {
	clk clock.Clock

	mu      sync.Mutex
	entries map[string]*entry

	// wake nudges the run loop whenever the earliest due time may
	// have changed.
	wake chan struct{}
}

// NewScheduler returns a Scheduler driven by the provided clock.
func NewScheduler(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clk:     clk,
		entries: make(map[string]*entry),
		wake:    make(chan struct{}, 1),
	}
}

// ScheduleAfter schedules the (job, arg) pair to fire once after delay,
// replacing any pending schedule for the same pair.
func (s *Scheduler) ScheduleAfter(job, arg string, delay time.Duration) {
	s.put(&entry{job: job, arg: arg, due: s.clk.Now().Add(delay)})
}

// ScheduleEvery ensures a recurring schedule exists for the (job, arg)
// pair. An already-pending recurring schedule is left untouched.
func (s *Scheduler) ScheduleEvery(job, arg string, every time.Duration) {
	s.mu.Lock()

	key := job + "|" + arg
	if _, exists := s.entries[key]; exists {
		s.mu.Unlock()

		return
	}

	s.entries[key] = &entry{
		job:   job,
		arg:   arg,
		due:   s.clk.Now().Add(every),
		every: every,
	}
	s.mu.Unlock()

	s.nudge()
}

// Cancel removes any pending schedule for the (job, arg) pair.
func (s *Scheduler) Cancel(job, arg string) {
	s.mu.Lock()
	delete(s.entries, job+"|"+arg)
	s.mu.Unlock()

	s.nudge()
}

// Pending reports whether the (job, arg) pair has a pending schedule.
func (s *Scheduler) Pending(job, arg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.entries[job+"|"+arg]

	return exists
}

func (s *Scheduler) put(e *entry) {
	s.mu.Lock()
	s.entries[e.job+"|"+e.arg] = e
	s.mu.Unlock()

	s.nudge()
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run executes the scheduler loop, invoking handler for every fired
// job, and blocks until the context gets cancelled.
func (s *Scheduler) Run(ctx context.Context, handler Handler) error {
	for {
		// Fold any pending nudge into this pass so a schedule change
		// made while a job ran does not arm a second timer.
		select {
		case <-s.wake:
		default:
		}

		next, wait := s.next()

		// With nothing pending, block until a schedule change or
		// cancellation: a nil channel never fires.
		var timer <-chan time.Time
		if next != nil {
			timer = s.clk.After(wait)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		case <-timer:
			for _, due := range s.pop() {
				handler(ctx, due.job, due.arg)
			}
		}
	}
}

// next returns the earliest pending entry and how long until it is due.
func (s *Scheduler) next() (*entry, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest *entry

	for _, e := range s.entries {
		if earliest == nil || e.due.Before(earliest.due) {
			earliest = e
		}
	}

	if earliest == nil {
		return nil, 0
	}

	return earliest, earliest.due.Sub(s.clk.Now())
}

// pop removes and returns all entries that are due, re-arming any
// recurring ones.
func (s *Scheduler) pop() []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()

	var due []*entry

	for key, e := range s.entries {
		if e.due.After(now) {
			continue
		}

		due = append(due, e)

		if e.every > 0 {
			e.due = now.Add(e.every)
		} else {
			delete(s.entries, key)
		}
	}

	return due
}
