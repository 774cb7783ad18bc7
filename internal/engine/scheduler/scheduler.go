package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/wireflow/pkg/log"
)

type (
	// Scheduler is the single goroutine on which all node logic runs. It
	// drains a FIFO work queue and fires keyed node timers when their due
	// time arrives on its clock
	Scheduler struct {
		now      Clock
		newAlarm AlarmFactory
		wake     chan struct{}

		mu      sync.Mutex
		queue   []func()
		timers  *Timers
		waiters []chan struct{}
	}

	// TaskFunc is called when its run time arrives
	TaskFunc func() error
)

var (
	ErrTaskPanicked = errors.New("scheduled task panicked")
)

// New creates a scheduler using the provided clock and alarm factory
func New(now Clock, newAlarm AlarmFactory) *Scheduler {
	return &Scheduler{
		now:      now,
		newAlarm: newAlarm,
		wake:     make(chan struct{}, 1),
		timers:   NewTimers(),
	}
}

// Now returns the scheduler clock's current time
func (s *Scheduler) Now() time.Time {
	return s.now()
}

// Post appends work to the FIFO queue
func (s *Scheduler) Post(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	s.signal()
}

// Do runs fn on the scheduler goroutine and waits for it to return. It
// must not be called from the scheduler goroutine itself
func (s *Scheduler) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	s.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule registers a task to run at the requested time. A task already
// registered at the same path is replaced
func (s *Scheduler) Schedule(path []string, at time.Time, fn TaskFunc) {
	s.mu.Lock()
	s.timers.Set(path, at, fn)
	s.mu.Unlock()
	s.signal()
}

// Cancel removes the task registered for the exact path
func (s *Scheduler) Cancel(path []string) {
	s.mu.Lock()
	s.timers.Cancel(path)
	s.mu.Unlock()
}

// CancelPrefix removes all tasks under the provided path prefix
func (s *Scheduler) CancelPrefix(prefix []string) {
	s.mu.Lock()
	s.timers.CancelPrefix(prefix)
	s.mu.Unlock()
}

// Pending returns the number of tasks registered under the prefix
func (s *Scheduler) Pending(prefix []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.Count(prefix)
}

// WaitIdle blocks until the work queue is empty and no task is due
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	ch := make(chan struct{})
	s.mu.Lock()
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()
	s.signal()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes work until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	alarm := s.newAlarm()
	defer alarm.Disarm()

	for {
		fn, ring := s.step(alarm)
		if fn != nil {
			s.run(fn)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ring:
		}
	}
}

// step returns the next unit of work, or arms the alarm for the next timer
// and releases idle waiters when there is nothing left to do
func (s *Scheduler) step(alarm Alarm) (func(), <-chan time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if due, ok := s.timers.TakeDue(now); ok {
		return func() {
			if err := due.Fire(); err != nil {
				slog.Error("Node timer failed",
					log.Error(err), slog.Any("timer", due.Path))
			}
		}, nil
	}

	if len(s.queue) > 0 {
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		return fn, nil
	}

	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil

	at, ok := s.timers.NextAt()
	if !ok {
		alarm.Disarm()
		return nil, nil
	}
	alarm.Arm(max(at.Sub(now), 0))
	return nil, alarm.Ring()
}

func (s *Scheduler) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduler task panicked",
				log.Error(fmt.Errorf("%w: %v", ErrTaskPanicked, r)))
		}
	}()
	fn()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
