package helpers

import (
	"sync"
	"time"

	"github.com/kode4food/wireflow/internal/engine/scheduler"
)

type (
	// ManualClock is a clock that only moves when a test advances it. Its
	// alarms ring as soon as an advance reaches their deadline
	ManualClock struct {
		mu     sync.Mutex
		now    time.Time
		alarms []*manualAlarm
	}

	manualAlarm struct {
		clock    *ManualClock
		ring     chan time.Time
		deadline time.Time
		armed    bool
	}
)

// Epoch is the start time of every manual clock created by tests
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// NewManualClock creates a manual clock positioned at Epoch
func NewManualClock() *ManualClock {
	return &ManualClock{now: Epoch}
}

// Now returns the clock's current time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the time elapsed on this clock since Epoch
func (c *ManualClock) Since() time.Duration {
	return c.Now().Sub(Epoch)
}

// Advance moves the clock forward, ringing any alarms that come due
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, a := range c.alarms {
		if a.armed && !a.deadline.After(c.now) {
			a.fire(c.now)
		}
	}
}

// NewAlarm builds a disarmed alarm driven by this clock
func (c *ManualClock) NewAlarm() scheduler.Alarm {
	a := &manualAlarm{
		clock: c,
		ring:  make(chan time.Time, 1),
	}
	c.mu.Lock()
	c.alarms = append(c.alarms, a)
	c.mu.Unlock()
	return a
}

func (a *manualAlarm) Ring() <-chan time.Time {
	return a.ring
}

func (a *manualAlarm) Arm(after time.Duration) {
	a.clock.mu.Lock()
	defer a.clock.mu.Unlock()
	a.drain()
	a.deadline = a.clock.now.Add(after)
	a.armed = true
	if after <= 0 {
		a.fire(a.clock.now)
	}
}

func (a *manualAlarm) Disarm() {
	a.clock.mu.Lock()
	defer a.clock.mu.Unlock()
	a.armed = false
	a.drain()
}

func (a *manualAlarm) fire(now time.Time) {
	a.armed = false
	select {
	case a.ring <- now:
	default:
	}
}

func (a *manualAlarm) drain() {
	select {
	case <-a.ring:
	default:
	}
}
