package scheduler

import "time"

type (
	// Clock reports the scheduler's notion of the current time
	Clock func() time.Time

	// Alarm wakes the scheduler loop when the earliest timer comes due.
	// Only one deadline is armed at a time
	Alarm interface {
		Arm(after time.Duration)
		Disarm()
		Ring() <-chan time.Time
	}

	// AlarmFactory builds the scheduler loop's alarm
	AlarmFactory func() Alarm

	wallAlarm struct {
		t *time.Timer
	}
)

// NewAlarm builds an alarm backed by a wall-clock timer. It starts
// disarmed
func NewAlarm() Alarm {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &wallAlarm{t: t}
}

func (a *wallAlarm) Arm(after time.Duration) {
	a.t.Reset(after)
}

func (a *wallAlarm) Disarm() {
	a.t.Stop()
}

func (a *wallAlarm) Ring() <-chan time.Time {
	return a.t.C
}
