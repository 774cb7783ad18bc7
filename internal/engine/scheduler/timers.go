package scheduler

import (
	"time"

	"github.com/kode4food/wireflow/pkg/util"
)

type (
	// Timers is a min-queue of pending node timers ordered by due time.
	// Timers registered under a path are unique per path, and may be
	// cancelled individually or by path prefix
	Timers struct {
		due    []*timer
		byPath *util.PathTree[*timer]
		next   uint64
	}

	// Due is a timer that has been taken from the queue
	Due struct {
		Path []string
		At   time.Time
		Fire TaskFunc
	}

	timer struct {
		Due
		order uint64
		pos   int
	}
)

// NewTimers creates an empty timer queue
func NewTimers() *Timers {
	return &Timers{byPath: util.NewPathTree[*timer]()}
}

// Set registers fn to fire at the requested time. An existing timer at the
// same path is moved rather than duplicated. Timers with equal due times
// fire in the order they were set
func (q *Timers) Set(path []string, at time.Time, fn TaskFunc) {
	if fn == nil || at.IsZero() {
		return
	}
	q.next++
	if len(path) > 0 {
		if t, ok := q.byPath.Get(path); ok {
			t.At, t.Fire, t.order = at, fn, q.next
			q.fix(t.pos)
			return
		}
	}
	t := &timer{
		Due:   Due{Path: path, At: at, Fire: fn},
		order: q.next,
		pos:   len(q.due),
	}
	q.due = append(q.due, t)
	if len(path) > 0 {
		q.byPath.Insert(path, t)
	}
	q.up(t.pos)
}

// NextAt returns the earliest due time, or false if the queue is empty
func (q *Timers) NextAt() (time.Time, bool) {
	if len(q.due) == 0 {
		return time.Time{}, false
	}
	return q.due[0].At, true
}

// TakeDue removes and returns the earliest timer if it is due at now
func (q *Timers) TakeDue(now time.Time) (Due, bool) {
	if len(q.due) == 0 || q.due[0].At.After(now) {
		return Due{}, false
	}
	t := q.removeAt(0)
	return t.Due, true
}

// Cancel removes the timer registered at the exact path
func (q *Timers) Cancel(path []string) {
	if len(path) == 0 {
		return
	}
	if t, ok := q.byPath.Get(path); ok {
		q.removeAt(t.pos)
	}
}

// CancelPrefix removes every timer registered under the prefix
func (q *Timers) CancelPrefix(prefix []string) {
	if len(prefix) == 0 {
		return
	}
	for _, t := range q.byPath.Detach(prefix) {
		q.unlink(t.pos)
	}
}

// Count returns the number of timers registered under the prefix
func (q *Timers) Count(prefix []string) int {
	return q.byPath.Count(prefix)
}

// Len returns the number of queued timers, keyed or not
func (q *Timers) Len() int {
	return len(q.due)
}

func (q *Timers) removeAt(i int) *timer {
	t := q.unlink(i)
	if len(t.Path) > 0 {
		q.byPath.Remove(t.Path)
	}
	return t
}

func (q *Timers) unlink(i int) *timer {
	t := q.due[i]
	last := len(q.due) - 1
	q.swap(i, last)
	q.due[last] = nil
	q.due = q.due[:last]
	if i < last {
		q.fix(i)
	}
	t.pos = -1
	return t
}

func (q *Timers) fix(i int) {
	if !q.down(i) {
		q.up(i)
	}
}

func (q *Timers) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.before(i, parent) {
			return
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *Timers) down(i int) bool {
	start := i
	for {
		least := i
		for _, c := range [2]int{2*i + 1, 2*i + 2} {
			if c < len(q.due) && q.before(c, least) {
				least = c
			}
		}
		if least == i {
			return i > start
		}
		q.swap(i, least)
		i = least
	}
}

func (q *Timers) before(i, j int) bool {
	a, b := q.due[i], q.due[j]
	if a.At.Equal(b.At) {
		return a.order < b.order
	}
	return a.At.Before(b.At)
}

func (q *Timers) swap(i, j int) {
	q.due[i], q.due[j] = q.due[j], q.due[i]
	q.due[i].pos = i
	q.due[j].pos = j
}
