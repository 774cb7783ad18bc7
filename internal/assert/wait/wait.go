// Package wait blocks tests until matching runtime events arrive
package wait

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kode4food/wireflow/internal/events"
	"github.com/kode4food/wireflow/pkg/api"
)

type Wait struct {
	t        *testing.T
	consumer events.Consumer
	timeout  time.Duration
}

const DefaultTimeout = time.Second * 5

func On(t *testing.T, consumer events.Consumer) *Wait {
	return &Wait{
		t:        t,
		consumer: consumer,
		timeout:  DefaultTimeout,
	}
}

func (w *Wait) WithTimeout(timeout time.Duration) *Wait {
	res := *w
	res.timeout = timeout
	return &res
}

// ForEvents waits for matching events from the consumer and returns them
func (w *Wait) ForEvents(count int, filter events.EventFilter) []*api.Event {
	w.t.Helper()

	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	res := make([]*api.Event, 0, count)
	for len(res) < count {
		select {
		case ev, ok := <-w.consumer.Receive():
			if !ok {
				w.t.Fatalf(
					"event consumer closed before receiving %d events", count,
				)
			}
			if !filter(ev) {
				continue
			}
			res = append(res, ev)
		case <-deadline.C:
			w.t.Fatalf("timeout waiting for %d events", count)
		}
	}
	return res
}

// ForEvent waits for a single matching event
func (w *Wait) ForEvent(filter events.EventFilter) *api.Event {
	return w.ForEvents(1, filter)[0]
}

// Decode unmarshals an event's data into v, failing the test on error
func Decode[T any](t *testing.T, ev *api.Event) T {
	t.Helper()
	var res T
	if err := json.Unmarshal(ev.Data, &res); err != nil {
		t.Fatalf("failed to decode %s event: %v", ev.Type, err)
	}
	return res
}

// Status matches status events reported by the given node
func Status(id api.NodeID) events.EventFilter {
	topic := events.TopicStatus + string(id)
	return events.AndFilters(
		events.FilterEvents(api.EventTypeStatus),
		func(ev *api.Event) bool { return ev.Topic == topic },
	)
}

// Debug matches debug events emitted by the given debug node
func Debug(id api.NodeID) events.EventFilter {
	return func(ev *api.Event) bool {
		if ev.Type != api.EventTypeDebug {
			return false
		}
		var d api.DebugEvent
		return json.Unmarshal(ev.Data, &d) == nil && d.ID == id
	}
}

// UncaughtError matches error events whose message contains text
func UncaughtError(text string) events.EventFilter {
	return func(ev *api.Event) bool {
		if ev.Type != api.EventTypeError {
			return false
		}
		var e api.ErrorEvent
		return json.Unmarshal(ev.Data, &e) == nil &&
			strings.Contains(e.Error, text)
	}
}

// Deployed matches deploy events
func Deployed() events.EventFilter {
	return events.FilterEvents(api.EventTypeDeploy)
}
