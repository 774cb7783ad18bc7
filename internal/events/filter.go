package events

import (
	"strings"

	"github.com/kode4food/wireflow/pkg/api"
	"github.com/kode4food/wireflow/pkg/util"
)

type EventFilter func(*api.Event) bool

func FilterEvents(eventTypes ...api.EventType) EventFilter {
	lookup := util.SetOf(eventTypes...)
	return func(ev *api.Event) bool {
		return lookup.Has(ev.Type)
	}
}

// FilterTopics matches events whose topic starts with any of the prefixes.
// No prefixes matches everything
func FilterTopics(prefixes ...string) EventFilter {
	if len(prefixes) == 0 {
		return func(*api.Event) bool { return true }
	}
	return func(ev *api.Event) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(ev.Topic, p) {
				return true
			}
		}
		return false
	}
}

func OrFilters(filters ...EventFilter) EventFilter {
	return func(ev *api.Event) bool {
		for _, filter := range filters {
			if filter(ev) {
				return true
			}
		}
		return false
	}
}

func AndFilters(filters ...EventFilter) EventFilter {
	return func(ev *api.Event) bool {
		for _, filter := range filters {
			if !filter(ev) {
				return false
			}
		}
		return true
	}
}
