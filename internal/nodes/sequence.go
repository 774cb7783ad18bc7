package nodes

import (
	"fmt"
	"strconv"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// held is a buffered message waiting to be released or discarded.
	// Either way its done function is called exactly once
	held struct {
		msg  api.Msg
		done engine.Done
	}

	// partGroup collects the members of one incoming sequence by their
	// parts index. A repeated index replaces the earlier member, which is
	// discarded
	partGroup struct {
		id      string
		count   int
		members []held
		slots   map[int]int
	}
)

func newPartGroup(id string) *partGroup {
	return &partGroup{id: id, slots: map[int]int{}}
}

// checkPartIndex rejects an index that cannot belong to its sequence
func checkPartIndex(p api.Parts) error {
	if p.Index < 0 || p.Count > 0 && p.Index >= p.Count {
		return fmt.Errorf("%w: index %d of %d", ErrPartIndex, p.Index, p.Count)
	}
	return nil
}

// add stores a member and returns how many members the group gained
func (g *partGroup) add(p api.Parts, e held) int {
	if p.Count > 0 {
		g.count = p.Count
	}
	if pos, ok := g.slots[p.Index]; ok {
		g.members[pos].discard()
		g.members[pos] = e
		return 0
	}
	g.slots[p.Index] = len(g.members)
	g.members = append(g.members, e)
	return 1
}

// complete reports whether every index from 0 to count-1 has arrived
func (g *partGroup) complete() bool {
	if g.count == 0 || len(g.members) < g.count {
		return false
	}
	for i := range g.count {
		if _, ok := g.slots[i]; !ok {
			return false
		}
	}
	return true
}

// forward sends the held message and completes it
func (h held) forward(n *engine.Node) {
	n.Send(h.msg)
	h.done(nil)
}

// discard completes the held message without sending it
func (h held) discard() {
	h.done(nil)
}

func discardAll(entries []held) {
	for _, e := range entries {
		e.discard()
	}
}

// flushCount reads how many buffered messages a flush control message
// asks for. A non-numeric flush releases everything
func flushCount(msg api.Msg, buffered int) int {
	switch f := msg[api.KeyFlush].(type) {
	case float64:
		return max(0, min(int(f), buffered))
	case int:
		return max(0, min(f, buffered))
	default:
		return buffered
	}
}

// countStatus shows how many messages a node is holding
func countStatus(n *engine.Node, count int) {
	if count == 0 {
		n.Status(api.Status{})
		return
	}
	n.Status(api.Status{
		Fill:  api.FillBlue,
		Shape: api.ShapeDot,
		Text:  strconv.Itoa(count),
	})
}

// sequenceParts describes member index of a new count-long sequence
func sequenceParts(id string, index, count int) api.Parts {
	return api.Parts{ID: id, Index: index, Count: count}
}
