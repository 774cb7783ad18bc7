package nodes

import (
	"fmt"
	"slices"
	"time"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	batchConfig struct {
		Mode               string       `json:"mode"`
		Count              int          `json:"count"`
		Overlap            int          `json:"overlap"`
		Interval           number       `json:"interval"`
		AllowEmptySequence bool         `json:"allowEmptySequence"`
		HonourParts        bool         `json:"honourParts"`
		Topics             []batchTopic `json:"topics"`
	}

	batchTopic struct {
		Topic string `json:"topic"`
	}

	// countBatch groups every count messages, repeating the last overlap
	// messages of one group at the start of the next
	countBatch struct {
		count       int
		overlap     int
		honourParts bool
		pending     []held
	}

	// intervalBatch groups whatever arrived during each interval
	intervalBatch struct {
		interval   time.Duration
		allowEmpty bool
		pending    []held
	}

	// concatBatch joins one complete sequence from each listed topic, in
	// list order, into a single sequence
	concatBatch struct {
		topics  []string
		groups  map[string][]*partGroup
		pending int
	}
)

const (
	batchCount    = "count"
	batchInterval = "interval"
	batchConcat   = "concat"

	batchTooMany = "batch.too-many"
)

func newBatch(_ *engine.Node, cfg *api.NodeConfig) (engine.Handler, error) {
	c := &batchConfig{Mode: batchCount, Count: 1}
	if err := cfg.Decode(c); err != nil {
		return nil, err
	}

	switch c.Mode {
	case batchCount:
		if c.Count < 1 || c.Overlap < 0 || c.Overlap >= c.Count {
			return nil, fmt.Errorf("%w: count %d with overlap %d",
				ErrInvalidConfig, c.Count, c.Overlap)
		}
		return &countBatch{
			count:       c.Count,
			overlap:     c.Overlap,
			honourParts: c.HonourParts,
		}, nil
	case batchInterval:
		if c.Interval <= 0 {
			return nil, fmt.Errorf("%w: interval must be positive",
				ErrInvalidConfig)
		}
		return &intervalBatch{
			interval:   seconds(c.Interval),
			allowEmpty: c.AllowEmptySequence,
		}, nil
	case batchConcat:
		if len(c.Topics) == 0 {
			return nil, fmt.Errorf("%w: no topics", ErrInvalidConfig)
		}
		h := &concatBatch{groups: map[string][]*partGroup{}}
		for _, t := range c.Topics {
			h.topics = append(h.topics, t.Topic)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("%w: unknown batch mode %q",
			ErrInvalidConfig, c.Mode)
	}
}

// emitSequence sends msgs as a new sequence. Shared messages are copied
// so each group owns its members
func emitSequence(n *engine.Node, msgs []api.Msg, copyAll bool) {
	id := api.NewID()
	for i, m := range msgs {
		if copyAll {
			m = m.Clone()
		}
		m.SetParts(sequenceParts(id, i, len(msgs)))
		n.Send(m)
	}
}

func messages(entries []held) []api.Msg {
	res := make([]api.Msg, len(entries))
	for i, e := range entries {
		res[i] = e.msg
	}
	return res
}

func (h *countBatch) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	if msg.Has(api.KeyReset) {
		discardAll(h.pending)
		h.pending = nil
		done(nil)
		return
	}

	h.pending = append(h.pending, held{msg: msg, done: done})
	if len(h.pending) > n.MaxKeptMsgs() {
		n.Warn(batchTooMany, "max_kept_msgs", n.MaxKeptMsgs())
		discardAll(h.pending)
		h.pending = nil
		return
	}

	if len(h.pending) == h.count {
		emitSequence(n, messages(h.pending), h.overlap > 0)
		keep := h.count - h.overlap
		discardAll(h.pending[:keep])
		h.pending = slices.Clone(h.pending[keep:])
		return
	}

	if h.honourParts && lastPart(msg) {
		emitSequence(n, messages(h.pending), h.overlap > 0)
		discardAll(h.pending)
		h.pending = nil
	}
}

func lastPart(msg api.Msg) bool {
	p, ok := msg.Parts()
	return ok && p.Count > 0 && p.Index == p.Count-1
}

func (h *countBatch) Close(*engine.Node) error {
	discardAll(h.pending)
	h.pending = nil
	return nil
}

func (h *intervalBatch) Start(n *engine.Node) {
	n.Every(h.interval, func() {
		h.tick(n)
	})
}

func (h *intervalBatch) Receive(
	n *engine.Node, msg api.Msg, done engine.Done,
) {
	if msg.Has(api.KeyReset) {
		discardAll(h.pending)
		h.pending = nil
		done(nil)
		return
	}

	h.pending = append(h.pending, held{msg: msg, done: done})
	if len(h.pending) > n.MaxKeptMsgs() {
		n.Warn(batchTooMany, "max_kept_msgs", n.MaxKeptMsgs())
		discardAll(h.pending)
		h.pending = nil
	}
}

func (h *intervalBatch) tick(n *engine.Node) {
	if len(h.pending) == 0 {
		if h.allowEmpty {
			msg := api.Msg{}
			msg.NewID()
			emitSequence(n, []api.Msg{msg}, false)
		}
		return
	}
	entries := h.pending
	h.pending = nil
	emitSequence(n, messages(entries), false)
	discardAll(entries)
}

func (h *intervalBatch) Close(*engine.Node) error {
	discardAll(h.pending)
	h.pending = nil
	return nil
}

func (h *concatBatch) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	if msg.Has(api.KeyReset) {
		h.clear()
		done(nil)
		return
	}

	topic := msg.Topic()
	parts, ok := msg.Parts()
	if !ok || !slices.Contains(h.topics, topic) {
		done(nil)
		return
	}

	if err := checkPartIndex(*parts); err != nil {
		done(err)
		return
	}

	g := h.group(topic, parts.ID)
	h.pending += g.add(*parts, held{msg: msg, done: done})

	if h.pending > n.MaxKeptMsgs() {
		n.Warn(batchTooMany, "max_kept_msgs", n.MaxKeptMsgs())
		h.clear()
		return
	}
	h.tryEmit(n)
}

func (h *concatBatch) group(topic, id string) *partGroup {
	for _, g := range h.groups[topic] {
		if g.id == id {
			return g
		}
	}
	g := newPartGroup(id)
	h.groups[topic] = append(h.groups[topic], g)
	return g
}

// tryEmit joins the oldest complete group of every topic, once each
// topic has one
func (h *concatBatch) tryEmit(n *engine.Node) {
	picked := make([]*partGroup, len(h.topics))
	for i, topic := range h.topics {
		idx := slices.IndexFunc(h.groups[topic], (*partGroup).complete)
		if idx < 0 {
			return
		}
		picked[i] = h.groups[topic][idx]
	}

	var entries []held
	for i, topic := range h.topics {
		g := picked[i]
		h.groups[topic] = slices.DeleteFunc(h.groups[topic],
			func(c *partGroup) bool { return c == g },
		)
		slices.SortStableFunc(g.members, func(a, b held) int {
			return partIndex(a.msg) - partIndex(b.msg)
		})
		entries = append(entries, g.members...)
	}
	h.pending -= len(entries)
	emitSequence(n, messages(entries), false)
	discardAll(entries)
}

func partIndex(msg api.Msg) int {
	p, _ := msg.Parts()
	return p.Index
}

func (h *concatBatch) clear() {
	for _, groups := range h.groups {
		for _, g := range groups {
			discardAll(g.members)
		}
	}
	h.groups = map[string][]*partGroup{}
	h.pending = 0
}

func (h *concatBatch) Close(*engine.Node) error {
	h.clear()
	return nil
}
