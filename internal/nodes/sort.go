package nodes

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// sortNode orders either an array property of each message, or the
	// members of each message sequence once the whole group has arrived
	sortNode struct {
		Target     string `json:"target"`
		TargetType string `json:"targetType"`
		MsgKey     string `json:"msgKey"`
		MsgKeyType string `json:"msgKeyType"`
		SeqKey     string `json:"seqKey"`
		SeqKeyType string `json:"seqKeyType"`
		Order      string `json:"order"`
		AsNum      bool   `json:"as_num"`

		key     keyFunc
		groups  map[string]*partGroup
		pending int
	}

	// keyFunc extracts the sort key of one element or message
	keyFunc func(v any, msg api.Msg) (any, error)

	sortEntry struct {
		key   any
		index int
	}
)

const (
	sortTargetSeq = "seq"

	keyElem = "elem"
	keyPath = "path"
	keyMsg  = "msg"
	keyLua  = "lua"

	orderDescending = "descending"

	sortTooMany = "sort.too-many"
)

var (
	ErrNotArray     = errors.New("sort target is not an array")
	ErrMissingParts = errors.New("message is not part of a sequence")
	ErrPartIndex    = errors.New("sequence index out of range")
)

func (o Options) newSort(
	_ *engine.Node, cfg *api.NodeConfig,
) (engine.Handler, error) {
	h := &sortNode{
		Target:     api.KeyPayload,
		MsgKeyType: keyElem,
		SeqKey:     api.KeyPayload,
		SeqKeyType: keyMsg,
		groups:     map[string]*partGroup{},
	}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}

	var err error
	if h.TargetType == sortTargetSeq {
		h.key, err = o.keyFunc(h.SeqKeyType, h.SeqKey)
	} else {
		h.key, err = o.keyFunc(h.MsgKeyType, h.MsgKey)
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (o Options) keyFunc(typ, expr string) (keyFunc, error) {
	switch typ {
	case keyElem:
		return func(v any, _ api.Msg) (any, error) {
			return v, nil
		}, nil
	case keyPath:
		return func(v any, _ api.Msg) (any, error) {
			res, _ := getPath(v, expr)
			return res, nil
		}, nil
	case keyMsg:
		return func(_ any, msg api.Msg) (any, error) {
			res, _ := getProperty(msg, expr)
			return res, nil
		}, nil
	case keyLua:
		code, err := o.Lua.CompileExpression(expr, "elem", "msg")
		if err != nil {
			return nil, err
		}
		return func(v any, msg api.Msg) (any, error) {
			return o.Lua.Call(code, v, msg)
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown key type %q",
			ErrInvalidConfig, typ)
	}
}

func (h *sortNode) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	if msg.Has(api.KeyReset) {
		h.clear()
		done(nil)
		return
	}
	if h.TargetType == sortTargetSeq {
		h.collect(n, msg, done)
		return
	}

	v, ok := getProperty(msg, h.Target)
	arr, isArray := v.([]any)
	if !ok || !isArray {
		n.Send(msg)
		done(nil)
		return
	}
	order, err := h.order(len(arr), func(i int) (any, error) {
		return h.key(arr[i], msg)
	})
	if err != nil {
		n.Warn("Sort key evaluation failed", "error", err.Error())
		done(nil)
		return
	}
	sorted := make([]any, len(arr))
	for i, idx := range order {
		sorted[i] = arr[idx]
	}
	setProperty(msg, h.Target, sorted)
	n.Send(msg)
	done(nil)
}

func (h *sortNode) collect(n *engine.Node, msg api.Msg, done engine.Done) {
	parts, ok := msg.Parts()
	if !ok || parts.ID == "" {
		done(ErrMissingParts)
		return
	}

	if err := checkPartIndex(*parts); err != nil {
		done(err)
		return
	}

	g, ok := h.groups[parts.ID]
	if !ok {
		g = newPartGroup(parts.ID)
		h.groups[parts.ID] = g
	}
	h.pending += g.add(*parts, held{msg: msg, done: done})

	if h.pending > n.MaxKeptMsgs() {
		n.Warn(sortTooMany, "max_kept_msgs", n.MaxKeptMsgs())
		discardAll(h.take(parts.ID).members)
		return
	}
	if g.complete() {
		h.emit(n, h.take(parts.ID))
	}
}

func (h *sortNode) emit(n *engine.Node, g *partGroup) {
	order, err := h.order(len(g.members), func(i int) (any, error) {
		m := g.members[i].msg
		return h.key(m, m)
	})
	if err != nil {
		n.Warn("Sort key evaluation failed", "error", err.Error())
		discardAll(g.members)
		return
	}

	for i, idx := range order {
		e := g.members[idx]
		p, _ := e.msg.Parts()
		res := p.Clone()
		res.Index = i
		res.Count = len(g.members)
		e.msg.SetParts(res)
		e.forward(n)
	}
}

// order returns element indexes sorted by key. Equal keys keep their
// arrival order
func (h *sortNode) order(
	size int, key func(i int) (any, error),
) ([]int, error) {
	entries := make([]sortEntry, size)
	for i := range size {
		k, err := key(i)
		if err != nil {
			return nil, err
		}
		entries[i] = sortEntry{key: k, index: i}
	}

	dir := 1
	if h.Order == orderDescending {
		dir = -1
	}
	slices.SortStableFunc(entries, func(a, b sortEntry) int {
		return dir * h.compare(a.key, b.key)
	})

	res := make([]int, size)
	for i, e := range entries {
		res[i] = e.index
	}
	return res, nil
}

func (h *sortNode) compare(a, b any) int {
	if h.AsNum {
		x, xok := toFloat(a)
		y, yok := toFloat(b)
		switch {
		case xok && yok:
			return cmp.Compare(x, y)
		case xok:
			return -1
		case yok:
			return 1
		}
	}
	return cmp.Compare(toText(a), toText(b))
}

// take removes a group from the pending table
func (h *sortNode) take(id string) *partGroup {
	g := h.groups[id]
	delete(h.groups, id)
	h.pending -= len(g.members)
	return g
}

func (h *sortNode) clear() {
	for _, g := range h.groups {
		discardAll(g.members)
	}
	h.groups = map[string]*partGroup{}
	h.pending = 0
}

func (h *sortNode) Close(*engine.Node) error {
	h.clear()
	return nil
}

// PendingMessages reports how many sequence members are buffered
func (h *sortNode) PendingMessages() int {
	return h.pending
}
