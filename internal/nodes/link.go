package nodes

import (
	"errors"
	"fmt"
	"time"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// linkIn is the named entry point link out and link call nodes
	// deliver to
	linkIn struct {
		forwarder
		name string
	}

	// linkOut sends to the listed link-in nodes, or returns a message to
	// the link call that sent it
	linkOut struct {
		Mode  string       `json:"mode"`
		Links []api.NodeID `json:"links"`
	}

	// linkCall delivers to a link-in node and waits for the message to
	// come back through a link out in return mode
	linkCall struct {
		Links    []api.NodeID `json:"links"`
		LinkType string       `json:"linkType"`
		Timeout  *number      `json:"timeout"`

		timeout time.Duration
		pending map[string]*pendingCall
	}

	pendingCall struct {
		msg    api.Msg
		done   engine.Done
		target string
		timer  engine.TimerID
	}
)

const (
	linkModeReturn  = "return"
	linkTypeDynamic = "dynamic"

	linkSourceID    = "id"
	linkSourceEvent = "event"
)

var (
	ErrLinkTimeout   = errors.New("timeout")
	ErrNoLinkTarget  = errors.New("no link target configured")
	ErrMissingTarget = errors.New("msg.target is not set")
	ErrNotLinkIn     = errors.New("target is not a link-in node")
)

func newLinkIn(_ *engine.Node, cfg *api.NodeConfig) (engine.Handler, error) {
	return &linkIn{name: cfg.Name}, nil
}

func (h *linkIn) LinkName() string {
	return h.name
}

func newLinkOut(_ *engine.Node, cfg *api.NodeConfig) (engine.Handler, error) {
	h := &linkOut{}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *linkOut) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	if h.Mode == linkModeReturn {
		h.giveBack(n, msg)
		done(nil)
		return
	}

	first := true
	for _, id := range h.Links {
		t, ok := n.Lookup(id)
		if !ok {
			continue
		}
		if _, ok := t.Handler().(engine.LinkIn); !ok {
			continue
		}
		m := msg
		if !first {
			m = msg.Clone()
		}
		first = false
		n.DeliverTo(t, m)
	}
	done(nil)
}

func (h *linkOut) giveBack(n *engine.Node, msg api.Msg) {
	stack, _ := msg[api.KeyLinkSource].([]any)
	if len(stack) == 0 {
		n.Warn("Link return without a calling node")
		return
	}
	top, _ := stack[len(stack)-1].(map[string]any)
	id, _ := top[linkSourceID].(string)
	if !n.ReturnTo(api.NodeID(id), msg) {
		n.Warn("Link return target is not running",
			"call_node", id)
	}
}

func newLinkCall(
	n *engine.Node, cfg *api.NodeConfig,
) (engine.Handler, error) {
	h := &linkCall{
		timeout: n.LinkCallTimeout(),
		pending: map[string]*pendingCall{},
	}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	if h.Timeout != nil && *h.Timeout > 0 {
		h.timeout = seconds(*h.Timeout)
	}
	if h.LinkType != linkTypeDynamic && len(h.Links) == 0 {
		return nil, ErrNoLinkTarget
	}
	return h, nil
}

func (h *linkCall) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	target, name, err := h.resolve(n, msg)
	if err != nil {
		done(err)
		return
	}

	event := api.NewID()
	out := msg.Clone()
	stack, _ := out[api.KeyLinkSource].([]any)
	out[api.KeyLinkSource] = append(stack, map[string]any{
		linkSourceID:    string(n.ID()),
		linkSourceEvent: event,
	})

	p := &pendingCall{msg: msg, done: done, target: name}
	p.timer = n.After(h.timeout, func() {
		h.expire(n, event)
	})
	h.pending[event] = p
	n.DeliverTo(target, out)
}

func (h *linkCall) resolve(
	n *engine.Node, msg api.Msg,
) (*engine.Node, string, error) {
	if h.LinkType == linkTypeDynamic {
		name := toText(msg[api.KeyTarget])
		if name == "" {
			return nil, "", ErrMissingTarget
		}
		t, err := n.LinkTarget(name)
		return t, name, err
	}

	id := h.Links[0]
	t, ok := n.Lookup(id)
	if !ok {
		return nil, "", fmt.Errorf("target link-in node '%s' %w",
			id, engine.ErrLinkNotFound)
	}
	if _, ok := t.Handler().(engine.LinkIn); !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotLinkIn, id)
	}
	return t, string(id), nil
}

func (h *linkCall) Return(n *engine.Node, msg api.Msg) {
	stack, _ := msg[api.KeyLinkSource].([]any)
	if len(stack) == 0 {
		n.Warn("Link call received a message without a return address")
		return
	}
	top, _ := stack[len(stack)-1].(map[string]any)
	event, _ := top[linkSourceEvent].(string)
	p, ok := h.pending[event]
	if !ok {
		n.Warn("Link call received an unknown return", "event", event)
		return
	}

	delete(h.pending, event)
	n.CancelTimer(p.timer)
	if rest := stack[:len(stack)-1]; len(rest) > 0 {
		msg[api.KeyLinkSource] = rest
	} else {
		delete(msg, api.KeyLinkSource)
	}
	n.Send(msg)
	p.done(nil)
}

func (h *linkCall) Close(*engine.Node) error {
	for event, p := range h.pending {
		delete(h.pending, event)
		p.done(nil)
	}
	return nil
}

// PendingCalls reports how many calls are waiting for a return
func (h *linkCall) PendingCalls() int {
	return len(h.pending)
}

func (h *linkCall) expire(n *engine.Node, event string) {
	p, ok := h.pending[event]
	if !ok {
		return
	}
	delete(h.pending, event)
	p.msg[api.KeyTarget] = p.target
	p.done(ErrLinkTimeout)
}
