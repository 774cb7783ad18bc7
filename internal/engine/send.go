package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/kode4food/wireflow/pkg/api"
	"github.com/kode4food/wireflow/pkg/log"
)

// Send delivers msg to every target wired to output port 0
func (n *Node) Send(msg api.Msg) {
	if msg == nil {
		return
	}
	n.SendAll(api.Output{{msg}})
}

// SendTo delivers msgs, in order, to every target wired to port
func (n *Node) SendTo(port int, msgs ...api.Msg) {
	if port < 0 || len(msgs) == 0 {
		return
	}
	out := make(api.Output, port+1)
	out[port] = msgs
	n.SendAll(out)
}

// SendAll delivers each port's messages to that port's targets. The first
// delivery shares the sent message; every further delivery receives its
// own deep copy. Sends from a closed node are dropped
func (n *Node) SendAll(out api.Output) {
	if n.Closed() {
		return
	}
	shared := false
	for port, msgs := range out {
		if port >= len(n.ports) {
			continue
		}
		for _, msg := range msgs {
			n.fanout(n.ports[port], msg, &shared)
		}
	}
}

// DeliverTo sends msg to a single node outside the wire table, as link
// nodes do
func (n *Node) DeliverTo(target *Node, msg api.Msg) {
	if n.Closed() || target == nil || msg == nil {
		return
	}
	msg.EnsureID()
	n.engine.deliver(target, msg)
}

func (n *Node) fanout(targets []*Node, msg api.Msg, shared *bool) {
	if msg == nil || len(targets) == 0 {
		return
	}
	msg.EnsureID()
	for _, t := range targets {
		m := msg
		if *shared {
			m = msg.Clone()
		}
		*shared = true
		n.engine.deliver(t, m)
	}
}

func (e *Engine) deliver(target *Node, msg api.Msg) {
	e.sched.Post(func() {
		e.receive(target, msg)
	})
}

func (e *Engine) receive(n *Node, msg api.Msg) {
	if n.Closed() {
		return
	}
	e.metrics.MessagesDelivered.WithLabelValues(n.cfg.Type).Inc()

	var called atomic.Bool
	done := n.newDone(msg, &called)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrNodePanicked, r)
			if !called.Load() {
				done(err)
				return
			}
			n.Error(err, msg)
		}
	}()
	n.handler.Receive(n, msg, done)
}

func (n *Node) newDone(msg api.Msg, called *atomic.Bool) Done {
	return func(err error) {
		if !called.CompareAndSwap(false, true) {
			n.logger.Warn("Message completed more than once",
				log.MsgID(msg.ID()))
			return
		}
		if err != nil {
			n.Error(err, msg)
			return
		}
		n.engine.sched.Post(func() {
			n.engine.handleComplete(n, msg)
		})
	}
}
