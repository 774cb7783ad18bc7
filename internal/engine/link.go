package engine

import (
	"errors"
	"fmt"

	"github.com/kode4food/wireflow/pkg/api"
)

var (
	ErrLinkNotFound  = errors.New("not found")
	ErrLinkAmbiguous = errors.New("Multiple link-in nodes")
)

// LinkTarget resolves a link-in node by id or by name against the running
// graph. Names are searched in the node's own flow, then each enclosing
// subflow scope up to its tab, then across all tabs. The first level
// holding any match decides; more than one match there is an error
func (n *Node) LinkTarget(name string) (*Node, error) {
	g := n.engine.graph.Load()
	if t, ok := n.lookupIn(g, api.NodeID(name)); ok {
		if _, ok := t.handler.(LinkIn); ok {
			return t, nil
		}
	}

	for s := g.scopes[n.z]; s != nil; s = g.scopes[s.parent] {
		if t, err := pickLink(g.links[s.id][name], name); t != nil || err != nil {
			return t, err
		}
	}

	if t, err := pickLink(g.global[name], name); t != nil || err != nil {
		return t, err
	}
	return nil, fmt.Errorf("target link-in node '%s' %w", name, ErrLinkNotFound)
}

// Lookup finds a running node by the id used in this node's configuration.
// Inside a subflow instance, ids of fellow members are tried first
func (n *Node) Lookup(id api.NodeID) (*Node, bool) {
	return n.lookupIn(n.engine.graph.Load(), id)
}

// ReturnTo hands msg back to a node that implements Returner. It reports
// whether such a node is running
func (n *Node) ReturnTo(id api.NodeID, msg api.Msg) bool {
	t, ok := n.engine.graph.Load().node(id)
	if !ok || msg == nil {
		return false
	}
	r, ok := t.handler.(Returner)
	if !ok {
		return false
	}
	n.engine.sched.Post(func() {
		if t.Closed() {
			return
		}
		t.protect(msg, func() {
			r.Return(t, msg)
		})
	})
	return true
}

func (n *Node) lookupIn(g *Graph, id api.NodeID) (*Node, bool) {
	if s, ok := g.instanceScope(n.z); ok {
		if t, ok := g.node(globalID(string(s.instance), id)); ok {
			return t, true
		}
	}
	return g.node(id)
}

func pickLink(candidates []*Node, name string) (*Node, error) {
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	default:
		return nil, fmt.Errorf("%w named '%s'", ErrLinkAmbiguous, name)
	}
}
