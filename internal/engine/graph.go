package engine

import (
	"log/slog"
	"slices"

	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// Graph is one installed configuration: the node arena, its wire table
	// and the per-scope indexes used for error, status, completion and
	// link routing. A Graph is never modified once installed
	Graph struct {
		nodes     map[api.NodeID]*Node
		order     []*Node
		scopes    map[api.FlowID]*flowScope
		failed    map[api.NodeID]error
		catchers  map[api.FlowID][]*Node
		watchers  map[api.FlowID][]*Node
		completes map[api.FlowID][]*Node
		links     map[api.FlowID]map[string][]*Node
		global    map[string][]*Node
	}
)

func newGraph(scopes map[api.FlowID]*flowScope) *Graph {
	if scopes == nil {
		scopes = map[api.FlowID]*flowScope{}
	}
	return &Graph{
		nodes:     map[api.NodeID]*Node{},
		scopes:    scopes,
		failed:    map[api.NodeID]error{},
		catchers:  map[api.FlowID][]*Node{},
		watchers:  map[api.FlowID][]*Node{},
		completes: map[api.FlowID][]*Node{},
		links:     map[api.FlowID]map[string][]*Node{},
		global:    map[string][]*Node{},
	}
}

func (g *Graph) add(n *Node) {
	g.nodes[n.id] = n
	g.order = append(g.order, n)
	if n.failed != nil {
		g.failed[n.id] = n.failed
	}
}

// node returns a running node. Failed nodes are never returned
func (g *Graph) node(id api.NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	if !ok || n.failed != nil {
		return nil, false
	}
	return n, true
}

// index resolves every node's wires into its port table and rebuilds the
// scope indexes. Wires to missing or failed nodes are dropped
func (g *Graph) index() {
	for _, n := range g.order {
		if n.failed != nil {
			continue
		}
		n.ports = g.resolvePorts(n)
		n.inputs = g.resolveTargets(n, n.inputIDs)

		z := n.z
		if c, ok := n.handler.(Catcher); ok {
			_, uncaught := c.CatchScope()
			if uncaught {
				g.catchers[z] = append(g.catchers[z], n)
			} else {
				g.catchers[z] = slices.Insert(
					g.catchers[z], g.scopedCatchers(z), n,
				)
			}
		}
		if _, ok := n.handler.(StatusWatcher); ok {
			g.watchers[z] = append(g.watchers[z], n)
		}
		if _, ok := n.handler.(CompleteWatcher); ok {
			g.completes[z] = append(g.completes[z], n)
		}
		if l, ok := n.handler.(LinkIn); ok {
			g.addLink(n, l.LinkName())
		}
	}
}

func (g *Graph) resolvePorts(n *Node) [][]*Node {
	res := make([][]*Node, len(n.cfg.Wires))
	for i, port := range n.cfg.Wires {
		res[i] = g.resolveTargets(n, port)
	}
	return res
}

func (g *Graph) resolveTargets(n *Node, ids []api.NodeID) []*Node {
	if len(ids) == 0 {
		return nil
	}
	res := make([]*Node, 0, len(ids))
	for _, id := range ids {
		t, ok := g.node(id)
		if !ok {
			n.logger.Warn("Dropping wire to unavailable node",
				slog.String("target", string(id)))
			continue
		}
		res = append(res, t)
	}
	return res
}

func (g *Graph) scopedCatchers(z api.FlowID) int {
	for i, c := range g.catchers[z] {
		if _, uncaught := c.handler.(Catcher).CatchScope(); uncaught {
			return i
		}
	}
	return len(g.catchers[z])
}

func (g *Graph) addLink(n *Node, name string) {
	if name == "" {
		return
	}
	byName, ok := g.links[n.z]
	if !ok {
		byName = map[string][]*Node{}
		g.links[n.z] = byName
	}
	byName[name] = append(byName[name], n)
	if s, ok := g.scopes[n.z]; ok && s.instance == "" {
		g.global[name] = append(g.global[name], n)
	}
}

// instanceScope returns the subflow instance scope a flow id names, if any
func (g *Graph) instanceScope(z api.FlowID) (*flowScope, bool) {
	s, ok := g.scopes[z]
	if !ok || s.instance == "" {
		return nil, false
	}
	return s, true
}
