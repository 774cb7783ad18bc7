package engine

import (
	"github.com/kode4food/wireflow/pkg/api"
	"github.com/kode4food/wireflow/pkg/util"
)

type change int

const (
	unchanged change = iota
	rewired
	changed
	added
)

// restartSet returns the ids of planned nodes that need a new instance.
// Everything else keeps its running instance and internal state
func restartSet(
	old *Graph, p *plan, typ api.DeploymentType,
) util.Set[api.NodeID] {
	res := make(util.Set[api.NodeID], len(p.nodes))
	switch typ {
	case api.DeployNodes:
		for _, spec := range p.nodes {
			if c := diffNode(old, spec); c == changed || c == added {
				res.Add(spec.cfg.ID)
			}
		}
	case api.DeployFlows:
		dirty := util.Set[api.FlowID]{}
		for _, spec := range p.nodes {
			if diffNode(old, spec) != unchanged {
				dirty.Add(spec.root)
			}
		}
		for _, n := range old.order {
			if _, ok := p.byID[n.id]; !ok {
				dirty.Add(n.root)
			}
		}
		for _, spec := range p.nodes {
			if dirty.Has(spec.root) {
				res.Add(spec.cfg.ID)
			}
		}
	default:
		for _, spec := range p.nodes {
			res.Add(spec.cfg.ID)
		}
	}
	return res
}

func diffNode(old *Graph, spec *nodeSpec) change {
	n, ok := old.node(spec.cfg.ID)
	switch {
	case !ok:
		return added
	case n.fingerprint != spec.fingerprint || n.kind != spec.kind:
		return changed
	case !n.cfg.WiresEqual(spec.cfg) || !idsEqual(n.inputIDs, spec.inputs):
		return rewired
	default:
		return unchanged
	}
}

func idsEqual(a, b []api.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i, id := range a {
		if b[i] != id {
			return false
		}
	}
	return true
}
