package engine

import "github.com/kode4food/wireflow/pkg/api"

type (
	// subflowInstance feeds messages arriving at a subflow instance node
	// to the members wired to the template's input
	subflowInstance struct{}

	// subflowOutput forwards messages reaching a template output port to
	// the nodes wired to the matching port of the instance
	subflowOutput struct{}
)

func (subflowInstance) Receive(n *Node, msg api.Msg, done Done) {
	shared := false
	n.fanout(n.inputs, msg, &shared)
	done(nil)
}

func (subflowOutput) Receive(n *Node, msg api.Msg, done Done) {
	n.Send(msg)
	done(nil)
}
