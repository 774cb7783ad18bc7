package nodes

import (
	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// catch forwards error messages raised in its flow
	catch struct {
		forwarder
		Scope    []api.NodeID `json:"scope"`
		Uncaught bool         `json:"uncaught"`
	}

	// status forwards status reports raised in its flow
	status struct {
		forwarder
		Scope []api.NodeID `json:"scope"`
	}

	// complete forwards messages the listed nodes finished handling
	complete struct {
		forwarder
		Scope []api.NodeID `json:"scope"`
	}

	forwarder struct{}
)

func newCatch(_ *engine.Node, cfg *api.NodeConfig) (engine.Handler, error) {
	h := &catch{}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	return h, nil
}

func newStatus(_ *engine.Node, cfg *api.NodeConfig) (engine.Handler, error) {
	h := &status{}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	return h, nil
}

func newComplete(
	_ *engine.Node, cfg *api.NodeConfig,
) (engine.Handler, error) {
	h := &complete{}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *catch) CatchScope() ([]api.NodeID, bool) {
	return h.Scope, h.Uncaught
}

func (h *status) StatusScope() []api.NodeID {
	return h.Scope
}

func (h *complete) CompleteScope() []api.NodeID {
	return h.Scope
}

func (forwarder) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	n.Send(msg)
	done(nil)
}
