package engine

import "github.com/kode4food/wireflow/pkg/api"

type (
	// Handler implements the behavior of one node type. Receive is called
	// on the runtime loop and must eventually call done exactly once
	Handler interface {
		Receive(n *Node, msg api.Msg, done Done)
	}

	// HandlerFunc adapts a function to the Handler interface
	HandlerFunc func(n *Node, msg api.Msg, done Done)

	// Done completes the processing of one received message. A nil error
	// notifies complete nodes, a non-nil error is routed to catch nodes
	Done func(err error)

	// Starter is implemented by handlers that begin work once the graph
	// they belong to is installed
	Starter interface {
		Start(n *Node)
	}

	// Closer is implemented by handlers holding resources. Close must
	// release buffered messages by calling their done functions
	Closer interface {
		Close(n *Node) error
	}

	// Triggerable handlers can be fired externally, as an inject button
	// would
	Triggerable interface {
		Trigger(n *Node) error
	}

	// Returner handlers accept messages coming back from a link return
	Returner interface {
		Return(n *Node, msg api.Msg)
	}

	// Catcher handlers receive errors reported in their flow. A non-empty
	// scope limits them to the listed nodes. Uncaught catchers only see
	// errors nothing else handled
	Catcher interface {
		CatchScope() (scope []api.NodeID, uncaught bool)
	}

	// StatusWatcher handlers receive status updates from their flow. A
	// non-empty scope limits them to the listed nodes
	StatusWatcher interface {
		StatusScope() []api.NodeID
	}

	// CompleteWatcher handlers receive a copy of every message the listed
	// nodes complete successfully
	CompleteWatcher interface {
		CompleteScope() []api.NodeID
	}

	// LinkIn handlers are targets of link out and link call nodes
	LinkIn interface {
		LinkName() string
	}

	// Factory builds the handler for one configured node
	Factory func(n *Node, cfg *api.NodeConfig) (Handler, error)
)

// Receive calls f
func (f HandlerFunc) Receive(n *Node, msg api.Msg, done Done) {
	f(n, msg, done)
}
