package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/kode4food/wireflow/internal/assert/helpers"
	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	passThrough struct{}

	failing struct{}

	panicking struct{}

	// counter counts messages and holds a pending timer, so tests can
	// tell whether an instance survived a deploy
	counter struct {
		count int
		timer engine.TimerID
	}

	catcher struct {
		Scope    []api.NodeID `json:"scope"`
		Uncaught bool         `json:"uncaught"`
	}

	watcher struct {
		Scope []api.NodeID `json:"scope"`
	}

	completer struct {
		Scope []api.NodeID `json:"scope"`
	}

	linkIn struct {
		Name string `json:"name"`
	}

	closeTracker struct {
		closed *int
	}
)

var errFailing = errors.New("failing node")

func testTypes(reg *engine.Registry) error {
	types := map[string]engine.Factory{
		"pass": func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			return passThrough{}, nil
		},
		"fail": func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			return failing{}, nil
		},
		"panic": func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			return panicking{}, nil
		},
		"broken": func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			return nil, errors.New("bad config")
		},
		"counter": func(n *engine.Node, _ *api.NodeConfig) (engine.Handler, error) {
			c := &counter{}
			c.timer = n.After(time.Hour, func() {})
			return c, nil
		},
		"catch":    decoded[catcher],
		"status":   decoded[watcher],
		"complete": decoded[completer],
		"link in":  decoded[linkIn],
	}
	for typ, f := range types {
		if err := reg.Register(typ, f); err != nil {
			return err
		}
	}
	return nil
}

func decoded[T any, P interface {
	*T
	engine.Handler
}](_ *engine.Node, cfg *api.NodeConfig) (engine.Handler, error) {
	var h T
	if err := cfg.Decode(&h); err != nil {
		return nil, err
	}
	return P(&h), nil
}

func newEngine(
	t *testing.T, opts ...helpers.EngineOption,
) *helpers.TestEngine {
	t.Helper()
	return helpers.NewTestEngine(t,
		append([]helpers.EngineOption{helpers.WithTypes(testTypes)}, opts...)...,
	)
}

func (passThrough) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	n.Send(msg)
	done(nil)
}

func (failing) Receive(_ *engine.Node, _ api.Msg, done engine.Done) {
	done(errFailing)
}

func (panicking) Receive(*engine.Node, api.Msg, engine.Done) {
	panic("exploded")
}

func (c *counter) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	c.count++
	n.Send(msg)
	done(nil)
}

func (c *catcher) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	n.Send(msg)
	done(nil)
}

func (c *catcher) CatchScope() ([]api.NodeID, bool) {
	return c.Scope, c.Uncaught
}

func (w *watcher) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	n.Send(msg)
	done(nil)
}

func (w *watcher) StatusScope() []api.NodeID {
	return w.Scope
}

func (c *completer) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	n.Send(msg)
	done(nil)
}

func (c *completer) CompleteScope() []api.NodeID {
	return c.Scope
}

func (l *linkIn) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	n.Send(msg)
	done(nil)
}

func (l *linkIn) LinkName() string {
	return l.Name
}

func (c closeTracker) Receive(_ *engine.Node, _ api.Msg, done engine.Done) {
	done(nil)
}

func (c closeTracker) Close(*engine.Node) error {
	*c.closed++
	return nil
}
