package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/wireflow/internal/assert/helpers"
	"github.com/kode4food/wireflow/internal/assert/wait"
	"github.com/kode4food/wireflow/internal/config"
	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/internal/events"
	"github.com/kode4food/wireflow/internal/storage"
	"github.com/kode4food/wireflow/pkg/api"
)

func counterFlows(t *testing.T, passName string) api.FlowSet {
	return helpers.Flows(t,
		helpers.Tab("t1"),
		helpers.Node("count", "counter", "t1", helpers.Wire("out")),
		helpers.Node("p", "pass", "t1", helpers.Wire("out")).
			With(helpers.N{"name": passName}),
		helpers.Node("out", helpers.CaptureType, "t1"),
		helpers.Tab("t2"),
		helpers.Node("other", "counter", "t2"),
	)
}

func counterState(t *testing.T, e *helpers.TestEngine, id api.NodeID) (int, int) {
	t.Helper()
	var count, timers int
	e.Inspect(id, func(n *engine.Node) {
		count = n.Handler().(*counter).count
		timers = n.PendingTimers()
	})
	return count, timers
}

func TestNewMissingDependencies(t *testing.T) {
	_, err := engine.New(config.NewDefaultConfig(), engine.Dependencies{})
	assert.ErrorIs(t, err, engine.ErrMissingDependency)

	cfg := config.NewDefaultConfig()
	cfg.MaxKeptMsgs = 0
	_, err = engine.New(cfg, engine.Dependencies{
		Registry: engine.NewRegistry(),
		Store:    storage.NewMemory(),
		Hub:      events.NewHub(time.Now),
	})
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestStartLoadsStoredFlows(t *testing.T) {
	store := storage.NewMemory()
	_, err := store.Save(context.Background(), helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("p", "pass", "tab", helpers.Wire("c")),
		helpers.Node("c", helpers.CaptureType, "tab"),
	))
	require.NoError(t, err)

	e := newEngine(t, helpers.WithStore(store))
	assert.Equal(t, 2, e.NodeCount())
	assert.NotEmpty(t, e.Flows().Rev)

	e.Send("p", api.NewMsg("stored"))
	assert.Equal(t, []any{"stored"}, e.Payloads("c"))
}

func TestDeployNodesPreservesUntouched(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, counterFlows(t, "first"))

	e.Send("count", api.NewMsg(1))
	e.Send("count", api.NewMsg(2))
	e.Send("other", api.NewMsg(3))

	e.Deploy(api.DeployNodes, counterFlows(t, "second"))

	count, timers := counterState(t, e, "count")
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, timers)
	count, _ = counterState(t, e, "other")
	assert.Equal(t, 1, count)

	e.Send("count", api.NewMsg(4))
	assert.Equal(t, []any{1, 2, 4}, e.Payloads("out"))
}

func TestDeployNodesRewiredKeepsState(t *testing.T) {
	e := newEngine(t)
	flows := counterFlows(t, "same")
	e.Deploy(api.DeployFull, flows)
	e.Send("count", api.NewMsg(1))

	rewired := flows.Clone()
	for _, cfg := range rewired {
		if cfg.ID == "count" {
			cfg.Wires = [][]api.NodeID{{"p"}}
		}
	}
	e.Deploy(api.DeployNodes, rewired)

	count, _ := counterState(t, e, "count")
	assert.Equal(t, 1, count)

	e.Reset()
	e.Send("count", api.NewMsg(2))
	assert.Equal(t, []any{2}, e.Payloads("out"))
}

func TestDeployFlowsRestartsChangedTab(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, counterFlows(t, "first"))
	e.Send("count", api.NewMsg(1))
	e.Send("other", api.NewMsg(2))

	e.Deploy(api.DeployFlows, counterFlows(t, "second"))

	count, timers := counterState(t, e, "count")
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, timers)
	count, _ = counterState(t, e, "other")
	assert.Equal(t, 1, count)
}

func TestDeployFullRestartsEverything(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, counterFlows(t, "first"))
	e.Send("other", api.NewMsg(1))

	e.Deploy(api.DeployFull, counterFlows(t, "first"))
	count, _ := counterState(t, e, "other")
	assert.Equal(t, 0, count)
}

func TestRemovedNodeIsClosed(t *testing.T) {
	closed := 0
	e := newEngine(t, helpers.WithType("tracked",
		func(n *engine.Node, _ *api.NodeConfig) (engine.Handler, error) {
			n.After(time.Minute, func() {})
			return closeTracker{closed: &closed}, nil
		},
	))
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("tr", "tracked", "tab"),
	))

	var node *engine.Node
	e.Inspect("tr", func(n *engine.Node) { node = n })
	require.Equal(t, 1, node.PendingTimers())

	e.Deploy(api.DeployNodes, helpers.Flows(t, helpers.Tab("tab")))
	assert.Equal(t, 1, closed)
	assert.True(t, node.Closed())
	assert.Equal(t, 0, node.PendingTimers())

	err := e.Engine.Inspect(context.Background(), "tr",
		func(*engine.Node) {},
	)
	assert.ErrorIs(t, err, engine.ErrNodeNotFound)
}

func TestFailedNodeExcluded(t *testing.T) {
	e := newEngine(t)
	consumer := e.Hub.NewConsumer()
	defer consumer.Close()

	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("p", "pass", "tab", helpers.Wire("bad", "c")),
		helpers.Node("bad", "broken", "tab", helpers.Wire("c")),
		helpers.Node("unknown", "no-such-type", "tab"),
		helpers.Node("c", helpers.CaptureType, "tab"),
	))

	failed := e.FailedNodes()
	assert.Len(t, failed, 2)
	assert.Contains(t, failed, api.NodeID("bad"))
	assert.ErrorIs(t, failed["unknown"], engine.ErrUnknownType)
	assert.Equal(t, 2, e.NodeCount())

	ev := wait.On(t, consumer).ForEvent(wait.Status("bad"))
	data := wait.Decode[api.StatusEvent](t, ev)
	assert.Equal(t, api.FillRed, data.Status.Fill)

	e.Send("p", api.NewMsg("ok"))
	assert.Equal(t, []any{"ok"}, e.Payloads("c"))
}

func TestDisabledNodesAndTabs(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("p", "pass", "tab", helpers.Wire("off", "c")),
		helpers.Node("off", "pass", "tab", helpers.Wire("c")).
			With(helpers.N{"d": true}),
		helpers.Node("c", helpers.CaptureType, "tab"),
		helpers.Tab("hidden").With(helpers.N{"disabled": true}),
		helpers.Node("h", "pass", "hidden"),
	))

	assert.Equal(t, 2, e.NodeCount())
	e.Send("p", api.NewMsg(1))
	assert.Equal(t, []any{1}, e.Payloads("c"))
}

func TestRevisionConflict(t *testing.T) {
	e := newEngine(t)
	rev := e.Deploy(api.DeployFull, counterFlows(t, "a"))
	assert.Equal(t, rev, e.Flows().Rev)

	_, err := e.Engine.Deploy(context.Background(), &api.DeployRequest{
		Flows: counterFlows(t, "b"),
		Rev:   "stale",
	}, api.DeployFull)
	assert.ErrorIs(t, err, engine.ErrRevisionConflict)

	res, err := e.Engine.Deploy(context.Background(), &api.DeployRequest{
		Flows: counterFlows(t, "b"),
		Rev:   rev,
	}, api.DeployFull)
	require.NoError(t, err)
	assert.NotEqual(t, rev, res.Rev)
	assert.Equal(t, res.Rev, e.Flows().Rev)
}

func TestConcurrentDeployRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	e := newEngine(t, helpers.WithType("slow",
		func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			close(entered)
			<-release
			return passThrough{}, nil
		},
	))

	flows := helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("s", "slow", "tab"),
	)
	errs := make(chan error, 1)
	go func() {
		_, err := e.Engine.Deploy(context.Background(),
			&api.DeployRequest{Flows: flows}, api.DeployFull,
		)
		errs <- err
	}()

	<-entered
	_, err := e.Engine.Deploy(context.Background(),
		&api.DeployRequest{Flows: flows}, api.DeployFull,
	)
	assert.ErrorIs(t, err, engine.ErrDeployInProgress)

	close(release)
	assert.NoError(t, <-errs)
}

func TestInvalidFlows(t *testing.T) {
	e := newEngine(t)
	_, err := e.Engine.Deploy(context.Background(), &api.DeployRequest{
		Flows: helpers.Flows(t,
			helpers.Tab("tab"),
			helpers.Node("a", "pass", "tab"),
			helpers.Node("a", "pass", "tab"),
		),
	}, api.DeployFull)
	assert.ErrorIs(t, err, engine.ErrInvalidFlows)
	assert.ErrorIs(t, err, engine.ErrDuplicateNodeID)
}

func TestReloadRestartsFromStore(t *testing.T) {
	e := newEngine(t)
	rev := e.Deploy(api.DeployFull, counterFlows(t, "a"))
	e.Send("other", api.NewMsg(1))

	res, err := e.Engine.Deploy(context.Background(),
		&api.DeployRequest{}, api.DeployReload,
	)
	require.NoError(t, err)
	assert.Equal(t, rev, res.Rev)

	e.Idle()
	count, _ := counterState(t, e, "other")
	assert.Equal(t, 0, count)
}

func TestDeployEventPublished(t *testing.T) {
	e := newEngine(t)
	consumer := e.Hub.NewConsumer()
	defer consumer.Close()

	rev := e.Deploy(api.DeployNodes, counterFlows(t, "a"))
	ev := wait.On(t, consumer).ForEvent(wait.Deployed())
	data := wait.Decode[api.DeployEvent](t, ev)
	assert.Equal(t, rev, data.Rev)
	assert.Equal(t, api.DeployNodes, data.Type)
}

func TestTrigger(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, counterFlows(t, "a"))

	err := e.Trigger(context.Background(), "count")
	assert.ErrorIs(t, err, engine.ErrNotTriggerable)
	err = e.Trigger(context.Background(), "missing")
	assert.ErrorIs(t, err, engine.ErrNodeNotFound)
}

func TestStopClosesNodes(t *testing.T) {
	closed := 0
	cfg := config.NewDefaultConfig()
	reg := engine.NewRegistry()
	require.NoError(t, reg.Register("tracked",
		func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			return closeTracker{closed: &closed}, nil
		},
	))

	e, err := engine.New(cfg, engine.Dependencies{
		Registry: reg,
		Store:    storage.NewMemory(),
		Hub:      events.NewHub(time.Now),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Stop(), engine.ErrNotStarted)

	require.NoError(t, e.Start(context.Background()))
	_, err = e.Deploy(context.Background(), &api.DeployRequest{
		Flows: helpers.Flows(t,
			helpers.Tab("tab"),
			helpers.Node("a", "tracked", "tab"),
			helpers.Node("b", "tracked", "tab"),
		),
	}, api.DeployFull)
	require.NoError(t, err)

	require.NoError(t, e.Stop())
	assert.Equal(t, 2, closed)
	assert.Equal(t, 0, e.NodeCount())
}

func TestRegistry(t *testing.T) {
	reg := engine.NewRegistry()
	f := func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
		return passThrough{}, nil
	}
	require.NoError(t, reg.Register("b", f))
	require.NoError(t, reg.Register("a", f))
	assert.ErrorIs(t, reg.Register("a", f), engine.ErrTypeExists)
	assert.Equal(t, []string{"a", "b"}, reg.Types())

	_, err := reg.Get("c")
	assert.ErrorIs(t, err, engine.ErrUnknownType)
}
