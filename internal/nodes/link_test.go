package nodes_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/wireflow/internal/assert/helpers"
	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/internal/nodes"
	"github.com/kode4food/wireflow/pkg/api"
)

const doubler = `msg.payload = msg.payload * 2
return msg`

// calledFlow is a link-in named "double" feeding a Lua function whose
// result is returned to the caller
func calledFlow(z string) []helpers.N {
	return []helpers.N{
		helpers.Node("in", nodes.TypeLinkIn, z, helpers.Wire("fn")).
			With(helpers.N{"name": "double"}),
		helpers.Node("fn", nodes.TypeFunction, z, helpers.Wire("ret")).
			With(helpers.N{"func": doubler}),
		helpers.Node("ret", nodes.TypeLinkOut, z).
			With(helpers.N{"mode": "return"}),
	}
}

func TestLinkOutDeliversToLinkIn(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, tabWith(t, group(
		helpers.Node("lo", nodes.TypeLinkOut, "tab").
			With(helpers.N{"links": []string{"a", "b", "missing"}}),
		helpers.Node("a", nodes.TypeLinkIn, "tab", helpers.Wire("outA")),
		helpers.Node("b", nodes.TypeLinkIn, "tab", helpers.Wire("outB")),
		helpers.Node("outA", helpers.CaptureType, "tab"),
		helpers.Node("outB", helpers.CaptureType, "tab"),
	)))

	e.Send("lo", api.NewMsg(map[string]any{"n": 1}))
	a := e.Received("outA")
	b := e.Received("outB")
	require.Len(t, a, 1)
	require.Len(t, b, 1)

	a[0].Payload().(map[string]any)["n"] = 2
	assert.Equal(t, 1, b[0].Payload().(map[string]any)["n"])
}

func TestLinkCallStatic(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, tabWith(t,
		group(
			helpers.Node("call", nodes.TypeLinkCall, "tab", helpers.Wire("out")).
				With(helpers.N{"links": []string{"in"}, "timeout": 30}),
			helpers.Node("out", helpers.CaptureType, "tab"),
		),
		calledFlow("tab"),
		completions("call"),
	))

	sent := api.NewMsg(4)
	e.Send("call", sent)

	got := e.Received("out")
	require.Len(t, got, 1)
	assert.Equal(t, 8, got[0].Payload())
	assert.False(t, got[0].Has(api.KeyLinkSource))
	assert.Len(t, e.Received("done"), 1)
	assert.Equal(t, 0, pendingCalls(t, e, "call"))
}

func TestLinkCallDynamicAcrossTabs(t *testing.T) {
	e := newEngine(t)
	flows := helpers.Flows(t, append([]helpers.N{
		helpers.Tab("tab"),
		helpers.Tab("lib"),
		helpers.Node("call", nodes.TypeLinkCall, "tab", helpers.Wire("out")).
			With(helpers.N{"linkType": "dynamic"}),
		helpers.Node("out", helpers.CaptureType, "tab"),
	}, calledFlow("lib")...)...)
	e.Deploy(api.DeployFull, flows)

	msg := api.NewMsg(21)
	msg[api.KeyTarget] = "double"
	e.Send("call", msg)

	assert.Equal(t, []any{42}, e.Payloads("out"))
}

func TestLinkCallAmbiguousTarget(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, tabWith(t,
		group(
			helpers.Node("call", nodes.TypeLinkCall, "tab", helpers.Wire("out")).
				With(helpers.N{"linkType": "dynamic"}),
			helpers.Node("out", helpers.CaptureType, "tab"),
			helpers.Node("in2", nodes.TypeLinkIn, "tab", helpers.Wire("fn")).
				With(helpers.N{"name": "double"}),
		),
		calledFlow("tab"),
		catchAll(),
	))

	msg := api.NewMsg(1)
	msg[api.KeyTarget] = "double"
	e.Send("call", msg)

	caught := e.Received("caught")
	require.Len(t, caught, 1)
	assert.Equal(t,
		"Multiple link-in nodes named 'double'", errorMessage(t, caught[0]),
	)
	assert.Empty(t, e.Received("out"))
	assert.Equal(t, 0, pendingCalls(t, e, "call"))
}

func TestLinkCallMissingTarget(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, tabWith(t,
		group(
			helpers.Node("call", nodes.TypeLinkCall, "tab").
				With(helpers.N{"linkType": "dynamic"}),
		),
		catchAll(),
	))

	msg := api.NewMsg(1)
	msg[api.KeyTarget] = "nowhere"
	e.Send("call", msg)

	caught := e.Received("caught")
	require.Len(t, caught, 1)
	assert.Equal(t, "target link-in node 'nowhere' not found",
		errorMessage(t, caught[0]))
}

func TestLinkCallTimeout(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, tabWith(t,
		group(
			helpers.Node("call", nodes.TypeLinkCall, "tab", helpers.Wire("out")).
				With(helpers.N{"links": []string{"in"}, "timeout": 2}),
			helpers.Node("out", helpers.CaptureType, "tab"),
			helpers.Node("in", nodes.TypeLinkIn, "tab").
				With(helpers.N{"name": "sink"}),
		),
		catchAll(),
	))

	e.Send("call", api.NewMsg("lost"))
	assert.Equal(t, 1, pendingCalls(t, e, "call"))

	e.Advance(2 * time.Second)
	caught := e.Received("caught")
	require.Len(t, caught, 1)
	assert.Equal(t, "timeout", errorMessage(t, caught[0]))
	assert.Equal(t, "in", caught[0][api.KeyTarget])
	assert.Empty(t, e.Received("out"))
	assert.Equal(t, 0, pendingCalls(t, e, "call"))
}

func TestLinkCallDefaultTimeout(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, tabWith(t,
		group(
			helpers.Node("call", nodes.TypeLinkCall, "tab").
				With(helpers.N{"links": []string{"in"}}),
			helpers.Node("in", nodes.TypeLinkIn, "tab"),
		),
		catchAll(),
	))

	e.Send("call", api.NewMsg(1))
	e.Advance(e.Config.LinkCallTimeout - time.Millisecond)
	assert.Empty(t, e.Received("caught"))
	e.Advance(time.Millisecond)
	assert.Len(t, e.Received("caught"), 1)
}

func TestLinkCallCloseCompletesPending(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, tabWith(t,
		group(
			helpers.Node("call", nodes.TypeLinkCall, "tab").
				With(helpers.N{"links": []string{"in"}}),
			helpers.Node("in", nodes.TypeLinkIn, "tab"),
		),
		completions("call"),
		catchAll(),
	))

	e.Send("call", api.NewMsg(1))
	e.Send("call", api.NewMsg(2))
	e.Deploy(api.DeployNodes, tabWith(t,
		group(helpers.Node("in", nodes.TypeLinkIn, "tab")),
		completions("call"),
		catchAll(),
	))

	assert.Len(t, e.Received("done"), 2)
	e.Advance(time.Minute)
	assert.Empty(t, e.Received("caught"))
}

func TestLinkReturnAfterNodesDeploy(t *testing.T) {
	e := newEngine(t)
	flows := func(factor string) api.FlowSet {
		return tabWith(t,
			group(
				helpers.Node("call", nodes.TypeLinkCall, "tab", helpers.Wire("out")).
					With(helpers.N{"linkType": "dynamic"}),
				helpers.Node("out", helpers.CaptureType, "tab"),
				helpers.Node("in", nodes.TypeLinkIn, "tab", helpers.Wire("fn")).
					With(helpers.N{"name": "calc"}),
				helpers.Node("fn", nodes.TypeFunction, "tab", helpers.Wire("ret")).
					With(helpers.N{"func": "msg.payload = msg.payload * " +
						factor + "\nreturn msg"}),
				helpers.Node("ret", nodes.TypeLinkOut, "tab").
					With(helpers.N{"mode": "return"}),
			),
			catchAll(),
		)
	}
	call := func(v int) {
		msg := api.NewMsg(v)
		msg[api.KeyTarget] = "calc"
		e.Send("call", msg)
	}

	e.Deploy(api.DeployFull, flows("2"))
	call(5)
	e.Deploy(api.DeployNodes, flows("3"))
	call(5)

	assert.Equal(t, []any{10, 15}, e.Payloads("out"))
	assert.Empty(t, e.Received("caught"))
}

func TestNestedLinkCalls(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, tabWith(t,
		group(
			helpers.Node("call", nodes.TypeLinkCall, "tab", helpers.Wire("out")).
				With(helpers.N{"links": []string{"outer"}}),
			helpers.Node("out", helpers.CaptureType, "tab"),
			helpers.Node("outer", nodes.TypeLinkIn, "tab", helpers.Wire("inner-call")),
			helpers.Node("inner-call", nodes.TypeLinkCall, "tab",
				helpers.Wire("outer-ret"),
			).With(helpers.N{"links": []string{"in"}}),
			helpers.Node("outer-ret", nodes.TypeLinkOut, "tab").
				With(helpers.N{"mode": "return"}),
		),
		calledFlow("tab"),
	))

	e.Send("call", api.NewMsg(3))
	got := e.Received("out")
	require.Len(t, got, 1)
	assert.Equal(t, 6, got[0].Payload())
	assert.False(t, got[0].Has(api.KeyLinkSource))
}

func pendingCalls(t *testing.T, e *helpers.TestEngine, id api.NodeID) int {
	t.Helper()
	res := -1
	e.Inspect(id, func(n *engine.Node) {
		if p, ok := n.Handler().(interface{ PendingCalls() int }); ok {
			res = p.PendingCalls()
		}
	})
	require.GreaterOrEqual(t, res, 0)
	return res
}
