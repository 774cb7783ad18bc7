package engine_test

import (
	"reflect"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kode4food/wireflow/internal/assert/helpers"
	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

func TestCloneOnFanout(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("fan", "pass", "tab", helpers.Wire("c1", "c2")),
		helpers.Node("c1", helpers.CaptureType, "tab"),
		helpers.Node("c2", helpers.CaptureType, "tab"),
	))

	sent := api.Msg{
		api.KeyPayload: map[string]any{"items": []any{1, 2, 3}},
	}
	e.Send("fan", sent)

	first := e.Received("c1")
	second := e.Received("c2")
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	assert.True(t, sameMap(sent, first[0]))
	assert.False(t, sameMap(sent, second[0]))
	assert.NotEmpty(t, sent.ID())
	assert.Equal(t, sent.ID(), second[0].ID())

	payload := second[0].Payload().(map[string]any)
	payload["items"].([]any)[0] = "changed"
	payload["extra"] = true

	orig := first[0].Payload().(map[string]any)
	assert.Equal(t, []any{1, 2, 3}, orig["items"])
	assert.NotContains(t, orig, "extra")
}

func TestFanoutAcrossPorts(t *testing.T) {
	e := newEngine(t, helpers.WithType("split2",
		func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			return engine.HandlerFunc(
				func(n *engine.Node, msg api.Msg, done engine.Done) {
					n.SendAll(api.Output{{msg}, nil, {msg}})
					done(nil)
				},
			), nil
		},
	))
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("s", "split2", "tab",
			helpers.Wire("a"), helpers.Wire("b"), helpers.Wire("c"),
		),
		helpers.Node("a", helpers.CaptureType, "tab"),
		helpers.Node("b", helpers.CaptureType, "tab"),
		helpers.Node("c", helpers.CaptureType, "tab"),
	))

	sent := api.NewMsg("x")
	e.Send("s", sent)

	require.Len(t, e.Received("a"), 1)
	assert.Empty(t, e.Received("b"))
	require.Len(t, e.Received("c"), 1)
	assert.True(t, sameMap(sent, e.Received("a")[0]))
	assert.False(t, sameMap(sent, e.Received("c")[0]))
}

func TestFIFOPerEdge(t *testing.T) {
	e := newEngine(t, helpers.WithType("burst",
		func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			return engine.HandlerFunc(
				func(n *engine.Node, msg api.Msg, done engine.Done) {
					count := msg.Payload().(int)
					msgs := make([]api.Msg, count)
					for i := range msgs {
						msgs[i] = api.NewMsg(i)
					}
					n.SendTo(0, msgs...)
					done(nil)
				},
			), nil
		},
	))

	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(1, 50).Draw(rt, "count")
		e.Reset()
		e.Deploy(api.DeployFull, helpers.Flows(t,
			helpers.Tab("tab"),
			helpers.Node("a", "burst", "tab", helpers.Wire("mid")),
			helpers.Node("mid", "pass", "tab", helpers.Wire("b")),
			helpers.Node("b", helpers.CaptureType, "tab"),
		))
		e.Send("a", api.NewMsg(count))

		got := e.Payloads("b")
		if len(got) != count {
			rt.Fatalf("expected %d messages, got %d", count, len(got))
		}
		for i, p := range got {
			if p != i {
				rt.Fatalf("message %d arrived at position %d", p, i)
			}
		}
	})
}

func TestLongChainUsesWorkQueue(t *testing.T) {
	const length = 2000
	nodes := []helpers.N{helpers.Tab("tab")}
	for i := range length {
		nodes = append(nodes,
			helpers.Node(chainID(i), "pass", "tab", helpers.Wire(chainID(i+1))),
		)
	}
	nodes = append(nodes, helpers.Node(chainID(length), helpers.CaptureType, "tab"))

	e := newEngine(t)
	e.Deploy(api.DeployFull, helpers.Flows(t, nodes...))
	e.Send(api.NodeID(chainID(0)), api.NewMsg("deep"))

	assert.Equal(t, []any{"deep"}, e.Payloads(api.NodeID(chainID(length))))
}

func TestNilMessagesAreIgnored(t *testing.T) {
	e := newEngine(t, helpers.WithType("nils",
		func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			return engine.HandlerFunc(
				func(n *engine.Node, msg api.Msg, done engine.Done) {
					n.Send(nil)
					n.SendTo(0)
					n.SendTo(5, msg)
					n.SendAll(api.Output{nil, {nil}})
					done(nil)
				},
			), nil
		},
	))
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("n", "nils", "tab", helpers.Wire("c"), helpers.Wire("c")),
		helpers.Node("c", helpers.CaptureType, "tab"),
	))
	e.Send("n", api.NewMsg(1))
	assert.Empty(t, e.Received("c"))
}

func chainID(i int) string {
	return "n" + strconv.Itoa(i)
}

func sameMap(a, b api.Msg) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
