package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/wireflow/internal/assert/helpers"
	"github.com/kode4food/wireflow/internal/assert/wait"
	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

func TestErrorRoutedToCatch(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("f", "fail", "tab").With(helpers.N{"name": "bad"}),
		helpers.Node("all", "catch", "tab", helpers.Wire("caught")),
		helpers.Node("caught", helpers.CaptureType, "tab"),
	))

	sent := api.NewMsg(1)
	e.Send("f", sent)

	got := e.Received("caught")
	require.Len(t, got, 1)
	assert.NotContains(t, sent, api.KeyError)
	assert.Equal(t, sent.ID(), got[0].ID())
	assert.Equal(t, map[string]any{
		"message": errFailing.Error(),
		"source": map[string]any{
			"id":    "f",
			"type":  "fail",
			"name":  "bad",
			"count": 1,
		},
	}, got[0][api.KeyError])
}

func TestScopedAndUncaughtCatch(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("f1", "fail", "tab"),
		helpers.Node("f2", "fail", "tab"),
		helpers.Node("scoped", "catch", "tab", helpers.Wire("s")).
			With(helpers.N{"scope": []string{"f1"}}),
		helpers.Node("rest", "catch", "tab", helpers.Wire("u")).
			With(helpers.N{"uncaught": true}),
		helpers.Node("s", helpers.CaptureType, "tab"),
		helpers.Node("u", helpers.CaptureType, "tab"),
	))

	e.Send("f1", api.NewMsg("one"))
	e.Send("f2", api.NewMsg("two"))

	assert.Equal(t, []any{"one"}, e.Payloads("s"))
	assert.Equal(t, []any{"two"}, e.Payloads("u"))
}

func TestUncaughtErrorPublished(t *testing.T) {
	e := newEngine(t)
	consumer := e.Hub.NewConsumer()
	defer consumer.Close()

	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("f", "fail", "tab"),
	))
	e.Send("f", api.NewMsg(1))

	ev := wait.On(t, consumer).ForEvent(wait.UncaughtError(errFailing.Error()))
	data := wait.Decode[api.ErrorEvent](t, ev)
	assert.Equal(t, api.NodeID("f"), data.Source.ID)
	assert.Equal(t, 1, data.Source.Count)
}

func TestPanicBecomesError(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("p", "panic", "tab"),
		helpers.Node("next", helpers.CaptureType, "tab"),
		helpers.Node("all", "catch", "tab", helpers.Wire("caught")),
		helpers.Node("caught", helpers.CaptureType, "tab"),
	))

	e.Send("p", api.NewMsg(1))
	e.Send("next", api.NewMsg(2))

	got := e.Received("caught")
	require.Len(t, got, 1)
	errObj := got[0][api.KeyError].(map[string]any)
	assert.Contains(t, errObj["message"], engine.ErrNodePanicked.Error())
	assert.Equal(t, []any{2}, e.Payloads("next"))
}

func TestErrorLoopGuard(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("f", "fail", "tab"),
		helpers.Node("all", "catch", "tab", helpers.Wire("f", "seen")),
		helpers.Node("seen", helpers.CaptureType, "tab"),
	))

	e.Send("f", api.NewMsg(1))

	got := e.Received("seen")
	require.Len(t, got, 9)
	last := got[8][api.KeyError].(map[string]any)
	assert.Equal(t, 9, last["source"].(map[string]any)["count"])
}

func TestDoneOnlyOnce(t *testing.T) {
	e := newEngine(t, helpers.WithType("twice",
		func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			return engine.HandlerFunc(
				func(_ *engine.Node, _ api.Msg, done engine.Done) {
					done(nil)
					done(nil)
					done(errFailing)
				},
			), nil
		},
	))
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("d", "twice", "tab"),
		helpers.Node("watch", "complete", "tab", helpers.Wire("completed")).
			With(helpers.N{"scope": []string{"d"}}),
		helpers.Node("all", "catch", "tab", helpers.Wire("caught")),
		helpers.Node("completed", helpers.CaptureType, "tab"),
		helpers.Node("caught", helpers.CaptureType, "tab"),
	))

	e.Send("d", api.NewMsg("x"))

	assert.Equal(t, []any{"x"}, e.Payloads("completed"))
	assert.Empty(t, e.Received("caught"))
}

func TestCompleteOnlyForListedNodes(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("a", "pass", "tab"),
		helpers.Node("b", "pass", "tab"),
		helpers.Node("watch", "complete", "tab", helpers.Wire("completed")).
			With(helpers.N{"scope": []string{"a"}}),
		helpers.Node("completed", helpers.CaptureType, "tab"),
	))

	sent := api.NewMsg("a")
	e.Send("a", sent)
	e.Send("b", api.NewMsg("b"))

	got := e.Received("completed")
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Payload())
	assert.False(t, sameMap(sent, got[0]))
}

func TestStatusDelivered(t *testing.T) {
	e := newEngine(t, helpers.WithType("reporter",
		func(*engine.Node, *api.NodeConfig) (engine.Handler, error) {
			return engine.HandlerFunc(
				func(n *engine.Node, msg api.Msg, done engine.Done) {
					n.Status(api.Status{
						Fill: api.FillGreen, Shape: api.ShapeDot, Text: "ok",
					})
					done(nil)
				},
			), nil
		},
	))
	consumer := e.Hub.NewConsumer()
	defer consumer.Close()

	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab"),
		helpers.Node("r", "reporter", "tab").With(helpers.N{"name": "rep"}),
		helpers.Node("other", "reporter", "tab"),
		helpers.Node("st", "status", "tab", helpers.Wire("seen")).
			With(helpers.N{"scope": []string{"r"}}),
		helpers.Node("seen", helpers.CaptureType, "tab"),
	))

	e.Send("r", api.NewMsg(1))
	e.Send("other", api.NewMsg(2))

	got := e.Received("seen")
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{
		"fill":  "green",
		"shape": "dot",
		"text":  "ok",
		"source": map[string]any{
			"id": "r", "type": "reporter", "name": "rep",
		},
	}, got[0]["status"])

	ev := wait.On(t, consumer).ForEvent(wait.Status("r"))
	data := wait.Decode[api.StatusEvent](t, ev)
	assert.Equal(t, "ok", data.Status.Text)
	assert.Equal(t, "rep", data.Source.Name)
}
