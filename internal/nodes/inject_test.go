package nodes_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/wireflow/internal/assert/helpers"
	"github.com/kode4food/wireflow/internal/nodes"
	"github.com/kode4food/wireflow/pkg/api"
)

func deployInject(t *testing.T, e *helpers.TestEngine, fields helpers.N) {
	t.Helper()
	e.Deploy(api.DeployFull, helpers.Flows(t,
		helpers.Tab("tab").With(helpers.N{"env": []any{
			map[string]any{"name": "REGION", "value": "north"},
		}}),
		helpers.Node("inj", nodes.TypeInject, "tab", helpers.Wire("out")).
			With(fields),
		helpers.Node("out", helpers.CaptureType, "tab"),
	))
}

func TestInjectPayloadTypes(t *testing.T) {
	cases := []struct {
		name   string
		fields helpers.N
		want   any
	}{
		{"string", helpers.N{"payloadType": "str", "payload": "hi"}, "hi"},
		{"number", helpers.N{"payloadType": "num", "payload": "2.5"}, 2.5},
		{"bool", helpers.N{"payloadType": "bool", "payload": "true"}, true},
		{
			"json",
			helpers.N{"payloadType": "json", "payload": `{"a":[1,2]}`},
			map[string]any{"a": []any{float64(1), float64(2)}},
		},
		{"env", helpers.N{"payloadType": "env", "payload": "REGION"}, "north"},
		{
			"date", helpers.N{"payloadType": "date"},
			helpers.Epoch.UnixMilli(),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(t)
			deployInject(t, e, tc.fields)
			e.Fire("inj")
			assert.Equal(t, []any{tc.want}, e.Payloads("out"))
		})
	}
}

func TestInjectTopicAndFreshMessages(t *testing.T) {
	e := newEngine(t)
	deployInject(t, e, helpers.N{
		"payloadType": "json", "payload": `{"n":1}`, "topic": "tick",
	})

	e.Fire("inj")
	e.Fire("inj")
	got := e.Received("out")
	require.Len(t, got, 2)
	assert.Equal(t, "tick", got[0].Topic())
	assert.NotEqual(t, got[0].ID(), got[1].ID())

	got[0].Payload().(map[string]any)["n"] = 2
	assert.Equal(t, float64(1), got[1].Payload().(map[string]any)["n"])
}

func TestInjectOnceAfterDelay(t *testing.T) {
	e := newEngine(t)
	deployInject(t, e, helpers.N{
		"payloadType": "str", "payload": "boot",
		"once": true, "onceDelay": 0.5,
	})

	assert.Empty(t, e.Received("out"))
	e.Advance(500 * time.Millisecond)
	assert.Equal(t, []any{"boot"}, e.Payloads("out"))
	e.Advance(time.Minute)
	assert.Len(t, e.Received("out"), 1)
}

func TestInjectRepeat(t *testing.T) {
	e := newEngine(t)
	deployInject(t, e, helpers.N{
		"payloadType": "num", "payload": 1, "repeat": "2",
	})

	e.Step(time.Second, 7)
	assert.Len(t, e.Received("out"), 3)
}

func TestInjectRejectsBadConfig(t *testing.T) {
	e := newEngine(t)
	e.Deploy(api.DeployFull, tabWith(t, group(
		helpers.Node("a", nodes.TypeInject, "tab").
			With(helpers.N{"payloadType": "num", "payload": "many"}),
		helpers.Node("b", nodes.TypeInject, "tab").
			With(helpers.N{"payloadType": "json", "payload": "{"}),
		helpers.Node("c", nodes.TypeInject, "tab").
			With(helpers.N{"payloadType": "jsonata"}),
		helpers.Node("d", nodes.TypeInject, "tab").
			With(helpers.N{"repeat": -1}),
	)))

	failed := e.FailedNodes()
	for _, id := range []api.NodeID{"a", "b", "c", "d"} {
		assert.ErrorIs(t, failed[id], nodes.ErrInvalidConfig, id)
	}
}
