package nodes_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/kode4food/wireflow/internal/assert/helpers"
	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/internal/nodes"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	pendingCounter interface {
		Pending() int
	}
)

func newEngine(
	t *testing.T, opts ...helpers.EngineOption,
) *helpers.TestEngine {
	t.Helper()
	files := newBucket(t)
	return newEngineWithFiles(t, files, opts...)
}

func newEngineWithFiles(
	t *testing.T, files *blob.Bucket, opts ...helpers.EngineOption,
) *helpers.TestEngine {
	t.Helper()
	reg := helpers.WithTypes(nodes.Registrar(nodes.Options{Files: files}))
	return helpers.NewTestEngine(t, append([]helpers.EngineOption{reg}, opts...)...)
}

func newBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	b := memblob.OpenBucket(nil)
	t.Cleanup(func() {
		require.NoError(t, b.Close())
	})
	return b
}

// completions wires a complete node watching id into a capture node
// named "done"
func completions(id string) []helpers.N {
	return []helpers.N{
		helpers.Node("cmp", nodes.TypeComplete, "tab", helpers.Wire("done")).
			With(helpers.N{"scope": []string{id}}),
		helpers.Node("done", helpers.CaptureType, "tab"),
	}
}

// catchAll wires a catch node for the whole tab into a capture node named
// "caught"
func catchAll() []helpers.N {
	return []helpers.N{
		helpers.Node("catch", nodes.TypeCatch, "tab", helpers.Wire("caught")),
		helpers.Node("caught", helpers.CaptureType, "tab"),
	}
}

func tabWith(t *testing.T, groups ...[]helpers.N) api.FlowSet {
	t.Helper()
	all := []helpers.N{helpers.Tab("tab")}
	for _, g := range groups {
		all = append(all, g...)
	}
	return helpers.Flows(t, all...)
}

func group(ns ...helpers.N) []helpers.N {
	return ns
}

func errorMessage(t *testing.T, msg api.Msg) string {
	t.Helper()
	e, ok := msg[api.KeyError].(map[string]any)
	require.True(t, ok)
	text, _ := e["message"].(string)
	return text
}

func pending(t *testing.T, e *helpers.TestEngine, id api.NodeID) int {
	t.Helper()
	res := -1
	e.Inspect(id, func(n *engine.Node) {
		if p, ok := n.Handler().(pendingCounter); ok {
			res = p.Pending()
		}
	})
	require.GreaterOrEqual(t, res, 0)
	return res
}
