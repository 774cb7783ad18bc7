package helpers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kode4food/wireflow/pkg/api"
)

// N is one node of a test flow document, written as its JSON object
type N map[string]any

// Flows builds a flow document from node objects
func Flows(t *testing.T, nodes ...N) api.FlowSet {
	t.Helper()
	data, err := json.Marshal(nodes)
	require.NoError(t, err)

	var res api.FlowSet
	require.NoError(t, json.Unmarshal(data, &res))
	return res
}

// Tab returns a tab container node
func Tab(id string) N {
	return N{"id": id, "type": api.TypeTab, "label": id}
}

// Node returns a node of typ on flow z wired to the given ports
func Node(id, typ, z string, ports ...[]string) N {
	wires := make([][]string, len(ports))
	copy(wires, ports)
	return N{"id": id, "type": typ, "z": z, "wires": wires}
}

// With returns a copy of n with the extra fields set
func (n N) With(fields N) N {
	res := make(N, len(n)+len(fields))
	for k, v := range n {
		res[k] = v
	}
	for k, v := range fields {
		res[k] = v
	}
	return res
}

// Wire is shorthand for one output port's target list
func Wire(ids ...string) []string {
	return ids
}
