package nodes

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// split turns a string, buffer, array or object payload into a
	// sequence of messages
	split struct {
		Splt      string `json:"splt"`
		ArraySplt int    `json:"arraySplt"`
		AddName   string `json:"addname"`
	}
)

const (
	partsString = "string"
	partsBuffer = "buffer"
	partsArray  = "array"
	partsObject = "object"
)

func newSplit(_ *engine.Node, cfg *api.NodeConfig) (engine.Handler, error) {
	h := &split{Splt: "\n", ArraySplt: 1}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	if h.ArraySplt < 1 {
		return nil, fmt.Errorf("%w: array chunk size must be positive",
			ErrInvalidConfig)
	}
	return h, nil
}

func (h *split) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	id := api.NewID()
	parent, hasParent := msg.Parts()
	rest := api.Msg(maps.Clone(msg))
	delete(rest, api.KeyPayload)

	emit := func(payload any, parts api.Parts) {
		out := rest.Clone()
		out.NewID()
		out[api.KeyPayload] = payload
		parts.ID = id
		if hasParent {
			p := parent.Clone()
			parts.Parts = &p
		}
		out.SetParts(parts)
		if parts.Key != "" && h.AddName != "" {
			setProperty(out, h.AddName, parts.Key)
		}
		n.Send(out)
	}

	switch v := msg.Payload().(type) {
	case string:
		pieces := strings.Split(v, h.Splt)
		for i, p := range pieces {
			emit(p, api.Parts{
				Type: partsString, Ch: h.Splt, Index: i, Count: len(pieces),
			})
		}
	case []byte:
		pieces := bytes.Split(v, []byte(h.Splt))
		for i, p := range pieces {
			emit(p, api.Parts{
				Type: partsBuffer, Ch: h.Splt, Index: i, Count: len(pieces),
			})
		}
	case []any:
		chunks := slices.Collect(slices.Chunk(v, h.ArraySplt))
		for i, c := range chunks {
			var payload any = c
			if h.ArraySplt == 1 {
				payload = c[0]
			}
			emit(payload, api.Parts{
				Type: partsArray, Len: h.ArraySplt, Index: i,
				Count: len(chunks),
			})
		}
	case map[string]any:
		keys := slices.Sorted(maps.Keys(v))
		for i, k := range keys {
			emit(v[k], api.Parts{
				Type: partsObject, Key: k, Index: i, Count: len(keys),
			})
		}
	default:
		n.Send(msg)
	}
	done(nil)
}
