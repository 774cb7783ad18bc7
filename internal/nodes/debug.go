package nodes

import (
	"encoding/json"
	"log/slog"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/internal/events"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// debug publishes messages, or one property of them, as debug events
	debug struct {
		Active    *bool `json:"active"`
		Complete  text  `json:"complete"`
		Console   bool  `json:"console"`
		ToSidebar *bool `json:"tosidebar"`

		active bool
	}
)

const completeMsg = "true"

func newDebug(_ *engine.Node, cfg *api.NodeConfig) (engine.Handler, error) {
	h := &debug{}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	h.active = h.Active == nil || *h.Active
	return h, nil
}

func (h *debug) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	if !h.active {
		done(nil)
		return
	}

	property, value := h.render(msg)
	if h.Console {
		n.Log("Debug message",
			slog.String("property", property), slog.Any("value", value))
	}
	if h.ToSidebar == nil || *h.ToSidebar {
		data, err := api.EncodeValue(value)
		if err != nil {
			done(err)
			return
		}
		n.Publish(api.EventTypeDebug, events.TopicDebug, api.DebugEvent{
			ID:       n.ID(),
			Z:        n.FlowID(),
			Name:     n.Name(),
			Topic:    msg.Topic(),
			Property: property,
			Msg:      json.RawMessage(data),
		})
	}
	done(nil)
}

// Trigger toggles whether the node publishes anything
func (h *debug) Trigger(n *engine.Node) error {
	h.active = !h.active
	if h.active {
		n.Status(api.Status{})
	} else {
		n.Status(api.Status{
			Fill: api.FillGrey, Shape: api.ShapeRing, Text: "inactive",
		})
	}
	return nil
}

func (h *debug) render(msg api.Msg) (string, any) {
	switch h.Complete {
	case completeMsg:
		return "msg", msg
	case "", "false":
		return api.KeyPayload, msg.Payload()
	default:
		v, _ := getProperty(msg, string(h.Complete))
		return string(h.Complete), v
	}
}
