package nodes

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// inject emits a configured payload when triggered, once after
	// deploy, or on a repeating interval
	inject struct {
		Payload     any    `json:"payload"`
		PayloadType string `json:"payloadType"`
		Topic       string `json:"topic"`
		Repeat      number `json:"repeat"`
		Once        bool   `json:"once"`
		OnceDelay   number `json:"onceDelay"`

		static any
	}
)

const (
	payloadString = "str"
	payloadNumber = "num"
	payloadJSON   = "json"
	payloadBool   = "bool"
	payloadDate   = "date"
	payloadEnv    = "env"
)

func newInject(_ *engine.Node, cfg *api.NodeConfig) (engine.Handler, error) {
	h := &inject{PayloadType: payloadDate}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	if h.Repeat < 0 || h.OnceDelay < 0 {
		return nil, fmt.Errorf("%w: negative interval", ErrInvalidConfig)
	}

	switch h.PayloadType {
	case payloadString:
		h.static = toText(h.Payload)
	case payloadNumber:
		f, ok := toFloat(h.Payload)
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a number",
				ErrInvalidConfig, h.Payload)
		}
		h.static = f
	case payloadJSON:
		s, ok := h.Payload.(string)
		if !ok {
			h.static = h.Payload
			break
		}
		if !gjson.Valid(s) {
			return nil, fmt.Errorf("%w: invalid JSON payload", ErrInvalidConfig)
		}
		h.static = gjson.Parse(s).Value()
	case payloadBool:
		h.static = asBool(h.Payload)
	case payloadDate, payloadEnv:
	default:
		return nil, fmt.Errorf("%w: unknown payload type %q",
			ErrInvalidConfig, h.PayloadType)
	}
	return h, nil
}

func (h *inject) Start(n *engine.Node) {
	if h.Once {
		n.After(seconds(h.OnceDelay), func() {
			h.fire(n)
		})
	}
	if h.Repeat > 0 {
		n.Every(seconds(h.Repeat), func() {
			h.fire(n)
		})
	}
}

func (h *inject) Trigger(n *engine.Node) error {
	h.fire(n)
	return nil
}

func (h *inject) Receive(n *engine.Node, _ api.Msg, done engine.Done) {
	h.fire(n)
	done(nil)
}

func (h *inject) fire(n *engine.Node) {
	msg := api.NewMsg(h.payload(n))
	if h.Topic != "" {
		msg[api.KeyTopic] = h.Topic
	}
	n.Send(msg)
}

func (h *inject) payload(n *engine.Node) any {
	switch h.PayloadType {
	case payloadDate:
		return n.Now().UnixMilli()
	case payloadEnv:
		return n.Env(toText(h.Payload))
	default:
		return api.CloneValue(h.static)
	}
}
