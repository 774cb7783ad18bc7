package nodes

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/internal/script"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// function runs a Lua script per message. The script sees the message
	// as msg and returns a message, nil, or an array with one entry per
	// output port
	function struct {
		Func    string `json:"func"`
		Outputs int    `json:"outputs"`

		lua  *script.LuaEnv
		code *script.Compiled
	}
)

var ErrBadResult = errors.New("function returned an unsupported value")

func (o Options) newFunction(
	_ *engine.Node, cfg *api.NodeConfig,
) (engine.Handler, error) {
	h := &function{Outputs: 1, lua: o.Lua}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	code, err := o.Lua.Compile(h.Func, "msg", "node", "env")
	if err != nil {
		return nil, err
	}
	h.code = code
	return h, nil
}

func (h *function) Receive(n *engine.Node, msg api.Msg, done engine.Done) {
	res, err := h.lua.Call(h.code, msg, nodeTable(n), envTable(n))
	if err != nil {
		done(err)
		return
	}
	out, err := toOutput(res)
	if err != nil {
		done(err)
		return
	}
	if len(out) > h.Outputs {
		out = out[:h.Outputs]
	}
	n.SendAll(out)
	done(nil)
}

func nodeTable(n *engine.Node) map[string]any {
	return map[string]any{
		"id":   string(n.ID()),
		"name": n.Name(),
		"log": script.Func(func(args []any) any {
			n.Log("Function log", slog.String("text", joinArgs(args)))
			return nil
		}),
		"warn": script.Func(func(args []any) any {
			n.Warn("Function warning", slog.String("text", joinArgs(args)))
			return nil
		}),
		"send": script.Func(func(args []any) any {
			if len(args) == 0 {
				return nil
			}
			out, err := toOutput(args[0])
			if err != nil {
				n.Warn("Function send ignored", slog.Any("error", err))
				return nil
			}
			n.SendAll(out)
			return nil
		}),
		"status": script.Func(func(args []any) any {
			s := api.Status{}
			if len(args) > 0 {
				if m, ok := args[0].(map[string]any); ok {
					s.Fill = toText(m["fill"])
					s.Shape = toText(m["shape"])
					s.Text = toText(m["text"])
				}
			}
			n.Status(s)
			return nil
		}),
	}
}

func envTable(n *engine.Node) map[string]any {
	return map[string]any{
		"get": script.Func(func(args []any) any {
			if len(args) == 0 {
				return nil
			}
			return n.Env(toText(args[0]))
		}),
	}
}

// toOutput interprets a script result: a table is one message for port
// 0, an array addresses ports by position and may nest arrays of
// messages for a single port
func toOutput(v any) (api.Output, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return api.Output{{api.Msg(t)}}, nil
	case []any:
		out := make(api.Output, len(t))
		for port, e := range t {
			msgs, err := portMessages(e)
			if err != nil {
				return nil, err
			}
			out[port] = msgs
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadResult, v)
	}
}

func portMessages(v any) ([]api.Msg, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []api.Msg{api.Msg(t)}, nil
	case []any:
		res := make([]api.Msg, 0, len(t))
		for _, e := range t {
			switch m := e.(type) {
			case nil:
			case map[string]any:
				res = append(res, api.Msg(m))
			default:
				return nil, fmt.Errorf("%w: %T", ErrBadResult, e)
			}
		}
		return res, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadResult, v)
	}
}

func joinArgs(args []any) string {
	res := ""
	for i, a := range args {
		if i > 0 {
			res += " "
		}
		res += toText(a)
	}
	return res
}
