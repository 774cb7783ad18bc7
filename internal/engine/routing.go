package engine

import (
	"log/slog"
	"slices"

	"github.com/kode4food/wireflow/internal/events"
	"github.com/kode4food/wireflow/pkg/api"
	"github.com/kode4food/wireflow/pkg/log"
)

// maxErrorCount stops an error that a catch flow keeps re-raising on the
// same node
const maxErrorCount = 10

// handleError delivers a copy of msg, carrying the error, to the catch
// nodes that cover the reporting node. Errors nothing catches inside a
// subflow are raised again by the subflow instance node
func (e *Engine) handleError(n *Node, msg api.Msg, text string) {
	count := 1
	if id, prev, ok := errorSource(msg); ok && id == n.id {
		count = prev + 1
		if count >= maxErrorCount {
			n.logger.Warn("Error loop detected, message dropped",
				log.ErrorString(text), log.MsgID(msg.ID()))
			return
		}
	}

	src := n.source()
	src.Count = count
	if msg == nil {
		msg = api.Msg{}
	}

	g := e.graph.Load()
	reporter := n
	for {
		if g.catchError(reporter, msg, text, src) {
			return
		}
		s, ok := g.instanceScope(reporter.z)
		if !ok {
			break
		}
		inst, ok := g.node(s.instance)
		if !ok {
			break
		}
		reporter = inst
	}

	slog.Warn("Uncaught error",
		log.NodeID(n.id), log.NodeType(n.cfg.Type), log.FlowID(n.z),
		log.ErrorString(text), log.MsgID(msg.ID()))
	n.Publish(api.EventTypeError, events.TopicError, &api.ErrorEvent{
		Error:  text,
		Source: src,
		MsgID:  msg.ID(),
	})
}

func (g *Graph) catchError(
	reporter *Node, msg api.Msg, text string, src api.Source,
) bool {
	handled := false
	for _, c := range g.catchers[reporter.z] {
		scope, uncaught := c.handler.(Catcher).CatchScope()
		if len(scope) > 0 && !slices.Contains(scope, reporter.localID) {
			continue
		}
		if uncaught && handled {
			continue
		}
		errMsg := msg.Clone()
		errMsg[api.KeyError] = map[string]any{
			"message": text,
			"source": map[string]any{
				"id":    string(src.ID),
				"type":  src.Type,
				"name":  src.Name,
				"count": src.Count,
			},
		}
		errMsg.EnsureID()
		reporter.engine.deliver(c, errMsg)
		handled = true
	}
	return handled
}

// handleComplete delivers a copy of msg to the complete nodes that list n
func (e *Engine) handleComplete(n *Node, msg api.Msg) {
	g := e.graph.Load()
	for _, c := range g.completes[n.z] {
		scope := c.handler.(CompleteWatcher).CompleteScope()
		if !slices.Contains(scope, n.localID) {
			continue
		}
		e.deliver(c, msg.Clone())
	}
}

// Status records and publishes the node's status, and notifies the status
// nodes that watch it
func (n *Node) Status(s api.Status) {
	n.status = s
	n.Publish(api.EventTypeStatus, events.TopicStatus+string(n.id),
		&api.StatusEvent{Status: s, Source: n.source()},
	)
	n.engine.sched.Post(func() {
		n.engine.handleStatus(n, s)
	})
}

// CurrentStatus returns the last status the node reported
func (n *Node) CurrentStatus() api.Status {
	return n.status
}

func (e *Engine) handleStatus(n *Node, s api.Status) {
	g := e.graph.Load()
	for _, w := range g.watchers[n.z] {
		if w == n {
			continue
		}
		scope := w.handler.(StatusWatcher).StatusScope()
		if len(scope) > 0 && !slices.Contains(scope, n.localID) {
			continue
		}
		msg := api.Msg{
			"status": map[string]any{
				"fill":  s.Fill,
				"shape": s.Shape,
				"text":  s.Text,
				"source": map[string]any{
					"id":   string(n.id),
					"type": n.cfg.Type,
					"name": n.cfg.Name,
				},
			},
		}
		msg.EnsureID()
		e.deliver(w, msg)
	}
}

func errorSource(msg api.Msg) (api.NodeID, int, bool) {
	errObj, ok := msg[api.KeyError].(map[string]any)
	if !ok {
		return "", 0, false
	}
	src, ok := errObj["source"].(map[string]any)
	if !ok {
		return "", 0, false
	}
	id, _ := src["id"].(string)
	switch c := src["count"].(type) {
	case int:
		return api.NodeID(id), c, true
	case float64:
		return api.NodeID(id), int(c), true
	default:
		return api.NodeID(id), 0, true
	}
}
