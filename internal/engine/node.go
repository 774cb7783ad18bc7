package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/kode4food/wireflow/pkg/api"
	"github.com/kode4food/wireflow/pkg/log"
)

type (
	// Node is a running instance of one configured node. Its methods are
	// meant to be called from the runtime loop; code running elsewhere
	// should hand work back with Post
	Node struct {
		engine  *Engine
		handler Handler
		cfg     *api.NodeConfig
		logger  *slog.Logger
		failed  error
		inputs  []*Node
		ports   [][]*Node
		scopes  map[api.FlowID]*flowScope
		status  api.Status

		id          api.NodeID
		localID     api.NodeID
		z           api.FlowID
		root        api.FlowID
		kind        nodeKind
		fingerprint string
		inputIDs    []api.NodeID
		instance    string
		timerSeq    uint64
		closed      atomic.Bool
	}

	// TimerID identifies a timer created by After or Every
	TimerID uint64
)

const timerPathRoot = "node"

var ErrNodePanicked = errors.New("node panicked")

func (e *Engine) newNode(
	spec *nodeSpec, scopes map[api.FlowID]*flowScope,
) *Node {
	n := &Node{
		engine:   e,
		instance: strconv.FormatUint(e.generation.Add(1), 10),
	}
	n.update(spec, scopes)
	n.logger = slog.Default().With(
		log.NodeID(n.id), log.NodeType(n.cfg.Type), log.FlowID(n.z),
	)
	return n
}

func (n *Node) update(spec *nodeSpec, scopes map[api.FlowID]*flowScope) {
	n.cfg = spec.cfg
	n.scopes = scopes
	n.id = spec.cfg.ID
	n.localID = spec.localID
	n.z = spec.cfg.Z
	n.root = spec.root
	n.kind = spec.kind
	n.fingerprint = spec.fingerprint
	n.inputIDs = spec.inputs
}

// ID returns the node's global id. Nodes inside subflow instances carry
// the instance id as a prefix
func (n *Node) ID() api.NodeID {
	return n.id
}

// LocalID returns the id the node was configured with
func (n *Node) LocalID() api.NodeID {
	return n.localID
}

// Type returns the node type name
func (n *Node) Type() string {
	return n.cfg.Type
}

// FlowID returns the tab or subflow instance the node belongs to
func (n *Node) FlowID() api.FlowID {
	return n.z
}

// Name returns the configured name, which may be empty
func (n *Node) Name() string {
	return n.cfg.Name
}

// Config returns the node's configuration
func (n *Node) Config() *api.NodeConfig {
	return n.cfg
}

// Handler returns the node's behavior
func (n *Node) Handler() Handler {
	return n.handler
}

// Closed reports whether the node has been removed from the running graph
func (n *Node) Closed() bool {
	return n.closed.Load()
}

// Now returns the runtime clock's current time
func (n *Node) Now() time.Time {
	return n.engine.sched.Now()
}

// MaxKeptMsgs is the bound on messages a sequencing node may buffer
func (n *Node) MaxKeptMsgs() int {
	return n.engine.config.MaxKeptMsgs
}

// LinkCallTimeout is the default time a link call waits for its return
func (n *Node) LinkCallTimeout() time.Duration {
	return n.engine.config.LinkCallTimeout
}

// Env resolves an environment variable through the node's subflow
// instances, then its tab, then the process environment
func (n *Node) Env(name string) string {
	for s := n.scopes[n.z]; s != nil; s = n.scopes[s.parent] {
		if v, ok := s.env[name]; ok {
			return v
		}
	}
	return os.Getenv(name)
}

// Post queues fn on the runtime loop. It is safe to call from any
// goroutine; fn is skipped if the node has been closed by then
func (n *Node) Post(fn func()) {
	n.engine.sched.Post(func() {
		if n.Closed() {
			return
		}
		n.protect(nil, fn)
	})
}

// Publish sends an event to runtime event subscribers
func (n *Node) Publish(typ api.EventType, topic string, data any) {
	if err := n.engine.hub.Publish(typ, topic, data); err != nil {
		n.logger.Warn("Failed to publish event", log.Error(err))
	}
}

// Log writes an informational record tagged with the node
func (n *Node) Log(msg string, args ...any) {
	n.logger.Info(msg, args...)
}

// Warn writes a warning tagged with the node
func (n *Node) Warn(msg string, args ...any) {
	n.logger.Warn(msg, args...)
}

// Error logs err and routes it, with msg, to the catch nodes in scope
func (n *Node) Error(err error, msg api.Msg) {
	attrs := []any{log.Error(err)}
	if msg != nil {
		attrs = append(attrs, log.MsgID(msg.ID()))
	}
	n.logger.Error("Node error", attrs...)
	n.engine.metrics.NodeErrors.WithLabelValues(n.cfg.Type).Inc()
	n.engine.sched.Post(func() {
		n.engine.handleError(n, msg, err.Error())
	})
}

// After runs fn on the runtime loop once d has elapsed
func (n *Node) After(d time.Duration, fn func()) TimerID {
	id := n.nextTimer()
	n.schedule(id, n.Now().Add(d), func() error {
		n.protect(nil, fn)
		return nil
	})
	return id
}

// Every runs fn on the runtime loop each time d elapses. Ticks are spaced
// from the first deadline so they do not drift
func (n *Node) Every(d time.Duration, fn func()) TimerID {
	id := n.nextTimer()
	var tick func(at time.Time)
	tick = func(at time.Time) {
		n.schedule(id, at, func() error {
			tick(at.Add(d))
			n.protect(nil, fn)
			return nil
		})
	}
	tick(n.Now().Add(d))
	return id
}

// CancelTimer stops a timer created by After or Every
func (n *Node) CancelTimer(id TimerID) {
	n.engine.sched.Cancel(n.timerPath(id))
}

// PendingTimers returns the number of timers the node has scheduled
func (n *Node) PendingTimers() int {
	return n.engine.sched.Pending(n.timerPrefix())
}

func (n *Node) nextTimer() TimerID {
	n.timerSeq++
	return TimerID(n.timerSeq)
}

func (n *Node) schedule(id TimerID, at time.Time, fn func() error) {
	if n.Closed() {
		return
	}
	n.engine.sched.Schedule(n.timerPath(id), at, fn)
}

func (n *Node) timerPath(id TimerID) []string {
	return append(n.timerPrefix(), strconv.FormatUint(uint64(id), 10))
}

func (n *Node) timerPrefix() []string {
	return []string{timerPathRoot, string(n.id), n.instance}
}

// protect runs fn, converting a panic into an error reported by the node
func (n *Node) protect(msg api.Msg, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.Error(fmt.Errorf("%w: %v", ErrNodePanicked, r), msg)
		}
	}()
	fn()
}

func (n *Node) source() api.Source {
	return api.Source{
		ID:   n.id,
		Type: n.cfg.Type,
		Name: n.cfg.Name,
	}
}
