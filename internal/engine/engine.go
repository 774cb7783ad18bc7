package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kode4food/wireflow/internal/config"
	"github.com/kode4food/wireflow/internal/engine/scheduler"
	"github.com/kode4food/wireflow/internal/events"
	"github.com/kode4food/wireflow/internal/storage"
	"github.com/kode4food/wireflow/pkg/api"
	"github.com/kode4food/wireflow/pkg/log"
)

type (
	// Engine owns the runtime loop and the currently installed graph
	Engine struct {
		config     *config.Config
		registry   *Registry
		store      storage.Store
		hub        *events.Hub
		metrics    *Metrics
		sched      *scheduler.Scheduler
		graph      atomic.Pointer[Graph]
		state      atomic.Pointer[api.FlowState]
		deploying  atomic.Bool
		generation atomic.Uint64
		cancel     context.CancelFunc
		wg         sync.WaitGroup
	}

	// Dependencies holds the collaborators an Engine is built from. Clock
	// and Alarm default to wall-clock time
	Dependencies struct {
		Registry *Registry
		Store    storage.Store
		Hub      *events.Hub
		Metrics  *Metrics
		Clock    scheduler.Clock
		Alarm    scheduler.AlarmFactory
	}
)

var (
	ErrMissingDependency = errors.New("missing engine dependency")
	ErrInvalidConfig     = errors.New("invalid engine config")
	ErrShutdownTimeout   = errors.New("shutdown timeout exceeded")
	ErrNodeNotFound      = errors.New("node not found")
	ErrNotTriggerable    = errors.New("node cannot be triggered")
	ErrNotStarted        = errors.New("engine not started")
)

// New creates an engine. It does nothing until Start is called
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	if deps.Registry == nil || deps.Store == nil || deps.Hub == nil {
		return nil, ErrMissingDependency
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Alarm == nil {
		deps.Alarm = scheduler.NewAlarm
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}

	e := &Engine{
		config:   cfg,
		registry: deps.Registry,
		store:    deps.Store,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		sched:    scheduler.New(deps.Clock, deps.Alarm),
	}
	e.graph.Store(newGraph(nil))
	e.state.Store(storage.EmptyState())
	return e, nil
}

// Start runs the runtime loop and installs the stored flow document
func (e *Engine) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Go(func() {
		e.sched.Run(loopCtx)
	})

	st, err := e.store.Load(ctx)
	if err != nil {
		return err
	}

	p, err := buildPlan(st.Flows)
	if err != nil {
		slog.Error("Stored flows are invalid, starting empty",
			log.Rev(st.Rev), log.Error(err))
		return nil
	}

	if err := e.sched.Do(ctx, func() { e.install(p, api.DeployFull) }); err != nil {
		return err
	}
	e.state.Store(st)
	slog.Info("Engine started",
		log.Rev(st.Rev),
		slog.Int("nodes", e.NodeCount()))
	return nil
}

// Stop closes every node, releasing their timers and buffered messages,
// then stops the runtime loop
func (e *Engine) Stop() error {
	if e.cancel == nil {
		return ErrNotStarted
	}
	ctx, cancel := context.WithTimeout(
		context.Background(), e.config.ShutdownTimeout,
	)
	defer cancel()

	err := e.sched.Do(ctx, func() {
		old := e.graph.Swap(newGraph(nil))
		for _, n := range old.order {
			e.closeNode(n)
		}
	})
	e.cancel()
	e.wg.Wait()

	if err != nil {
		return ErrShutdownTimeout
	}
	slog.Info("Engine stopped")
	return nil
}

// WaitIdle blocks until no work is queued and no timer is due
func (e *Engine) WaitIdle(ctx context.Context) error {
	return e.sched.WaitIdle(ctx)
}

// Now returns the runtime clock's current time
func (e *Engine) Now() time.Time {
	return e.sched.Now()
}

// Registry returns the node type registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Hub returns the runtime event hub
func (e *Engine) Hub() *events.Hub {
	return e.hub
}

// Flows returns the running flow document and its revision
func (e *Engine) Flows() *api.FlowState {
	return e.state.Load()
}

// NodeCount returns the number of running node instances
func (e *Engine) NodeCount() int {
	g := e.graph.Load()
	return len(g.nodes) - len(g.failed)
}

// FailedNodes returns the nodes whose construction failed in the running
// graph, with the reason
func (e *Engine) FailedNodes() map[api.NodeID]error {
	g := e.graph.Load()
	res := make(map[api.NodeID]error, len(g.failed))
	for id, err := range g.failed {
		res[id] = err
	}
	return res
}

// Trigger fires a triggerable node, such as an inject node
func (e *Engine) Trigger(ctx context.Context, id api.NodeID) error {
	var err error
	doErr := e.sched.Do(ctx, func() {
		n, ok := e.graph.Load().node(id)
		if !ok {
			err = fmt.Errorf("%w: %s", ErrNodeNotFound, id)
			return
		}
		t, ok := n.handler.(Triggerable)
		if !ok {
			err = fmt.Errorf("%w: %s", ErrNotTriggerable, id)
			return
		}
		n.protect(nil, func() {
			err = t.Trigger(n)
		})
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Deliver hands msg to a node's input as if it arrived on a wire
func (e *Engine) Deliver(ctx context.Context, id api.NodeID, msg api.Msg) error {
	if msg == nil {
		msg = api.Msg{}
	}
	return e.Inspect(ctx, id, func(n *Node) {
		msg.EnsureID()
		e.deliver(n, msg)
	})
}

// Inspect runs fn on the runtime loop with the running node
func (e *Engine) Inspect(ctx context.Context, id api.NodeID, fn func(*Node)) error {
	var err error
	doErr := e.sched.Do(ctx, func() {
		n, ok := e.graph.Load().node(id)
		if !ok {
			err = fmt.Errorf("%w: %s", ErrNodeNotFound, id)
			return
		}
		fn(n)
	})
	if doErr != nil {
		return doErr
	}
	return err
}
