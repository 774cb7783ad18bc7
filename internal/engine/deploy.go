package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kode4food/wireflow/internal/events"
	"github.com/kode4food/wireflow/pkg/api"
	"github.com/kode4food/wireflow/pkg/log"
)

var (
	ErrDeployInProgress = errors.New("deploy already in progress")
	ErrRevisionConflict = errors.New("flow revision conflict")
	ErrInvalidFlows     = errors.New("invalid flows")
)

const (
	deployStatusSuccess = "success"
	deployStatusFailed  = "failed"
)

// Deploy replaces the running graph. The request's revision, when set,
// must match the running revision. Only one deploy runs at a time
func (e *Engine) Deploy(
	ctx context.Context, req *api.DeployRequest, typ api.DeploymentType,
) (*api.DeployResponse, error) {
	if !e.deploying.CompareAndSwap(false, true) {
		return nil, ErrDeployInProgress
	}
	defer e.deploying.Store(false)

	start := time.Now()
	st, err := e.deploy(ctx, req, typ)
	status := deployStatusSuccess
	if err != nil {
		status = deployStatusFailed
	}
	e.metrics.Deploys.WithLabelValues(string(typ), status).Inc()
	if err != nil {
		slog.Warn("Deploy failed",
			log.DeployType(typ), log.Error(err))
		return nil, err
	}
	e.metrics.DeployDuration.Observe(time.Since(start).Seconds())

	if err := e.hub.Publish(api.EventTypeDeploy, events.TopicDeploy,
		&api.DeployEvent{Rev: st.Rev, Type: typ},
	); err != nil {
		slog.Warn("Failed to publish deploy event", log.Error(err))
	}
	slog.Info("Flows deployed",
		log.DeployType(typ),
		log.Rev(st.Rev),
		slog.Int("nodes", e.NodeCount()),
		slog.Int("failed", len(e.graph.Load().failed)))
	return &api.DeployResponse{Rev: st.Rev}, nil
}

func (e *Engine) deploy(
	ctx context.Context, req *api.DeployRequest, typ api.DeploymentType,
) (*api.FlowState, error) {
	current := e.state.Load()
	if req.Rev != "" && req.Rev != current.Rev {
		return nil, fmt.Errorf("%w: expected %s, running %s",
			ErrRevisionConflict, req.Rev, current.Rev)
	}

	if typ == api.DeployReload {
		st, err := e.store.Load(ctx)
		if err != nil {
			return nil, err
		}
		p, err := buildPlan(st.Flows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFlows, err)
		}
		if err := e.sched.Do(ctx, func() { e.install(p, typ) }); err != nil {
			return nil, err
		}
		e.state.Store(st)
		return st, nil
	}

	p, err := buildPlan(req.Flows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFlows, err)
	}
	st, err := e.store.Save(ctx, req.Flows)
	if err != nil {
		return nil, err
	}
	if err := e.sched.Do(ctx, func() { e.install(p, typ) }); err != nil {
		return nil, err
	}
	e.state.Store(st)
	return st, nil
}

// install swaps in the graph described by p. It runs on the runtime loop:
// new instances are built and wired before the graph is swapped, replaced
// instances are closed after, and new instances are started last
func (e *Engine) install(p *plan, typ api.DeploymentType) {
	old := e.graph.Load()
	restart := restartSet(old, p, typ)

	g := newGraph(p.scopes)
	var created []*Node
	for _, spec := range p.nodes {
		if !restart.Has(spec.cfg.ID) {
			if n, ok := old.node(spec.cfg.ID); ok {
				n.update(spec, p.scopes)
				g.add(n)
				continue
			}
		}
		n := e.newNode(spec, p.scopes)
		e.construct(n)
		g.add(n)
		created = append(created, n)
	}
	g.index()
	e.graph.Store(g)

	for _, n := range old.order {
		if g.nodes[n.id] != n {
			e.closeNode(n)
		}
	}

	for _, n := range created {
		if n.failed != nil {
			continue
		}
		e.metrics.ActiveNodes.Inc()
		if s, ok := n.handler.(Starter); ok {
			n.protect(nil, func() { s.Start(n) })
		}
	}
}

// construct builds the node's handler. A failing factory marks the node
// failed; it stays out of the wire table
func (e *Engine) construct(n *Node) {
	defer func() {
		if r := recover(); r != nil {
			e.fail(n, fmt.Errorf("%w: %v", ErrNodePanicked, r))
		}
	}()

	switch n.kind {
	case kindInstance:
		n.handler = subflowInstance{}
		return
	case kindOutput:
		n.handler = subflowOutput{}
		return
	}

	f, err := e.registry.Get(n.cfg.Type)
	if err != nil {
		e.fail(n, err)
		return
	}
	h, err := f(n, n.cfg)
	if err != nil {
		e.fail(n, err)
		return
	}
	n.handler = h
}

func (e *Engine) fail(n *Node, err error) {
	n.failed = err
	n.closed.Store(true)
	e.sched.CancelPrefix(n.timerPrefix())
	e.metrics.NodeErrors.WithLabelValues(n.cfg.Type).Inc()
	n.logger.Error("Node failed to start", log.Error(err))
	n.Publish(api.EventTypeStatus, events.TopicStatus+string(n.id),
		&api.StatusEvent{
			Status: api.Status{
				Fill:  api.FillRed,
				Shape: api.ShapeRing,
				Text:  err.Error(),
			},
			Source: n.source(),
		},
	)
}

// closeNode marks the node closed, lets its handler release what it holds
// and cancels every timer it owns
func (e *Engine) closeNode(n *Node) {
	if !n.closed.CompareAndSwap(false, true) {
		return
	}
	e.metrics.ActiveNodes.Dec()
	if c, ok := n.handler.(Closer); ok {
		func() {
			defer func() {
				if r := recover(); r != nil {
					n.logger.Error("Node close panicked",
						log.Error(fmt.Errorf("%w: %v", ErrNodePanicked, r)))
				}
			}()
			if err := c.Close(n); err != nil {
				n.logger.Warn("Node close failed", log.Error(err))
			}
		}()
	}
	e.sched.CancelPrefix(n.timerPrefix())
}
