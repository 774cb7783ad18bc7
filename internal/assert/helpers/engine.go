package helpers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kode4food/wireflow/internal/config"
	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/internal/events"
	"github.com/kode4food/wireflow/internal/storage"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// TestEngine is a started engine driven by a manual clock, with a
	// capture node type recording every message it receives
	TestEngine struct {
		*engine.Engine
		T        *testing.T
		Clock    *ManualClock
		Hub      *events.Hub
		Store    storage.Store
		Registry *engine.Registry
		Config   *config.Config

		mu       sync.Mutex
		captured map[api.NodeID][]api.Msg
	}

	// EngineOption customizes a TestEngine before it starts
	EngineOption func(*TestEngine)
)

// CaptureType is the node type that records received messages
const CaptureType = "capture"

const idleTimeout = 5 * time.Second

// WithTypes registers additional node types
func WithTypes(register func(*engine.Registry) error) EngineOption {
	return func(e *TestEngine) {
		require.NoError(e.T, register(e.Registry))
	}
}

// WithType registers a single node type
func WithType(typ string, f engine.Factory) EngineOption {
	return func(e *TestEngine) {
		require.NoError(e.T, e.Registry.Register(typ, f))
	}
}

// WithConfig adjusts the engine configuration
func WithConfig(fn func(*config.Config)) EngineOption {
	return func(e *TestEngine) {
		fn(e.Config)
	}
}

// WithStore replaces the in-memory flow store
func WithStore(s storage.Store) EngineOption {
	return func(e *TestEngine) {
		e.Store = s
	}
}

// NewTestEngine builds and starts an engine that is stopped when the test
// ends
func NewTestEngine(t *testing.T, opts ...EngineOption) *TestEngine {
	t.Helper()
	clock := NewManualClock()
	te := &TestEngine{
		T:        t,
		Clock:    clock,
		Hub:      events.NewHub(clock.Now),
		Store:    storage.NewMemory(),
		Registry: engine.NewRegistry(),
		Config:   config.NewDefaultConfig(),
		captured: map[api.NodeID][]api.Msg{},
	}
	require.NoError(t, te.Registry.Register(CaptureType, te.captureFactory))
	for _, opt := range opts {
		opt(te)
	}

	e, err := engine.New(te.Config, engine.Dependencies{
		Registry: te.Registry,
		Store:    te.Store,
		Hub:      te.Hub,
		Clock:    clock.Now,
		Alarm:    clock.NewAlarm,
	})
	require.NoError(t, err)
	te.Engine = e

	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() {
		_ = e.Stop()
		te.Hub.Close()
	})
	return te
}

// Deploy installs flows and waits for the runtime to settle
func (e *TestEngine) Deploy(
	typ api.DeploymentType, flows api.FlowSet,
) string {
	e.T.Helper()
	res, err := e.Engine.Deploy(context.Background(),
		&api.DeployRequest{Flows: flows}, typ,
	)
	require.NoError(e.T, err)
	e.Idle()
	return res.Rev
}

// Idle waits until no work is queued and no timer is due
func (e *TestEngine) Idle() {
	e.T.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), idleTimeout)
	defer cancel()
	require.NoError(e.T, e.WaitIdle(ctx))
}

// Advance moves the manual clock forward and waits for the runtime to
// process everything that came due
func (e *TestEngine) Advance(d time.Duration) {
	e.T.Helper()
	e.Idle()
	e.Clock.Advance(d)
	e.Idle()
}

// Step advances the clock in increments of d, settling after each one
func (e *TestEngine) Step(d time.Duration, times int) {
	e.T.Helper()
	for range times {
		e.Advance(d)
	}
}

// Send delivers msg to a node's input and waits for the runtime to settle
func (e *TestEngine) Send(id api.NodeID, msg api.Msg) {
	e.T.Helper()
	require.NoError(e.T, e.Deliver(context.Background(), id, msg))
	e.Idle()
}

// Fire triggers a node and waits for the runtime to settle
func (e *TestEngine) Fire(id api.NodeID) {
	e.T.Helper()
	require.NoError(e.T, e.Trigger(context.Background(), id))
	e.Idle()
}

// Inspect runs fn on the runtime loop with the node's handler
func (e *TestEngine) Inspect(id api.NodeID, fn func(*engine.Node)) {
	e.T.Helper()
	require.NoError(e.T, e.Engine.Inspect(context.Background(), id, fn))
}

// Received returns the messages a capture node has received so far
func (e *TestEngine) Received(id api.NodeID) []api.Msg {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]api.Msg(nil), e.captured[id]...)
}

// Payloads returns the payloads a capture node has received so far
func (e *TestEngine) Payloads(id api.NodeID) []any {
	msgs := e.Received(id)
	res := make([]any, len(msgs))
	for i, m := range msgs {
		res[i] = m.Payload()
	}
	return res
}

// Reset forgets all captured messages
func (e *TestEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.captured = map[api.NodeID][]api.Msg{}
}

func (e *TestEngine) captureFactory(
	_ *engine.Node, _ *api.NodeConfig,
) (engine.Handler, error) {
	return engine.HandlerFunc(
		func(n *engine.Node, msg api.Msg, done engine.Done) {
			e.mu.Lock()
			e.captured[n.ID()] = append(e.captured[n.ID()], msg)
			e.mu.Unlock()
			done(nil)
		},
	), nil
}
