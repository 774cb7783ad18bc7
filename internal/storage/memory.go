package storage

import (
	"context"
	"sync"

	"github.com/kode4food/wireflow/pkg/api"
)

// Memory keeps the document in process memory
type Memory struct {
	mu    sync.Mutex
	state *api.FlowState
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{state: EmptyState()}
}

func (m *Memory) Load(context.Context) (*api.FlowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &api.FlowState{
		Flows: m.state.Flows.Clone(),
		Rev:   m.state.Rev,
	}, nil
}

func (m *Memory) Save(
	_ context.Context, flows api.FlowSet,
) (*api.FlowState, error) {
	st := NewState(flows.Clone())
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	return &api.FlowState{Flows: flows, Rev: st.Rev}, nil
}

func (m *Memory) Close() error {
	return nil
}
