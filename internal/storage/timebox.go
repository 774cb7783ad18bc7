package storage

import (
	"context"
	"fmt"

	"github.com/kode4food/timebox"

	"github.com/kode4food/wireflow/internal/config"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// Timebox keeps the document as an event-sourced aggregate. Every save
	// raises a deployed event; loading replays the aggregate to its latest
	// document
	Timebox struct {
		tb   *timebox.Timebox
		exec *timebox.Executor[*api.FlowState]
	}

	flowsDeployed struct {
		Flows api.FlowSet `json:"flows"`
		Rev   string      `json:"rev"`
	}
)

const (
	flowsPrefix = "flows"

	timeboxCacheSize = 16

	eventFlowsDeployed = timebox.EventType("flows_deployed")
)

var (
	flowsKey = timebox.NewAggregateID(flowsPrefix)

	flowsAppliers = timebox.Appliers[*api.FlowState]{
		eventFlowsDeployed: timebox.MakeApplier(applyDeployed),
	}

	_ Store = (*Timebox)(nil)
)

// NewTimebox opens a timebox event store on the configured redis server
func NewTimebox(cfg *config.StoreConfig) (*Timebox, error) {
	tb, err := timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  timeboxCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create timebox: %w", err)
	}

	store, err := tb.NewStore(timebox.StoreConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Prefix:   cfg.Prefix,
	})
	if err != nil {
		_ = tb.Close()
		return nil, fmt.Errorf("failed to create flow store: %w", err)
	}

	return &Timebox{
		tb:   tb,
		exec: timebox.NewExecutor(store, EmptyState, flowsAppliers),
	}, nil
}

func (t *Timebox) Load(ctx context.Context) (*api.FlowState, error) {
	st, err := t.exec.Exec(ctx, flowsKey,
		func(*api.FlowState, *timebox.Aggregator[*api.FlowState]) error {
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return &api.FlowState{Flows: st.Flows.Clone(), Rev: st.Rev}, nil
}

func (t *Timebox) Save(
	ctx context.Context, flows api.FlowSet,
) (*api.FlowState, error) {
	next := NewState(flows)
	_, err := t.exec.Exec(ctx, flowsKey,
		func(_ *api.FlowState, ag *timebox.Aggregator[*api.FlowState]) error {
			return timebox.Raise(ag, eventFlowsDeployed, flowsDeployed{
				Flows: next.Flows,
				Rev:   next.Rev,
			})
		},
	)
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (t *Timebox) Close() error {
	return t.tb.Close()
}

func applyDeployed(
	_ *api.FlowState, _ *timebox.Event, data flowsDeployed,
) *api.FlowState {
	if data.Flows == nil {
		data.Flows = api.FlowSet{}
	}
	return &api.FlowState{Flows: data.Flows, Rev: data.Rev}
}
