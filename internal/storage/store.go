// Package storage persists the deployed flow document. Every store keeps
// exactly one revision: the most recently saved document
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/kode4food/wireflow/internal/config"
	"github.com/kode4food/wireflow/pkg/api"
)

// Store loads and saves the flow document
type Store interface {
	// Load returns the stored document, or an empty state if none exists
	Load(ctx context.Context) (*api.FlowState, error)

	// Save replaces the stored document and returns it with its revision
	Save(ctx context.Context, flows api.FlowSet) (*api.FlowState, error)

	Close() error
}

var (
	ErrUnknownStoreKind = errors.New("unknown storage kind")
	ErrCorruptDocument  = errors.New("stored flow document is corrupt")
)

// New opens the store selected by the configuration
func New(ctx context.Context, cfg *config.StoreConfig) (Store, error) {
	switch cfg.Kind {
	case config.StoreMemory, "":
		return NewMemory(), nil
	case config.StoreRedis:
		return NewRedis(ctx, cfg)
	case config.StoreBlob:
		return NewBlob(ctx, cfg.BucketURL, cfg.Prefix)
	case config.StoreTimebox:
		return NewTimebox(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStoreKind, cfg.Kind)
	}
}

// NewState wraps a document with its revision
func NewState(flows api.FlowSet) *api.FlowState {
	if flows == nil {
		flows = api.FlowSet{}
	}
	return &api.FlowState{
		Flows: flows,
		Rev:   flows.Revision(),
	}
}

// EmptyState is the state of a store that has never been saved to
func EmptyState() *api.FlowState {
	return &api.FlowState{Flows: api.FlowSet{}}
}
