package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/wireflow/internal/config"
	"github.com/kode4food/wireflow/pkg/api"
)

// Redis keeps the document under a single key
type Redis struct {
	client *redis.Client
	key    string
}

var _ Store = (*Redis)(nil)

// NewRedis connects to the configured server and verifies it responds
func NewRedis(ctx context.Context, cfg *config.StoreConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{
		client: client,
		key:    cfg.Prefix + ":flows",
	}, nil
}

func (r *Redis) Load(ctx context.Context) (*api.FlowState, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return EmptyState(), nil
	}
	if err != nil {
		return nil, err
	}

	var st api.FlowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}
	return &st, nil
}

func (r *Redis) Save(
	ctx context.Context, flows api.FlowSet,
) (*api.FlowState, error) {
	st := NewState(flows)
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return nil, err
	}
	return st, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
