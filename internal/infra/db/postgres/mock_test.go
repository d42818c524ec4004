//go:build !integration

package postgres

import (
	"context"
	"time"

	"venture-idea-analyzer/internal/domain/model"
	"venture-idea-analyzer/internal/domain/ports/repository"
	red "venture-idea-analyzer/internal/infra/redis"
)

// --- Mocks for cache decorator tests ---

type mockInnerIdeaRepo struct {
	SaveFunc     func(ctx context.Context, tx repository.Tx, idea *model.Idea) error
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Idea, error)

	findCalls int
}

func (m *mockInnerIdeaRepo) Save(ctx context.Context, tx repository.Tx, idea *model.Idea) error {
	return m.SaveFunc(ctx, tx, idea)
}

func (m *mockInnerIdeaRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Idea, error) {
	m.findCalls++
	return m.FindByIDFunc(ctx, tx, id)
}

// mockRedisClient mocks our Redis client wrapper with a plain map.
type mockRedisClient struct {
	data map[string]string

	getErr error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func newMockRedisClient() *mockRedisClient {
	return &mockRedisClient{data: make(map[string]string)}
}

func (m *mockRedisClient) Ping(context.Context) error { return nil }

func (m *mockRedisClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	switch v := value.(type) {
	case string:
		m.data[key] = v
	case []byte:
		m.data[key] = string(v)
	}
	return nil
}

func (m *mockRedisClient) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", errCacheMiss
	}
	return v, nil
}

func (m *mockRedisClient) Incr(_ context.Context, key string) (int64, error) { return 1, nil }

func (m *mockRedisClient) Expire(context.Context, string, time.Duration) error { return nil }

func (m *mockRedisClient) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mockRedisClient) Close() error { return nil }

type cacheMissError struct{}

func (cacheMissError) Error() string { return "cache miss" }

var errCacheMiss = cacheMissError{}
