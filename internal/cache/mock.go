package cache

import (
	"context"
	"sync"
	"time"
)

// MockCache is an in-memory Cache for tests and for running without Redis.
type MockCache struct {
	mu   sync.Mutex
	data map[string]struct{}
}

var _ Cache = (*MockCache)(nil)

func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string]struct{})}
}

func (m *MockCache) Close() error { return nil }

func (m *MockCache) IsSeen(ctx context.Context, sourceURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key(sourceURL)]
	return ok, nil
}

func (m *MockCache) MarkSeen(ctx context.Context, sourceURL string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key(sourceURL)] = struct{}{}
	return nil
}
