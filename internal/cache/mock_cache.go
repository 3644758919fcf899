package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockCache is a mock implementation of the Cache interface for testing.
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, class Class, key string) ([]byte, bool, error) {
	args := m.Called(ctx, class, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockCache) Put(ctx context.Context, class Class, key string, payload []byte, ttl time.Duration) error {
	args := m.Called(ctx, class, key, payload, ttl)
	return args.Error(0)
}

func (m *MockCache) Invalidate(ctx context.Context, class Class) error {
	args := m.Called(ctx, class)
	return args.Error(0)
}

func (m *MockCache) Stats() map[Class]ClassStats {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[Class]ClassStats)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}
