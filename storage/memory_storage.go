package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

type memoryEntry struct {
	value    []byte
	expireAt time.Time // 零值表示不过期
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryStorage 进程内键值存储, 没有Redis时使用, 也用于测试
type MemoryStorage struct {
	mu     sync.RWMutex
	data   map[string]memoryEntry
	isOpen atomic.Bool
	now    func() time.Time
}

// NewMemoryStorage 创建已连接的内存存储
func NewMemoryStorage() *MemoryStorage {
	m := &MemoryStorage{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
	m.isOpen.Store(true)
	return m
}

func (m *MemoryStorage) Connect(ctx context.Context) error {
	m.isOpen.Store(true)
	return nil
}

func (m *MemoryStorage) Close() error {
	m.isOpen.Store(false)
	return nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	if !m.isOpen.Load() {
		return ErrConnectionClosed
	}
	return nil
}

func (m *MemoryStorage) IsHealthy() bool {
	return m.isOpen.Load()
}

func (m *MemoryStorage) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if key == "" {
		return ErrInvalidData("key cannot be empty")
	}
	if !m.isOpen.Load() {
		return ErrConnectionClosed
	}

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		entry.expireAt = m.now().Add(expiration)
	}

	m.mu.Lock()
	m.data[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidData("key cannot be empty")
	}
	if !m.isOpen.Load() {
		return nil, ErrConnectionClosed
	}

	m.mu.RLock()
	entry, ok := m.data[key]
	m.mu.RUnlock()

	if !ok || entry.expired(m.now()) {
		return nil, ErrNotFoundError("key not found: " + key)
	}
	return append([]byte(nil), entry.value...), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, keys ...string) error {
	if !m.isOpen.Load() {
		return ErrConnectionClosed
	}
	m.mu.Lock()
	for _, key := range keys {
		delete(m.data, key)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidData("key cannot be empty")
	}
	if !m.isOpen.Load() {
		return false, ErrConnectionClosed
	}
	m.mu.RLock()
	entry, ok := m.data[key]
	m.mu.RUnlock()
	return ok && !entry.expired(m.now()), nil
}
