package storage

import (
	"context"
	"time"
)

// KVStorage 键值存储接口
type KVStorage interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error
	IsHealthy() bool

	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	// Get 不存在时返回的错误满足 errors.Is(err, ErrDataNotFound)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}
