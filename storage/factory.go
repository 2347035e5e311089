package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/riven-blade/pricedash/config"
	"github.com/riven-blade/pricedash/pkg/logger"
)

const (
	TypeRedis  = config.StorageTypeRedis
	TypeMemory = config.StorageTypeMemory
)

// NewKVStorage 按配置创建键值存储
func NewKVStorage(ctx context.Context, conf *config.StorageConfig) (KVStorage, error) {
	if conf == nil {
		conf = config.NewStorageConfig()
	}

	switch conf.Type {
	case TypeRedis:
		redis, err := NewRedisStorage(ctx, conf.Redis)
		if err != nil {
			return nil, err
		}
		logger.Ctx(ctx).Info("Redis storage initialized")
		return redis, nil
	case TypeMemory, "":
		logger.Ctx(ctx).Info("memory storage initialized, symbol list will not survive restarts")
		return NewMemoryStorage(), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedType, "%q", conf.Type)
	}
}

// NewKVStorageWithFallback 创建失败时退回内存存储, 面板在没有Redis时仍可用
func NewKVStorageWithFallback(ctx context.Context, conf *config.StorageConfig) KVStorage {
	kv, err := NewKVStorage(ctx, conf)
	if err != nil {
		logger.Ctx(ctx).Warn("storage unavailable, falling back to memory", zap.Error(err))
		return NewMemoryStorage()
	}
	return kv
}

// Stats 存储统计信息
func Stats(kv KVStorage) map[string]interface{} {
	switch s := kv.(type) {
	case *RedisStorage:
		return s.GetRedisStats()
	default:
		return map[string]interface{}{"healthy": kv.IsHealthy(), "type": TypeMemory}
	}
}
