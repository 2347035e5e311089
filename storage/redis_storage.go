package storage

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/riven-blade/pricedash/config"
	"github.com/riven-blade/pricedash/pkg/logger"
)

// RedisStorage Redis 键值存储实现
type RedisStorage struct {
	config *config.RedisConfig
	client *redis.Client
	isOpen atomic.Bool
	mu     sync.RWMutex

	// 健康检查
	healthy atomic.Bool

	stats *KVStorageStats
}

// KVStorageStats Redis存储统计信息
type KVStorageStats struct {
	mu sync.RWMutex

	ConnectionCount    int64
	LastConnectionTime time.Time

	TotalOperations  int64
	FailedOps        int64
	LastError        time.Time
	LastErrorMessage string

	CacheHits   int64
	CacheMisses int64
}

// NewRedisStorage 创建并连接 Redis 存储实例, ctx 结束时自动关闭
func NewRedisStorage(ctx context.Context, conf *config.RedisConfig) (*RedisStorage, error) {
	if conf == nil {
		conf = config.NewRedisConfig()
	}
	if err := conf.Validate(); err != nil {
		return nil, ErrConnectionError("invalid redis config", err)
	}

	storage := &RedisStorage{
		config: conf,
		stats:  &KVStorageStats{},
	}

	if err := storage.Connect(ctx); err != nil {
		return nil, ErrConnectionError("failed to initialize Redis storage", err)
	}

	go func() {
		<-ctx.Done()
		if err := storage.Close(); err != nil {
			logger.Error("Redis storage close failed", zap.Error(err))
		}
	}()

	return storage, nil
}

// Connect 连接到 Redis
func (r *RedisStorage) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isOpen.Load() {
		return nil
	}

	r.stats.mu.Lock()
	r.stats.ConnectionCount++
	r.stats.LastConnectionTime = time.Now()
	r.stats.mu.Unlock()

	client := redis.NewClient(&redis.Options{
		Addr:            r.config.Addr(),
		Password:        r.config.Password,
		DB:              r.config.Database,
		DialTimeout:     r.config.ConnectionTimeout,
		ReadTimeout:     r.config.QueryTimeout,
		WriteTimeout:    r.config.QueryTimeout,
		MaxRetries:      r.config.MaxRetries,
		MaxRetryBackoff: time.Second,
		PoolSize:        r.config.PoolSize,
		IdleTimeout:     5 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, r.config.ConnectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		r.recordFailedOperation("ping failed")
		return ErrConnectionError("failed to ping Redis", err)
	}

	r.client = client
	r.isOpen.Store(true)
	r.healthy.Store(true)

	logger.Ctx(ctx).Info("Redis connected",
		zap.String("addr", r.config.Addr()),
		zap.Int("database", r.config.Database))
	return nil
}

// Close 关闭连接
func (r *RedisStorage) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOpen.Load() {
		return nil
	}
	r.isOpen.Store(false)
	r.healthy.Store(false)

	if r.client != nil {
		err := r.client.Close()
		r.client = nil
		if err != nil {
			return ErrConnectionError("failed to close Redis connection", err)
		}
	}

	logger.Info("Redis connection closed")
	return nil
}

// Ping 检查连接状态
func (r *RedisStorage) Ping(ctx context.Context) error {
	client, err := r.getClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.QueryTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		r.healthy.Store(false)
		r.recordFailedOperation("ping failed")
		return ErrConnectionError("ping failed", err)
	}
	r.healthy.Store(true)
	return nil
}

// IsHealthy 检查存储健康状态
func (r *RedisStorage) IsHealthy() bool {
	return r.isOpen.Load() && r.healthy.Load()
}

func (r *RedisStorage) getClient() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.isOpen.Load() || r.client == nil {
		return nil, ErrConnectionClosed
	}
	return r.client, nil
}

// Set 设置键值对
func (r *RedisStorage) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if key == "" {
		return ErrInvalidData("key cannot be empty")
	}
	client, err := r.getClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.QueryTimeout)
	defer cancel()

	if err := client.Set(ctx, key, value, expiration).Err(); err != nil {
		r.recordFailedOperation("set operation failed")
		return ErrQueryError("failed to set value", err)
	}
	r.recordOperation()
	return nil
}

// Get 获取值
func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidData("key cannot be empty")
	}
	client, err := r.getClient()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.QueryTimeout)
	defer cancel()

	result, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			r.recordLookup(false)
			return nil, ErrNotFoundError("key not found: " + key)
		}
		r.recordFailedOperation("get operation failed")
		return nil, ErrQueryError("failed to get value", err)
	}
	r.recordLookup(true)
	return result, nil
}

// Delete 删除键
func (r *RedisStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	client, err := r.getClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.QueryTimeout)
	defer cancel()

	if err := client.Del(ctx, keys...).Err(); err != nil {
		r.recordFailedOperation("delete operation failed")
		return ErrQueryError("failed to delete keys", err)
	}
	r.recordOperation()
	return nil
}

// Exists 检查键是否存在
func (r *RedisStorage) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidData("key cannot be empty")
	}
	client, err := r.getClient()
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.QueryTimeout)
	defer cancel()

	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		r.recordFailedOperation("exists operation failed")
		return false, ErrQueryError("failed to check key existence", err)
	}
	r.recordOperation()
	return n > 0, nil
}

func (r *RedisStorage) recordOperation() {
	r.stats.mu.Lock()
	r.stats.TotalOperations++
	r.stats.mu.Unlock()
}

func (r *RedisStorage) recordLookup(hit bool) {
	r.stats.mu.Lock()
	r.stats.TotalOperations++
	if hit {
		r.stats.CacheHits++
	} else {
		r.stats.CacheMisses++
	}
	r.stats.mu.Unlock()
}

func (r *RedisStorage) recordFailedOperation(msg string) {
	r.stats.mu.Lock()
	r.stats.TotalOperations++
	r.stats.FailedOps++
	r.stats.LastError = time.Now()
	r.stats.LastErrorMessage = msg
	r.stats.mu.Unlock()
}

// GetRedisStats 获取统计快照
func (r *RedisStorage) GetRedisStats() map[string]interface{} {
	r.stats.mu.RLock()
	defer r.stats.mu.RUnlock()

	stats := map[string]interface{}{
		"healthy":          r.IsHealthy(),
		"addr":             r.config.Addr(),
		"connection_count": r.stats.ConnectionCount,
		"total_operations": r.stats.TotalOperations,
		"failed_ops":       r.stats.FailedOps,
		"cache_hits":       r.stats.CacheHits,
		"cache_misses":     r.stats.CacheMisses,
	}
	if r.stats.LastErrorMessage != "" {
		stats["last_error"] = r.stats.LastErrorMessage
		stats["last_error_time"] = r.stats.LastError.Format(time.RFC3339)
	}
	return stats
}
