package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ikkim/marketplace-ingest/config"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// Init initializes Redis connection
func Init(cfg *config.RedisConfig) error {
	logger.Info("Initializing Redis connection", map[string]interface{}{
		"host": cfg.Host,
		"port": cfg.Port,
		"db":   cfg.DB,
	})

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", err, map[string]interface{}{
			"host": cfg.Host,
			"port": cfg.Port,
		})
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established successfully", nil)
	return nil
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	return client
}

// Close closes the Redis connection
func Close() error {
	if client != nil {
		logger.Info("Closing Redis connection", nil)
		return client.Close()
	}
	return nil
}

// KeyCache is a string cache with expiry.
type KeyCache struct {
	client *redis.Client
	prefix string
}

func NewKeyCache(c *redis.Client, prefix string) *KeyCache {
	return &KeyCache{client: c, prefix: prefix}
}

// Get returns ok=false on a cache miss.
func (k *KeyCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := k.client.Get(ctx, k.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		logger.Error("Failed to read cache", err, map[string]interface{}{
			"prefix": k.prefix,
		})
		return "", false, err
	}
	return val, true, nil
}

func (k *KeyCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return k.client.Set(ctx, k.prefix+key, value, ttl).Err()
}

func (k *KeyCache) Delete(ctx context.Context, key string) error {
	return k.client.Del(ctx, k.prefix+key).Err()
}

// 토큰이 일치할 때만 삭제 (다른 프로세스가 다시 잡은 락은 건드리지 않음)
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a per-key mutual exclusion lock shared between processes.
type RunLock struct {
	client *redis.Client
	prefix string
}

func NewRunLock(c *redis.Client, prefix string) *RunLock {
	return &RunLock{client: c, prefix: prefix}
}

// Acquire takes the lock for ttl. It returns the release token, or ok=false
// when another holder has it.
func (l *RunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		logger.Error("Failed to acquire lock", err, map[string]interface{}{
			"key": l.prefix + key,
		})
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	logger.Debug("Lock acquired", map[string]interface{}{
		"key": l.prefix + key,
		"ttl": ttl.String(),
	})
	return token, true, nil
}

// Release drops the lock if token still owns it.
func (l *RunLock) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Int()
	if err != nil {
		logger.Error("Failed to release lock", err, map[string]interface{}{
			"key": l.prefix + key,
		})
		return err
	}
	if n == 0 {
		logger.Warn("Lock expired before release", map[string]interface{}{
			"key": l.prefix + key,
		})
	}
	return nil
}
