package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/taiyou100001/rag-interview-bot/internal/config"
)

// ErrCacheMiss 快取未命中。
// 「未配置快取」與「快取故障」走同一條路徑：一律視為未命中，
// 檢索正確性不依賴快取存在。
var ErrCacheMiss = errors.New("快取未命中")

// Cache 檢索結果快取能力。逐出僅依 TTL，不做容量逐出。
type Cache interface {
	// Get 取出快取值，不存在或過期時回傳 ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 寫入快取值並設定存活時間
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NoopCache 永遠未命中的空實作，未配置 Redis 時的預設值
type NoopCache struct{}

var _ Cache = NoopCache{}

// Get 永遠回傳 ErrCacheMiss
func (NoopCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set 不做任何事
func (NoopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

// RedisCache 以 Redis 為後端的檢索快取
type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache 建立 Redis 快取連線
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis 配置不能為空")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address 為必填")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries: cfg.MaxRetries,
	}

	client := redis.NewClient(opt)

	// 記錄所有 Redis 操作的追蹤資訊
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("掛載 Redis OpenTelemetry 追蹤失敗: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("連線 Redis %s 失敗: %w", cfg.Address, err)
	}

	return &RedisCache{client: client}, nil
}

// Get 取出快取值
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return data, nil
}

// Set 寫入快取值並設定 TTL
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close 關閉 Redis 連線
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
