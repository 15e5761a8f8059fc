package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/recallkit/core"
)

// RedisConfig 是 Redis 连接配置。
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// ScanCount 是每次 SCAN 的 COUNT 提示
	ScanCount int64 `koanf:"scan_count"`
}

// RedisStore 是 Redis 实现的 HashStore。
// 特征按桶存放在 Hash 中，倒排索引为普通 string key。
type RedisStore struct {
	client    *redis.Client
	scanCount int64
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.RemoteError(core.ModuleStore, err, "ping redis %s", cfg.Addr)
	}
	return NewRedisStoreFromClient(client, cfg.ScanCount), nil
}

// NewRedisStoreFromClient 包装已有的 client。
func NewRedisStoreFromClient(client *redis.Client, scanCount int64) *RedisStore {
	if scanCount <= 0 {
		scanCount = 1000
	}
	return &RedisStore{client: client, scanCount: scanCount}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, core.RemoteError(core.ModuleStore, err, "GET %s", key)
	}
	return val, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return core.RemoteError(core.ModuleStore, err, "SET %s", key)
	}
	return nil
}

func (r *RedisStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return make(map[string][]byte), nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, core.RemoteError(core.ModuleStore, err, "MGET %d keys", len(keys))
	}

	result := make(map[string][]byte, len(keys))
	for i, k := range keys {
		if s, ok := vals[i].(string); ok {
			result[k] = []byte(s)
		}
	}
	return result, nil
}

func (r *RedisStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	val, err := r.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, core.RemoteError(core.ModuleStore, err, "HGET %s %s", key, field)
	}
	return val, nil
}

func (r *RedisStore) HMGet(ctx context.Context, key string, fields []string) ([][]byte, error) {
	out := make([][]byte, len(fields))
	if len(fields) == 0 {
		return out, nil
	}
	vals, err := r.client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, core.RemoteError(core.ModuleStore, err, "HMGET %s (%d fields)", key, len(fields))
	}
	for i := range fields {
		if s, ok := vals[i].(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

func (r *RedisStore) HSet(ctx context.Context, key, field string, value []byte) error {
	if err := r.client.HSet(ctx, key, field, value).Err(); err != nil {
		return core.RemoteError(core.ModuleStore, err, "HSET %s %s", key, field)
	}
	return nil
}

// Scan 用 SCAN 游标遍历所有匹配 pattern 的 key，避免 KEYS 阻塞服务端。
func (r *RedisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	seen := make(map[string]struct{})
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, r.scanCount).Result()
		if err != nil {
			return nil, core.RemoteError(core.ModuleStore, err, "SCAN %s", pattern)
		}
		// SCAN 可能重复返回同一个 key
		for _, k := range batch {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ core.HashStore = (*RedisStore)(nil)
