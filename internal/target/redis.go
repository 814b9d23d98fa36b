package target

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig Redis 适配器配置
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// RedisCache 基于 go-redis 的缓存适配器
type RedisCache struct {
	client *redis.Client
	prefix string

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache 创建 Redis 适配器并校验连接。
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisCacheFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisCacheFromClient 使用已有客户端创建适配器。
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Execute 处理缓存操作。
func (c *RedisCache) Execute(ctx context.Context, op Operation) Result {
	switch o := op.(type) {
	case CacheGet:
		v, err := c.client.Get(ctx, c.prefix+o.Key).Bytes()
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			return Result{Success: true}
		}
		if err != nil {
			return Fail("redis", err)
		}
		c.hits.Add(1)
		return Result{Success: true, Hit: true, Bytes: int64(len(v))}
	case CacheSet:
		if err := c.client.Set(ctx, c.prefix+o.Key, o.Value, o.TTL).Err(); err != nil {
			return Fail("redis", err)
		}
		return Result{Success: true, Bytes: int64(len(o.Value))}
	case CacheDelete:
		if err := c.client.Del(ctx, c.prefix+o.Key).Err(); err != nil {
			return Fail("redis", err)
		}
		return OK()
	default:
		return unsupported(op)
	}
}

// Stats 返回客户端侧的命中统计，不包含服务端淘汰数。
func (c *RedisCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close 关闭客户端。
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// pingTimeout bounds connection checks made by callers holding no deadline.
const pingTimeout = 5 * time.Second

// Ping 检查连接。
func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}
