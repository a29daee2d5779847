package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dropmail/backend/internal/domain"
)

// ErrCacheMiss 缓存未命中。
var ErrCacheMiss = errors.New("cache miss")

// Cache Redis 缓存实现（可选的邮箱地址读穿缓存，收件热路径减少数据库查询）。
type Cache struct {
	client *redis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例。
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	ctx := context.Background()

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// Close 关闭 Redis 连接。
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health 检查 Redis 连接健康状态。
func (c *Cache) Health() error {
	return c.client.Ping(c.ctx).Err()
}

// ========== 邮箱地址缓存 ==========

// CacheMailboxByAddress 按地址缓存邮箱信息。
func (c *Cache) CacheMailboxByAddress(mailbox *domain.Mailbox, ttl time.Duration) error {
	key := fmt.Sprintf("mailbox:addr:%s", mailbox.Address)
	data, err := json.Marshal(mailbox)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, ttl).Err()
}

// GetMailboxByAddress 按地址读取缓存的邮箱信息。
func (c *Cache) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	key := fmt.Sprintf("mailbox:addr:%s", address)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var mailbox domain.Mailbox
	if err := json.Unmarshal([]byte(data), &mailbox); err != nil {
		return nil, err
	}

	return &mailbox, nil
}

// InvalidateMailbox 删除地址对应的邮箱缓存（续期、停用、回收时调用）。
func (c *Cache) InvalidateMailbox(address string) error {
	key := fmt.Sprintf("mailbox:addr:%s", address)
	return c.client.Del(c.ctx, key).Err()
}
