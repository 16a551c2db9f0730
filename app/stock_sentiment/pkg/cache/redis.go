package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// RedisKeyPrefix redis 中缓存记录的前缀
const RedisKeyPrefix = "stock_sentiment:cache:"

// RedisStore 使用 redis 保存缓存记录，过期由 redis 和读取时的检查共同保证
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)

// NewRedisStore 从 URL 创建 redis 缓存，URL 无法解析时当作地址使用
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient 使用已有的 client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// WithClock 替换时钟，测试时使用
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func (s *RedisStore) key(key Key) string {
	return RedisKeyPrefix + key.Hash()
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, key Key) (model.Classification, bool) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Debugf("读取 redis 缓存失败 [%s]: %v", key, err)
		}
		return model.Classification{}, false
	}

	entry, err := decodeEntry(data, key, s.now())
	if err != nil {
		if !errors.Is(err, errExpired) {
			logger.L().Debugf("缓存记录无效，按未命中处理 [%s]: %v", key, err)
		}
		return model.Classification{}, false
	}
	return entry.Value, true
}

// Put implements Store，ttl 不大于 0 时记录立即过期，不写入
func (s *RedisStore) Put(ctx context.Context, key Key, value model.Classification, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := encodeEntry(key, value, ttl, s.now())
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close implements Store
func (s *RedisStore) Close() error {
	return s.client.Close()
}
