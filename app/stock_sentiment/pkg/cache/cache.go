package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bytedance/sonic"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// SchemaVersion 缓存记录格式版本，不一致的记录按未命中处理
const SchemaVersion = 1

// Store 分类结果缓存，实现必须可并发使用
type Store interface {
	// Get 未命中、过期或记录损坏时返回 false，不返回错误
	Get(ctx context.Context, key Key) (model.Classification, bool)
	// Put 写入或覆盖，最后一次写入生效
	Put(ctx context.Context, key Key, value model.Classification, ttl time.Duration) error
	Close() error
}

// Key 缓存键：文章指纹、模型标识和 prompt 版本
type Key struct {
	Fingerprint   string
	ModelID       string
	PromptVersion string
}

// NewKey 从分类请求构造缓存键
func NewKey(req model.ClassificationRequest) Key {
	return Key{
		Fingerprint:   req.ArticleFingerprint,
		ModelID:       req.ModelID,
		PromptVersion: req.PromptVersion,
	}
}

// Hash 键的 sha256 十六进制表示，用作文件名和 redis key
func (k Key) Hash() string {
	h := sha256.Sum256([]byte(k.Fingerprint + "|" + k.ModelID + "|" + k.PromptVersion))
	return hex.EncodeToString(h[:])
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Fingerprint, k.ModelID, k.PromptVersion)
}

// encodeEntry 生成自描述的缓存记录
func encodeEntry(key Key, value model.Classification, ttl time.Duration, now time.Time) ([]byte, error) {
	entry := model.CacheEntry{
		SchemaVersion: SchemaVersion,
		Key:           key.Hash(),
		Fingerprint:   key.Fingerprint,
		ModelID:       key.ModelID,
		PromptVersion: key.PromptVersion,
		Value:         value,
		CreatedAt:     now.UTC(),
		TTLHours:      ttl.Hours(),
	}
	data, err := sonic.Marshal(&entry)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

// errExpired 记录完好但已过期
var errExpired = errors.New("cache entry expired")

// decodeEntry 解析并校验缓存记录，key 为零值时跳过键比对（清理时使用）
func decodeEntry(data []byte, key Key, now time.Time) (*model.CacheEntry, error) {
	var entry model.CacheEntry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCacheCorruption, err)
	}
	if entry.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", model.ErrCacheCorruption, entry.SchemaVersion)
	}
	if key != (Key{}) {
		if entry.Key != key.Hash() || entry.Fingerprint != key.Fingerprint ||
			entry.ModelID != key.ModelID || entry.PromptVersion != key.PromptVersion {
			return nil, fmt.Errorf("%w: key mismatch", model.ErrCacheCorruption)
		}
	}
	if _, err := model.ParseImpactDirection(string(entry.Value.ImpactDirection)); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCacheCorruption, err)
	}
	c := entry.Value.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		return nil, fmt.Errorf("%w: confidence %v", model.ErrCacheCorruption, c)
	}
	if entry.CreatedAt.IsZero() || entry.TTLHours < 0 {
		return nil, fmt.Errorf("%w: missing created_at or ttl", model.ErrCacheCorruption)
	}
	if entry.Expired(now) {
		return &entry, errExpired
	}
	return &entry, nil
}

// Nop 不做任何事的缓存，缓存关闭时使用
type Nop struct{}

// Ensure Nop implements Store
var _ Store = Nop{}

func (Nop) Get(context.Context, Key) (model.Classification, bool) {
	return model.Classification{}, false
}

func (Nop) Put(context.Context, Key, model.Classification, time.Duration) error { return nil }

func (Nop) Close() error { return nil }
