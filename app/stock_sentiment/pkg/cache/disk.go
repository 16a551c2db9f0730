package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/logger"
	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/model"
)

// DiskStore 每个键一个 JSON 文件，写入使用临时文件加 rename 保证原子性
type DiskStore struct {
	dir string
	now func() time.Time
}

// Ensure DiskStore implements Store
var _ Store = (*DiskStore)(nil)

// NewDiskStore 创建磁盘缓存，目录不存在时自动创建
func NewDiskStore(dir string) (*DiskStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: cache dir is empty", model.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DiskStore{dir: dir, now: time.Now}, nil
}

// WithClock 替换时钟，测试时使用
func (s *DiskStore) WithClock(now func() time.Time) *DiskStore {
	s.now = now
	return s
}

// Dir 缓存目录
func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) path(key Key) string {
	return filepath.Join(s.dir, key.Hash()+".json")
}

// Get implements Store
func (s *DiskStore) Get(_ context.Context, key Key) (model.Classification, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.L().Debugf("读取缓存失败 [%s]: %v", key, err)
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

// Put implements Store
func (s *DiskStore) Put(_ context.Context, key Key, value model.Classification, ttl time.Duration) error {
	data, err := encodeEntry(key, value, ttl, s.now())
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key.Hash()+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// rename 成功后文件已不存在，忽略错误
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Prune 删除过期、损坏的记录以及残留的临时文件，返回删除的文件数
func (s *DiskStore) Prune(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}

	now := s.now()
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(s.dir, name)

		switch {
		case strings.HasSuffix(name, ".tmp"):
			// 只清理一小时前的临时文件，避免影响正在进行的写入
			info, err := e.Info()
			if err != nil || now.Sub(info.ModTime()) < time.Hour {
				continue
			}
		case strings.HasSuffix(name, ".json"):
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			entry, err := decodeEntry(data, Key{}, now)
			if err == nil && entry.Key+".json" == name {
				continue
			}
		default:
			continue
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.L().Warnf("删除缓存文件失败 [%s]: %v", name, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Close implements Store
func (s *DiskStore) Close() error { return nil }
