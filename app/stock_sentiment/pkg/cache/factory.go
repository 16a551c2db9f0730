package cache

import (
	"context"
	"fmt"

	"github.com/iWorld-y/stock_sentiment/app/stock_sentiment/pkg/config"
)

// NewStore 根据配置创建缓存，缓存关闭时返回 Nop
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	if !cfg.CacheEnabled() {
		return Nop{}, nil
	}

	switch cfg.Cache.Backend {
	case "", "disk":
		return NewDiskStore(cfg.Cache.Dir)
	case "redis":
		return NewRedisStore(ctx, cfg.Cache.Redis.URL)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
}
