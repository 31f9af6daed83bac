// Package cache 聚合查询结果缓存（dashboard / analytics），由订单、桌台、支付的写操作按前缀失效
package cache

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
)

// 逻辑前缀
const (
	PrefixDashboard = "dashboard"
	PrefixAnalytics = "analytics"
)

// Store 缓存后端
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix 删除所有以 prefix 开头的键，返回删除数量
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Cache 对 Store 的包装：统一 key 规则，失效失败只记录日志
type Cache struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: store, logger: logger}
}

// Key prefix:tenant:branch:path?sorted-query
func Key(prefix string, scope domain.Scope, path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(scopePrefix(prefix, scope))
	b.WriteString(path)
	if len(query) > 0 {
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('?')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			vals := append([]string(nil), query[k]...)
			sort.Strings(vals)
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(strings.Join(vals, ",")))
		}
	}
	return b.String()
}

func scopePrefix(prefix string, scope domain.Scope) string {
	return prefix + ":" + scope.Join(":") + ":"
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return v, ok
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("Cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate 删除该 branch 下指定逻辑前缀的全部条目（粗粒度，不追踪具体依赖）
func (c *Cache) Invalidate(ctx context.Context, scope domain.Scope, prefixes ...string) {
	for _, p := range prefixes {
		n, err := c.store.DeletePrefix(ctx, scopePrefix(p, scope))
		if err != nil {
			c.logger.Warn("Cache invalidation failed",
				zap.String("prefix", p),
				zap.String("tenant_id", scope.TenantID),
				zap.String("branch_id", scope.BranchID),
				zap.Error(err),
			)
			continue
		}
		if n > 0 {
			c.logger.Debug("Cache invalidated", zap.String("prefix", p), zap.Int("entries", n))
		}
	}
}
