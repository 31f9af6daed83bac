package cache

import (
	"context"
	"errors"
	"time"

	"owl-restaurant/internal/store"
)

// RedisStore 多实例共享的缓存后端，键统一加 namespace
type RedisStore struct {
	kv        store.KV
	namespace string
}

func NewRedisStore(kv store.KV, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "owl-restaurant:cache:"
	}
	return &RedisStore{kv: kv, namespace: namespace}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.kv.Get(ctx, s.namespace+key)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.kv.Set(ctx, s.namespace+key, string(value), ttl)
}

// DeletePrefix SCAN + DEL
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.kv.ScanKeys(ctx, s.namespace+escapeGlob(prefix)+"*")
	if err != nil {
		return 0, err
	}
	n, err := s.kv.Del(ctx, keys...)
	return int(n), err
}

// escapeGlob 转义 SCAN MATCH 的通配字符
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
