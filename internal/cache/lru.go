package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// LRUStore 进程内 容量上限 + TTL 的 LRU
// 过期条目在读取时视为未命中并删除；写入满容量时淘汰最久未访问的条目
type LRUStore struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUStore capacity <= 0 时使用 500
func NewLRUStore(capacity int) *LRUStore {
	if capacity <= 0 {
		capacity = 500
	}
	return &LRUStore{
		capacity: capacity,
		ll:       list.New(),
		items:    map[string]*list.Element{},
		now:      time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (s *LRUStore) WithClock(now func() time.Time) *LRUStore {
	s.now = now
	return s
}

var _ Store = (*LRUStore)(nil)

func (s *LRUStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*lruEntry)
	if !s.now().Before(e.expiresAt) {
		s.removeElement(el)
		return nil, false, nil
	}
	s.ll.MoveToFront(el)
	return e.value, true, nil
}

func (s *LRUStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(ttl)
	if el, ok := s.items[key]; ok {
		e := el.Value.(*lruEntry)
		e.value = value
		e.expiresAt = expiresAt
		s.ll.MoveToFront(el)
		return nil
	}
	if s.ll.Len() >= s.capacity {
		if oldest := s.ll.Back(); oldest != nil {
			s.removeElement(oldest)
		}
	}
	s.items[key] = s.ll.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
	return nil
}

func (s *LRUStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, el := range s.items {
		if strings.HasPrefix(key, prefix) {
			s.removeElement(el)
			n++
		}
	}
	return n, nil
}

// Len 当前条目数（含尚未被读取清理的过期条目）
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

func (s *LRUStore) removeElement(el *list.Element) {
	s.ll.Remove(el)
	delete(s.items, el.Value.(*lruEntry).key)
}
