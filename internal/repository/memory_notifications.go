package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"owl-restaurant/internal/domain"
)

// MemoryNotificationsRepo supports notifications when DB is disabled.
type MemoryNotificationsRepo struct {
	mu    sync.RWMutex
	items map[string]*domain.Notification // notificationID -> Notification
}

func NewMemoryNotificationsRepo() *MemoryNotificationsRepo {
	return &MemoryNotificationsRepo{items: map[string]*domain.Notification{}}
}

var _ NotificationsRepository = (*MemoryNotificationsRepo)(nil)

func cloneNotification(n *domain.Notification) *domain.Notification {
	c := *n
	c.ReadBy = append([]domain.ReadMark{}, n.ReadBy...)
	if n.ReferenceID != nil {
		v := *n.ReferenceID
		c.ReferenceID = &v
	}
	return &c
}

func (r *MemoryNotificationsRepo) CreateNotification(_ context.Context, n *domain.Notification) (*domain.Notification, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ReferenceID != nil {
		for _, existing := range r.items {
			if existing.TenantID == n.TenantID && existing.BranchID == n.BranchID &&
				existing.Type == n.Type && existing.ReferenceID != nil && *existing.ReferenceID == *n.ReferenceID {
				return cloneNotification(existing), false, nil
			}
		}
	}
	if _, ok := r.items[n.NotificationID]; ok {
		return nil, false, ErrDuplicate
	}
	stored := cloneNotification(n)
	r.items[n.NotificationID] = stored
	return cloneNotification(stored), true, nil
}

func (r *MemoryNotificationsRepo) ListNotifications(_ context.Context, scope domain.Scope, filter NotificationFilter, page, size int) ([]*domain.Notification, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := filter.Now
	if now.IsZero() {
		now = time.Now()
	}
	all := []*domain.Notification{}
	for _, n := range r.items {
		if n.TenantID != scope.TenantID || n.BranchID != scope.BranchID || !visible(n, filter.Role) {
			continue
		}
		if !n.ExpiresAt.After(now) {
			continue
		}
		if filter.UnreadOnly && n.IsReadBy(filter.UserID) {
			continue
		}
		all = append(all, cloneNotification(n))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	start, end := pageBounds(len(all), page, size)
	return all[start:end], len(all), nil
}

func (r *MemoryNotificationsRepo) MarkRead(_ context.Context, scope domain.Scope, role domain.Role, notificationID, userID string, at time.Time) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[notificationID]
	if !ok || n.TenantID != scope.TenantID || n.BranchID != scope.BranchID || !visible(n, role) {
		return nil, ErrNotFound
	}
	if !n.IsReadBy(userID) {
		n.ReadBy = append(n.ReadBy, domain.ReadMark{UserID: userID, ReadAt: at})
	}
	return cloneNotification(n), nil
}

func (r *MemoryNotificationsRepo) MarkAllRead(_ context.Context, scope domain.Scope, role domain.Role, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, n := range r.items {
		if n.TenantID != scope.TenantID || n.BranchID != scope.BranchID || !visible(n, role) {
			continue
		}
		if !n.ExpiresAt.After(at) || n.IsReadBy(userID) {
			continue
		}
		n.ReadBy = append(n.ReadBy, domain.ReadMark{UserID: userID, ReadAt: at})
		count++
	}
	return count, nil
}

func (r *MemoryNotificationsRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, n := range r.items {
		if !n.ExpiresAt.After(now) {
			delete(r.items, id)
			count++
		}
	}
	return count, nil
}

func visible(n *domain.Notification, role domain.Role) bool {
	return role == "" || n.VisibleTo(role)
}
