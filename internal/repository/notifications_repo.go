package repository

import (
	"context"
	"time"

	"owl-restaurant/internal/domain"
)

// NotificationsRepository 通知Repository接口
type NotificationsRepository interface {
	// CreateNotification 创建通知；ReferenceID 非空时按 (tenant, branch, type, reference_id) 去重
	// 已存在时原样返回已有记录，created=false
	CreateNotification(ctx context.Context, n *domain.Notification) (stored *domain.Notification, created bool, err error)

	// ListNotifications 按角色过滤（目标为 role 或 all；role 为空不过滤），未过期，按 created_at 倒序
	ListNotifications(ctx context.Context, scope domain.Scope, filter NotificationFilter, page, size int) ([]*domain.Notification, int, error)

	// MarkRead 将 userID 加入 read_by（已存在则不变）；该角色不可见时返回 ErrNotFound（role 为空不过滤）
	MarkRead(ctx context.Context, scope domain.Scope, role domain.Role, notificationID, userID string, at time.Time) (*domain.Notification, error)

	// MarkAllRead 将 userID 加入该角色可见的全部未读通知（role 为空表示全部），返回新增数量
	MarkAllRead(ctx context.Context, scope domain.Scope, role domain.Role, userID string, at time.Time) (int, error)

	// DeleteExpired 清理过期通知（跨租户，后台任务使用）
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// NotificationFilter 通知查询过滤器
type NotificationFilter struct {
	Role       domain.Role
	UserID     string
	UnreadOnly bool
	Now        time.Time
}
