package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/realtime"
	"owl-restaurant/internal/repository"
)

// DefaultNotificationRetention 通知保留时长
const DefaultNotificationRetention = 7 * 24 * time.Hour

// NotificationService 通知服务接口
type NotificationService interface {
	// Notify 系统事件通知（去重），仅在新建时广播 new-notification
	Notify(ctx context.Context, req NotifyRequest) (*domain.Notification, bool, error)
	// CreateOffer 管理员发布优惠 / 公告
	CreateOffer(ctx context.Context, req CreateOfferRequest) (*domain.Notification, error)
	ListNotifications(ctx context.Context, req ListNotificationsRequest) (*ListNotificationsResponse, error)
	MarkRead(ctx context.Context, req MarkReadRequest) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, req MarkAllReadRequest) (*MarkAllReadResponse, error)
	// PurgeExpired 清理过期通知（后台任务）
	PurgeExpired(ctx context.Context) (int, error)
}

type notificationService struct {
	lifecycle
	retention time.Duration
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(deps Dependencies, retention time.Duration) NotificationService {
	if retention <= 0 {
		retention = DefaultNotificationRetention
	}
	return &notificationService{lifecycle: newLifecycle(deps), retention: retention}
}

// NotifyRequest 系统通知请求
type NotifyRequest struct {
	Scope       domain.Scope
	Type        domain.NotificationType
	TargetRole  domain.Role
	Title       string
	Message     string
	ReferenceID string // 非空时参与去重
	CreatedBy   string
}

func (s *notificationService) Notify(ctx context.Context, req NotifyRequest) (*domain.Notification, bool, error) {
	if !req.Type.Valid() {
		return nil, false, domain.Validation("invalid notification type")
	}
	target := req.TargetRole
	if target == "" {
		target = domain.RoleAll
	}

	now := s.now()
	n := &domain.Notification{
		NotificationID: uuid.NewString(),
		TenantID:       req.Scope.TenantID,
		BranchID:       req.Scope.BranchID,
		Type:           req.Type,
		TargetRole:     target,
		Title:          req.Title,
		Message:        req.Message,
		ReadBy:         []domain.ReadMark{},
		CreatedBy:      req.CreatedBy,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.retention),
	}
	if req.ReferenceID != "" {
		n.ReferenceID = strPtr(req.ReferenceID)
	}

	stored, created, err := s.Notifications.CreateNotification(ctx, n)
	if err != nil {
		return nil, false, domain.Internal("failed to create notification", err)
	}
	if created {
		// 推送到 branch 房间，客户端按 target_role 自行过滤
		s.Bus.Publish(ctx, req.Scope, realtime.EventNewNotification, stored)
	}
	return stored, created, nil
}

// notifyEffect 作为副作用发出的系统通知
func notifyEffect(n NotificationService, req NotifyRequest) Effect {
	return Effect{
		Name: "notify:" + string(req.Type),
		Run: func(ctx context.Context) error {
			if n == nil {
				return nil
			}
			_, _, err := n.Notify(ctx, req)
			return err
		},
	}
}

// CreateOfferRequest 发布优惠 / 公告请求
type CreateOfferRequest struct {
	Actor      domain.Actor
	Type       domain.NotificationType // offer（默认）或 announcement
	Title      string
	Message    string
	TargetRole string // 非法值回退为 all
}

func (s *notificationService) CreateOffer(ctx context.Context, req CreateOfferRequest) (*domain.Notification, error) {
	if err := authorize(req.Actor, domain.OpCreateOffer); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	message := strings.TrimSpace(req.Message)
	if title == "" || message == "" {
		return nil, domain.Validation("title and message are required")
	}
	typ := req.Type
	if typ == "" {
		typ = domain.NotifyOffer
	}
	if typ != domain.NotifyOffer && typ != domain.NotifyAnnouncement {
		return nil, domain.Validation("type must be offer or announcement")
	}

	n, _, err := s.Notify(ctx, NotifyRequest{
		Scope:      req.Actor.Scope(),
		Type:       typ,
		TargetRole: domain.NormalizeNotificationTarget(req.TargetRole),
		Title:      title,
		Message:    message,
		CreatedBy:  req.Actor.UserID,
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Offer notification created",
		zap.String("tenant_id", n.TenantID),
		zap.String("branch_id", n.BranchID),
		zap.String("notification_id", n.NotificationID),
		zap.String("target_role", string(n.TargetRole)),
	)
	return n, nil
}

// ListNotificationsRequest 查询通知请求
type ListNotificationsRequest struct {
	Actor      domain.Actor
	UnreadOnly bool
	Page       int
	Size       int
}

// ListNotificationsResponse 查询通知响应
type ListNotificationsResponse struct {
	Items       []*domain.Notification `json:"items"`
	Total       int                    `json:"total"`
	UnreadCount int                    `json:"unread_count"`
}

// roleFilter admin / superadmin 查看 branch 内全部通知
func roleFilter(actor domain.Actor) domain.Role {
	if actor.Role.IsPrivileged() {
		return ""
	}
	return actor.Role
}

func (s *notificationService) ListNotifications(ctx context.Context, req ListNotificationsRequest) (*ListNotificationsResponse, error) {
	if err := authorize(req.Actor, domain.OpViewNotifications); err != nil {
		return nil, err
	}
	scope := req.Actor.Scope()
	now := s.now()

	items, total, err := s.Notifications.ListNotifications(ctx, scope, repository.NotificationFilter{
		Role:       roleFilter(req.Actor),
		UserID:     req.Actor.UserID,
		UnreadOnly: req.UnreadOnly,
		Now:        now,
	}, req.Page, req.Size)
	if err != nil {
		s.Logger.Error("ListNotifications failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
		return nil, domain.Internal("failed to list notifications", err)
	}

	unread := total
	if !req.UnreadOnly {
		_, unread, err = s.Notifications.ListNotifications(ctx, scope, repository.NotificationFilter{
			Role:       roleFilter(req.Actor),
			UserID:     req.Actor.UserID,
			UnreadOnly: true,
			Now:        now,
		}, 1, 1)
		if err != nil {
			return nil, domain.Internal("failed to count unread notifications", err)
		}
	}
	return &ListNotificationsResponse{Items: items, Total: total, UnreadCount: unread}, nil
}

// MarkReadRequest 标记单条已读
type MarkReadRequest struct {
	Actor          domain.Actor
	NotificationID string
}

func (s *notificationService) MarkRead(ctx context.Context, req MarkReadRequest) (*domain.Notification, error) {
	if err := authorize(req.Actor, domain.OpViewNotifications); err != nil {
		return nil, err
	}
	if req.NotificationID == "" {
		return nil, domain.Validation("notification_id is required")
	}
	scope := req.Actor.Scope()
	n, err := s.Notifications.MarkRead(ctx, scope, roleFilter(req.Actor), req.NotificationID, req.Actor.UserID, s.now())
	if err != nil {
		return nil, storageErr(err, "Notification", "mark notification read")
	}

	// 同一用户的其他设备据此同步已读状态
	s.run("notification.read", s.broadcast(scope, realtime.EventNotificationsRead, map[string]any{
		"notification_id": n.NotificationID,
		"user_id":         req.Actor.UserID,
	}))
	return n, nil
}

// MarkAllReadRequest 全部标记已读
type MarkAllReadRequest struct {
	Actor domain.Actor
}

// MarkAllReadResponse 新标记的数量
type MarkAllReadResponse struct {
	Marked int `json:"marked"`
}

func (s *notificationService) MarkAllRead(ctx context.Context, req MarkAllReadRequest) (*MarkAllReadResponse, error) {
	if err := authorize(req.Actor, domain.OpViewNotifications); err != nil {
		return nil, err
	}
	scope := req.Actor.Scope()
	n, err := s.Notifications.MarkAllRead(ctx, scope, roleFilter(req.Actor), req.Actor.UserID, s.now())
	if err != nil {
		return nil, domain.Internal("failed to mark notifications read", err)
	}

	s.run("notification.read_all", s.broadcast(scope, realtime.EventNotificationsReadAll, map[string]any{
		"user_id": req.Actor.UserID,
		"marked":  n,
	}))
	return &MarkAllReadResponse{Marked: n}, nil
}

func (s *notificationService) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.Notifications.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, domain.Internal("failed to purge notifications", err)
	}
	if n > 0 {
		s.Logger.Info("Purged expired notifications", zap.Int("count", n))
	}
	return n, nil
}
