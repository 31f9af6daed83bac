package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/service"
)

const notificationsPath = "/notification/api/v1/notifications"

// NotificationHandler 通知 Handler
type NotificationHandler struct {
	notifications service.NotificationService
	logger        *zap.Logger
}

// NewNotificationHandler 创建通知 Handler
func NewNotificationHandler(notifications service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
func (h *NotificationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	parts := pathParts(r.URL.Path, notificationsPath)

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.ListNotifications(w, r, actor)
	case len(parts) == 1 && parts[0] == "offers" && r.Method == http.MethodPost:
		h.CreateOffer(w, r, actor)
	case len(parts) == 1 && parts[0] == "read-all" && r.Method == http.MethodPost:
		h.MarkAllRead(w, r, actor)
	case len(parts) == 2 && parts[1] == "read" && r.Method == http.MethodPost:
		h.MarkRead(w, r, actor, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListNotifications query: unread_only page size
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	q := r.URL.Query()
	resp, err := h.notifications.ListNotifications(r.Context(), service.ListNotificationsRequest{
		Actor:      actor,
		UnreadOnly: q.Get("unread_only") == "true" || q.Get("unread_only") == "1",
		Page:       parseInt(q.Get("page"), 1),
		Size:       parseInt(q.Get("size"), 20),
	})
	if err != nil {
		writeError(w, h.logger, "ListNotifications", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// CreateOffer 发布优惠 / 公告
func (h *NotificationHandler) CreateOffer(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var payload struct {
		Type       string `json:"type"`
		Title      string `json:"title"`
		Message    string `json:"message"`
		TargetRole string `json:"target_role"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	n, err := h.notifications.CreateOffer(r.Context(), service.CreateOfferRequest{
		Actor:      actor,
		Type:       domain.NotificationType(payload.Type),
		Title:      payload.Title,
		Message:    payload.Message,
		TargetRole: payload.TargetRole,
	})
	if err != nil {
		writeError(w, h.logger, "CreateOffer", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(n))
}

// MarkRead 标记单条已读
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request, actor domain.Actor, notificationID string) {
	n, err := h.notifications.MarkRead(r.Context(), service.MarkReadRequest{Actor: actor, NotificationID: notificationID})
	if err != nil {
		writeError(w, h.logger, "MarkRead", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(n))
}

// MarkAllRead 全部标记已读
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	resp, err := h.notifications.MarkAllRead(r.Context(), service.MarkAllReadRequest{Actor: actor})
	if err != nil {
		writeError(w, h.logger, "MarkAllRead", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
