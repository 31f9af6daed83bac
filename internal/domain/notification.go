package domain

import "time"

// NotificationType 通知类型
type NotificationType string

const (
	NotifyNewOrder       NotificationType = "new_order"
	NotifyOrderReady     NotificationType = "order_ready"
	NotifyOrderCancelled NotificationType = "order_cancelled"
	NotifyPaymentSuccess NotificationType = "payment_success"
	NotifyTableReleased  NotificationType = "table_released"
	NotifyOffer          NotificationType = "offer"
	NotifyAnnouncement   NotificationType = "announcement"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotifyNewOrder, NotifyOrderReady, NotifyOrderCancelled, NotifyPaymentSuccess,
		NotifyTableReleased, NotifyOffer, NotifyAnnouncement:
		return true
	}
	return false
}

// ReadMark 单个用户的已读记录
type ReadMark struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// Notification 通知（按 tenant, branch, type, reference_id 去重）
type Notification struct {
	NotificationID string           `json:"notification_id"`
	TenantID       string           `json:"tenant_id"`
	BranchID       string           `json:"branch_id"`
	Type           NotificationType `json:"type"`
	TargetRole     Role             `json:"target_role"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	ReferenceID    *string          `json:"reference_id,omitempty"`
	ReadBy         []ReadMark       `json:"read_by"`
	CreatedBy      string           `json:"created_by,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

// IsReadBy 未读 = 不在 ReadBy 集合中
func (n *Notification) IsReadBy(userID string) bool {
	for _, m := range n.ReadBy {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// VisibleTo 角色过滤：目标为该角色或 "all"
func (n *Notification) VisibleTo(role Role) bool {
	return n.TargetRole == RoleAll || n.TargetRole == role
}
