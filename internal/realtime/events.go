// Package realtime 生命周期事件广播：按 tenant:branch 分房间推送给 websocket 客户端，
// 同时桥接到 MQTT 与 Redis Stream
package realtime

import (
	"time"

	"owl-restaurant/internal/domain"
)

// 事件名（客户端按名称订阅）
const (
	EventNewOrder             = "new-order"
	EventOrderUpdated         = "order-updated"
	EventOrderCompleted       = "order-completed"
	EventOrderCancelled       = "orderCancelled"
	EventItemUpdated          = "itemUpdated"
	EventTableUpdated         = "table-updated"
	EventPaymentSuccess       = "payment-success"
	EventNewNotification      = "new-notification"
	EventNotificationsRead    = "notifications-read"
	EventNotificationsReadAll = "notifications-read-all"
)

// Event 一次广播
type Event struct {
	Name     string    `json:"event"`
	TenantID string    `json:"tenant_id"`
	BranchID string    `json:"branch_id"`
	Data     any       `json:"data"`
	At       time.Time `json:"at"`
}

// Scope 事件所属 branch
func (e Event) Scope() domain.Scope {
	return domain.Scope{TenantID: e.TenantID, BranchID: e.BranchID}
}

// Room 房间名 tenant:branch（各部分已转义）
func Room(scope domain.Scope) string {
	return scope.Join(":")
}
