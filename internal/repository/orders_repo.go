package repository

import (
	"context"
	"time"

	"owl-restaurant/internal/domain"
)

// OrdersRepository 订单Repository接口
// 所有方法都以 scope (tenant_id, branch_id) 作为查询前缀条件
type OrdersRepository interface {
	// CreateOrder 插入新订单（Version 从 1 开始）
	CreateOrder(ctx context.Context, order *domain.Order) error

	// GetOrder 查询订单；跨租户 / 跨 branch 一律返回 ErrNotFound
	GetOrder(ctx context.Context, scope domain.Scope, orderID string) (*domain.Order, error)

	// ListOrders 分页查询，按 created_at 倒序
	ListOrders(ctx context.Context, scope domain.Scope, filter OrderFilter, page, size int) ([]*domain.Order, int, error)

	// UpdateOrder 乐观锁写入：仅当库内 version == order.Version 时成功，成功后 order.Version 自增
	// version 不匹配返回 ErrConflict
	UpdateOrder(ctx context.Context, order *domain.Order) error

	// CompareAndSetPaymentStatus 单条件写入 payment_status: from -> to（CAS）
	// 当前值不是 from 时返回 ErrConflict
	CompareAndSetPaymentStatus(ctx context.Context, scope domain.Scope, orderID string, from, to domain.PaymentStatus) error

	// FindOrderScope 按 order_id 查询所属 scope（仅供签名已验证的网关回调使用）
	FindOrderScope(ctx context.Context, orderID string) (domain.Scope, error)

	// CountByStatus 统计 since 之后创建的订单数量（按状态）
	CountByStatus(ctx context.Context, scope domain.Scope, since time.Time) (map[domain.OrderStatus]int, error)

	// SalesByDay 已支付订单按天汇总 [from, to)
	SalesByDay(ctx context.Context, scope domain.Scope, from, to time.Time) ([]domain.DailySales, error)

	// TopItems 已支付订单中销量最高的菜品 [from, to)
	TopItems(ctx context.Context, scope domain.Scope, from, to time.Time, limit int) ([]domain.ItemSales, error)
}

// OrderFilter 订单查询过滤器
type OrderFilter struct {
	Statuses      []domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	OrderType     domain.OrderType
	TableID       string
	Search        string // 模糊匹配 order_number / customer_name
	From          *time.Time
	To            *time.Time
}
