package repository

import (
	"context"

	"owl-restaurant/internal/domain"
)

// PaymentsRepository 支付记录Repository接口
type PaymentsRepository interface {
	// CreatePayment 插入支付记录；order_id 唯一，重复返回 ErrDuplicate
	CreatePayment(ctx context.Context, payment *domain.Payment) error

	// GetPaymentByOrder 不存在返回 ErrNotFound
	GetPaymentByOrder(ctx context.Context, scope domain.Scope, orderID string) (*domain.Payment, error)
}

// PaymentAuditsRepository 支付审计Repository接口（只追加）
type PaymentAuditsRepository interface {
	AppendAudit(ctx context.Context, audit *domain.PaymentAudit) error
	ListAudits(ctx context.Context, scope domain.Scope, orderID string) ([]*domain.PaymentAudit, error)
}
