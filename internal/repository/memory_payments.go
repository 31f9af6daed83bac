package repository

import (
	"context"
	"sort"
	"sync"

	"owl-restaurant/internal/domain"
)

// MemoryPaymentsRepo supports payments when DB is disabled.
type MemoryPaymentsRepo struct {
	mu       sync.RWMutex
	payments map[string]domain.Payment // orderID -> Payment
}

func NewMemoryPaymentsRepo() *MemoryPaymentsRepo {
	return &MemoryPaymentsRepo{payments: map[string]domain.Payment{}}
}

var _ PaymentsRepository = (*MemoryPaymentsRepo)(nil)

func (r *MemoryPaymentsRepo) CreatePayment(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[p.OrderID]; ok {
		return ErrDuplicate
	}
	r.payments[p.OrderID] = *p
	return nil
}

func (r *MemoryPaymentsRepo) GetPaymentByOrder(_ context.Context, scope domain.Scope, orderID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[orderID]
	if !ok || p.TenantID != scope.TenantID || p.BranchID != scope.BranchID {
		return nil, ErrNotFound
	}
	return &p, nil
}

// MemoryPaymentAuditsRepo 内存审计日志（只追加）
type MemoryPaymentAuditsRepo struct {
	mu     sync.RWMutex
	audits []domain.PaymentAudit
}

func NewMemoryPaymentAuditsRepo() *MemoryPaymentAuditsRepo {
	return &MemoryPaymentAuditsRepo{}
}

var _ PaymentAuditsRepository = (*MemoryPaymentAuditsRepo)(nil)

func (r *MemoryPaymentAuditsRepo) AppendAudit(_ context.Context, a *domain.PaymentAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, *a)
	return nil
}

func (r *MemoryPaymentAuditsRepo) ListAudits(_ context.Context, scope domain.Scope, orderID string) ([]*domain.PaymentAudit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.PaymentAudit{}
	for i := range r.audits {
		a := r.audits[i]
		if a.TenantID == scope.TenantID && a.BranchID == scope.BranchID && a.OrderID == orderID {
			out = append(out, &a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
