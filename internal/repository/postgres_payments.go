package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"owl-restaurant/internal/domain"
)

// PostgresPaymentsRepository 支付记录Repository实现
type PostgresPaymentsRepository struct {
	db *sql.DB
}

func NewPostgresPaymentsRepository(db *sql.DB) *PostgresPaymentsRepository {
	return &PostgresPaymentsRepository{db: db}
}

var _ PaymentsRepository = (*PostgresPaymentsRepository)(nil)

// CreatePayment 插入支付记录（order_id 唯一约束保证每单最多一条）
func (r *PostgresPaymentsRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (
			payment_id, tenant_id, branch_id, order_id, method, transaction_id,
			amount_due, amount_received, change_amount, source, processed_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.PaymentID, p.TenantID, p.BranchID, p.OrderID, p.Method, p.TransactionID,
		p.AmountDue, p.AmountReceived, p.Change, p.Source, p.ProcessedBy, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment for order %s: %w", p.OrderID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentByOrder 按订单查询支付记录
func (r *PostgresPaymentsRepository) GetPaymentByOrder(ctx context.Context, scope domain.Scope, orderID string) (*domain.Payment, error) {
	query := `
		SELECT payment_id::text, tenant_id, branch_id, order_id::text, method, transaction_id,
			amount_due, amount_received, change_amount, source, processed_by, created_at
		FROM payments
		WHERE tenant_id = $1 AND branch_id = $2 AND order_id::text = $3
	`
	var p domain.Payment
	err := r.db.QueryRowContext(ctx, query, scope.TenantID, scope.BranchID, orderID).Scan(
		&p.PaymentID, &p.TenantID, &p.BranchID, &p.OrderID, &p.Method, &p.TransactionID,
		&p.AmountDue, &p.AmountReceived, &p.Change, &p.Source, &p.ProcessedBy, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// PostgresPaymentAuditsRepository 支付审计Repository实现
type PostgresPaymentAuditsRepository struct {
	db *sql.DB
}

func NewPostgresPaymentAuditsRepository(db *sql.DB) *PostgresPaymentAuditsRepository {
	return &PostgresPaymentAuditsRepository{db: db}
}

var _ PaymentAuditsRepository = (*PostgresPaymentAuditsRepository)(nil)

// AppendAudit 追加审计记录
func (r *PostgresPaymentAuditsRepository) AppendAudit(ctx context.Context, a *domain.PaymentAudit) error {
	var metadata any
	if len(a.Metadata) > 0 {
		b, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		metadata = b
	}
	query := `
		INSERT INTO payment_audits (
			audit_id, tenant_id, branch_id, order_id, action, success,
			actor_id, actor_role, ip_address, user_agent, error, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.AuditID, a.TenantID, a.BranchID, a.OrderID, a.Action, a.Success,
		a.ActorID, a.ActorRole, a.IPAddress, a.UserAgent, a.Error, metadata, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append payment audit: %w", err)
	}
	return nil
}

// ListAudits 按时间顺序返回订单的审计记录
func (r *PostgresPaymentAuditsRepository) ListAudits(ctx context.Context, scope domain.Scope, orderID string) ([]*domain.PaymentAudit, error) {
	query := `
		SELECT audit_id::text, tenant_id, branch_id, order_id, action, success,
			actor_id, actor_role, ip_address, user_agent, error, metadata, created_at
		FROM payment_audits
		WHERE tenant_id = $1 AND branch_id = $2 AND order_id = $3
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, scope.TenantID, scope.BranchID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment audits: %w", err)
	}
	defer rows.Close()

	out := []*domain.PaymentAudit{}
	for rows.Next() {
		var a domain.PaymentAudit
		var metadata []byte
		if err := rows.Scan(
			&a.AuditID, &a.TenantID, &a.BranchID, &a.OrderID, &a.Action, &a.Success,
			&a.ActorID, &a.ActorRole, &a.IPAddress, &a.UserAgent, &a.Error, &metadata, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment audit: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
