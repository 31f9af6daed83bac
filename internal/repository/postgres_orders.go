package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"owl-restaurant/internal/domain"
)

// PostgresOrdersRepository 订单Repository实现
// 条目以 JSONB 文档形式与订单一起存储，所有写入通过 version 乐观锁串行化
type PostgresOrdersRepository struct {
	db *sql.DB
}

// NewPostgresOrdersRepository 创建订单Repository
func NewPostgresOrdersRepository(db *sql.DB) *PostgresOrdersRepository {
	return &PostgresOrdersRepository{db: db}
}

// 确保实现了接口
var _ OrdersRepository = (*PostgresOrdersRepository)(nil)

const orderColumns = `
	order_id::text, tenant_id, branch_id, token, order_number, order_type, table_id::text,
	customer_name, customer_phone, items, status, payment_status, kot_status,
	subtotal, tax, discount, final_amount,
	prep_started_at, ready_at, completed_at, paid_at,
	cancelled_at, cancelled_by, cancel_reason,
	created_by, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var tableID sql.NullString
	var items []byte
	var prepStartedAt, readyAt, completedAt, paidAt, cancelledAt sql.NullTime

	err := row.Scan(
		&o.OrderID, &o.TenantID, &o.BranchID, &o.Token, &o.OrderNumber, &o.OrderType, &tableID,
		&o.Customer.Name, &o.Customer.Phone, &items, &o.Status, &o.PaymentStatus, &o.KOTStatus,
		&o.Subtotal, &o.Tax, &o.Discount, &o.Final,
		&prepStartedAt, &readyAt, &completedAt, &paidAt,
		&cancelledAt, &o.CancelledBy, &o.CancelReason,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.Version,
	)
	if err != nil {
		return nil, err
	}

	if tableID.Valid {
		o.TableID = &tableID.String
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("failed to decode order items: %w", err)
		}
	}
	o.PrepStartedAt = nullTimePtr(prepStartedAt)
	o.ReadyAt = nullTimePtr(readyAt)
	o.CompletedAt = nullTimePtr(completedAt)
	o.PaidAt = nullTimePtr(paidAt)
	o.CancelledAt = nullTimePtr(cancelledAt)
	return &o, nil
}

// CreateOrder 插入新订单
func (r *PostgresOrdersRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	if order.Version == 0 {
		order.Version = 1
	}

	query := `
		INSERT INTO orders (
			order_id, tenant_id, branch_id, token, order_number, order_type, table_id,
			customer_name, customer_phone, items, status, payment_status, kot_status,
			subtotal, tax, discount, final_amount,
			created_by, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = r.db.ExecContext(ctx, query,
		order.OrderID, order.TenantID, order.BranchID, order.Token, order.OrderNumber, order.OrderType, nullString(order.TableID),
		order.Customer.Name, order.Customer.Phone, items, order.Status, order.PaymentStatus, order.KOTStatus,
		order.Subtotal, order.Tax, order.Discount, order.Final,
		order.CreatedBy, order.CreatedAt, order.UpdatedAt, order.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order token %d already used: %w", order.Token, ErrDuplicate)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetOrder 查询订单
func (r *PostgresOrdersRepository) GetOrder(ctx context.Context, scope domain.Scope, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE tenant_id = $1 AND branch_id = $2 AND order_id::text = $3
	`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, scope.TenantID, scope.BranchID, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// ListOrders 分页查询订单
func (r *PostgresOrdersRepository) ListOrders(ctx context.Context, scope domain.Scope, filter OrderFilter, page, size int) ([]*domain.Order, int, error) {
	page, size = normalizePage(page, size)

	where := []string{"tenant_id = $1", "branch_id = $2"}
	args := []any{scope.TenantID, scope.BranchID}
	argN := 3

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, fmt.Sprintf("status = ANY($%d)", argN))
		args = append(args, pq.Array(statuses))
		argN++
	}
	if filter.PaymentStatus != "" {
		where = append(where, fmt.Sprintf("payment_status = $%d", argN))
		args = append(args, filter.PaymentStatus)
		argN++
	}
	if filter.OrderType != "" {
		where = append(where, fmt.Sprintf("order_type = $%d", argN))
		args = append(args, filter.OrderType)
		argN++
	}
	if filter.TableID != "" {
		where = append(where, fmt.Sprintf("table_id::text = $%d", argN))
		args = append(args, filter.TableID)
		argN++
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(order_number ILIKE $%d OR customer_name ILIKE $%d)", argN, argN))
		args = append(args, "%"+filter.Search+"%")
		argN++
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argN))
		args = append(args, *filter.From)
		argN++
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("created_at < $%d", argN))
		args = append(args, *filter.To)
		argN++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argN, argN+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	out := []*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return out, total, nil
}

// UpdateOrder 乐观锁整单写回
func (r *PostgresOrdersRepository) UpdateOrder(ctx context.Context, order *domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}

	query := `
		UPDATE orders SET
			items = $5, status = $6, payment_status = $7, kot_status = $8,
			subtotal = $9, tax = $10, discount = $11, final_amount = $12,
			prep_started_at = $13, ready_at = $14, completed_at = $15, paid_at = $16,
			cancelled_at = $17, cancelled_by = $18, cancel_reason = $19,
			updated_at = $20, version = version + 1
		WHERE tenant_id = $1 AND branch_id = $2 AND order_id::text = $3 AND version = $4
	`
	res, err := r.db.ExecContext(ctx, query,
		order.TenantID, order.BranchID, order.OrderID, order.Version,
		items, order.Status, order.PaymentStatus, order.KOTStatus,
		order.Subtotal, order.Tax, order.Discount, order.Final,
		order.PrepStartedAt, order.ReadyAt, order.CompletedAt, order.PaidAt,
		order.CancelledAt, order.CancelledBy, order.CancelReason,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if err := r.checkWritten(ctx, res, order.Scope(), order.OrderID); err != nil {
		return err
	}
	order.Version++
	return nil
}

// CompareAndSetPaymentStatus payment_status 条件写入
func (r *PostgresOrdersRepository) CompareAndSetPaymentStatus(ctx context.Context, scope domain.Scope, orderID string, from, to domain.PaymentStatus) error {
	query := `
		UPDATE orders SET payment_status = $5, updated_at = now(), version = version + 1
		WHERE tenant_id = $1 AND branch_id = $2 AND order_id::text = $3 AND payment_status = $4
	`
	res, err := r.db.ExecContext(ctx, query, scope.TenantID, scope.BranchID, orderID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return r.checkWritten(ctx, res, scope, orderID)
}

// checkWritten 条件写入 0 行时区分 不存在 / 条件不满足
func (r *PostgresOrdersRepository) checkWritten(ctx context.Context, res sql.Result, scope domain.Scope, orderID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE tenant_id = $1 AND branch_id = $2 AND order_id::text = $3)`,
		scope.TenantID, scope.BranchID, orderID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check order: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// FindOrderScope 按 order_id 查询所属 scope
func (r *PostgresOrdersRepository) FindOrderScope(ctx context.Context, orderID string) (domain.Scope, error) {
	var scope domain.Scope
	err := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, branch_id FROM orders WHERE order_id::text = $1`, orderID,
	).Scan(&scope.TenantID, &scope.BranchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scope, ErrNotFound
		}
		return scope, fmt.Errorf("failed to find order scope: %w", err)
	}
	return scope, nil
}

// CountByStatus 按状态统计
func (r *PostgresOrdersRepository) CountByStatus(ctx context.Context, scope domain.Scope, since time.Time) (map[domain.OrderStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM orders
		WHERE tenant_id = $1 AND branch_id = $2 AND created_at >= $3
		GROUP BY status
	`
	rows, err := r.db.QueryContext(ctx, query, scope.TenantID, scope.BranchID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}
	defer rows.Close()

	out := map[domain.OrderStatus]int{}
	for rows.Next() {
		var status domain.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan order count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

// SalesByDay 已支付订单按天汇总
func (r *PostgresOrdersRepository) SalesByDay(ctx context.Context, scope domain.Scope, from, to time.Time) ([]domain.DailySales, error) {
	query := `
		SELECT to_char(date_trunc('day', paid_at), 'YYYY-MM-DD') AS day, COUNT(*), COALESCE(SUM(final_amount), 0)
		FROM orders
		WHERE tenant_id = $1 AND branch_id = $2 AND payment_status = 'paid'
			AND paid_at >= $3 AND paid_at < $4
		GROUP BY day
		ORDER BY day
	`
	rows, err := r.db.QueryContext(ctx, query, scope.TenantID, scope.BranchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily sales: %w", err)
	}
	defer rows.Close()

	out := []domain.DailySales{}
	for rows.Next() {
		var d domain.DailySales
		if err := rows.Scan(&d.Day, &d.Orders, &d.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan daily sales: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TopItems 已支付订单中的热销菜品（不含已取消条目）
func (r *PostgresOrdersRepository) TopItems(ctx context.Context, scope domain.Scope, from, to time.Time, limit int) ([]domain.ItemSales, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT it->>'name' AS name,
			SUM((it->>'quantity')::int) AS qty,
			SUM((it->>'price')::numeric * (it->>'quantity')::int) AS revenue
		FROM orders o, jsonb_array_elements(o.items) it
		WHERE o.tenant_id = $1 AND o.branch_id = $2 AND o.payment_status = 'paid'
			AND o.paid_at >= $3 AND o.paid_at < $4
			AND it->>'status' <> 'CANCELLED'
		GROUP BY name
		ORDER BY qty DESC, name
		LIMIT $5
	`
	rows, err := r.db.QueryContext(ctx, query, scope.TenantID, scope.BranchID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top items: %w", err)
	}
	defer rows.Close()

	out := []domain.ItemSales{}
	for rows.Next() {
		var s domain.ItemSales
		var revenue decimal.Decimal
		if err := rows.Scan(&s.Name, &s.Quantity, &revenue); err != nil {
			return nil, fmt.Errorf("failed to scan top item: %w", err)
		}
		s.Revenue = domain.Round2(revenue)
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
