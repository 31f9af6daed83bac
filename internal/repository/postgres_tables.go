package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"owl-restaurant/internal/domain"
)

// PostgresTablesRepository 桌台Repository实现
type PostgresTablesRepository struct {
	db *sql.DB
}

// NewPostgresTablesRepository 创建桌台Repository
func NewPostgresTablesRepository(db *sql.DB) *PostgresTablesRepository {
	return &PostgresTablesRepository{db: db}
}

var _ TablesRepository = (*PostgresTablesRepository)(nil)

const tableColumns = `
	table_id::text, tenant_id, branch_id, number, capacity, status,
	current_order_id::text, reserved_by, reserved_at, created_at, updated_at`

func scanTable(row rowScanner) (*domain.Table, error) {
	var t domain.Table
	var currentOrderID, reservedBy sql.NullString
	var reservedAt sql.NullTime
	err := row.Scan(
		&t.TableID, &t.TenantID, &t.BranchID, &t.Number, &t.Capacity, &t.Status,
		&currentOrderID, &reservedBy, &reservedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if currentOrderID.Valid {
		t.CurrentOrderID = &currentOrderID.String
	}
	if reservedBy.Valid {
		t.ReservedBy = &reservedBy.String
	}
	t.ReservedAt = nullTimePtr(reservedAt)
	return &t, nil
}

// CreateTable 新建桌台
func (r *PostgresTablesRepository) CreateTable(ctx context.Context, table *domain.Table) error {
	query := `
		INSERT INTO restaurant_tables (table_id, tenant_id, branch_id, number, capacity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		table.TableID, table.TenantID, table.BranchID, table.Number, table.Capacity, table.Status,
		table.CreatedAt, table.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("table number %q: %w", table.Number, ErrDuplicate)
		}
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// GetTable 查询桌台
func (r *PostgresTablesRepository) GetTable(ctx context.Context, scope domain.Scope, tableID string) (*domain.Table, error) {
	query := `SELECT ` + tableColumns + `
		FROM restaurant_tables
		WHERE tenant_id = $1 AND branch_id = $2 AND table_id::text = $3
	`
	t, err := scanTable(r.db.QueryRowContext(ctx, query, scope.TenantID, scope.BranchID, tableID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	return t, nil
}

// ListTables 查询 branch 下的桌台，按编号排序
func (r *PostgresTablesRepository) ListTables(ctx context.Context, scope domain.Scope, status domain.TableStatus) ([]*domain.Table, error) {
	query := `SELECT ` + tableColumns + `
		FROM restaurant_tables
		WHERE tenant_id = $1 AND branch_id = $2 AND ($3 = '' OR status = $3)
		ORDER BY number
	`
	rows, err := r.db.QueryContext(ctx, query, scope.TenantID, scope.BranchID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()
	return collectTables(rows)
}

// UpdateTableInfo 更新编号 / 容量
func (r *PostgresTablesRepository) UpdateTableInfo(ctx context.Context, scope domain.Scope, tableID, number string, capacity int) (*domain.Table, error) {
	query := `
		UPDATE restaurant_tables SET number = $4, capacity = $5, updated_at = now()
		WHERE tenant_id = $1 AND branch_id = $2 AND table_id::text = $3
		RETURNING ` + tableColumns
	t, err := scanTable(r.db.QueryRowContext(ctx, query, scope.TenantID, scope.BranchID, tableID, number, capacity))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("table number %q: %w", number, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to update table: %w", err)
	}
	return t, nil
}

// CompareAndSetTable 单条 UPDATE ... WHERE status = ANY(expected)，并发下只有一个写入者成功
func (r *PostgresTablesRepository) CompareAndSetTable(ctx context.Context, scope domain.Scope, tableID string, expected []domain.TableStatus, next domain.TableState) (*domain.Table, error) {
	statuses := make([]string, 0, len(expected))
	for _, s := range expected {
		statuses = append(statuses, string(s))
	}

	query := `
		UPDATE restaurant_tables SET
			status = $5, current_order_id = $6::uuid, reserved_by = $7, reserved_at = $8, updated_at = now()
		WHERE tenant_id = $1 AND branch_id = $2 AND table_id::text = $3 AND status = ANY($4)
		RETURNING ` + tableColumns
	t, err := scanTable(r.db.QueryRowContext(ctx, query,
		scope.TenantID, scope.BranchID, tableID, pq.Array(statuses),
		next.Status, nullString(next.CurrentOrderID), nullString(next.ReservedBy), next.ReservedAt,
	))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update table status: %w", err)
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM restaurant_tables WHERE tenant_id = $1 AND branch_id = $2 AND table_id::text = $3)`,
		scope.TenantID, scope.BranchID, tableID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check table: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrConflict
}

// ListExpiredReservations 过期预订（跨租户）
func (r *PostgresTablesRepository) ListExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Table, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + tableColumns + `
		FROM restaurant_tables
		WHERE status = 'reserved' AND current_order_id IS NULL
			AND reserved_at IS NOT NULL AND reserved_at <= $1
		ORDER BY reserved_at
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired reservations: %w", err)
	}
	defer rows.Close()
	return collectTables(rows)
}

// ReleaseExpiredReservation 条件释放：查询与写入之间桌台可能已被占用
func (r *PostgresTablesRepository) ReleaseExpiredReservation(ctx context.Context, table *domain.Table, cutoff time.Time) (bool, error) {
	query := `
		UPDATE restaurant_tables SET
			status = 'available', current_order_id = NULL, reserved_by = NULL, reserved_at = NULL, updated_at = now()
		WHERE tenant_id = $1 AND branch_id = $2 AND table_id::text = $3
			AND status = 'reserved' AND current_order_id IS NULL AND reserved_at <= $4
	`
	res, err := r.db.ExecContext(ctx, query, table.TenantID, table.BranchID, table.TableID, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to release reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// CountByStatus 按状态统计桌台
func (r *PostgresTablesRepository) CountByStatus(ctx context.Context, scope domain.Scope) (map[domain.TableStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM restaurant_tables WHERE tenant_id = $1 AND branch_id = $2 GROUP BY status`,
		scope.TenantID, scope.BranchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count tables: %w", err)
	}
	defer rows.Close()

	out := map[domain.TableStatus]int{}
	for rows.Next() {
		var status domain.TableStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan table count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func collectTables(rows *sql.Rows) ([]*domain.Table, error) {
	out := []*domain.Table{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}
	return out, nil
}
