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

// PostgresNotificationsRepository 通知Repository实现
// 已读标记存放在 notification_reads（每个用户一行）
type PostgresNotificationsRepository struct {
	db *sql.DB
}

func NewPostgresNotificationsRepository(db *sql.DB) *PostgresNotificationsRepository {
	return &PostgresNotificationsRepository{db: db}
}

var _ NotificationsRepository = (*PostgresNotificationsRepository)(nil)

const notificationColumns = `
	notification_id::text, tenant_id, branch_id, type, target_role, title, message,
	reference_id, created_by, created_at, expires_at`

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	var referenceID sql.NullString
	err := row.Scan(
		&n.NotificationID, &n.TenantID, &n.BranchID, &n.Type, &n.TargetRole, &n.Title, &n.Message,
		&referenceID, &n.CreatedBy, &n.CreatedAt, &n.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if referenceID.Valid {
		n.ReferenceID = &referenceID.String
	}
	n.ReadBy = []domain.ReadMark{}
	return &n, nil
}

// CreateNotification 基于唯一索引去重：冲突时不写入，返回已有记录
func (r *PostgresNotificationsRepository) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, bool, error) {
	query := `
		INSERT INTO notifications (
			notification_id, tenant_id, branch_id, type, target_role, title, message,
			reference_id, created_by, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, branch_id, type, reference_id) WHERE reference_id IS NOT NULL DO NOTHING
		RETURNING notification_id::text
	`
	var id string
	err := r.db.QueryRowContext(ctx, query,
		n.NotificationID, n.TenantID, n.BranchID, n.Type, n.TargetRole, n.Title, n.Message,
		nullString(n.ReferenceID), n.CreatedBy, n.CreatedAt, n.ExpiresAt,
	).Scan(&id)
	if err == nil {
		stored := *n
		stored.NotificationID = id
		stored.ReadBy = []domain.ReadMark{}
		return &stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create notification: %w", err)
	}

	// 已存在同一事件的通知
	existing, err := scanNotification(r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE tenant_id = $1 AND branch_id = $2 AND type = $3 AND reference_id = $4`,
		n.TenantID, n.BranchID, n.Type, nullString(n.ReferenceID),
	))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing notification: %w", err)
	}
	if err := r.loadReadMarks(ctx, []*domain.Notification{existing}); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// ListNotifications 角色可见、未过期的通知
func (r *PostgresNotificationsRepository) ListNotifications(ctx context.Context, scope domain.Scope, filter NotificationFilter, page, size int) ([]*domain.Notification, int, error) {
	page, size = normalizePage(page, size)
	now := filter.Now
	if now.IsZero() {
		now = time.Now()
	}

	where := `tenant_id = $1 AND branch_id = $2 AND ($3 = '' OR target_role = $3 OR target_role = 'all') AND expires_at > $4`
	args := []any{scope.TenantID, scope.BranchID, string(filter.Role), now}
	if filter.UnreadOnly {
		where += ` AND NOT EXISTS (
			SELECT 1 FROM notification_reads nr
			WHERE nr.notification_id = notifications.notification_id AND nr.user_id = $5)`
		args = append(args, filter.UserID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, where, n+1, n+2)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []*domain.Notification{}
	for rows.Next() {
		item, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	if err := r.loadReadMarks(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// MarkRead 写入已读标记（重复标记不变）
func (r *PostgresNotificationsRepository) MarkRead(ctx context.Context, scope domain.Scope, role domain.Role, notificationID, userID string, at time.Time) (*domain.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE tenant_id = $1 AND branch_id = $2 AND notification_id::text = $3
			AND ($4 = '' OR target_role = $4 OR target_role = 'all')`,
		scope.TenantID, scope.BranchID, notificationID, string(role),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notification_reads (notification_id, user_id, read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (notification_id, user_id) DO NOTHING
	`, n.NotificationID, userID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}

	if err := r.loadReadMarks(ctx, []*domain.Notification{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// MarkAllRead 单条 INSERT ... SELECT 标记该角色可见的全部通知
func (r *PostgresNotificationsRepository) MarkAllRead(ctx context.Context, scope domain.Scope, role domain.Role, userID string, at time.Time) (int, error) {
	query := `
		INSERT INTO notification_reads (notification_id, user_id, read_at)
		SELECT n.notification_id, $4, $5
		FROM notifications n
		WHERE n.tenant_id = $1 AND n.branch_id = $2
			AND ($3 = '' OR n.target_role = $3 OR n.target_role = 'all')
			AND n.expires_at > $5
		ON CONFLICT (notification_id, user_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, scope.TenantID, scope.BranchID, string(role), userID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// DeleteExpired 删除过期通知（已读标记级联删除）
func (r *PostgresNotificationsRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

func (r *PostgresNotificationsRepository) loadReadMarks(ctx context.Context, items []*domain.Notification) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Notification, len(items))
	ids := make([]string, 0, len(items))
	for _, n := range items {
		byID[n.NotificationID] = n
		ids = append(ids, n.NotificationID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT notification_id::text, user_id, read_at
		FROM notification_reads
		WHERE notification_id::text = ANY($1)
		ORDER BY read_at
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load read marks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var m domain.ReadMark
		if err := rows.Scan(&id, &m.UserID, &m.ReadAt); err != nil {
			return fmt.Errorf("failed to scan read mark: %w", err)
		}
		if n, ok := byID[id]; ok {
			n.ReadBy = append(n.ReadBy, m)
		}
	}
	return rows.Err()
}
