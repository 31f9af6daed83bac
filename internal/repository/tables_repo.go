package repository

import (
	"context"
	"time"

	"owl-restaurant/internal/domain"
)

// TablesRepository 桌台Repository接口
type TablesRepository interface {
	// CreateTable 新建桌台；同 branch 下 number 重复返回 ErrDuplicate
	CreateTable(ctx context.Context, table *domain.Table) error

	GetTable(ctx context.Context, scope domain.Scope, tableID string) (*domain.Table, error)

	// ListTables status 为空时返回全部
	ListTables(ctx context.Context, scope domain.Scope, status domain.TableStatus) ([]*domain.Table, error)

	// UpdateTableInfo 更新编号 / 容量（不涉及状态）
	UpdateTableInfo(ctx context.Context, scope domain.Scope, tableID, number string, capacity int) (*domain.Table, error)

	// CompareAndSetTable 条件写入：仅当当前状态属于 expected 时写入 next
	// 不存在返回 ErrNotFound，状态不匹配返回 ErrConflict
	CompareAndSetTable(ctx context.Context, scope domain.Scope, tableID string, expected []domain.TableStatus, next domain.TableState) (*domain.Table, error)

	// ListExpiredReservations 跨租户查询 reserved 且 reserved_at <= cutoff 且无关联订单的桌台（后台任务使用）
	ListExpiredReservations(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Table, error)

	// ReleaseExpiredReservation 条件释放过期预订；条件不再满足时返回 false
	ReleaseExpiredReservation(ctx context.Context, table *domain.Table, cutoff time.Time) (bool, error)

	// CountByStatus 按状态统计桌台数量
	CountByStatus(ctx context.Context, scope domain.Scope) (map[domain.TableStatus]int, error)
}
