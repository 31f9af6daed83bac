package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/realtime"
	"owl-restaurant/internal/repository"
)

// DefaultReservationTimeout 预订过期时长
const DefaultReservationTimeout = 15 * time.Minute

// TableService 桌台服务接口
type TableService interface {
	// 查询（读取时修复崩溃遗留的 occupied 状态）
	ListTables(ctx context.Context, req ListTablesRequest) ([]*domain.Table, error)
	GetTable(ctx context.Context, req GetTableRequest) (*domain.Table, error)

	// 管理
	CreateTable(ctx context.Context, req CreateTableRequest) (*domain.Table, error)
	UpdateTable(ctx context.Context, req UpdateTableRequest) (*domain.Table, error)

	// 状态流转
	ReserveTable(ctx context.Context, req TableActionRequest) (*domain.Table, error)
	ReleaseTable(ctx context.Context, req TableActionRequest) (*domain.Table, error)
	CleanTable(ctx context.Context, req TableActionRequest) (*domain.Table, error)
	ResetTable(ctx context.Context, req TableActionRequest) (*domain.Table, error)

	// ReleaseExpiredReservations 后台任务：释放超时且未关联订单的预订
	ReleaseExpiredReservations(ctx context.Context) (int, error)
}

type tableService struct {
	tableCascade
	notifier           NotificationService
	reservationTimeout time.Duration
}

// NewTableService 创建 TableService 实例
func NewTableService(deps Dependencies, notifier NotificationService, reservationTimeout time.Duration) TableService {
	if reservationTimeout <= 0 {
		reservationTimeout = DefaultReservationTimeout
	}
	return &tableService{
		tableCascade:       tableCascade{lifecycle: newLifecycle(deps)},
		notifier:           notifier,
		reservationTimeout: reservationTimeout,
	}
}

// ListTablesRequest 查询桌台请求
type ListTablesRequest struct {
	Actor  domain.Actor
	Status domain.TableStatus // 可选
}

func (s *tableService) ListTables(ctx context.Context, req ListTablesRequest) ([]*domain.Table, error) {
	if err := authorize(req.Actor, domain.OpViewTables); err != nil {
		return nil, err
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, domain.Validation(fmt.Sprintf("invalid table status %q", req.Status))
	}
	tables, err := s.Tables.ListTables(ctx, req.Actor.Scope(), req.Status)
	if err != nil {
		s.Logger.Error("ListTables failed", zap.String("tenant_id", req.Actor.TenantID), zap.Error(err))
		return nil, domain.Internal("failed to list tables", err)
	}

	out := make([]*domain.Table, 0, len(tables))
	for _, t := range tables {
		t = s.reconcile(ctx, t)
		if req.Status != "" && t.Status != req.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTableRequest 查询单个桌台
type GetTableRequest struct {
	Actor   domain.Actor
	TableID string
}

func (s *tableService) GetTable(ctx context.Context, req GetTableRequest) (*domain.Table, error) {
	if err := authorize(req.Actor, domain.OpViewTables); err != nil {
		return nil, err
	}
	t, err := s.Tables.GetTable(ctx, req.Actor.Scope(), req.TableID)
	if err != nil {
		return nil, storageErr(err, "Table", "get table")
	}
	return s.reconcile(ctx, t), nil
}

// CreateTableRequest 新建桌台请求
type CreateTableRequest struct {
	Actor    domain.Actor
	Number   string
	Capacity int
}

func (s *tableService) CreateTable(ctx context.Context, req CreateTableRequest) (*domain.Table, error) {
	if err := authorize(req.Actor, domain.OpCreateTable); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return nil, domain.Validation("table number is required")
	}
	if req.Capacity < 0 {
		return nil, domain.Validation("capacity cannot be negative")
	}

	now := s.now()
	t := &domain.Table{
		TableID:   uuid.NewString(),
		TenantID:  req.Actor.TenantID,
		BranchID:  req.Actor.BranchID,
		Number:    number,
		Capacity:  req.Capacity,
		Status:    domain.TableAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Tables.CreateTable(ctx, t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.Duplicate(fmt.Sprintf("Table number %s already exists in this branch", number))
		}
		return nil, domain.Internal("failed to create table", err)
	}

	s.afterTableChange("table.create", t)
	return t, nil
}

// UpdateTableRequest 更新编号 / 容量
type UpdateTableRequest struct {
	Actor    domain.Actor
	TableID  string
	Number   string
	Capacity int
}

func (s *tableService) UpdateTable(ctx context.Context, req UpdateTableRequest) (*domain.Table, error) {
	if err := authorize(req.Actor, domain.OpUpdateTable); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return nil, domain.Validation("table number is required")
	}
	if req.Capacity < 0 {
		return nil, domain.Validation("capacity cannot be negative")
	}
	t, err := s.Tables.UpdateTableInfo(ctx, req.Actor.Scope(), req.TableID, number, req.Capacity)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.Duplicate(fmt.Sprintf("Table number %s already exists in this branch", number))
		}
		return nil, storageErr(err, "Table", "update table")
	}
	s.afterTableChange("table.update", t)
	return t, nil
}

// TableActionRequest reserve / release / clean / reset
type TableActionRequest struct {
	Actor   domain.Actor
	TableID string
}

func (s *tableService) ReserveTable(ctx context.Context, req TableActionRequest) (*domain.Table, error) {
	if err := authorize(req.Actor, domain.OpReserveTable); err != nil {
		return nil, err
	}
	now := s.now()
	return s.transition(ctx, "table.reserve", req, domain.TableReserved, []domain.TableStatus{domain.TableAvailable}, domain.TableState{
		Status:     domain.TableReserved,
		ReservedBy: strPtr(req.Actor.UserID),
		ReservedAt: &now,
	})
}

func (s *tableService) ReleaseTable(ctx context.Context, req TableActionRequest) (*domain.Table, error) {
	if err := authorize(req.Actor, domain.OpReleaseTable); err != nil {
		return nil, err
	}
	return s.transition(ctx, "table.release", req, domain.TableAvailable, domain.ReleasableStatuses, domain.AvailableState())
}

func (s *tableService) CleanTable(ctx context.Context, req TableActionRequest) (*domain.Table, error) {
	if err := authorize(req.Actor, domain.OpCleanTable); err != nil {
		return nil, err
	}
	return s.transition(ctx, "table.clean", req, domain.TableAvailable, []domain.TableStatus{domain.TableCleaning}, domain.AvailableState())
}

// ResetTable 强制重置为 available，不检查流转表
func (s *tableService) ResetTable(ctx context.Context, req TableActionRequest) (*domain.Table, error) {
	if err := authorize(req.Actor, domain.OpResetTable); err != nil {
		return nil, err
	}
	all := []domain.TableStatus{domain.TableAvailable, domain.TableReserved, domain.TableOccupied, domain.TableBilling, domain.TableCleaning}
	t, err := s.Tables.CompareAndSetTable(ctx, req.Actor.Scope(), req.TableID, all, domain.AvailableState())
	if err != nil {
		return nil, storageErr(err, "Table", "reset table")
	}
	s.Logger.Warn("Table force reset",
		zap.String("tenant_id", t.TenantID),
		zap.String("branch_id", t.BranchID),
		zap.String("table_id", t.TableID),
		zap.String("user_id", req.Actor.UserID),
	)
	s.afterTableChange("table.reset", t)
	return t, nil
}

// transition 先读当前状态给出明确的冲突原因，再以条件写入完成流转
func (s *tableService) transition(ctx context.Context, op string, req TableActionRequest, target domain.TableStatus, expected []domain.TableStatus, next domain.TableState) (*domain.Table, error) {
	scope := req.Actor.Scope()
	current, err := s.Tables.GetTable(ctx, scope, req.TableID)
	if err != nil {
		return nil, storageErr(err, "Table", "get table")
	}
	current = s.reconcile(ctx, current)
	if err := checkTableTransition(current, target, expected); err != nil {
		return nil, err
	}

	t, err := s.Tables.CompareAndSetTable(ctx, scope, req.TableID, expected, next)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// 读取与写入之间状态已被其他请求改变
			latest, gerr := s.Tables.GetTable(ctx, scope, req.TableID)
			if gerr == nil {
				if cerr := checkTableTransition(latest, target, expected); cerr != nil {
					return nil, cerr
				}
			}
			return nil, domain.Conflict("Table was modified concurrently, please retry")
		}
		return nil, storageErr(err, "Table", "update table status")
	}

	s.afterTableChange(op, t)
	return t, nil
}

func checkTableTransition(t *domain.Table, target domain.TableStatus, expected []domain.TableStatus) error {
	if t.StatusIn(expected) {
		return nil
	}
	if t.Status == target && target == domain.TableReserved {
		return domain.Conflict("Table is already reserved")
	}
	if err := t.Status.CheckTransition(target); err != nil {
		return err
	}
	names := make([]string, 0, len(expected))
	for _, st := range expected {
		names = append(names, string(st))
	}
	return domain.Conflict(fmt.Sprintf("Table must be %s (current status: %s)", strings.Join(names, " or "), t.Status))
}

func (s *tableService) afterTableChange(op string, t *domain.Table) {
	scope := domain.Scope{TenantID: t.TenantID, BranchID: t.BranchID}
	s.run(op,
		s.broadcast(scope, realtime.EventTableUpdated, t),
		s.invalidate(scope),
	)
}

func (s *tableService) ReleaseExpiredReservations(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.reservationTimeout)
	expired, err := s.Tables.ListExpiredReservations(ctx, cutoff, 200)
	if err != nil {
		return 0, domain.Internal("failed to list expired reservations", err)
	}

	released := 0
	for _, t := range expired {
		ok, err := s.Tables.ReleaseExpiredReservation(ctx, t, cutoff)
		if err != nil {
			s.Logger.Warn("Failed to release expired reservation",
				zap.String("tenant_id", t.TenantID),
				zap.String("table_id", t.TableID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}
		released++

		scope := domain.Scope{TenantID: t.TenantID, BranchID: t.BranchID}
		reservedAt := ""
		if t.ReservedAt != nil {
			reservedAt = t.ReservedAt.UTC().Format(time.RFC3339)
		}
		t.Apply(domain.AvailableState(), s.now())
		s.run("table.reservation_expired",
			s.broadcast(scope, realtime.EventTableUpdated, t),
			notifyEffect(s.notifier, NotifyRequest{
				Scope:       scope,
				Type:        domain.NotifyTableReleased,
				TargetRole:  domain.RoleWaiter,
				Title:       "Reservation expired",
				Message:     fmt.Sprintf("Reservation for table %s expired and the table is available again", t.Number),
				ReferenceID: t.TableID + "@" + reservedAt,
			}),
			s.invalidate(scope),
		)
	}
	if released > 0 {
		s.Logger.Info("Released expired table reservations", zap.Int("count", released))
	}
	return released, nil
}
