package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"owl-restaurant/internal/domain"
)

// MemoryTablesRepo supports tables when DB is disabled.
// 条件写入在同一把锁内完成检查和写入
type MemoryTablesRepo struct {
	mu     sync.RWMutex
	tables map[string]*domain.Table // tableID -> Table
}

func NewMemoryTablesRepo() *MemoryTablesRepo {
	return &MemoryTablesRepo{tables: map[string]*domain.Table{}}
}

var _ TablesRepository = (*MemoryTablesRepo)(nil)

func cloneTable(t *domain.Table) *domain.Table {
	c := *t
	if t.CurrentOrderID != nil {
		v := *t.CurrentOrderID
		c.CurrentOrderID = &v
	}
	if t.ReservedBy != nil {
		v := *t.ReservedBy
		c.ReservedBy = &v
	}
	if t.ReservedAt != nil {
		v := *t.ReservedAt
		c.ReservedAt = &v
	}
	return &c
}

func (r *MemoryTablesRepo) lookup(scope domain.Scope, tableID string) (*domain.Table, bool) {
	t, ok := r.tables[tableID]
	if !ok || t.TenantID != scope.TenantID || t.BranchID != scope.BranchID {
		return nil, false
	}
	return t, true
}

func (r *MemoryTablesRepo) numberTaken(scope domain.Scope, number, exceptID string) bool {
	for _, t := range r.tables {
		if t.TenantID == scope.TenantID && t.BranchID == scope.BranchID && t.Number == number && t.TableID != exceptID {
			return true
		}
	}
	return false
}

func (r *MemoryTablesRepo) CreateTable(_ context.Context, table *domain.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scope := domain.Scope{TenantID: table.TenantID, BranchID: table.BranchID}
	if _, ok := r.tables[table.TableID]; ok || r.numberTaken(scope, table.Number, "") {
		return ErrDuplicate
	}
	r.tables[table.TableID] = cloneTable(table)
	return nil
}

func (r *MemoryTablesRepo) GetTable(_ context.Context, scope domain.Scope, tableID string) (*domain.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.lookup(scope, tableID)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTable(t), nil
}

func (r *MemoryTablesRepo) ListTables(_ context.Context, scope domain.Scope, status domain.TableStatus) ([]*domain.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.Table{}
	for _, t := range r.tables {
		if t.TenantID != scope.TenantID || t.BranchID != scope.BranchID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, cloneTable(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *MemoryTablesRepo) UpdateTableInfo(_ context.Context, scope domain.Scope, tableID, number string, capacity int) (*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookup(scope, tableID)
	if !ok {
		return nil, ErrNotFound
	}
	if r.numberTaken(scope, number, tableID) {
		return nil, ErrDuplicate
	}
	t.Number = number
	t.Capacity = capacity
	t.UpdatedAt = time.Now().UTC()
	return cloneTable(t), nil
}

func (r *MemoryTablesRepo) CompareAndSetTable(_ context.Context, scope domain.Scope, tableID string, expected []domain.TableStatus, next domain.TableState) (*domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookup(scope, tableID)
	if !ok {
		return nil, ErrNotFound
	}
	if !t.StatusIn(expected) {
		return nil, ErrConflict
	}
	t.Apply(next, time.Now().UTC())
	return cloneTable(t), nil
}

func (r *MemoryTablesRepo) ListExpiredReservations(_ context.Context, cutoff time.Time, limit int) ([]*domain.Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	out := []*domain.Table{}
	for _, t := range r.tables {
		if reservationExpired(t, cutoff) {
			out = append(out, cloneTable(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservedAt.Before(*out[j].ReservedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTablesRepo) ReleaseExpiredReservation(_ context.Context, table *domain.Table, cutoff time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.lookup(domain.Scope{TenantID: table.TenantID, BranchID: table.BranchID}, table.TableID)
	if !ok || !reservationExpired(t, cutoff) {
		return false, nil
	}
	t.Apply(domain.AvailableState(), time.Now().UTC())
	return true, nil
}

func (r *MemoryTablesRepo) CountByStatus(_ context.Context, scope domain.Scope) (map[domain.TableStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := map[domain.TableStatus]int{}
	for _, t := range r.tables {
		if t.TenantID == scope.TenantID && t.BranchID == scope.BranchID {
			out[t.Status]++
		}
	}
	return out, nil
}

func reservationExpired(t *domain.Table, cutoff time.Time) bool {
	return t.Status == domain.TableReserved && t.CurrentOrderID == nil &&
		t.ReservedAt != nil && !t.ReservedAt.After(cutoff)
}
