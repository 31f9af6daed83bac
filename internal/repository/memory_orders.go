package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"owl-restaurant/internal/domain"
)

// MemoryOrdersRepo supports orders when DB is disabled.
// 存取都做深拷贝，调用方持有的对象不会被并发修改
type MemoryOrdersRepo struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order // orderID -> Order
}

func NewMemoryOrdersRepo() *MemoryOrdersRepo {
	return &MemoryOrdersRepo{orders: map[string]*domain.Order{}}
}

var _ OrdersRepository = (*MemoryOrdersRepo)(nil)

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.TableID != nil {
		id := *o.TableID
		c.TableID = &id
	}
	return &c
}

func (r *MemoryOrdersRepo) CreateOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.OrderID]; ok {
		return ErrDuplicate
	}
	for _, o := range r.orders {
		if o.TenantID == order.TenantID && o.BranchID == order.BranchID && o.Token == order.Token {
			return ErrDuplicate
		}
	}
	if order.Version == 0 {
		order.Version = 1
	}
	r.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (r *MemoryOrdersRepo) lookup(scope domain.Scope, orderID string) (*domain.Order, bool) {
	o, ok := r.orders[orderID]
	if !ok || o.TenantID != scope.TenantID || o.BranchID != scope.BranchID {
		return nil, false
	}
	return o, true
}

func (r *MemoryOrdersRepo) GetOrder(_ context.Context, scope domain.Scope, orderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.lookup(scope, orderID)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryOrdersRepo) ListOrders(_ context.Context, scope domain.Scope, filter OrderFilter, page, size int) ([]*domain.Order, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := []*domain.Order{}
	for _, o := range r.orders {
		if o.TenantID != scope.TenantID || o.BranchID != scope.BranchID {
			continue
		}
		if !matchOrder(o, filter) {
			continue
		}
		all = append(all, cloneOrder(o))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Token > all[j].Token
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start, end := pageBounds(len(all), page, size)
	return all[start:end], len(all), nil
}

func matchOrder(o *domain.Order, f OrderFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.OrderType != "" && o.OrderType != f.OrderType {
		return false
	}
	if f.TableID != "" && (o.TableID == nil || *o.TableID != f.TableID) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(o.OrderNumber), q) && !strings.Contains(strings.ToLower(o.Customer.Name), q) {
			return false
		}
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !o.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func (r *MemoryOrdersRepo) UpdateOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.lookup(order.Scope(), order.OrderID)
	if !ok {
		return ErrNotFound
	}
	if current.Version != order.Version {
		return ErrConflict
	}
	order.Version++
	r.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (r *MemoryOrdersRepo) CompareAndSetPaymentStatus(_ context.Context, scope domain.Scope, orderID string, from, to domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.lookup(scope, orderID)
	if !ok {
		return ErrNotFound
	}
	if o.PaymentStatus != from {
		return ErrConflict
	}
	o.PaymentStatus = to
	o.UpdatedAt = time.Now().UTC()
	o.Version++
	return nil
}

func (r *MemoryOrdersRepo) FindOrderScope(_ context.Context, orderID string) (domain.Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok {
		return domain.Scope{}, ErrNotFound
	}
	return o.Scope(), nil
}

func (r *MemoryOrdersRepo) CountByStatus(_ context.Context, scope domain.Scope, since time.Time) (map[domain.OrderStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := map[domain.OrderStatus]int{}
	for _, o := range r.orders {
		if o.TenantID == scope.TenantID && o.BranchID == scope.BranchID && !o.CreatedAt.Before(since) {
			out[o.Status]++
		}
	}
	return out, nil
}

func (r *MemoryOrdersRepo) paidBetween(scope domain.Scope, from, to time.Time) []*domain.Order {
	out := []*domain.Order{}
	for _, o := range r.orders {
		if o.TenantID != scope.TenantID || o.BranchID != scope.BranchID || o.PaymentStatus != domain.PaymentPaid || o.PaidAt == nil {
			continue
		}
		if o.PaidAt.Before(from) || !o.PaidAt.Before(to) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (r *MemoryOrdersRepo) SalesByDay(_ context.Context, scope domain.Scope, from, to time.Time) ([]domain.DailySales, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byDay := map[string]*domain.DailySales{}
	for _, o := range r.paidBetween(scope, from, to) {
		day := o.PaidAt.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &domain.DailySales{Day: day, Revenue: decimal.Zero}
			byDay[day] = d
		}
		d.Orders++
		d.Revenue = d.Revenue.Add(o.Final)
	}

	out := make([]domain.DailySales, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (r *MemoryOrdersRepo) TopItems(_ context.Context, scope domain.Scope, from, to time.Time, limit int) ([]domain.ItemSales, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	byName := map[string]*domain.ItemSales{}
	for _, o := range r.paidBetween(scope, from, to) {
		for _, it := range o.ActiveItems() {
			s, ok := byName[it.Name]
			if !ok {
				s = &domain.ItemSales{Name: it.Name, Revenue: decimal.Zero}
				byName[it.Name] = s
			}
			s.Quantity += it.Quantity
			s.Revenue = s.Revenue.Add(it.LineTotal())
		}
	}

	out := make([]domain.ItemSales, 0, len(byName))
	for _, s := range byName {
		s.Revenue = domain.Round2(s.Revenue)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity == out[j].Quantity {
			return out[i].Name < out[j].Name
		}
		return out[i].Quantity > out[j].Quantity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
