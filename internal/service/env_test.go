package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"owl-restaurant/internal/cache"
	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/realtime"
	"owl-restaurant/internal/repository"
	"owl-restaurant/internal/sequence"
)

const testWebhookSecret = "whsec_test"

// recordingBus 记录广播事件
type recordingBus struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *recordingBus) Publish(_ context.Context, scope domain.Scope, name string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, realtime.Event{Name: name, TenantID: scope.TenantID, BranchID: scope.BranchID, Data: data})
}

func (b *recordingBus) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	deps          Dependencies
	orders        *repository.MemoryOrdersRepo
	tables        *repository.MemoryTablesRepo
	payments      *repository.MemoryPaymentsRepo
	audits        *repository.MemoryPaymentAuditsRepo
	notifications *repository.MemoryNotificationsRepo
	cacheStore    *cache.LRUStore
	bus           *recordingBus
	clock         *testClock
	gateway       *fakeGateway

	orderSvc   OrderService
	tableSvc   TableService
	paymentSvc PaymentService
	notifySvc  NotificationService
}

// fakeGateway 预置网关支付
type fakeGateway struct {
	payments map[string]*GatewayPayment
}

func (g *fakeGateway) FetchPayment(_ context.Context, id string) (*GatewayPayment, error) {
	if p, ok := g.payments[id]; ok {
		return p, nil
	}
	return nil, errGatewayNotFound
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	env := &testEnv{
		orders:        repository.NewMemoryOrdersRepo(),
		tables:        repository.NewMemoryTablesRepo(),
		payments:      repository.NewMemoryPaymentsRepo(),
		audits:        repository.NewMemoryPaymentAuditsRepo(),
		notifications: repository.NewMemoryNotificationsRepo(),
		cacheStore:    cache.NewLRUStore(100),
		bus:           &recordingBus{},
		clock:         &testClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
		gateway:       &fakeGateway{payments: map[string]*GatewayPayment{}},
	}
	env.deps = Dependencies{
		Orders:        env.orders,
		Tables:        env.tables,
		Payments:      env.payments,
		Audits:        env.audits,
		Notifications: env.notifications,
		Sequence:      sequence.NewMemoryGenerator(),
		Cache:         cache.New(env.cacheStore, logger),
		Bus:           env.bus,
		Effects:       NewSyncEffectRunner(logger),
		Logger:        logger,
		Now:           env.clock.Now,
	}
	env.notifySvc = NewNotificationService(env.deps, 0)
	env.orderSvc = NewOrderService(env.deps, env.notifySvc)
	env.tableSvc = NewTableService(env.deps, env.notifySvc, 15*time.Minute)
	env.paymentSvc = NewPaymentService(env.deps, env.notifySvc, env.gateway, testWebhookSecret)
	return env
}

func actor(role domain.Role) domain.Actor {
	return domain.Actor{UserID: "u-" + string(role), TenantID: "t1", BranchID: "b1", Role: role}
}

var (
	admin   = actor(domain.RoleAdmin)
	waiter  = actor(domain.RoleWaiter)
	kitchen = actor(domain.RoleKitchen)
	cashier = actor(domain.RoleCashier)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (e *testEnv) createTable(t *testing.T, number string) *domain.Table {
	t.Helper()
	tb, err := e.tableSvc.CreateTable(context.Background(), CreateTableRequest{Actor: admin, Number: number, Capacity: 4})
	require.NoError(t, err)
	return tb
}

func (e *testEnv) getTable(t *testing.T, id string) *domain.Table {
	t.Helper()
	tb, err := e.tables.GetTable(context.Background(), admin.Scope(), id)
	require.NoError(t, err)
	return tb
}

func (e *testEnv) getOrder(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := e.orders.GetOrder(context.Background(), admin.Scope(), id)
	require.NoError(t, err)
	return o
}

// scenarioItems 两个条目合计 500
func scenarioItems() []OrderItemInput {
	return []OrderItemInput{
		{MenuItemID: "m-curry", Name: "Paneer Curry", Price: dec("150"), Quantity: 2},
		{MenuItemID: "m-biryani", Name: "Biryani", Price: dec("200"), Quantity: 1},
	}
}

func (e *testEnv) createDineIn(t *testing.T, tableID string, items []OrderItemInput) *domain.Order {
	t.Helper()
	o, err := e.orderSvc.CreateOrder(context.Background(), CreateOrderRequest{
		Actor:     waiter,
		OrderType: domain.OrderTypeDineIn,
		TableID:   tableID,
		Items:     items,
		TaxRate:   dec("5"),
	})
	require.NoError(t, err)
	return o
}

func (e *testEnv) createTakeaway(t *testing.T, items []OrderItemInput) *domain.Order {
	t.Helper()
	o, err := e.orderSvc.CreateOrder(context.Background(), CreateOrderRequest{
		Actor:     cashier,
		OrderType: domain.OrderTypeTakeaway,
		Items:     items,
		TaxRate:   dec("5"),
	})
	require.NoError(t, err)
	return o
}

// markReady 后厨将订单推进到 ready
func (e *testEnv) markReady(t *testing.T, orderID string) *domain.Order {
	t.Helper()
	o, err := e.orderSvc.UpdateOrderStatus(context.Background(), UpdateOrderStatusRequest{
		Actor: kitchen, OrderID: orderID, Status: domain.OrderReady,
	})
	require.NoError(t, err)
	return o
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "error: %v", err)
}
