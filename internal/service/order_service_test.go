package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/realtime"
	"owl-restaurant/internal/repository"
)

func TestCreateOrder_DineInOccupiesTable(t *testing.T) {
	env := newTestEnv(t)
	tb := env.createTable(t, "T1")
	env.bus.reset()

	o := env.createDineIn(t, tb.TableID, scenarioItems())

	assert.Equal(t, int64(1), o.Token)
	assert.Equal(t, "ORD-000001", o.OrderNumber)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, domain.PaymentPending, o.PaymentStatus)
	assert.Equal(t, domain.KOTOpen, o.KOTStatus)
	assert.True(t, dec("500").Equal(o.Subtotal))
	assert.True(t, dec("25").Equal(o.Tax))
	assert.True(t, dec("525").Equal(o.Final))

	got := env.getTable(t, tb.TableID)
	assert.Equal(t, domain.TableOccupied, got.Status)
	require.NotNil(t, got.CurrentOrderID)
	assert.Equal(t, o.OrderID, *got.CurrentOrderID)

	assert.Equal(t, 1, env.bus.count(realtime.EventNewOrder))
	assert.Equal(t, 1, env.bus.count(realtime.EventTableUpdated))

	// 后厨收到 new_order 通知
	list, err := env.notifySvc.ListNotifications(context.Background(), ListNotificationsRequest{Actor: kitchen})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, domain.NotifyNewOrder, list.Items[0].Type)
}

func TestCreateOrder_TokensIncreasePerBranch(t *testing.T) {
	env := newTestEnv(t)
	first := env.createTakeaway(t, scenarioItems())
	second := env.createTakeaway(t, scenarioItems())
	assert.Equal(t, first.Token+1, second.Token)

	other := domain.Actor{UserID: "u2", TenantID: "t1", BranchID: "b2", Role: domain.RoleCashier}
	o, err := env.orderSvc.CreateOrder(context.Background(), CreateOrderRequest{Actor: other, Items: scenarioItems()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.Token)
}

func TestCreateOrder_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateOrderRequest
	}{
		{"no items", CreateOrderRequest{Actor: waiter}},
		{"zero quantity", CreateOrderRequest{Actor: waiter, Items: []OrderItemInput{{Name: "Tea", Price: dec("10"), Quantity: 0}}}},
		{"negative price", CreateOrderRequest{Actor: waiter, Items: []OrderItemInput{{Name: "Tea", Price: dec("-1"), Quantity: 1}}}},
		{"dine-in without table", CreateOrderRequest{Actor: waiter, OrderType: domain.OrderTypeDineIn, Items: scenarioItems()}},
		{"discount exceeds total", CreateOrderRequest{Actor: waiter, Items: scenarioItems(), Discount: dec("600")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.orderSvc.CreateOrder(ctx, tc.req)
			requireKind(t, err, domain.KindValidation)
		})
	}

	_, err := env.orderSvc.CreateOrder(ctx, CreateOrderRequest{Actor: kitchen, Items: scenarioItems()})
	requireKind(t, err, domain.KindForbidden)

	_, err = env.orderSvc.CreateOrder(ctx, CreateOrderRequest{Actor: domain.Actor{Role: domain.RoleWaiter}, Items: scenarioItems()})
	requireKind(t, err, domain.KindUnauthenticated)
}

func TestCreateOrder_TableNotAvailable(t *testing.T) {
	env := newTestEnv(t)
	tb := env.createTable(t, "T1")
	env.createDineIn(t, tb.TableID, scenarioItems())

	_, err := env.orderSvc.CreateOrder(context.Background(), CreateOrderRequest{
		Actor: waiter, TableID: tb.TableID, Items: scenarioItems(),
	})
	requireKind(t, err, domain.KindConflict)
}

func TestCreateOrder_ReservedTableCanBeOccupied(t *testing.T) {
	env := newTestEnv(t)
	tb := env.createTable(t, "T1")
	_, err := env.tableSvc.ReserveTable(context.Background(), TableActionRequest{Actor: waiter, TableID: tb.TableID})
	require.NoError(t, err)

	env.createDineIn(t, tb.TableID, scenarioItems())

	got := env.getTable(t, tb.TableID)
	assert.Equal(t, domain.TableOccupied, got.Status)
	assert.Nil(t, got.ReservedAt)
	assert.Nil(t, got.ReservedBy)
}

func TestCreateOrder_ConcurrentOrdersOnOneTable(t *testing.T) {
	env := newTestEnv(t)
	tb := env.createTable(t, "T1")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.orderSvc.CreateOrder(context.Background(), CreateOrderRequest{
				Actor: waiter, TableID: tb.TableID, Items: scenarioItems(),
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		requireKind(t, err, domain.KindConflict)
	}
	assert.Equal(t, 1, wins)

	// 败者订单（若已写入）必须是 cancelled
	active, _, err := env.orders.ListOrders(context.Background(), admin.Scope(), repository.OrderFilter{
		Statuses: []domain.OrderStatus{domain.OrderPending},
	}, 1, 50)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCancelItem_RecomputesTotalsProportionally(t *testing.T) {
	env := newTestEnv(t)
	o := env.createTakeaway(t, scenarioItems())
	biryani := o.Items[1].ItemID

	updated, err := env.orderSvc.CancelItem(context.Background(), CancelItemRequest{
		Actor: waiter, OrderID: o.OrderID, ItemID: biryani,
	})
	require.NoError(t, err)

	assert.True(t, dec("300").Equal(updated.Subtotal), updated.Subtotal.String())
	assert.True(t, dec("15").Equal(updated.Tax), updated.Tax.String())
	assert.True(t, dec("315").Equal(updated.Final), updated.Final.String())
	assert.True(t, updated.Final.Equal(updated.Subtotal.Add(updated.Tax).Sub(updated.Discount)))
	assert.Equal(t, domain.ItemCancelled, updated.Items[1].Status)
	assert.Equal(t, 1, env.bus.count(realtime.EventItemUpdated))
}

func TestCancelItem_LastItemCancelsOrderAndFreesTable(t *testing.T) {
	env := newTestEnv(t)
	tb := env.createTable(t, "T1")
	o := env.createDineIn(t, tb.TableID, []OrderItemInput{{Name: "Lassi", Price: dec("60"), Quantity: 1}})

	updated, err := env.orderSvc.CancelItem(context.Background(), CancelItemRequest{
		Actor: waiter, OrderID: o.OrderID, ItemID: o.Items[0].ItemID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, updated.Status)
	assert.Equal(t, domain.KOTClosed, updated.KOTStatus)

	got := env.getTable(t, tb.TableID)
	assert.Equal(t, domain.TableAvailable, got.Status)
	assert.Nil(t, got.CurrentOrderID)
	assert.Equal(t, 1, env.bus.count(realtime.EventOrderCancelled))
}

func TestCancelItem_RoleRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.createTakeaway(t, scenarioItems())
	item := o.Items[0].ItemID

	_, err := env.orderSvc.UpdateItemStatus(ctx, UpdateItemStatusRequest{
		Actor: kitchen, OrderID: o.OrderID, ItemID: item, Status: domain.ItemPreparing,
	})
	require.NoError(t, err)

	// waiter 只能取消 PENDING 条目
	_, err = env.orderSvc.CancelItem(ctx, CancelItemRequest{Actor: waiter, OrderID: o.OrderID, ItemID: item})
	requireKind(t, err, domain.KindForbidden)

	_, err = env.orderSvc.CancelItem(ctx, CancelItemRequest{Actor: kitchen, OrderID: o.OrderID, ItemID: item})
	require.NoError(t, err)

	_, err = env.orderSvc.CancelItem(ctx, CancelItemRequest{Actor: kitchen, OrderID: o.OrderID, ItemID: item})
	requireKind(t, err, domain.KindConflict)

	_, err = env.orderSvc.CancelItem(ctx, CancelItemRequest{Actor: kitchen, OrderID: o.OrderID, ItemID: "missing"})
	requireKind(t, err, domain.KindNotFound)
}

func TestUpdateOrderStatus_KitchenCannotComplete(t *testing.T) {
	env := newTestEnv(t)
	o := env.createTakeaway(t, scenarioItems())

	for _, status := range []domain.OrderStatus{domain.OrderPending, domain.OrderReady} {
		if status == domain.OrderReady {
			env.markReady(t, o.OrderID)
		}
		_, err := env.orderSvc.UpdateOrderStatus(context.Background(), UpdateOrderStatusRequest{
			Actor: kitchen, OrderID: o.OrderID, Status: domain.OrderCompleted,
		})
		requireKind(t, err, domain.KindForbidden)
		assert.Equal(t, "Kitchen cannot mark orders as completed", domain.MessageOf(err))
	}
}

func TestUpdateOrderStatus_Transitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.createTakeaway(t, scenarioItems())

	// waiter 不能推进到 preparing
	_, err := env.orderSvc.UpdateOrderStatus(ctx, UpdateOrderStatusRequest{Actor: waiter, OrderID: o.OrderID, Status: domain.OrderPreparing})
	requireKind(t, err, domain.KindForbidden)

	prep, err := env.orderSvc.UpdateOrderStatus(ctx, UpdateOrderStatusRequest{Actor: kitchen, OrderID: o.OrderID, Status: domain.OrderPreparing})
	require.NoError(t, err)
	require.NotNil(t, prep.PrepStartedAt)

	// 同状态幂等，不重复广播
	before := env.bus.count(realtime.EventOrderUpdated)
	again, err := env.orderSvc.UpdateOrderStatus(ctx, UpdateOrderStatusRequest{Actor: kitchen, OrderID: o.OrderID, Status: domain.OrderPreparing})
	require.NoError(t, err)
	assert.Equal(t, prep.Version, again.Version)
	assert.Equal(t, before, env.bus.count(realtime.EventOrderUpdated))

	// 不能回退
	_, err = env.orderSvc.UpdateOrderStatus(ctx, UpdateOrderStatusRequest{Actor: admin, OrderID: o.OrderID, Status: domain.OrderAccepted})
	requireKind(t, err, domain.KindConflict)

	env.markReady(t, o.OrderID)
	waiterList, err := env.notifySvc.ListNotifications(ctx, ListNotificationsRequest{Actor: waiter})
	require.NoError(t, err)
	require.Len(t, waiterList.Items, 1)
	assert.Equal(t, domain.NotifyOrderReady, waiterList.Items[0].Type)

	// 已支付的订单由收款完成，再次标记 completed 幂等
	_, err = env.paymentSvc.ProcessPayment(ctx, ProcessPaymentRequest{
		Actor: cashier, OrderID: o.OrderID, Method: domain.MethodCash, AmountReceived: dec("525"),
	})
	require.NoError(t, err)
	done, err := env.orderSvc.UpdateOrderStatus(ctx, UpdateOrderStatusRequest{Actor: waiter, OrderID: o.OrderID, Status: domain.OrderCompleted})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, domain.KOTClosed, done.KOTStatus)
}

func TestUpdateOrderStatus_CompletionRequiresPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tb := env.createTable(t, "T1")
	o := env.createDineIn(t, tb.TableID, scenarioItems())
	env.markReady(t, o.OrderID)

	for _, a := range []domain.Actor{waiter, cashier, admin} {
		_, err := env.orderSvc.UpdateOrderStatus(ctx, UpdateOrderStatusRequest{
			Actor: a, OrderID: o.OrderID, Status: domain.OrderCompleted,
		})
		requireKind(t, err, domain.KindConflict)
		assert.Equal(t, "Order must be paid before completion", domain.MessageOf(err))
	}
	got := env.getOrder(t, o.OrderID)
	assert.Equal(t, domain.OrderReady, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, domain.TableOccupied, env.getTable(t, tb.TableID).Status)

	// 订单仍可现金收款，桌台经 billing 进入 cleaning 后可清台
	resp, err := env.paymentSvc.ProcessPayment(ctx, ProcessPaymentRequest{
		Actor: cashier, OrderID: o.OrderID, Method: domain.MethodCash, AmountReceived: dec("525"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, resp.Order.Status)
	assert.Equal(t, domain.TableCleaning, env.getTable(t, tb.TableID).Status)

	cleaned, err := env.tableSvc.CleanTable(ctx, TableActionRequest{Actor: waiter, TableID: tb.TableID})
	require.NoError(t, err)
	assert.Equal(t, domain.TableAvailable, cleaned.Status)
}

func TestUpdateItemStatus_AutoAdvancesOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.createTakeaway(t, scenarioItems())

	updated, err := env.orderSvc.UpdateItemStatus(ctx, UpdateItemStatusRequest{
		Actor: kitchen, OrderID: o.OrderID, ItemID: o.Items[0].ItemID, Status: domain.ItemPreparing,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPreparing, updated.Status)

	for _, it := range o.Items {
		updated, err = env.orderSvc.UpdateItemStatus(ctx, UpdateItemStatusRequest{
			Actor: kitchen, OrderID: o.OrderID, ItemID: it.ItemID, Status: domain.ItemReady,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, domain.OrderReady, updated.Status)
	require.NotNil(t, updated.ReadyAt)

	// 回退被拒绝
	_, err = env.orderSvc.UpdateItemStatus(ctx, UpdateItemStatusRequest{
		Actor: kitchen, OrderID: o.OrderID, ItemID: o.Items[0].ItemID, Status: domain.ItemPreparing,
	})
	requireKind(t, err, domain.KindConflict)

	// waiter 只能标记 SERVED
	_, err = env.orderSvc.UpdateItemStatus(ctx, UpdateItemStatusRequest{
		Actor: waiter, OrderID: o.OrderID, ItemID: o.Items[0].ItemID, Status: domain.ItemReady,
	})
	requireKind(t, err, domain.KindForbidden)
	_, err = env.orderSvc.UpdateItemStatus(ctx, UpdateItemStatusRequest{
		Actor: waiter, OrderID: o.OrderID, ItemID: o.Items[0].ItemID, Status: domain.ItemServed,
	})
	require.NoError(t, err)
}

func TestAddItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.createTakeaway(t, scenarioItems())

	updated, err := env.orderSvc.AddItems(ctx, AddItemsRequest{
		Actor: waiter, OrderID: o.OrderID,
		Items: []OrderItemInput{{Name: "Naan", Price: dec("50"), Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Len(t, updated.Items, 3)
	assert.True(t, dec("600").Equal(updated.Subtotal))
	assert.True(t, dec("30").Equal(updated.Tax))
	assert.True(t, dec("630").Equal(updated.Final))

	env.markReady(t, o.OrderID)
	_, err = env.orderSvc.AddItems(ctx, AddItemsRequest{
		Actor: waiter, OrderID: o.OrderID,
		Items: []OrderItemInput{{Name: "Naan", Price: dec("50"), Quantity: 1}},
	})
	requireKind(t, err, domain.KindConflict)
}

func TestCancelOrder_RoleRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tb := env.createTable(t, "T1")
	o := env.createDineIn(t, tb.TableID, scenarioItems())

	_, err := env.orderSvc.UpdateOrderStatus(ctx, UpdateOrderStatusRequest{Actor: kitchen, OrderID: o.OrderID, Status: domain.OrderPreparing})
	require.NoError(t, err)

	_, err = env.orderSvc.CancelOrder(ctx, CancelOrderRequest{Actor: waiter, OrderID: o.OrderID})
	requireKind(t, err, domain.KindForbidden)
	assert.Equal(t, "Waiters can only cancel pending orders", domain.MessageOf(err))

	_, err = env.orderSvc.CancelOrder(ctx, CancelOrderRequest{Actor: cashier, OrderID: o.OrderID})
	requireKind(t, err, domain.KindForbidden)
	assert.Equal(t, "Cashiers cannot cancel orders", domain.MessageOf(err))

	cancelled, err := env.orderSvc.CancelOrder(ctx, CancelOrderRequest{Actor: admin, OrderID: o.OrderID, Reason: "customer left"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	assert.Equal(t, "customer left", cancelled.CancelReason)
	assert.Equal(t, domain.TableAvailable, env.getTable(t, tb.TableID).Status)

	_, err = env.orderSvc.CancelOrder(ctx, CancelOrderRequest{Actor: admin, OrderID: o.OrderID})
	requireKind(t, err, domain.KindConflict)
}

func TestCancelOrder_ViaStatusUpdate(t *testing.T) {
	env := newTestEnv(t)
	o := env.createTakeaway(t, scenarioItems())

	cancelled, err := env.orderSvc.UpdateOrderStatus(context.Background(), UpdateOrderStatusRequest{
		Actor: waiter, OrderID: o.OrderID, Status: domain.OrderCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
}

func TestGetOrder_OtherTenantIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	o := env.createTakeaway(t, scenarioItems())

	outsider := domain.Actor{UserID: "x", TenantID: "t2", BranchID: "b1", Role: domain.RoleAdmin}
	_, err := env.orderSvc.GetOrder(context.Background(), GetOrderRequest{Actor: outsider, OrderID: o.OrderID})
	requireKind(t, err, domain.KindNotFound)

	_, err = env.orderSvc.CancelOrder(context.Background(), CancelOrderRequest{Actor: outsider, OrderID: o.OrderID})
	requireKind(t, err, domain.KindNotFound)
}

func TestListOrders_FilterAndPaging(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.createTakeaway(t, scenarioItems())
	}
	o := env.createTakeaway(t, scenarioItems())
	env.markReady(t, o.OrderID)

	resp, err := env.orderSvc.ListOrders(context.Background(), ListOrdersRequest{
		Actor:  waiter,
		Filter: repository.OrderFilter{Statuses: []domain.OrderStatus{domain.OrderPending}},
		Page:   1,
		Size:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Items, 2)

	_, err = env.orderSvc.ListOrders(context.Background(), ListOrdersRequest{
		Actor:  waiter,
		Filter: repository.OrderFilter{Statuses: []domain.OrderStatus{"bogus"}},
	})
	requireKind(t, err, domain.KindValidation)
}
