package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/realtime"
	"owl-restaurant/internal/repository"
)

// maxOrderWriteAttempts 乐观锁冲突时的最大重试次数
const maxOrderWriteAttempts = 3

// errNoChange 幂等操作：状态已是目标值，不写入
var errNoChange = errors.New("no change")

// OrderService 订单生命周期服务接口
type OrderService interface {
	// 查询
	GetOrder(ctx context.Context, req GetOrderRequest) (*domain.Order, error)
	ListOrders(ctx context.Context, req ListOrdersRequest) (*ListOrdersResponse, error)

	// 创建 / 修改
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error)
	AddItems(ctx context.Context, req AddItemsRequest) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, req UpdateOrderStatusRequest) (*domain.Order, error)
	UpdateItemStatus(ctx context.Context, req UpdateItemStatusRequest) (*domain.Order, error)

	// 取消
	CancelItem(ctx context.Context, req CancelItemRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, req CancelOrderRequest) (*domain.Order, error)
}

type orderService struct {
	tableCascade
	notifier NotificationService
}

// NewOrderService 创建 OrderService 实例
func NewOrderService(deps Dependencies, notifier NotificationService) OrderService {
	return &orderService{
		tableCascade: tableCascade{lifecycle: newLifecycle(deps)},
		notifier:     notifier,
	}
}

// CheckKitchenGate 只有 ready 的订单可以进入支付
func CheckKitchenGate(o *domain.Order) error {
	if o.Status != domain.OrderReady {
		return domain.Conflict(fmt.Sprintf("Order is not ready for payment (current status: %s)", o.Status))
	}
	return nil
}

// OrderItemInput 下单 / 加菜的条目输入
type OrderItemInput struct {
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	Notes      string          `json:"notes"`
}

func buildItems(inputs []OrderItemInput, now time.Time) ([]domain.OrderItem, error) {
	if len(inputs) == 0 {
		return nil, domain.Validation("Order must contain at least one item")
	}
	items := make([]domain.OrderItem, 0, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, domain.Validation(fmt.Sprintf("item %d: name is required", i+1))
		}
		if in.Quantity <= 0 {
			return nil, domain.Validation(fmt.Sprintf("item %d: quantity must be at least 1", i+1))
		}
		if in.Price.IsNegative() {
			return nil, domain.Validation(fmt.Sprintf("item %d: price cannot be negative", i+1))
		}
		items = append(items, domain.OrderItem{
			ItemID:     uuid.NewString(),
			MenuItemID: in.MenuItemID,
			Name:       name,
			Price:      domain.Round2(in.Price),
			Quantity:   in.Quantity,
			Notes:      strings.TrimSpace(in.Notes),
			Status:     domain.ItemPending,
			UpdatedAt:  now,
		})
	}
	return items, nil
}

// CreateOrderRequest 下单请求
type CreateOrderRequest struct {
	Actor     domain.Actor
	OrderType domain.OrderType
	TableID   string // dine_in 必填
	Customer  domain.Customer
	Items     []OrderItemInput
	TaxRate   decimal.Decimal // 百分比，如 5 表示 5%
	Discount  decimal.Decimal // 金额
}

func (s *orderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if err := authorize(req.Actor, domain.OpCreateOrder); err != nil {
		return nil, err
	}
	scope := req.Actor.Scope()
	now := s.now()

	// 1. 参数验证
	orderType := req.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeTakeaway
		if req.TableID != "" {
			orderType = domain.OrderTypeDineIn
		}
	}
	if !orderType.Valid() {
		return nil, domain.Validation(fmt.Sprintf("invalid order type %q", req.OrderType))
	}
	if orderType == domain.OrderTypeDineIn && req.TableID == "" {
		return nil, domain.Validation("table_id is required for dine-in orders")
	}
	items, err := buildItems(req.Items, now)
	if err != nil {
		return nil, err
	}
	if req.TaxRate.IsNegative() || req.Discount.IsNegative() {
		return nil, domain.Validation("tax rate and discount cannot be negative")
	}
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	totals := domain.NewTotals(subtotal, req.TaxRate, req.Discount)
	if totals.Final.IsNegative() {
		return nil, domain.Validation("Discount cannot exceed the order total")
	}

	// 2. 堂食：桌台必须 available / reserved
	if orderType == domain.OrderTypeDineIn {
		t, err := s.Tables.GetTable(ctx, scope, req.TableID)
		if err != nil {
			return nil, storageErr(err, "Table", "get table")
		}
		t = s.reconcile(ctx, t)
		if !t.StatusIn(domain.OccupiableStatuses) {
			return nil, domain.Conflict(fmt.Sprintf("Table %s is not available (current status: %s)", t.Number, t.Status))
		}
	}

	// 3. 分配序号并写入订单
	token, err := s.Sequence.Next(ctx, scope)
	if err != nil {
		return nil, domain.Internal("failed to allocate order number", err)
	}
	order := &domain.Order{
		OrderID:       uuid.NewString(),
		TenantID:      scope.TenantID,
		BranchID:      scope.BranchID,
		Token:         token,
		OrderNumber:   domain.FormatOrderNumber(token),
		OrderType:     orderType,
		Customer:      req.Customer,
		Items:         items,
		Status:        domain.OrderPending,
		PaymentStatus: domain.PaymentPending,
		KOTStatus:     domain.KOTOpen,
		Totals:        totals,
		CreatedBy:     req.Actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	if orderType == domain.OrderTypeDineIn {
		order.TableID = strPtr(req.TableID)
	}
	if err := s.Orders.CreateOrder(ctx, order); err != nil {
		s.Logger.Error("CreateOrder failed",
			zap.String("tenant_id", scope.TenantID),
			zap.String("branch_id", scope.BranchID),
			zap.Int64("token", token),
			zap.Error(err),
		)
		return nil, domain.Internal("failed to create order", err)
	}

	effects := []Effect{s.broadcast(scope, realtime.EventNewOrder, order)}

	// 4. 订单写入成功后占用桌台；期间桌台被其他订单抢占则撤销本单
	if order.IsDineIn() {
		t, err := s.occupy(ctx, scope, req.TableID, order.OrderID)
		if err != nil {
			s.compensateCreate(ctx, order, err)
			if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
				return nil, domain.Conflict("Table is no longer available")
			}
			return nil, domain.Internal("failed to occupy table", err)
		}
		effects = append(effects, s.broadcast(scope, realtime.EventTableUpdated, t))
	}

	effects = append(effects,
		notifyEffect(s.notifier, NotifyRequest{
			Scope:       scope,
			Type:        domain.NotifyNewOrder,
			TargetRole:  domain.RoleKitchen,
			Title:       "New order",
			Message:     fmt.Sprintf("New order %s with %d item(s)", order.OrderNumber, len(order.Items)),
			ReferenceID: order.OrderID,
			CreatedBy:   req.Actor.UserID,
		}),
		s.invalidate(scope),
	)
	s.run("order.create", effects...)

	s.Logger.Info("Order created",
		zap.String("tenant_id", scope.TenantID),
		zap.String("branch_id", scope.BranchID),
		zap.String("order_id", order.OrderID),
		zap.String("order_number", order.OrderNumber),
	)
	return order, nil
}

// compensateCreate 占桌失败时取消刚创建的订单
func (s *orderService) compensateCreate(ctx context.Context, order *domain.Order, cause error) {
	order.MarkCancelled("system", "Table no longer available", s.now())
	order.UpdatedAt = s.now()
	if err := s.Orders.UpdateOrder(ctx, order); err != nil {
		s.Logger.Error("Failed to cancel order after table conflict",
			zap.String("order_id", order.OrderID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	s.run("order.create.compensate",
		s.broadcast(order.Scope(), realtime.EventOrderCancelled, order),
		s.invalidate(order.Scope()),
	)
}

// GetOrderRequest 查询订单
type GetOrderRequest struct {
	Actor   domain.Actor
	OrderID string
}

func (s *orderService) GetOrder(ctx context.Context, req GetOrderRequest) (*domain.Order, error) {
	if err := authorize(req.Actor, domain.OpViewOrders); err != nil {
		return nil, err
	}
	o, err := s.Orders.GetOrder(ctx, req.Actor.Scope(), req.OrderID)
	if err != nil {
		return nil, storageErr(err, "Order", "get order")
	}
	return o, nil
}

// ListOrdersRequest 查询订单列表
type ListOrdersRequest struct {
	Actor  domain.Actor
	Filter repository.OrderFilter
	Page   int // 默认 1
	Size   int // 默认 20
}

// ListOrdersResponse 订单列表
type ListOrdersResponse struct {
	Items []*domain.Order `json:"items"`
	Total int             `json:"total"`
}

func (s *orderService) ListOrders(ctx context.Context, req ListOrdersRequest) (*ListOrdersResponse, error) {
	if err := authorize(req.Actor, domain.OpViewOrders); err != nil {
		return nil, err
	}
	for _, st := range req.Filter.Statuses {
		if !st.Valid() {
			return nil, domain.Validation(fmt.Sprintf("invalid order status %q", st))
		}
	}
	items, total, err := s.Orders.ListOrders(ctx, req.Actor.Scope(), req.Filter, req.Page, req.Size)
	if err != nil {
		s.Logger.Error("ListOrders failed", zap.String("tenant_id", req.Actor.TenantID), zap.Error(err))
		return nil, domain.Internal("failed to list orders", err)
	}
	return &ListOrdersResponse{Items: items, Total: total}, nil
}

// orderStatusRoles 各目标状态允许的角色
var orderStatusRoles = map[domain.OrderStatus][]domain.Role{
	domain.OrderAccepted:  {domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleCashier, domain.RoleWaiter, domain.RoleKitchen},
	domain.OrderPreparing: {domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleKitchen},
	domain.OrderReady:     {domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleKitchen},
	domain.OrderCompleted: {domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleCashier, domain.RoleWaiter},
}

func checkStatusRole(role domain.Role, target domain.OrderStatus) error {
	if role == domain.RoleKitchen && target == domain.OrderCompleted {
		return domain.Forbidden("Kitchen cannot mark orders as completed")
	}
	allowed, ok := orderStatusRoles[target]
	if !ok {
		return domain.Validation(fmt.Sprintf("invalid target status %q", target))
	}
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	return domain.Forbidden(fmt.Sprintf("Role %s cannot mark orders as %s", role, target))
}

// UpdateOrderStatusRequest 更新订单状态
type UpdateOrderStatusRequest struct {
	Actor   domain.Actor
	OrderID string
	Status  domain.OrderStatus
	Reason  string // 目标为 cancelled 时使用
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, req UpdateOrderStatusRequest) (*domain.Order, error) {
	if err := authorize(req.Actor, domain.OpUpdateOrderStatus); err != nil {
		return nil, err
	}
	if req.Status == domain.OrderCancelled {
		return s.CancelOrder(ctx, CancelOrderRequest{Actor: req.Actor, OrderID: req.OrderID, Reason: req.Reason})
	}
	if err := checkStatusRole(req.Actor.Role, req.Status); err != nil {
		return nil, err
	}

	scope := req.Actor.Scope()
	o, changed, err := s.mutate(ctx, scope, req.OrderID, func(o *domain.Order) error {
		if o.Status == req.Status {
			return errNoChange
		}
		if err := o.Status.CheckAdvance(req.Status); err != nil {
			return err
		}
		// 完成由收款驱动：未支付订单不能手动完成
		if req.Status == domain.OrderCompleted {
			if o.PaymentStatus != domain.PaymentPaid {
				return domain.Conflict("Order must be paid before completion")
			}
			o.KOTStatus = domain.KOTClosed
		}
		now := s.now()
		o.Status = req.Status
		o.StampStatus(req.Status, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}

	effects := []Effect{s.broadcast(scope, realtime.EventOrderUpdated, o)}
	switch req.Status {
	case domain.OrderReady:
		effects = append(effects, s.readyNotification(o, req.Actor.UserID))
	case domain.OrderCompleted:
		effects = append(effects, s.broadcast(scope, realtime.EventOrderCompleted, o))
		if o.IsDineIn() {
			if t := s.moveToCleaning(ctx, scope, *o.TableID, o.OrderID); t != nil {
				effects = append(effects, s.broadcast(scope, realtime.EventTableUpdated, t))
			}
		}
	}
	effects = append(effects, s.invalidate(scope))
	s.run("order.status", effects...)
	return o, nil
}

func (s *orderService) readyNotification(o *domain.Order, by string) Effect {
	return notifyEffect(s.notifier, NotifyRequest{
		Scope:       o.Scope(),
		Type:        domain.NotifyOrderReady,
		TargetRole:  domain.RoleWaiter,
		Title:       "Order ready",
		Message:     fmt.Sprintf("Order %s is ready to serve", o.OrderNumber),
		ReferenceID: o.OrderID,
		CreatedBy:   by,
	})
}

// AddItemsRequest 加菜
type AddItemsRequest struct {
	Actor   domain.Actor
	OrderID string
	Items   []OrderItemInput
}

func (s *orderService) AddItems(ctx context.Context, req AddItemsRequest) (*domain.Order, error) {
	if err := authorize(req.Actor, domain.OpAddOrderItems); err != nil {
		return nil, err
	}
	scope := req.Actor.Scope()
	now := s.now()
	added, err := buildItems(req.Items, now)
	if err != nil {
		return nil, err
	}

	o, _, err := s.mutate(ctx, scope, req.OrderID, func(o *domain.Order) error {
		switch o.Status {
		case domain.OrderPending, domain.OrderAccepted, domain.OrderPreparing:
		default:
			return domain.Conflict(fmt.Sprintf("Cannot add items to a %s order", o.Status))
		}
		if o.PaymentStatus != domain.PaymentPending {
			return domain.Conflict("Cannot add items while payment is in progress")
		}
		o.Items = append(o.Items, added...)
		o.RecomputeTotals()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.run("order.items.add",
		s.broadcast(scope, realtime.EventOrderUpdated, o),
		s.invalidate(scope),
	)
	return o, nil
}

// itemStatusRoles 条目状态允许的角色
var itemStatusRoles = map[domain.ItemStatus][]domain.Role{
	domain.ItemPreparing: {domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleKitchen},
	domain.ItemReady:     {domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleKitchen},
	domain.ItemServed:    {domain.RoleSuperAdmin, domain.RoleAdmin, domain.RoleKitchen, domain.RoleWaiter},
}

// UpdateItemStatusRequest 更新条目状态
type UpdateItemStatusRequest struct {
	Actor   domain.Actor
	OrderID string
	ItemID  string
	Status  domain.ItemStatus
}

func (s *orderService) UpdateItemStatus(ctx context.Context, req UpdateItemStatusRequest) (*domain.Order, error) {
	if err := authorize(req.Actor, domain.OpUpdateItemStatus); err != nil {
		return nil, err
	}
	if req.Status == domain.ItemCancelled {
		return s.CancelItem(ctx, CancelItemRequest{Actor: req.Actor, OrderID: req.OrderID, ItemID: req.ItemID})
	}
	allowed, ok := itemStatusRoles[req.Status]
	if !ok {
		return nil, domain.Validation(fmt.Sprintf("invalid item status %q", req.Status))
	}
	if !roleIn(req.Actor.Role, allowed) {
		return nil, domain.Forbidden(fmt.Sprintf("Role %s cannot mark items as %s", req.Actor.Role, req.Status))
	}

	scope := req.Actor.Scope()
	var prevStatus domain.OrderStatus
	o, changed, err := s.mutate(ctx, scope, req.OrderID, func(o *domain.Order) error {
		prevStatus = o.Status
		if o.Status.IsTerminal() {
			return domain.Conflict(fmt.Sprintf("Cannot update items of a %s order", o.Status))
		}
		idx := o.FindItem(req.ItemID)
		if idx < 0 {
			return domain.NotFound("Item not found")
		}
		item := &o.Items[idx]
		if err := item.Status.CheckAdvance(req.Status); err != nil {
			return err
		}
		if item.Status == req.Status {
			return errNoChange
		}
		now := s.now()
		item.Status = req.Status
		item.UpdatedAt = now
		autoAdvance(o, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}

	effects := []Effect{s.broadcast(scope, realtime.EventItemUpdated, map[string]any{
		"id":        o.OrderID,
		"item_id":   req.ItemID,
		"newStatus": req.Status,
		"order":     o,
	})}
	if o.Status != prevStatus {
		effects = append(effects, s.broadcast(scope, realtime.EventOrderUpdated, o))
		if o.Status == domain.OrderReady {
			effects = append(effects, s.readyNotification(o, req.Actor.UserID))
		}
	}
	effects = append(effects, s.invalidate(scope))
	s.run("order.item.status", effects...)
	return o, nil
}

// autoAdvance 条目进入 PREPARING 时订单进入 preparing；全部有效条目 READY/SERVED 时订单进入 ready
func autoAdvance(o *domain.Order, now time.Time) {
	active := o.ActiveItems()
	if len(active) == 0 {
		return
	}
	anyPreparing := false
	allDone := true
	for _, it := range active {
		switch it.Status {
		case domain.ItemPreparing:
			anyPreparing = true
			allDone = false
		case domain.ItemReady, domain.ItemServed:
		default:
			allDone = false
		}
	}

	switch {
	case allDone && (o.Status == domain.OrderPending || o.Status == domain.OrderAccepted || o.Status == domain.OrderPreparing):
		o.StampStatus(domain.OrderPreparing, now)
		o.Status = domain.OrderReady
		o.StampStatus(domain.OrderReady, now)
	case anyPreparing && (o.Status == domain.OrderPending || o.Status == domain.OrderAccepted):
		o.Status = domain.OrderPreparing
		o.StampStatus(domain.OrderPreparing, now)
	}
}

// CancelItemRequest 取消条目
type CancelItemRequest struct {
	Actor   domain.Actor
	OrderID string
	ItemID  string
	Reason  string
}

func (s *orderService) CancelItem(ctx context.Context, req CancelItemRequest) (*domain.Order, error) {
	if err := authorize(req.Actor, domain.OpCancelItem); err != nil {
		return nil, err
	}
	scope := req.Actor.Scope()
	var prevStatus domain.OrderStatus
	o, _, err := s.mutate(ctx, scope, req.OrderID, func(o *domain.Order) error {
		prevStatus = o.Status
		if o.Status.IsTerminal() {
			return domain.Conflict(fmt.Sprintf("Cannot cancel items of a %s order", o.Status))
		}
		if o.PaymentStatus != domain.PaymentPending {
			return domain.Conflict("Cannot cancel items while payment is in progress")
		}
		idx := o.FindItem(req.ItemID)
		if idx < 0 {
			return domain.NotFound("Item not found")
		}
		item := &o.Items[idx]
		switch item.Status {
		case domain.ItemCancelled:
			return domain.Conflict("Item is already cancelled")
		case domain.ItemServed:
			return domain.Conflict("Item has already been served")
		}
		if req.Actor.Role == domain.RoleWaiter && item.Status != domain.ItemPending {
			return domain.Forbidden("Waiters can only cancel items that are not yet being prepared")
		}

		now := s.now()
		item.Status = domain.ItemCancelled
		item.CancelledBy = req.Actor.UserID
		item.CancelledAt = &now
		item.UpdatedAt = now
		o.RecomputeTotals()

		if len(o.ActiveItems()) == 0 {
			reason := req.Reason
			if reason == "" {
				reason = "All items cancelled"
			}
			o.MarkCancelled(req.Actor.UserID, reason, now)
			return nil
		}
		autoAdvance(o, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	effects := []Effect{s.broadcast(scope, realtime.EventItemUpdated, map[string]any{
		"id":        o.OrderID,
		"item_id":   req.ItemID,
		"newStatus": domain.ItemCancelled,
		"order":     o,
	})}
	switch {
	case o.Status == domain.OrderCancelled:
		effects = append(effects, s.cancelledEffects(ctx, o, req.Actor.UserID)...)
	case o.Status != prevStatus:
		effects = append(effects, s.broadcast(scope, realtime.EventOrderUpdated, o))
		if o.Status == domain.OrderReady {
			effects = append(effects, s.readyNotification(o, req.Actor.UserID))
		}
	default:
		effects = append(effects, s.broadcast(scope, realtime.EventOrderUpdated, o))
	}
	effects = append(effects, s.invalidate(scope))
	s.run("order.item.cancel", effects...)
	return o, nil
}

// CancelOrderRequest 整单取消
type CancelOrderRequest struct {
	Actor   domain.Actor
	OrderID string
	Reason  string
}

// checkCancelRole waiter 只能取消 pending；kitchen 可取消 pending/accepted/preparing；cashier 不能取消；admin 不受限
func checkCancelRole(role domain.Role, status domain.OrderStatus) error {
	switch {
	case role.IsPrivileged():
		return nil
	case role == domain.RoleCashier:
		return domain.Forbidden("Cashiers cannot cancel orders")
	case role == domain.RoleWaiter && status != domain.OrderPending:
		return domain.Forbidden("Waiters can only cancel pending orders")
	case role == domain.RoleKitchen && status != domain.OrderPending && status != domain.OrderAccepted && status != domain.OrderPreparing:
		return domain.Forbidden(fmt.Sprintf("Kitchen cannot cancel an order that is %s", status))
	}
	return nil
}

func (s *orderService) CancelOrder(ctx context.Context, req CancelOrderRequest) (*domain.Order, error) {
	if err := req.Actor.Validate(); err != nil {
		return nil, err
	}
	if req.Actor.Role == domain.RoleCashier {
		return nil, domain.Forbidden("Cashiers cannot cancel orders")
	}
	if err := domain.Authorize(domain.OpCancelOrder, req.Actor.Role); err != nil {
		return nil, err
	}

	scope := req.Actor.Scope()
	o, _, err := s.mutate(ctx, scope, req.OrderID, func(o *domain.Order) error {
		if o.Status.IsTerminal() {
			return domain.Conflict(fmt.Sprintf("Order is already %s", o.Status))
		}
		if err := checkCancelRole(req.Actor.Role, o.Status); err != nil {
			return err
		}
		o.MarkCancelled(req.Actor.UserID, strings.TrimSpace(req.Reason), s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	effects := s.cancelledEffects(ctx, o, req.Actor.UserID)
	effects = append(effects, s.invalidate(scope))
	s.run("order.cancel", effects...)

	s.Logger.Info("Order cancelled",
		zap.String("tenant_id", scope.TenantID),
		zap.String("branch_id", scope.BranchID),
		zap.String("order_id", o.OrderID),
		zap.String("role", string(req.Actor.Role)),
	)
	return o, nil
}

// cancelledEffects 释放桌台（同步）并返回取消相关的广播 / 通知
func (s *orderService) cancelledEffects(ctx context.Context, o *domain.Order, by string) []Effect {
	scope := o.Scope()
	effects := []Effect{s.broadcast(scope, realtime.EventOrderCancelled, o)}
	if o.IsDineIn() {
		if t := s.releaseForOrder(ctx, scope, *o.TableID, o.OrderID); t != nil {
			effects = append(effects, s.broadcast(scope, realtime.EventTableUpdated, t))
		}
	}
	effects = append(effects, notifyEffect(s.notifier, NotifyRequest{
		Scope:       scope,
		Type:        domain.NotifyOrderCancelled,
		TargetRole:  domain.RoleAll,
		Title:       "Order cancelled",
		Message:     fmt.Sprintf("Order %s was cancelled", o.OrderNumber),
		ReferenceID: o.OrderID,
		CreatedBy:   by,
	}))
	return effects
}

func roleIn(role domain.Role, set []domain.Role) bool {
	for _, r := range set {
		if r == role {
			return true
		}
	}
	return false
}
