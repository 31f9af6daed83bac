package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeaway OrderType = "takeaway"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeDineIn || t == OrderTypeTakeaway
}

// OrderStatus 订单状态
// pending -> accepted -> preparing -> ready -> completed，非终态均可进入 cancelled
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderAccepted  OrderStatus = "accepted"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

var orderRank = map[OrderStatus]int{
	OrderPending:   0,
	OrderAccepted:  1,
	OrderPreparing: 2,
	OrderReady:     3,
	OrderCompleted: 4,
}

func (s OrderStatus) Valid() bool {
	_, ok := orderRank[s]
	return ok || s == OrderCancelled
}

// IsTerminal completed / cancelled 为终态
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// CheckAdvance 校验前进型状态流转（允许跳级，不允许回退；同状态视为幂等）
func (s OrderStatus) CheckAdvance(next OrderStatus) error {
	if s.IsTerminal() {
		return Conflict(fmt.Sprintf("Order is already %s", s))
	}
	if next == OrderCancelled {
		return nil
	}
	nextRank, ok := orderRank[next]
	if !ok {
		return Validation(fmt.Sprintf("invalid order status %q", next))
	}
	if nextRank < orderRank[s] {
		return Conflict(fmt.Sprintf("Cannot move order from %s back to %s", s, next))
	}
	return nil
}

// PaymentStatus 订单支付状态 pending -> payment_pending -> paid
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentInProcess PaymentStatus = "payment_pending"
	PaymentPaid      PaymentStatus = "paid"
)

// KOTStatus 后厨单据状态
type KOTStatus string

const (
	KOTOpen   KOTStatus = "open"
	KOTClosed KOTStatus = "closed"
)

// ItemStatus 订单条目状态
// PENDING -> PREPARING -> READY -> SERVED；CANCELLED 可从任何非终态进入且不可恢复
type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemPreparing ItemStatus = "PREPARING"
	ItemReady     ItemStatus = "READY"
	ItemServed    ItemStatus = "SERVED"
	ItemCancelled ItemStatus = "CANCELLED"
)

var itemRank = map[ItemStatus]int{
	ItemPending:   0,
	ItemPreparing: 1,
	ItemReady:     2,
	ItemServed:    3,
}

func (s ItemStatus) Valid() bool {
	_, ok := itemRank[s]
	return ok || s == ItemCancelled
}

func (s ItemStatus) IsTerminal() bool {
	return s == ItemServed || s == ItemCancelled
}

// CheckAdvance 条目状态只能前进
func (s ItemStatus) CheckAdvance(next ItemStatus) error {
	if s == ItemCancelled {
		return Conflict("Cannot update a cancelled item")
	}
	if s == ItemServed && next != ItemServed {
		return Conflict("Item has already been served")
	}
	if next == ItemCancelled {
		return nil
	}
	nextRank, ok := itemRank[next]
	if !ok {
		return Validation(fmt.Sprintf("invalid item status %q", next))
	}
	if nextRank < itemRank[s] {
		return Conflict(fmt.Sprintf("Cannot move item from %s back to %s", s, next))
	}
	return nil
}

// Customer 顾客信息
type Customer struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// OrderItem 订单条目
type OrderItem struct {
	ItemID      string          `json:"item_id"`
	MenuItemID  string          `json:"menu_item_id,omitempty"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Notes       string          `json:"notes,omitempty"`
	Status      ItemStatus      `json:"status"`
	CancelledBy string          `json:"cancelled_by,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LineTotal price × quantity
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order 订单聚合根（tenant + branch 隔离）
type Order struct {
	OrderID       string        `json:"order_id"`
	TenantID      string        `json:"tenant_id"`
	BranchID      string        `json:"branch_id"`
	Token         int64         `json:"token"`
	OrderNumber   string        `json:"order_number"`
	OrderType     OrderType     `json:"order_type"`
	TableID       *string       `json:"table_id,omitempty"`
	Customer      Customer      `json:"customer"`
	Items         []OrderItem   `json:"items"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	KOTStatus     KOTStatus     `json:"kot_status"`
	Totals

	PrepStartedAt *time.Time `json:"prep_started_at,omitempty"`
	ReadyAt       *time.Time `json:"ready_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`

	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy  string     `json:"cancelled_by,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// Scope 订单所属 tenant / branch
func (o *Order) Scope() Scope {
	return Scope{TenantID: o.TenantID, BranchID: o.BranchID}
}

// IsDineIn 堂食且绑定了桌台
func (o *Order) IsDineIn() bool {
	return o.OrderType == OrderTypeDineIn && o.TableID != nil && *o.TableID != ""
}

// FindItem 按 item_id 查找条目下标
func (o *Order) FindItem(itemID string) int {
	for i := range o.Items {
		if o.Items[i].ItemID == itemID {
			return i
		}
	}
	return -1
}

// ActiveItems 未取消的条目
func (o *Order) ActiveItems() []OrderItem {
	out := make([]OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		if it.Status != ItemCancelled {
			out = append(out, it)
		}
	}
	return out
}

// ActiveSubtotal 未取消条目的 price × quantity 之和
func (o *Order) ActiveSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.ActiveItems() {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// RecomputeTotals 条目组成变化后重算金额
func (o *Order) RecomputeTotals() {
	o.Totals = o.Totals.Rescale(o.ActiveSubtotal())
}

// StampStatus 首次进入某状态时记录时间戳，重复进入不覆盖
func (o *Order) StampStatus(status OrderStatus, now time.Time) {
	switch status {
	case OrderPreparing:
		o.PrepStartedAt = stampOnce(o.PrepStartedAt, now)
	case OrderReady:
		o.ReadyAt = stampOnce(o.ReadyAt, now)
	case OrderCompleted:
		o.CompletedAt = stampOnce(o.CompletedAt, now)
	}
}

// MarkCancelled 整单取消：关闭 KOT，未上菜条目一并取消
func (o *Order) MarkCancelled(by, reason string, now time.Time) {
	o.Status = OrderCancelled
	o.KOTStatus = KOTClosed
	o.CancelledAt = stampOnce(o.CancelledAt, now)
	o.CancelledBy = by
	o.CancelReason = reason
	for i := range o.Items {
		if !o.Items[i].Status.IsTerminal() {
			o.Items[i].Status = ItemCancelled
			o.Items[i].CancelledBy = by
			o.Items[i].CancelledAt = &now
			o.Items[i].UpdatedAt = now
		}
	}
}

// MarkPaid 支付成功：paid / completed / KOT 关闭，时间戳只写一次
func (o *Order) MarkPaid(now time.Time) {
	o.PaymentStatus = PaymentPaid
	o.Status = OrderCompleted
	o.KOTStatus = KOTClosed
	o.PaidAt = stampOnce(o.PaidAt, now)
	o.CompletedAt = stampOnce(o.CompletedAt, now)
}

// FormatOrderNumber 订单号展示格式
func FormatOrderNumber(token int64) string {
	return fmt.Sprintf("ORD-%06d", token)
}

func stampOnce(current *time.Time, now time.Time) *time.Time {
	if current != nil {
		return current
	}
	t := now
	return &t
}
