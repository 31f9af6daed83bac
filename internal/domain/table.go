package domain

import (
	"fmt"
	"time"
)

// TableStatus 桌台状态
type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableReserved  TableStatus = "reserved"
	TableOccupied  TableStatus = "occupied"
	TableBilling   TableStatus = "billing"
	TableCleaning  TableStatus = "cleaning"
)

func (s TableStatus) Valid() bool {
	_, ok := TableTransitions[s]
	return ok
}

// TableTransitions 显式状态流转表（当前 -> 允许的下一状态）
// occupied -> billing 由订单完成驱动，不直接对外开放
var TableTransitions = map[TableStatus][]TableStatus{
	TableAvailable: {TableReserved},
	TableReserved:  {TableOccupied, TableAvailable},
	TableOccupied:  {TableBilling},
	TableBilling:   {TableCleaning},
	TableCleaning:  {TableAvailable},
}

// CanTransition 是否在流转表内
func (s TableStatus) CanTransition(next TableStatus) bool {
	for _, n := range TableTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// CheckTransition 不在流转表内时返回带描述的冲突错误
func (s TableStatus) CheckTransition(next TableStatus) error {
	if s.CanTransition(next) {
		return nil
	}
	return Conflict(fmt.Sprintf("Invalid table transition from %s to %s", s, next))
}

// 系统级流转（由订单 / 支付驱动）允许的来源状态
var (
	// 下单占用：available 或 reserved
	OccupiableStatuses = []TableStatus{TableAvailable, TableReserved}
	// 订单取消释放：仍被该订单占用（occupied 需校验 current_order_id）或处于 billing
	ReleasableForOrderStatuses = []TableStatus{TableOccupied, TableBilling}
	// 人工释放：仅 reserved（流转表 reserved -> available）
	ReleasableStatuses = []TableStatus{TableReserved}
)

// Table 桌台（tenant + branch 隔离，number 在 branch 内唯一）
type Table struct {
	TableID        string      `json:"table_id"`
	TenantID       string      `json:"tenant_id"`
	BranchID       string      `json:"branch_id"`
	Number         string      `json:"number"`
	Capacity       int         `json:"capacity"`
	Status         TableStatus `json:"status"`
	CurrentOrderID *string     `json:"current_order_id,omitempty"`
	ReservedBy     *string     `json:"reserved_by,omitempty"`
	ReservedAt     *time.Time  `json:"reserved_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TableState 一次条件写入的目标状态（nil 指针表示清空对应字段）
type TableState struct {
	Status         TableStatus
	CurrentOrderID *string
	ReservedBy     *string
	ReservedAt     *time.Time
}

// AvailableState 释放 / 清洁 / 强制重置后的状态：清空预订标记、当前订单和预订人
func AvailableState() TableState {
	return TableState{Status: TableAvailable}
}

// Apply 将目标状态写入桌台
func (t *Table) Apply(s TableState, now time.Time) {
	t.Status = s.Status
	t.CurrentOrderID = s.CurrentOrderID
	t.ReservedBy = s.ReservedBy
	t.ReservedAt = s.ReservedAt
	t.UpdatedAt = now
}

// StatusIn 当前状态是否属于集合
func (t *Table) StatusIn(set []TableStatus) bool {
	for _, s := range set {
		if t.Status == s {
			return true
		}
	}
	return false
}
