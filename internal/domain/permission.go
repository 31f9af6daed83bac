package domain

import "fmt"

// Operation 生命周期操作标识
type Operation string

const (
	OpCreateOrder       Operation = "order.create"
	OpViewOrders        Operation = "order.view"
	OpUpdateOrderStatus Operation = "order.status"
	OpAddOrderItems     Operation = "order.items.add"
	OpUpdateItemStatus  Operation = "order.item.status"
	OpCancelItem        Operation = "order.item.cancel"
	OpCancelOrder       Operation = "order.cancel"
	OpExportOrders      Operation = "order.export"

	OpInitiatePayment   Operation = "payment.initiate"
	OpCancelPayment     Operation = "payment.cancel"
	OpProcessPayment    Operation = "payment.process"
	OpVerifyPayment     Operation = "payment.verify"
	OpViewPayment       Operation = "payment.view"
	OpViewPaymentAudits Operation = "payment.audits"

	OpViewTables   Operation = "table.view"
	OpCreateTable  Operation = "table.create"
	OpUpdateTable  Operation = "table.update"
	OpReserveTable Operation = "table.reserve"
	OpReleaseTable Operation = "table.release"
	OpCleanTable   Operation = "table.clean"
	OpResetTable   Operation = "table.reset"

	OpViewNotifications Operation = "notification.view"
	OpCreateOffer       Operation = "notification.offer"

	OpViewDashboard Operation = "dashboard.view"
	OpViewAnalytics Operation = "analytics.view"
)

var (
	staff      = []Role{RoleSuperAdmin, RoleAdmin, RoleCashier, RoleWaiter, RoleKitchen}
	managers   = []Role{RoleSuperAdmin, RoleAdmin}
	billing    = []Role{RoleSuperAdmin, RoleAdmin, RoleCashier}
	frontHouse = []Role{RoleSuperAdmin, RoleAdmin, RoleCashier, RoleWaiter}
)

// Permissions 每个操作允许的角色集合，在操作入口统一检查一次
var Permissions = map[Operation][]Role{
	OpCreateOrder:       frontHouse,
	OpViewOrders:        staff,
	OpUpdateOrderStatus: staff,
	OpAddOrderItems:     frontHouse,
	OpUpdateItemStatus:  {RoleSuperAdmin, RoleAdmin, RoleWaiter, RoleKitchen},
	OpCancelItem:        {RoleSuperAdmin, RoleAdmin, RoleWaiter, RoleKitchen},
	OpCancelOrder:       {RoleSuperAdmin, RoleAdmin, RoleWaiter, RoleKitchen},
	OpExportOrders:      managers,

	OpInitiatePayment:   billing,
	OpCancelPayment:     billing,
	OpProcessPayment:    billing,
	OpVerifyPayment:     billing,
	OpViewPayment:       billing,
	OpViewPaymentAudits: managers,

	OpViewTables:   staff,
	OpCreateTable:  managers,
	OpUpdateTable:  managers,
	OpReserveTable: frontHouse,
	OpReleaseTable: frontHouse,
	OpCleanTable:   {RoleSuperAdmin, RoleAdmin, RoleWaiter},
	OpResetTable:   managers,

	OpViewNotifications: staff,
	OpCreateOffer:       managers,

	OpViewDashboard: billing,
	OpViewAnalytics: managers,
}

// Authorize 检查角色是否允许执行操作
func Authorize(op Operation, role Role) error {
	for _, r := range Permissions[op] {
		if r == role {
			return nil
		}
	}
	return Forbidden(fmt.Sprintf("role %q is not allowed to perform %s", role, op))
}
