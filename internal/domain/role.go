package domain

import "strings"

// Role 员工角色（封闭枚举）
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleCashier    Role = "cashier"
	RoleWaiter     Role = "waiter"
	RoleKitchen    Role = "kitchen"
)

// RoleAll 通知目标通配符（不是可登录角色）
const RoleAll Role = "all"

var allRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleCashier, RoleWaiter, RoleKitchen}

// ParseRole 解析角色（大小写不敏感），未知角色返回 false
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allRoles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// IsPrivileged admin / superadmin 可以跨 branch 管理，并拥有取消、强制重置等兜底权限
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ValidNotificationTargets 公告 / 优惠类通知允许的目标
var ValidNotificationTargets = []Role{RoleAll, RoleAdmin, RoleCashier, RoleWaiter, RoleKitchen}

// NormalizeNotificationTarget 非法目标回退到 "all"
func NormalizeNotificationTarget(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range ValidNotificationTargets {
		if r == t {
			return r
		}
	}
	return RoleAll
}
