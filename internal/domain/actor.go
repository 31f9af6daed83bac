package domain

import (
	"net/url"
	"strings"
)

// Scope 租户隔离边界（tenant + branch），所有查询和写入都以此为前缀条件
type Scope struct {
	TenantID string `json:"tenant_id"`
	BranchID string `json:"branch_id"`
}

// Join 转义后的 tenant + sep + branch，用作缓存 key、房间名、topic 等拼接键
// 分隔符在各部分内会被转义，不同 scope 不会得到相同结果
func (s Scope) Join(sep string) string {
	return escapeKeyPart(s.TenantID) + sep + escapeKeyPart(s.BranchID)
}

// escapeKeyPart 转义 ':' '/' '#' '+' '*' 等分隔符和通配符，空格转成 %20
func escapeKeyPart(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

// Actor 已认证的调用方上下文（由外部认证层注入）
type Actor struct {
	UserID   string
	TenantID string
	BranchID string
	Role     Role
}

// Scope 调用方所在的 tenant / branch
func (a Actor) Scope() Scope {
	return Scope{TenantID: a.TenantID, BranchID: a.BranchID}
}

// Validate 认证上下文必须完整
func (a Actor) Validate() error {
	if a.UserID == "" || a.TenantID == "" || a.BranchID == "" {
		return Unauthenticated("missing authenticated user context")
	}
	if _, ok := ParseRole(string(a.Role)); !ok {
		return Unauthenticated("unknown role")
	}
	return nil
}
