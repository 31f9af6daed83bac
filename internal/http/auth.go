package httpapi

import (
	"net/http"
	"strings"

	"owl-restaurant/internal/domain"
)

// 认证网关注入的身份头
const (
	HeaderUserID         = "X-User-Id"
	HeaderTenantID       = "X-Tenant-Id"
	HeaderBranchID       = "X-Branch-Id"
	HeaderUserRole       = "X-User-Role"
	HeaderBranchOverride = "X-Branch-Override"
	HeaderSignature      = "X-Signature"
)

func header(r *http.Request, name string) string {
	v := strings.TrimSpace(r.Header.Get(name))
	if v == "null" {
		return ""
	}
	return v
}

// actorFromRequest 从身份头构造 Actor
// admin / superadmin 可以通过 X-Branch-Override 操作其他 branch，其他角色忽略该头
func actorFromRequest(r *http.Request) (domain.Actor, error) {
	role, ok := domain.ParseRole(header(r, HeaderUserRole))
	if !ok {
		return domain.Actor{}, domain.Unauthenticated("missing or unknown user role")
	}
	actor := domain.Actor{
		UserID:   header(r, HeaderUserID),
		TenantID: header(r, HeaderTenantID),
		BranchID: header(r, HeaderBranchID),
		Role:     role,
	}
	if override := header(r, HeaderBranchOverride); override != "" && role.IsPrivileged() {
		actor.BranchID = override
	}
	if err := actor.Validate(); err != nil {
		return domain.Actor{}, err
	}
	return actor, nil
}

// requireActor 认证失败时直接写 401
func requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, Fail(domain.MessageOf(err)))
		return domain.Actor{}, false
	}
	return actor, true
}
