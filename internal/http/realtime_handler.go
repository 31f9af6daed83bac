package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"owl-restaurant/internal/realtime"
)

const realtimePath = "/realtime/api/v1/ws"

// RealtimeHandler websocket 订阅，客户端加入所在 tenant/branch 的房间
type RealtimeHandler struct {
	hub    *realtime.Hub
	logger *zap.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, logger *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, logger: logger}
}

// 浏览器 websocket 无法自定义请求头，身份可以放在 query 中
var wsQueryHeaders = map[string]string{
	"user_id":         HeaderUserID,
	"tenant_id":       HeaderTenantID,
	"branch_id":       HeaderBranchID,
	"role":            HeaderUserRole,
	"branch_override": HeaderBranchOverride,
}

func (h *RealtimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	for param, name := range wsQueryHeaders {
		if r.Header.Get(name) == "" && q.Get(param) != "" {
			r.Header.Set(name, q.Get(param))
		}
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.hub.Serve(w, r, actor); err != nil {
		// Upgrade 失败时 upgrader 已写出错误响应
		h.logger.Warn("Websocket upgrade failed", zap.String("user_id", actor.UserID), zap.Error(err))
	}
}
