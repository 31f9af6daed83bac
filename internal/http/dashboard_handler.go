package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"owl-restaurant/internal/service"
)

const (
	summaryPath = "/dashboard/api/v1/summary"
	salesPath   = "/analytics/api/v1/sales"
)

// DashboardHandler 营业概览 / 销售分析 Handler
type DashboardHandler struct {
	dashboard service.DashboardService
	logger    *zap.Logger
}

// NewDashboardHandler 创建 DashboardHandler
func NewDashboardHandler(dashboard service.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, logger: logger}
}

// Summary 当日概览
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	resp, err := h.dashboard.Summary(r.Context(), service.SummaryRequest{Actor: actor})
	if err != nil {
		writeError(w, h.logger, "Summary", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Sales 区间销售分析，query: from to (YYYY-MM-DD) top
func (h *DashboardHandler) Sales(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	resp, err := h.dashboard.Sales(r.Context(), service.SalesRequest{
		Actor: actor,
		From:  q.Get("from"),
		To:    q.Get("to"),
		Top:   parseInt(q.Get("top"), 0),
	})
	if err != nil {
		writeError(w, h.logger, "Sales", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
