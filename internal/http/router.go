package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"owl-restaurant/internal/cache"
	"owl-restaurant/internal/domain"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterOrderRoutes /order/api/v1/orders[/...]
func (r *Router) RegisterOrderRoutes(h *OrderHandler) {
	r.HandleHandler(ordersPath, h)
	r.HandleHandler(ordersPath+"/", h)
}

// RegisterPaymentRoutes /payment/api/v1/payments/... 与 webhook
func (r *Router) RegisterPaymentRoutes(h *PaymentHandler) {
	r.HandleHandler(paymentsPath+"/", h)
	r.Handle(webhookPath, h.Webhook)
}

// RegisterTableRoutes /table/api/v1/tables[/...]
func (r *Router) RegisterTableRoutes(h *TableHandler) {
	r.HandleHandler(tablesPath, h)
	r.HandleHandler(tablesPath+"/", h)
}

// RegisterNotificationRoutes /notification/api/v1/notifications[/...]
func (r *Router) RegisterNotificationRoutes(h *NotificationHandler) {
	r.HandleHandler(notificationsPath, h)
	r.HandleHandler(notificationsPath+"/", h)
}

// RegisterDashboardRoutes 概览 / 分析走读缓存
func (r *Router) RegisterDashboardRoutes(h *DashboardHandler, c *cache.Cache, dashboardTTL, analyticsTTL time.Duration) {
	r.Handle(summaryPath, CachedGET(c, cache.PrefixDashboard, domain.OpViewDashboard, dashboardTTL, h.Summary))
	r.Handle(salesPath, CachedGET(c, cache.PrefixAnalytics, domain.OpViewAnalytics, analyticsTTL, h.Sales))
}

// RegisterRealtimeRoutes websocket
func (r *Router) RegisterRealtimeRoutes(h *RealtimeHandler) {
	r.HandleHandler(realtimePath, h)
}

// RegisterDoctorRoutes 健康检查
func (r *Router) RegisterDoctorRoutes(d *DoctorHandler) {
	r.Handle("/health", d.HealthCheck)
}
