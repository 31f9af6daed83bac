package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
)

const (
	defaultSalesDays = 7
	maxSalesDays     = 366
	defaultTopItems  = 10
)

// DashboardService 营业概览 / 销售分析（结果由 HTTP 层按前缀缓存）
type DashboardService interface {
	Summary(ctx context.Context, req SummaryRequest) (*SummaryResponse, error)
	Sales(ctx context.Context, req SalesRequest) (*SalesResponse, error)
}

type dashboardService struct {
	lifecycle
}

// NewDashboardService 创建 DashboardService 实例
func NewDashboardService(deps Dependencies) DashboardService {
	return &dashboardService{lifecycle: newLifecycle(deps)}
}

// SummaryRequest 当日概览
type SummaryRequest struct {
	Actor domain.Actor
}

// SummaryResponse 当日概览
type SummaryResponse struct {
	Date           string                     `json:"date"`
	OrdersByStatus map[domain.OrderStatus]int `json:"orders_by_status"`
	TablesByStatus map[domain.TableStatus]int `json:"tables_by_status"`
	PaidOrders     int                        `json:"paid_orders"`
	Revenue        decimal.Decimal            `json:"revenue"`
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *dashboardService) Summary(ctx context.Context, req SummaryRequest) (*SummaryResponse, error) {
	if err := authorize(req.Actor, domain.OpViewDashboard); err != nil {
		return nil, err
	}
	scope := req.Actor.Scope()
	today := startOfDay(s.now())

	orders, err := s.Orders.CountByStatus(ctx, scope, today)
	if err != nil {
		s.Logger.Error("Dashboard order counts failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
		return nil, domain.Internal("failed to load dashboard", err)
	}
	tables, err := s.Tables.CountByStatus(ctx, scope)
	if err != nil {
		s.Logger.Error("Dashboard table counts failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
		return nil, domain.Internal("failed to load dashboard", err)
	}
	sales, err := s.Orders.SalesByDay(ctx, scope, today, today.AddDate(0, 0, 1))
	if err != nil {
		s.Logger.Error("Dashboard revenue failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
		return nil, domain.Internal("failed to load dashboard", err)
	}

	resp := &SummaryResponse{
		Date:           today.Format("2006-01-02"),
		OrdersByStatus: orders,
		TablesByStatus: tables,
		Revenue:        decimal.Zero,
	}
	for _, d := range sales {
		resp.PaidOrders += d.Orders
		resp.Revenue = resp.Revenue.Add(d.Revenue)
	}
	resp.Revenue = domain.Round2(resp.Revenue)
	return resp, nil
}

// SalesRequest 区间销售分析，日期为 YYYY-MM-DD（含 From，含 To）
type SalesRequest struct {
	Actor domain.Actor
	From  string // 默认最近 7 天
	To    string // 默认今天
	Top   int    // 默认 10
}

// SalesResponse 区间销售分析
type SalesResponse struct {
	From     string              `json:"from"`
	To       string              `json:"to"`
	Days     []domain.DailySales `json:"days"`
	TopItems []domain.ItemSales  `json:"top_items"`
	Orders   int                 `json:"orders"`
	Revenue  decimal.Decimal     `json:"revenue"`
}

// parseDateRange 解析 [from, to] 日期区间，返回 [from, to+1d)
func parseDateRange(fromStr, toStr string, now time.Time, defaultDays int) (time.Time, time.Time, error) {
	to := startOfDay(now)
	if toStr != "" {
		t, err := time.ParseInLocation("2006-01-02", toStr, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, domain.Validation("to must be a date (YYYY-MM-DD)")
		}
		to = t
	}
	from := to.AddDate(0, 0, -(defaultDays - 1))
	if fromStr != "" {
		t, err := time.ParseInLocation("2006-01-02", fromStr, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, domain.Validation("from must be a date (YYYY-MM-DD)")
		}
		from = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, domain.Validation("from must not be after to")
	}
	if to.Sub(from) > maxSalesDays*24*time.Hour {
		return time.Time{}, time.Time{}, domain.Validation("date range is too large")
	}
	return from, to.AddDate(0, 0, 1), nil
}

func (s *dashboardService) Sales(ctx context.Context, req SalesRequest) (*SalesResponse, error) {
	if err := authorize(req.Actor, domain.OpViewAnalytics); err != nil {
		return nil, err
	}
	from, to, err := parseDateRange(req.From, req.To, s.now(), defaultSalesDays)
	if err != nil {
		return nil, err
	}
	top := req.Top
	if top <= 0 || top > 100 {
		top = defaultTopItems
	}

	scope := req.Actor.Scope()
	days, err := s.Orders.SalesByDay(ctx, scope, from, to)
	if err != nil {
		s.Logger.Error("SalesByDay failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
		return nil, domain.Internal("failed to load sales", err)
	}
	items, err := s.Orders.TopItems(ctx, scope, from, to, top)
	if err != nil {
		s.Logger.Error("TopItems failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
		return nil, domain.Internal("failed to load sales", err)
	}

	resp := &SalesResponse{
		From:     from.Format("2006-01-02"),
		To:       to.AddDate(0, 0, -1).Format("2006-01-02"),
		Days:     days,
		TopItems: items,
		Revenue:  decimal.Zero,
	}
	for _, d := range days {
		resp.Orders += d.Orders
		resp.Revenue = resp.Revenue.Add(d.Revenue)
	}
	resp.Revenue = domain.Round2(resp.Revenue)
	return resp, nil
}
