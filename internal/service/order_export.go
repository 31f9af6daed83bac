package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/repository"
)

const (
	exportPageSize = 200
	// exportMaxRows 单次导出上限
	exportMaxRows = 20000
	exportSheet   = "Orders"
)

// OrderExportHeader 导出表头
var OrderExportHeader = []string{
	"Order Number",
	"Created At",
	"Order Type",
	"Table",
	"Customer",
	"Items",
	"Status",
	"Payment Status",
	"Subtotal",
	"Tax",
	"Discount",
	"Final",
	"Paid At",
}

// ExportOrdersRequest 导出区间内的订单
type ExportOrdersRequest struct {
	Actor  domain.Actor
	From   string // YYYY-MM-DD，默认最近 7 天
	To     string
	Status []domain.OrderStatus
}

// OrderExporter 订单 xlsx 导出
type OrderExporter struct {
	lifecycle
}

// NewOrderExporter 创建导出器
func NewOrderExporter(deps Dependencies) *OrderExporter {
	return &OrderExporter{lifecycle: newLifecycle(deps)}
}

// Export 生成 xlsx 文件内容，返回 (内容, 文件名)
func (e *OrderExporter) Export(ctx context.Context, req ExportOrdersRequest) ([]byte, string, error) {
	if err := authorize(req.Actor, domain.OpExportOrders); err != nil {
		return nil, "", err
	}
	from, to, err := parseDateRange(req.From, req.To, e.now(), defaultSalesDays)
	if err != nil {
		return nil, "", err
	}

	scope := req.Actor.Scope()
	filter := repository.OrderFilter{Statuses: req.Status, From: &from, To: &to}
	var orders []*domain.Order
	for page := 1; len(orders) < exportMaxRows; page++ {
		items, total, err := e.Orders.ListOrders(ctx, scope, filter, page, exportPageSize)
		if err != nil {
			e.Logger.Error("Export ListOrders failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
			return nil, "", domain.Internal("failed to export orders", err)
		}
		orders = append(orders, items...)
		if len(items) < exportPageSize || len(orders) >= total {
			break
		}
	}

	data, err := generateOrderExcel(orders)
	if err != nil {
		e.Logger.Error("Export xlsx failed", zap.String("tenant_id", scope.TenantID), zap.Error(err))
		return nil, "", domain.Internal("failed to export orders", err)
	}
	name := fmt.Sprintf("orders_%s_%s_%s.xlsx", scope.BranchID, from.Format("20060102"), to.AddDate(0, 0, -1).Format("20060102"))
	return data, name, nil
}

func generateOrderExcel(orders []*domain.Order) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 之前文件需保持打开

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range OrderExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}
	if err := f.SetColWidth(exportSheet, "A", "M", 16); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, o := range orders {
		row := i + 2 // 第 1 行是表头
		table := ""
		if o.TableID != nil {
			table = *o.TableID
		}
		paidAt := ""
		if o.PaidAt != nil {
			paidAt = o.PaidAt.Format(time.DateTime)
		}
		values := []any{
			o.OrderNumber,
			o.CreatedAt.Format(time.DateTime),
			string(o.OrderType),
			table,
			o.Customer.Name,
			len(o.ActiveItems()),
			string(o.Status),
			string(o.PaymentStatus),
			o.Subtotal.InexactFloat64(),
			o.Tax.InexactFloat64(),
			o.Discount.InexactFloat64(),
			o.Final.InexactFloat64(),
			paidAt,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}
