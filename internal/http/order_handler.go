package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/repository"
	"owl-restaurant/internal/service"
)

const ordersPath = "/order/api/v1/orders"

// OrderHandler 订单 Handler
type OrderHandler struct {
	orders   service.OrderService
	exporter *service.OrderExporter
	logger   *zap.Logger
}

// NewOrderHandler 创建订单 Handler
func NewOrderHandler(orders service.OrderService, exporter *service.OrderExporter, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, exporter: exporter, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
//
//	/order/api/v1/orders                                   GET list, POST create
//	/order/api/v1/orders/export                            GET xlsx
//	/order/api/v1/orders/{id}                              GET
//	/order/api/v1/orders/{id}/status                       PUT
//	/order/api/v1/orders/{id}/cancel                       POST
//	/order/api/v1/orders/{id}/items                        POST
//	/order/api/v1/orders/{id}/items/{itemId}/status        PUT
//	/order/api/v1/orders/{id}/items/{itemId}/cancel        POST
func (h *OrderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	parts := pathParts(r.URL.Path, ordersPath)

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.ListOrders(w, r, actor)
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.CreateOrder(w, r, actor)
	case len(parts) == 1 && parts[0] == "export" && r.Method == http.MethodGet:
		h.ExportOrders(w, r, actor)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.GetOrder(w, r, actor, parts[0])
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPut:
		h.UpdateOrderStatus(w, r, actor, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		h.CancelOrder(w, r, actor, parts[0])
	case len(parts) == 2 && parts[1] == "items" && r.Method == http.MethodPost:
		h.AddItems(w, r, actor, parts[0])
	case len(parts) == 4 && parts[1] == "items" && parts[3] == "status" && r.Method == http.MethodPut:
		h.UpdateItemStatus(w, r, actor, parts[0], parts[2])
	case len(parts) == 4 && parts[1] == "items" && parts[3] == "cancel" && r.Method == http.MethodPost:
		h.CancelItem(w, r, actor, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type orderItemJSON struct {
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	Notes      string          `json:"notes"`
}

func toItemInputs(items []orderItemJSON) []service.OrderItemInput {
	out := make([]service.OrderItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, service.OrderItemInput{
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			Price:      it.Price,
			Quantity:   it.Quantity,
			Notes:      it.Notes,
		})
	}
	return out
}

// CreateOrder 下单
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	var payload struct {
		OrderType string          `json:"order_type"`
		TableID   string          `json:"table_id"`
		Customer  domain.Customer `json:"customer"`
		Items     []orderItemJSON `json:"items"`
		TaxRate   decimal.Decimal `json:"tax_rate"`
		Discount  decimal.Decimal `json:"discount"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	o, err := h.orders.CreateOrder(r.Context(), service.CreateOrderRequest{
		Actor:     actor,
		OrderType: domain.OrderType(payload.OrderType),
		TableID:   payload.TableID,
		Customer:  payload.Customer,
		Items:     toItemInputs(payload.Items),
		TaxRate:   payload.TaxRate,
		Discount:  payload.Discount,
	})
	if err != nil {
		writeError(w, h.logger, "CreateOrder", err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(o))
}

// GetOrder 订单详情
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string) {
	o, err := h.orders.GetOrder(r.Context(), service.GetOrderRequest{Actor: actor, OrderID: orderID})
	if err != nil {
		writeError(w, h.logger, "GetOrder", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(o))
}

// parseTimeParam 支持 YYYY-MM-DD 与 RFC3339；日期形式的 end 取次日零点
func parseTimeParam(s string, end bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, domain.Validation("invalid date " + strconv.Quote(s))
	}
	if end {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// ListOrders 订单列表
// query: status=pending,ready payment_status order_type table_id search from to page size
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	q := r.URL.Query()
	filter := repository.OrderFilter{
		PaymentStatus: domain.PaymentStatus(q.Get("payment_status")),
		OrderType:     domain.OrderType(q.Get("order_type")),
		TableID:       q.Get("table_id"),
		Search:        q.Get("search"),
	}
	for _, st := range splitCSV(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, domain.OrderStatus(st))
	}
	var err error
	if filter.From, err = parseTimeParam(q.Get("from"), false); err != nil {
		writeError(w, h.logger, "ListOrders", err)
		return
	}
	if filter.To, err = parseTimeParam(q.Get("to"), true); err != nil {
		writeError(w, h.logger, "ListOrders", err)
		return
	}

	resp, err := h.orders.ListOrders(r.Context(), service.ListOrdersRequest{
		Actor:  actor,
		Filter: filter,
		Page:   parseInt(q.Get("page"), 1),
		Size:   parseInt(q.Get("size"), 20),
	})
	if err != nil {
		writeError(w, h.logger, "ListOrders", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// UpdateOrderStatus 推进订单状态
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string) {
	var payload struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	o, err := h.orders.UpdateOrderStatus(r.Context(), service.UpdateOrderStatusRequest{
		Actor:   actor,
		OrderID: orderID,
		Status:  domain.OrderStatus(payload.Status),
		Reason:  payload.Reason,
	})
	if err != nil {
		writeError(w, h.logger, "UpdateOrderStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(o))
}

// CancelOrder 整单取消
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	o, err := h.orders.CancelOrder(r.Context(), service.CancelOrderRequest{Actor: actor, OrderID: orderID, Reason: payload.Reason})
	if err != nil {
		writeError(w, h.logger, "CancelOrder", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(o))
}

// AddItems 加菜
func (h *OrderHandler) AddItems(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string) {
	var payload struct {
		Items []orderItemJSON `json:"items"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	o, err := h.orders.AddItems(r.Context(), service.AddItemsRequest{
		Actor:   actor,
		OrderID: orderID,
		Items:   toItemInputs(payload.Items),
	})
	if err != nil {
		writeError(w, h.logger, "AddItems", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(o))
}

// UpdateItemStatus 推进条目状态
func (h *OrderHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID, itemID string) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	o, err := h.orders.UpdateItemStatus(r.Context(), service.UpdateItemStatusRequest{
		Actor:   actor,
		OrderID: orderID,
		ItemID:  itemID,
		Status:  domain.ItemStatus(payload.Status),
	})
	if err != nil {
		writeError(w, h.logger, "UpdateItemStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(o))
}

// CancelItem 取消条目
func (h *OrderHandler) CancelItem(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID, itemID string) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	o, err := h.orders.CancelItem(r.Context(), service.CancelItemRequest{
		Actor:   actor,
		OrderID: orderID,
		ItemID:  itemID,
		Reason:  payload.Reason,
	})
	if err != nil {
		writeError(w, h.logger, "CancelItem", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(o))
}

// ExportOrders 导出 xlsx
func (h *OrderHandler) ExportOrders(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	q := r.URL.Query()
	req := service.ExportOrdersRequest{Actor: actor, From: q.Get("from"), To: q.Get("to")}
	for _, st := range splitCSV(q.Get("status")) {
		req.Status = append(req.Status, domain.OrderStatus(st))
	}
	data, filename, err := h.exporter.Export(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, "ExportOrders", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
