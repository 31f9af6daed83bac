package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"owl-restaurant/internal/service"
)

func TestOrderRoutes_CreateAndGet(t *testing.T) {
	s := newTestServer(t)
	tb := s.createTable(t, "T1")

	o := s.createOrder(t, tb.TableID)
	assert.Equal(t, "pending", o.Status)
	assert.Equal(t, "525", o.Final.String())
	require.NotNil(t, o.TableID)
	assert.Equal(t, tb.TableID, *o.TableID)

	rec := s.do(t, http.MethodGet, "/order/api/v1/orders/"+o.OrderID, kitchen, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[orderJSON](t, rec)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, o.OrderNumber, res.Result.OrderNumber)

	rec = s.do(t, http.MethodGet, "/table/api/v1/tables/"+tb.TableID, waiter, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "occupied", decode[tableJSON](t, rec).Result.Status)

	// 桌台已被占用
	rec = s.do(t, http.MethodPost, "/order/api/v1/orders", waiter, orderBody(tb.TableID))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ResultError, decode[any](t, rec).Code)
}

func TestOrderRoutes_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/order/api/v1/orders/missing", waiter, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/order/api/v1/orders", kitchen, orderBody(""))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/order/api/v1/orders", bytes.NewBufferString("{not json"))
	setIdentity(req, waiter)
	bad := httptest.NewRecorder()
	s.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "invalid body", decode[any](t, bad).Message)

	rec = s.do(t, http.MethodPost, "/order/api/v1/orders", waiter, map[string]any{"order_type": "takeaway"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/order/api/v1/orders/x", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/order/api/v1/orders?from=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderRoutes_StatusAndItems(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, "")

	rec := s.setStatus(t, kitchen, o.OrderID, "completed")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Kitchen cannot mark orders as completed", decode[any](t, rec).Message)

	require.Equal(t, http.StatusOK, s.setStatus(t, kitchen, o.OrderID, "preparing").Code)

	rec = s.do(t, http.MethodPost, "/order/api/v1/orders/"+o.OrderID+"/items", waiter, map[string]any{
		"items": []map[string]any{{"name": "Lassi", "price": "100", "quantity": 1}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	withLassi := decode[orderJSON](t, rec).Result
	require.Len(t, withLassi.Items, 3)
	assert.Equal(t, "630", withLassi.Final.String())

	itemID := withLassi.Items[2].ItemID
	rec = s.do(t, http.MethodPut, "/order/api/v1/orders/"+o.OrderID+"/items/"+itemID+"/status", kitchen, map[string]string{"status": "READY"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// waiter 只能取消 pending 条目
	rec = s.do(t, http.MethodPost, "/order/api/v1/orders/"+o.OrderID+"/items/"+itemID+"/cancel", waiter, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/order/api/v1/orders/"+o.OrderID+"/items/"+itemID+"/cancel", admin, map[string]string{"reason": "customer changed mind"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "525", decode[orderJSON](t, rec).Result.Final.String())

	rec = s.do(t, http.MethodPost, "/order/api/v1/orders/"+o.OrderID+"/cancel", cashier, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Cashiers cannot cancel orders", decode[any](t, rec).Message)

	rec = s.do(t, http.MethodPost, "/order/api/v1/orders/"+o.OrderID+"/cancel", kitchen, map[string]string{"reason": "out of stock"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[orderJSON](t, rec).Result.Status)
}

func TestOrderRoutes_ListFilter(t *testing.T) {
	s := newTestServer(t)
	first := s.createOrder(t, "")
	s.createOrder(t, "")
	require.Equal(t, http.StatusOK, s.setStatus(t, kitchen, first.OrderID, "ready").Code)

	rec := s.do(t, http.MethodGet, "/order/api/v1/orders?status=ready,preparing&page=1&size=10", waiter, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[struct {
		Items []orderJSON `json:"items"`
		Total int         `json:"total"`
	}](t, rec)
	require.Equal(t, 1, res.Result.Total)
	assert.Equal(t, first.OrderID, res.Result.Items[0].OrderID)

	rec = s.do(t, http.MethodGet, "/order/api/v1/orders?status=bogus", waiter, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderRoutes_Export(t *testing.T) {
	s := newTestServer(t)
	s.createOrder(t, "")
	s.createOrder(t, "")

	rec := s.do(t, http.MethodGet, "/order/api/v1/orders/export", waiter, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/order/api/v1/orders/export", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "orders_b1_")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, service.OrderExportHeader, rows[0])
}
