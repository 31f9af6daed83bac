package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"owl-restaurant/internal/service"
)

type processJSON struct {
	Order            orderJSON       `json:"order"`
	Change           decimal.Decimal `json:"change"`
	AlreadyProcessed bool            `json:"already_processed"`
}

func (s *testServer) readyOrder(t *testing.T) orderJSON {
	t.Helper()
	o := s.createOrder(t, "")
	require.Equal(t, http.StatusOK, s.setStatus(t, kitchen, o.OrderID, "ready").Code)
	return o
}

func TestPaymentRoutes_CashFlow(t *testing.T) {
	s := newTestServer(t)
	o := s.readyOrder(t)
	base := "/payment/api/v1/payments/" + o.OrderID

	rec := s.do(t, http.MethodPost, base+"/initiate", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "payment_pending", decode[orderJSON](t, rec).Result.PaymentStatus)

	rec = s.do(t, http.MethodPost, base+"/process", waiter, map[string]any{"method": "cash", "amount_received": 600})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, base+"/process", cashier, map[string]any{"method": "cash", "amount_received": 500})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, base+"/process", cashier, map[string]any{"method": "cash", "amount_received": "600"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[processJSON](t, rec).Result
	assert.Equal(t, "75", res.Change.String())
	assert.Equal(t, "completed", res.Order.Status)
	assert.Equal(t, "paid", res.Order.PaymentStatus)
	assert.False(t, res.AlreadyProcessed)

	// 重复提交是幂等的
	rec = s.do(t, http.MethodPost, base+"/process", cashier, map[string]any{"method": "cash", "amount_received": "600"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[processJSON](t, rec).Result.AlreadyProcessed)

	rec = s.do(t, http.MethodGet, base, cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"method":"cash"`)

	rec = s.do(t, http.MethodGet, base+"/audits", cashier, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, base+"/audits", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audits := decode[[]struct {
		Action    string `json:"action"`
		Success   bool   `json:"success"`
		IPAddress string `json:"ip_address"`
	}](t, rec).Result
	require.NotEmpty(t, audits)
	assert.Equal(t, "192.0.2.1", audits[0].IPAddress)
}

func TestPaymentRoutes_Errors(t *testing.T) {
	s := newTestServer(t)
	o := s.createOrder(t, "")
	base := "/payment/api/v1/payments/" + o.OrderID

	rec := s.do(t, http.MethodPost, base+"/process", cashier, map[string]any{"method": "cash", "amount_received": 600})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/payment/api/v1/payments/missing/initiate", cashier, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, base, cashier, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// 未配置网关
	rec = s.do(t, http.MethodPost, base+"/verify", cashier, map[string]string{"gateway_payment_id": "pay_1"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "payment gateway is not configured", decode[any](t, rec).Message)
}

func (s *testServer) webhook(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payment/api/v1/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(HeaderSignature, signature)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func capturedEvent(t *testing.T, orderID string, amount int64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": service.WebhookPaymentCaptured,
		"payload": map[string]any{"payment": map[string]any{"entity": map[string]any{
			"id": "pay_9", "entity": "payment", "amount": amount, "currency": "INR",
			"status": "captured", "method": "upi",
			"notes": map[string]string{"order_id": orderID, "tenant_id": "t1", "branch_id": "b1"},
		}}},
	})
	require.NoError(t, err)
	return body
}

func TestPaymentRoutes_Webhook(t *testing.T) {
	s := newTestServer(t)
	o := s.readyOrder(t)

	body := capturedEvent(t, o.OrderID, 52500)

	rec := s.webhook(t, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.webhook(t, body, service.SignWebhook("wrong", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid webhook signature", decode[any](t, rec).Message)

	ignored := []byte(`{"event":"payment.authorized"}`)
	rec = s.webhook(t, ignored, service.SignWebhook(testWebhookSecret, ignored))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.WebhookIgnored, decode[service.WebhookResponse](t, rec).Result.Status)

	mismatch := capturedEvent(t, o.OrderID, 100)
	rec = s.webhook(t, mismatch, service.SignWebhook(testWebhookSecret, mismatch))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.webhook(t, body, service.SignWebhook(testWebhookSecret, body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, service.WebhookProcessed, decode[service.WebhookResponse](t, rec).Result.Status)

	rec = s.webhook(t, body, service.SignWebhook(testWebhookSecret, body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.WebhookAlreadyProcessed, decode[service.WebhookResponse](t, rec).Result.Status)

	rec = s.do(t, http.MethodGet, "/payment/api/v1/payments/"+o.OrderID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"webhook"`)

	rec = s.do(t, http.MethodGet, "/payment/api/v1/webhook", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
