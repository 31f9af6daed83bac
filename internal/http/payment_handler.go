package httpapi

import (
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/service"
)

const (
	paymentsPath = "/payment/api/v1/payments"
	webhookPath  = "/payment/api/v1/webhook"

	maxWebhookBytes = 256 << 10
)

// PaymentHandler 支付 Handler
type PaymentHandler struct {
	payments service.PaymentService
	logger   *zap.Logger
}

// NewPaymentHandler 创建支付 Handler
func NewPaymentHandler(payments service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
//
//	/payment/api/v1/payments/{orderId}              GET
//	/payment/api/v1/payments/{orderId}/audits       GET
//	/payment/api/v1/payments/{orderId}/initiate     POST
//	/payment/api/v1/payments/{orderId}/cancel       POST
//	/payment/api/v1/payments/{orderId}/process      POST
//	/payment/api/v1/payments/{orderId}/verify       POST
func (h *PaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	parts := pathParts(r.URL.Path, paymentsPath)

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.GetPayment(w, r, actor, parts[0])
	case len(parts) == 2 && parts[1] == "audits" && r.Method == http.MethodGet:
		h.ListAudits(w, r, actor, parts[0])
	case len(parts) == 2 && parts[1] == "initiate" && r.Method == http.MethodPost:
		h.InitiatePayment(w, r, actor, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		h.CancelPayment(w, r, actor, parts[0])
	case len(parts) == 2 && parts[1] == "process" && r.Method == http.MethodPost:
		h.ProcessPayment(w, r, actor, parts[0])
	case len(parts) == 2 && parts[1] == "verify" && r.Method == http.MethodPost:
		h.VerifyPayment(w, r, actor, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// InitiatePayment 锁定订单进入收款流程
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string) {
	o, err := h.payments.InitiatePayment(r.Context(), service.PaymentActionRequest{
		Actor: actor, OrderID: orderID, Meta: requestMeta(r),
	})
	if err != nil {
		writeError(w, h.logger, "InitiatePayment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(o))
}

// CancelPayment 放弃收款
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string) {
	o, err := h.payments.CancelPayment(r.Context(), service.PaymentActionRequest{
		Actor: actor, OrderID: orderID, Meta: requestMeta(r),
	})
	if err != nil {
		writeError(w, h.logger, "CancelPayment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(o))
}

// ProcessPayment 收款
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string) {
	var payload struct {
		Method         string          `json:"method"`
		AmountReceived decimal.Decimal `json:"amount_received"`
		TransactionID  string          `json:"transaction_id"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	resp, err := h.payments.ProcessPayment(r.Context(), service.ProcessPaymentRequest{
		Actor:          actor,
		OrderID:        orderID,
		Method:         domain.PaymentMethod(payload.Method),
		AmountReceived: payload.AmountReceived,
		TransactionID:  payload.TransactionID,
		Meta:           requestMeta(r),
	})
	if err != nil {
		writeError(w, h.logger, "ProcessPayment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// VerifyPayment 向网关核实支付后结算
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string) {
	var payload struct {
		GatewayPaymentID string `json:"gateway_payment_id"`
	}
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeBadBody(w)
		return
	}
	resp, err := h.payments.VerifyPayment(r.Context(), service.VerifyPaymentRequest{
		Actor:            actor,
		OrderID:          orderID,
		GatewayPaymentID: payload.GatewayPaymentID,
		Meta:             requestMeta(r),
	})
	if err != nil {
		writeError(w, h.logger, "VerifyPayment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// GetPayment 订单的支付记录
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string) {
	p, err := h.payments.GetPayment(r.Context(), service.GetPaymentRequest{Actor: actor, OrderID: orderID})
	if err != nil {
		writeError(w, h.logger, "GetPayment", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(p))
}

// ListAudits 订单的支付审计
func (h *PaymentHandler) ListAudits(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string) {
	audits, err := h.payments.ListAudits(r.Context(), service.GetPaymentRequest{Actor: actor, OrderID: orderID})
	if err != nil {
		writeError(w, h.logger, "ListAudits", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(audits))
}

// Webhook 网关回调：无身份头，依靠 X-Signature（原始请求体的 HMAC-SHA256）
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeBadBody(w)
		return
	}
	resp, err := h.payments.HandleWebhook(r.Context(), service.WebhookRequest{
		Body:      body,
		Signature: r.Header.Get(HeaderSignature),
		Meta:      requestMeta(r),
	})
	if err != nil {
		writeError(w, h.logger, "Webhook", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
