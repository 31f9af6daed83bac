package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/realtime"
	"owl-restaurant/internal/repository"
)

var errGatewayNotFound = errors.New("gateway payment not found")

// 网关回调事件
const (
	WebhookPaymentCaptured = "payment.captured"

	gatewayStatusCaptured = "captured"
)

// WebhookStatus 回调处理结果（均以 200 应答，避免网关重试）
type WebhookStatus string

const (
	WebhookProcessed        WebhookStatus = "processed"
	WebhookAlreadyProcessed WebhookStatus = "already_processed"
	WebhookIgnored          WebhookStatus = "ignored"
	WebhookOrderNotFound    WebhookStatus = "not_found"
)

// PaymentService 支付三阶段协议 + 网关回调
type PaymentService interface {
	InitiatePayment(ctx context.Context, req PaymentActionRequest) (*domain.Order, error)
	CancelPayment(ctx context.Context, req PaymentActionRequest) (*domain.Order, error)
	ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*ProcessPaymentResponse, error)
	VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*ProcessPaymentResponse, error)

	GetPayment(ctx context.Context, req GetPaymentRequest) (*domain.Payment, error)
	ListAudits(ctx context.Context, req GetPaymentRequest) ([]*domain.PaymentAudit, error)

	HandleWebhook(ctx context.Context, req WebhookRequest) (*WebhookResponse, error)
}

type paymentService struct {
	tableCascade
	notifier      NotificationService
	gateway       PaymentGateway // 可为 nil（未配置网关时 verify 不可用）
	webhookSecret string
}

// NewPaymentService 创建 PaymentService 实例
func NewPaymentService(deps Dependencies, notifier NotificationService, gateway PaymentGateway, webhookSecret string) PaymentService {
	return &paymentService{
		tableCascade:  tableCascade{lifecycle: newLifecycle(deps)},
		notifier:      notifier,
		gateway:       gateway,
		webhookSecret: webhookSecret,
	}
}

// PaymentActionRequest initiate / cancel
type PaymentActionRequest struct {
	Actor   domain.Actor
	OrderID string
	Meta    domain.RequestMeta
}

func (s *paymentService) InitiatePayment(ctx context.Context, req PaymentActionRequest) (*domain.Order, error) {
	if err := authorize(req.Actor, domain.OpInitiatePayment); err != nil {
		return nil, err
	}
	o, err := s.initiate(ctx, req.Actor.Scope(), req.OrderID)
	s.audit(auditEntry{
		scope: req.Actor.Scope(), orderID: req.OrderID, action: domain.AuditInitiated,
		actor: &req.Actor, meta: req.Meta, err: err,
	})
	if err != nil {
		return nil, err
	}
	s.run("payment.initiate",
		s.broadcast(o.Scope(), realtime.EventOrderUpdated, o),
		s.invalidate(o.Scope()),
	)
	return o, nil
}

func (s *paymentService) initiate(ctx context.Context, scope domain.Scope, orderID string) (*domain.Order, error) {
	o, err := s.Orders.GetOrder(ctx, scope, orderID)
	if err != nil {
		return nil, storageErr(err, "Order", "get order")
	}
	if o.PaymentStatus == domain.PaymentPaid {
		return nil, domain.Conflict("Order is already paid")
	}
	if err := CheckKitchenGate(o); err != nil {
		return nil, err
	}

	err = s.Orders.CompareAndSetPaymentStatus(ctx, scope, orderID, domain.PaymentPending, domain.PaymentInProcess)
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		return nil, storageErr(err, "Order", "initiate payment")
	}

	// CAS 成功或失败都重新读取：失败时按当前状态判断
	o, rerr := s.Orders.GetOrder(ctx, scope, orderID)
	if rerr != nil {
		return nil, storageErr(rerr, "Order", "get order")
	}
	if err == nil {
		return o, nil
	}
	switch o.PaymentStatus {
	case domain.PaymentPaid:
		return nil, domain.Conflict("Order is already paid")
	case domain.PaymentInProcess:
		// 其他设备已发起，幂等成功
		return o, nil
	default:
		return nil, domain.Conflict(fmt.Sprintf("Cannot initiate payment (payment status: %s)", o.PaymentStatus))
	}
}

func (s *paymentService) CancelPayment(ctx context.Context, req PaymentActionRequest) (*domain.Order, error) {
	if err := authorize(req.Actor, domain.OpCancelPayment); err != nil {
		return nil, err
	}
	scope := req.Actor.Scope()
	o, err := s.cancelPayment(ctx, scope, req.OrderID)
	s.audit(auditEntry{
		scope: scope, orderID: req.OrderID, action: domain.AuditCancelled,
		actor: &req.Actor, meta: req.Meta, err: err,
	})
	if err != nil {
		return nil, err
	}
	s.run("payment.cancel",
		s.broadcast(scope, realtime.EventOrderUpdated, o),
		s.invalidate(scope),
	)
	return o, nil
}

func (s *paymentService) cancelPayment(ctx context.Context, scope domain.Scope, orderID string) (*domain.Order, error) {
	err := s.Orders.CompareAndSetPaymentStatus(ctx, scope, orderID, domain.PaymentInProcess, domain.PaymentPending)
	if errors.Is(err, repository.ErrConflict) {
		return nil, domain.Conflict("No payment in progress for this order")
	}
	if err != nil {
		return nil, storageErr(err, "Order", "cancel payment")
	}
	o, err := s.Orders.GetOrder(ctx, scope, orderID)
	if err != nil {
		return nil, storageErr(err, "Order", "get order")
	}
	return o, nil
}

// ProcessPaymentRequest 收款
type ProcessPaymentRequest struct {
	Actor          domain.Actor
	OrderID        string
	Method         domain.PaymentMethod
	AmountReceived decimal.Decimal
	TransactionID  string // 非现金方式必填
	Meta           domain.RequestMeta
}

// ProcessPaymentResponse 收款结果
type ProcessPaymentResponse struct {
	Order            *domain.Order   `json:"order"`
	Payment          *domain.Payment `json:"payment"`
	Change           decimal.Decimal `json:"change"`
	AlreadyProcessed bool            `json:"already_processed"`
	Message          string          `json:"message"`
}

func validatePaymentInput(method domain.PaymentMethod, received decimal.Decimal, txnID string) error {
	if !method.Valid() {
		return domain.Validation(fmt.Sprintf("invalid payment method %q", method))
	}
	if method.IsElectronic() && strings.TrimSpace(txnID) == "" {
		return domain.Validation("transaction_id is required for non-cash payments")
	}
	if !received.IsPositive() {
		return domain.Validation("amount_received must be greater than zero")
	}
	return nil
}

// settleAmount 现金需 ≥ 应收并找零；非现金必须精确匹配
func settleAmount(method domain.PaymentMethod, due, received decimal.Decimal) (decimal.Decimal, error) {
	due = domain.Round2(due)
	received = domain.Round2(received)
	if method == domain.MethodCash {
		if received.LessThan(due) {
			return decimal.Zero, domain.Validation(fmt.Sprintf("Insufficient amount: received %s, due %s", received.StringFixed(2), due.StringFixed(2)))
		}
		return domain.Round2(received.Sub(due)), nil
	}
	if !received.Equal(due) {
		return decimal.Zero, domain.Validation(fmt.Sprintf("Amount mismatch: received %s, due %s", received.StringFixed(2), due.StringFixed(2)))
	}
	return decimal.Zero, nil
}

func (s *paymentService) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*ProcessPaymentResponse, error) {
	if err := authorize(req.Actor, domain.OpProcessPayment); err != nil {
		return nil, err
	}
	scope := req.Actor.Scope()
	resp, err := s.process(ctx, req)

	entry := auditEntry{
		scope: scope, orderID: req.OrderID, action: domain.AuditProcessed,
		actor: &req.Actor, meta: req.Meta, err: err,
		metadata: map[string]any{
			"method":          req.Method,
			"amount_received": req.AmountReceived.StringFixed(2),
			"transaction_id":  req.TransactionID,
		},
	}
	if err != nil {
		entry.action = domain.AuditFailed
	} else if resp.AlreadyProcessed {
		entry.metadata["already_processed"] = true
	}
	s.audit(entry)
	return resp, err
}

func (s *paymentService) process(ctx context.Context, req ProcessPaymentRequest) (*ProcessPaymentResponse, error) {
	if err := validatePaymentInput(req.Method, req.AmountReceived, req.TransactionID); err != nil {
		return nil, err
	}
	scope := req.Actor.Scope()
	o, err := s.Orders.GetOrder(ctx, scope, req.OrderID)
	if err != nil {
		return nil, storageErr(err, "Order", "get order")
	}

	// 已支付：返回已有记录，不再创建
	if o.PaymentStatus == domain.PaymentPaid {
		return s.alreadyProcessed(ctx, o)
	}
	if err := CheckKitchenGate(o); err != nil {
		return nil, err
	}
	if o.PaymentStatus != domain.PaymentPending && o.PaymentStatus != domain.PaymentInProcess {
		return nil, domain.Conflict(fmt.Sprintf("Cannot process payment (payment status: %s)", o.PaymentStatus))
	}

	// 支付记录已存在但订单未标记（上次写入中断），补齐订单状态
	existing, err := s.Payments.GetPaymentByOrder(ctx, scope, o.OrderID)
	switch {
	case err == nil:
		return s.repair(ctx, o, existing, req.Actor.UserID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storageErr(err, "Payment", "get payment")
	}

	change, err := settleAmount(req.Method, o.Final, req.AmountReceived)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		PaymentID:      uuid.NewString(),
		TenantID:       scope.TenantID,
		BranchID:       scope.BranchID,
		OrderID:        o.OrderID,
		Method:         req.Method,
		TransactionID:  strings.TrimSpace(req.TransactionID),
		AmountDue:      domain.Round2(o.Final),
		AmountReceived: domain.Round2(req.AmountReceived),
		Change:         change,
		Source:         domain.SourceManual,
		ProcessedBy:    req.Actor.UserID,
		CreatedAt:      s.now(),
	}

	locked, err := s.lockForPayment(ctx, o, payment.AmountDue)
	if err != nil {
		return nil, err
	}
	if locked.PaymentStatus == domain.PaymentPaid {
		return s.alreadyProcessed(ctx, locked)
	}
	return s.createAndSettle(ctx, locked, payment, req.Actor.UserID)
}

// lockForPayment pending -> payment_pending 后重新读取订单，应收金额或状态变化时拒绝
func (s *paymentService) lockForPayment(ctx context.Context, o *domain.Order, due decimal.Decimal) (*domain.Order, error) {
	scope := o.Scope()
	if o.PaymentStatus == domain.PaymentPending {
		err := s.Orders.CompareAndSetPaymentStatus(ctx, scope, o.OrderID, domain.PaymentPending, domain.PaymentInProcess)
		if err != nil && !errors.Is(err, repository.ErrConflict) {
			return nil, storageErr(err, "Order", "lock payment")
		}
	}
	cur, err := s.Orders.GetOrder(ctx, scope, o.OrderID)
	if err != nil {
		return nil, storageErr(err, "Order", "get order")
	}
	if cur.PaymentStatus == domain.PaymentPaid {
		return cur, nil
	}
	if err := CheckKitchenGate(cur); err != nil {
		return nil, err
	}
	if !domain.Round2(cur.Final).Equal(due) {
		return nil, domain.Conflict(fmt.Sprintf("Order total changed to %s, please retry", domain.Round2(cur.Final).StringFixed(2)))
	}
	return cur, nil
}

// createAndSettle 写入支付记录（order_id 唯一）后结算订单
func (s *paymentService) createAndSettle(ctx context.Context, o *domain.Order, payment *domain.Payment, by string) (*ProcessPaymentResponse, error) {
	if err := s.Payments.CreatePayment(ctx, payment); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			s.Logger.Error("CreatePayment failed",
				zap.String("tenant_id", payment.TenantID),
				zap.String("order_id", payment.OrderID),
				zap.Error(err),
			)
			return nil, domain.Internal("failed to create payment", err)
		}
		// 并发请求已写入：以已存在的记录为准
		s.Logger.Warn("Duplicate payment detected",
			zap.String("tenant_id", payment.TenantID),
			zap.String("order_id", payment.OrderID),
		)
		existing, gerr := s.Payments.GetPaymentByOrder(ctx, o.Scope(), o.OrderID)
		if gerr != nil {
			return nil, storageErr(gerr, "Payment", "get payment")
		}
		resp, rerr := s.repair(ctx, o, existing, by)
		if rerr != nil {
			return nil, rerr
		}
		resp.Message = "Duplicate payment detected"
		return resp, nil
	}

	settled, err := s.settle(ctx, o.Scope(), o.OrderID, payment, by)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Payment processed",
		zap.String("tenant_id", payment.TenantID),
		zap.String("branch_id", payment.BranchID),
		zap.String("order_id", payment.OrderID),
		zap.String("method", string(payment.Method)),
		zap.String("source", string(payment.Source)),
	)
	return &ProcessPaymentResponse{
		Order:   settled,
		Payment: payment,
		Change:  payment.Change,
		Message: "Payment processed successfully",
	}, nil
}

func (s *paymentService) alreadyProcessed(ctx context.Context, o *domain.Order) (*ProcessPaymentResponse, error) {
	resp := &ProcessPaymentResponse{Order: o, AlreadyProcessed: true, Message: "Payment already processed"}
	p, err := s.Payments.GetPaymentByOrder(ctx, o.Scope(), o.OrderID)
	switch {
	case err == nil:
		resp.Payment = p
		resp.Change = p.Change
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storageErr(err, "Payment", "get payment")
	}
	return resp, nil
}

// repair 支付记录已存在，订单补记为已支付
func (s *paymentService) repair(ctx context.Context, o *domain.Order, p *domain.Payment, by string) (*ProcessPaymentResponse, error) {
	settled, err := s.settle(ctx, o.Scope(), o.OrderID, p, by)
	if err != nil {
		return nil, err
	}
	return &ProcessPaymentResponse{
		Order:            settled,
		Payment:          p,
		Change:           p.Change,
		AlreadyProcessed: true,
		Message:          "Payment already processed",
	}, nil
}

// settle 订单 paid/completed/KOT 关闭，堂食桌台进入 cleaning，发出成功通知
func (s *paymentService) settle(ctx context.Context, scope domain.Scope, orderID string, p *domain.Payment, by string) (*domain.Order, error) {
	o, changed, err := s.mutate(ctx, scope, orderID, func(o *domain.Order) error {
		if o.PaymentStatus == domain.PaymentPaid {
			return errNoChange
		}
		if o.Status == domain.OrderCancelled {
			return domain.Conflict("Order is cancelled")
		}
		// 网关来源（webhook / verify）不受出餐门槛限制
		if p.Source == domain.SourceManual {
			if err := CheckKitchenGate(o); err != nil {
				return err
			}
		}
		if !domain.Round2(o.Final).Equal(domain.Round2(p.AmountDue)) {
			return domain.Conflict(fmt.Sprintf("Payment amount %s does not match order total %s",
				domain.Round2(p.AmountDue).StringFixed(2), domain.Round2(o.Final).StringFixed(2)))
		}
		o.MarkPaid(s.now())
		return nil
	})
	if err != nil {
		s.Logger.Error("Failed to mark order paid",
			zap.String("tenant_id", scope.TenantID),
			zap.String("order_id", orderID),
			zap.String("payment_id", p.PaymentID),
			zap.Error(err),
		)
		return nil, err
	}
	if !changed {
		return o, nil
	}

	effects := []Effect{
		s.broadcast(scope, realtime.EventPaymentSuccess, map[string]any{
			"id":      o.OrderID,
			"payment": p,
			"order":   o,
		}),
		s.broadcast(scope, realtime.EventOrderCompleted, o),
	}
	if o.IsDineIn() {
		if t := s.moveToCleaning(ctx, scope, *o.TableID, o.OrderID); t != nil {
			effects = append(effects, s.broadcast(scope, realtime.EventTableUpdated, t))
		}
	}
	effects = append(effects,
		notifyEffect(s.notifier, NotifyRequest{
			Scope:       scope,
			Type:        domain.NotifyPaymentSuccess,
			TargetRole:  domain.RoleAll,
			Title:       "Payment received",
			Message:     fmt.Sprintf("Order %s paid %s via %s", o.OrderNumber, p.AmountDue.StringFixed(2), p.Method),
			ReferenceID: o.OrderID,
			CreatedBy:   by,
		}),
		s.invalidate(scope),
	)
	s.run("payment.settle", effects...)
	return o, nil
}

// GetPaymentRequest 按订单查询支付 / 审计
type GetPaymentRequest struct {
	Actor   domain.Actor
	OrderID string
}

func (s *paymentService) GetPayment(ctx context.Context, req GetPaymentRequest) (*domain.Payment, error) {
	if err := authorize(req.Actor, domain.OpViewPayment); err != nil {
		return nil, err
	}
	p, err := s.Payments.GetPaymentByOrder(ctx, req.Actor.Scope(), req.OrderID)
	if err != nil {
		return nil, storageErr(err, "Payment", "get payment")
	}
	return p, nil
}

func (s *paymentService) ListAudits(ctx context.Context, req GetPaymentRequest) ([]*domain.PaymentAudit, error) {
	if err := authorize(req.Actor, domain.OpViewPaymentAudits); err != nil {
		return nil, err
	}
	audits, err := s.Audits.ListAudits(ctx, req.Actor.Scope(), req.OrderID)
	if err != nil {
		return nil, domain.Internal("failed to list payment audits", err)
	}
	return audits, nil
}

// VerifyPaymentRequest 向网关查询支付并结算
type VerifyPaymentRequest struct {
	Actor            domain.Actor
	OrderID          string
	GatewayPaymentID string
	Meta             domain.RequestMeta
}

func (s *paymentService) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*ProcessPaymentResponse, error) {
	if err := authorize(req.Actor, domain.OpVerifyPayment); err != nil {
		return nil, err
	}
	resp, err := s.verify(ctx, req)
	s.audit(auditEntry{
		scope: req.Actor.Scope(), orderID: req.OrderID, action: domain.AuditVerified,
		actor: &req.Actor, meta: req.Meta, err: err,
		metadata: map[string]any{"gateway_payment_id": req.GatewayPaymentID},
	})
	return resp, err
}

func (s *paymentService) verify(ctx context.Context, req VerifyPaymentRequest) (*ProcessPaymentResponse, error) {
	if strings.TrimSpace(req.GatewayPaymentID) == "" {
		return nil, domain.Validation("payment_id is required")
	}
	if s.gateway == nil {
		return nil, domain.Internal("payment gateway is not configured", nil)
	}
	scope := req.Actor.Scope()
	o, err := s.Orders.GetOrder(ctx, scope, req.OrderID)
	if err != nil {
		return nil, storageErr(err, "Order", "get order")
	}
	if o.PaymentStatus == domain.PaymentPaid {
		return s.alreadyProcessed(ctx, o)
	}

	gp, err := s.gateway.FetchPayment(ctx, req.GatewayPaymentID)
	if errors.Is(err, errGatewayNotFound) {
		return nil, domain.NotFound("Gateway payment not found")
	}
	if err != nil {
		return nil, domain.Internal("failed to verify payment with gateway", err)
	}
	if gp.Status != gatewayStatusCaptured {
		return nil, domain.Conflict(fmt.Sprintf("Gateway payment is not captured (status: %s)", gp.Status))
	}
	if gp.Amount != toMinorUnits(o.Final) {
		return nil, domain.Validation(fmt.Sprintf("Amount mismatch: gateway %s, due %s", fromMinorUnits(gp.Amount).StringFixed(2), o.Final.StringFixed(2)))
	}
	return s.createAndSettle(ctx, o, s.gatewayPayment(o, gp, domain.SourceVerify, req.Actor.UserID), req.Actor.UserID)
}

func (s *paymentService) gatewayPayment(o *domain.Order, gp *GatewayPayment, source domain.PaymentSource, by string) *domain.Payment {
	amount := fromMinorUnits(gp.Amount)
	return &domain.Payment{
		PaymentID:      uuid.NewString(),
		TenantID:       o.TenantID,
		BranchID:       o.BranchID,
		OrderID:        o.OrderID,
		Method:         gatewayMethod(gp.Method),
		TransactionID:  gp.ID,
		AmountDue:      domain.Round2(o.Final),
		AmountReceived: amount,
		Change:         decimal.Zero,
		Source:         source,
		ProcessedBy:    by,
		CreatedAt:      s.now(),
	}
}

// gatewayMethod 网关支付方式 -> 本地支付方式
func gatewayMethod(m string) domain.PaymentMethod {
	switch strings.ToLower(m) {
	case "card":
		return domain.MethodCreditCard
	case "upi":
		return domain.MethodUPI
	default:
		return domain.MethodQR
	}
}

// toMinorUnits 金额转最小货币单位（×100）
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

// WebhookRequest 网关回调（Body 为原始请求体，签名基于原始字节计算）
type WebhookRequest struct {
	Body      []byte
	Signature string
	Meta      domain.RequestMeta
}

// WebhookResponse 回调处理结果
type WebhookResponse struct {
	Status  WebhookStatus `json:"status"`
	OrderID string        `json:"order_id,omitempty"`
}

type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity GatewayPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// SignWebhook 计算回调签名：hex(HMAC-SHA256(secret, body))
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected, err := hex.DecodeString(SignWebhook(secret, body))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func (s *paymentService) HandleWebhook(ctx context.Context, req WebhookRequest) (*WebhookResponse, error) {
	// 1. 签名校验（任何状态变化之前）
	if !verifyWebhookSignature(s.webhookSecret, req.Body, req.Signature) {
		s.Logger.Warn("Webhook signature verification failed", zap.String("ip", req.Meta.IPAddress))
		return nil, domain.Verification("Invalid webhook signature")
	}

	var payload webhookPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, domain.Validation("invalid webhook payload")
	}
	if payload.Event != WebhookPaymentCaptured {
		s.Logger.Debug("Ignoring webhook event", zap.String("event", payload.Event))
		return &WebhookResponse{Status: WebhookIgnored}, nil
	}

	gp := payload.Payload.Payment.Entity
	orderID := gp.Notes["order_id"]
	if orderID == "" {
		return &WebhookResponse{Status: WebhookOrderNotFound}, nil
	}

	// 2. 定位订单 scope：优先使用 notes，缺失时按 order_id 反查
	scope := domain.Scope{TenantID: gp.Notes["tenant_id"], BranchID: gp.Notes["branch_id"]}
	if scope.TenantID == "" || scope.BranchID == "" {
		found, err := s.Orders.FindOrderScope(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return &WebhookResponse{Status: WebhookOrderNotFound, OrderID: orderID}, nil
		}
		if err != nil {
			return nil, domain.Internal("failed to locate order", err)
		}
		scope = found
	}

	o, err := s.Orders.GetOrder(ctx, scope, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		s.Logger.Warn("Webhook for unknown order", zap.String("order_id", orderID))
		return &WebhookResponse{Status: WebhookOrderNotFound, OrderID: orderID}, nil
	}
	if err != nil {
		return nil, domain.Internal("failed to get order", err)
	}

	entry := auditEntry{
		scope: scope, orderID: orderID, action: domain.AuditProcessed, meta: req.Meta,
		metadata: map[string]any{
			"source":             domain.SourceWebhook,
			"event":              payload.Event,
			"gateway_payment_id": gp.ID,
			"amount_minor":       gp.Amount,
		},
	}

	// 3. 幂等：已支付直接应答成功
	if o.PaymentStatus == domain.PaymentPaid {
		entry.metadata["already_processed"] = true
		s.audit(entry)
		return &WebhookResponse{Status: WebhookAlreadyProcessed, OrderID: orderID}, nil
	}

	resp, err := s.webhookSettle(ctx, o, &gp)
	entry.err = err
	if err != nil {
		entry.action = domain.AuditFailed
	}
	s.audit(entry)
	if err != nil {
		return nil, err
	}
	status := WebhookProcessed
	if resp.AlreadyProcessed {
		status = WebhookAlreadyProcessed
	}
	return &WebhookResponse{Status: status, OrderID: orderID}, nil
}

func (s *paymentService) webhookSettle(ctx context.Context, o *domain.Order, gp *GatewayPayment) (*ProcessPaymentResponse, error) {
	if o.Status == domain.OrderCancelled {
		return nil, domain.Conflict("Order is cancelled")
	}
	if gp.Amount != toMinorUnits(o.Final) {
		return nil, domain.Validation(fmt.Sprintf("Amount mismatch: gateway %s, due %s", fromMinorUnits(gp.Amount).StringFixed(2), o.Final.StringFixed(2)))
	}
	existing, err := s.Payments.GetPaymentByOrder(ctx, o.Scope(), o.OrderID)
	if err == nil {
		return s.repair(ctx, o, existing, "gateway")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storageErr(err, "Payment", "get payment")
	}
	return s.createAndSettle(ctx, o, s.gatewayPayment(o, gp, domain.SourceWebhook, "gateway"), "gateway")
}

// auditEntry 一次支付尝试的审计内容
type auditEntry struct {
	scope    domain.Scope
	orderID  string
	action   domain.AuditAction
	actor    *domain.Actor // 网关回调为 nil
	meta     domain.RequestMeta
	err      error
	metadata map[string]any
}

// audit 作为副作用追加审计记录，失败只记录日志
func (s *paymentService) audit(e auditEntry) {
	a := &domain.PaymentAudit{
		AuditID:   uuid.NewString(),
		TenantID:  e.scope.TenantID,
		BranchID:  e.scope.BranchID,
		OrderID:   e.orderID,
		Action:    e.action,
		Success:   e.err == nil,
		IPAddress: e.meta.IPAddress,
		UserAgent: e.meta.UserAgent,
		Metadata:  e.metadata,
		CreatedAt: s.now(),
	}
	if e.actor != nil {
		a.ActorID = e.actor.UserID
		a.ActorRole = e.actor.Role
	}
	if e.err != nil {
		a.Error = domain.MessageOf(e.err)
	}
	s.run("payment.audit", Effect{
		Name: "audit:" + string(e.action),
		Run: func(ctx context.Context) error {
			return s.Audits.AppendAudit(ctx, a)
		},
	})
}
