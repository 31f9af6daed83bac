package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod 支付方式
type PaymentMethod string

const (
	MethodCash       PaymentMethod = "cash"
	MethodQR         PaymentMethod = "qr"
	MethodUPI        PaymentMethod = "upi"
	MethodCreditCard PaymentMethod = "credit_card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodQR, MethodUPI, MethodCreditCard:
		return true
	}
	return false
}

// IsElectronic 非现金方式必须带外部交易号且金额精确匹配
func (m PaymentMethod) IsElectronic() bool {
	return m.Valid() && m != MethodCash
}

// PaymentSource 支付记录来源
type PaymentSource string

const (
	SourceManual  PaymentSource = "manual"
	SourceWebhook PaymentSource = "webhook"
	SourceVerify  PaymentSource = "verify"
)

// Payment 支付记录，与已完成订单 1:1（order_id 唯一），创建后不可修改
type Payment struct {
	PaymentID      string          `json:"payment_id"`
	TenantID       string          `json:"tenant_id"`
	BranchID       string          `json:"branch_id"`
	OrderID        string          `json:"order_id"`
	Method         PaymentMethod   `json:"method"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	Change         decimal.Decimal `json:"change"`
	Source         PaymentSource   `json:"source"`
	ProcessedBy    string          `json:"processed_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AuditAction 支付审计动作
type AuditAction string

const (
	AuditInitiated AuditAction = "initiated"
	AuditProcessed AuditAction = "processed"
	AuditFailed    AuditAction = "failed"
	AuditCancelled AuditAction = "cancelled"
	AuditVerified  AuditAction = "verified"
)

// PaymentAudit 支付审计日志，只追加不修改
type PaymentAudit struct {
	AuditID   string         `json:"audit_id"`
	TenantID  string         `json:"tenant_id"`
	BranchID  string         `json:"branch_id"`
	OrderID   string         `json:"order_id"`
	Action    AuditAction    `json:"action"`
	Success   bool           `json:"success"`
	ActorID   string         `json:"actor_id,omitempty"`
	ActorRole Role           `json:"actor_role,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RequestMeta 请求网络上下文（写入审计）
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
