package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// GatewayPayment 网关侧支付实体（金额为最小货币单位，如 paise）
type GatewayPayment struct {
	ID        string            `json:"id"`
	Entity    string            `json:"entity"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Status    string            `json:"status"` // created | authorized | captured | refunded | failed
	Method    string            `json:"method"` // card | upi | netbanking | wallet ...
	OrderID   string            `json:"order_id"`
	Notes     map[string]string `json:"notes"`
	CreatedAt int64             `json:"created_at"`
}

// gatewayError 网关错误响应
type gatewayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// PaymentGateway 支付网关查询接口（verify 使用）
type PaymentGateway interface {
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
}

// GatewayClient 支付网关 API 客户端
type GatewayClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

var _ PaymentGateway = (*GatewayClient)(nil)

// NewGatewayClient 创建网关客户端（Basic Auth: key id / key secret）
func NewGatewayClient(baseURL, keyID, keySecret string, timeout time.Duration, logger *zap.Logger) *GatewayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetBasicAuth(keyID, keySecret).
		SetHeader("Accept", "application/json")

	return &GatewayClient{
		httpClient: client,
		logger:     logger,
	}
}

// FetchPayment GET /payments/{id}
func (c *GatewayClient) FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("payment id is required")
	}

	var payment GatewayPayment
	var apiErr gatewayError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		SetResult(&payment).
		SetError(&apiErr).
		Get("/payments/{id}")
	if err != nil {
		c.logger.Error("Payment gateway call failed",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, errGatewayNotFound
	}
	if resp.IsError() {
		c.logger.Error("Payment gateway returned error",
			zap.String("payment_id", paymentID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("code", apiErr.Error.Code),
			zap.String("description", apiErr.Error.Description),
		)
		return nil, fmt.Errorf("payment gateway error: %s (status: %d)", apiErr.Error.Description, resp.StatusCode())
	}

	c.logger.Debug("Fetched gateway payment",
		zap.String("payment_id", payment.ID),
		zap.String("status", payment.Status),
		zap.Int64("amount", payment.Amount),
	)
	return &payment, nil
}
