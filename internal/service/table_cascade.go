package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/repository"
)

// tableCascade 订单 / 支付驱动的桌台流转
// 与订单写入是两次独立的条件写入；失败只记录日志，读取时由 reconcile 修复
type tableCascade struct {
	lifecycle
}

// occupy 下单后占用桌台：available|reserved -> occupied，清空预订标记
func (c tableCascade) occupy(ctx context.Context, scope domain.Scope, tableID, orderID string) (*domain.Table, error) {
	return c.Tables.CompareAndSetTable(ctx, scope, tableID, domain.OccupiableStatuses, domain.TableState{
		Status:         domain.TableOccupied,
		CurrentOrderID: strPtr(orderID),
	})
}

// releaseForOrder 订单取消后释放桌台；桌台已不属于该订单时不动
func (c tableCascade) releaseForOrder(ctx context.Context, scope domain.Scope, tableID, orderID string) *domain.Table {
	t, err := c.Tables.GetTable(ctx, scope, tableID)
	if err != nil {
		c.logCascade("release", scope, tableID, orderID, err)
		return nil
	}
	if !t.StatusIn(domain.ReleasableForOrderStatuses) || !heldBy(t, orderID) {
		return nil
	}
	updated, err := c.Tables.CompareAndSetTable(ctx, scope, tableID, []domain.TableStatus{t.Status}, domain.AvailableState())
	if err != nil {
		c.logCascade("release", scope, tableID, orderID, err)
		return nil
	}
	return updated
}

// markBilling occupied -> billing
func (c tableCascade) markBilling(ctx context.Context, scope domain.Scope, tableID, orderID string) *domain.Table {
	t, err := c.Tables.GetTable(ctx, scope, tableID)
	if err != nil {
		c.logCascade("billing", scope, tableID, orderID, err)
		return nil
	}
	if t.Status != domain.TableOccupied || !heldBy(t, orderID) {
		return nil
	}
	updated, err := c.Tables.CompareAndSetTable(ctx, scope, tableID,
		[]domain.TableStatus{domain.TableOccupied}, domain.TableState{Status: domain.TableBilling})
	if err != nil {
		c.logCascade("billing", scope, tableID, orderID, err)
		return nil
	}
	return updated
}

// moveToCleaning 已支付订单完成：沿流转表 occupied -> billing -> cleaning
func (c tableCascade) moveToCleaning(ctx context.Context, scope domain.Scope, tableID, orderID string) *domain.Table {
	t, err := c.Tables.GetTable(ctx, scope, tableID)
	if err != nil {
		c.logCascade("cleaning", scope, tableID, orderID, err)
		return nil
	}
	if t.Status == domain.TableOccupied {
		if !heldBy(t, orderID) {
			return nil
		}
		if t = c.markBilling(ctx, scope, tableID, orderID); t == nil {
			return nil
		}
	}
	if t.Status != domain.TableBilling {
		return nil
	}
	updated, err := c.Tables.CompareAndSetTable(ctx, scope, tableID,
		[]domain.TableStatus{domain.TableBilling}, domain.TableState{Status: domain.TableCleaning})
	if err != nil {
		c.logCascade("cleaning", scope, tableID, orderID, err)
		return nil
	}
	return updated
}

// reconcile 桌台仍为 occupied 但当前订单已结束（订单写入与桌台写入之间崩溃），按订单状态推导并写回
func (c tableCascade) reconcile(ctx context.Context, t *domain.Table) *domain.Table {
	if t.Status != domain.TableOccupied || t.CurrentOrderID == nil {
		return t
	}
	scope := domain.Scope{TenantID: t.TenantID, BranchID: t.BranchID}
	o, err := c.Orders.GetOrder(ctx, scope, *t.CurrentOrderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return t
	}

	var next domain.TableState
	switch {
	case err != nil, o.Status == domain.OrderCancelled:
		next = domain.AvailableState()
	case o.PaymentStatus == domain.PaymentPaid:
		next = domain.TableState{Status: domain.TableCleaning}
	default:
		return t
	}

	updated, err := c.Tables.CompareAndSetTable(ctx, scope, t.TableID, []domain.TableStatus{domain.TableOccupied}, next)
	if err != nil {
		// 并发写入已改变桌台，保留读到的状态
		return t
	}
	c.Logger.Info("Reconciled stale table state",
		zap.String("tenant_id", scope.TenantID),
		zap.String("branch_id", scope.BranchID),
		zap.String("table_id", t.TableID),
		zap.String("status", string(updated.Status)),
	)
	return updated
}

func (c tableCascade) logCascade(step string, scope domain.Scope, tableID, orderID string, err error) {
	c.Logger.Warn("Table cascade failed",
		zap.String("step", step),
		zap.String("tenant_id", scope.TenantID),
		zap.String("branch_id", scope.BranchID),
		zap.String("table_id", tableID),
		zap.String("order_id", orderID),
		zap.Error(err),
	)
}

// heldBy occupied 状态必须属于该订单；billing 不再记录订单
func heldBy(t *domain.Table, orderID string) bool {
	if t.Status != domain.TableOccupied {
		return true
	}
	return t.CurrentOrderID != nil && *t.CurrentOrderID == orderID
}
