package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"owl-restaurant/internal/cache"
	"owl-restaurant/internal/domain"
	"owl-restaurant/internal/realtime"
	"owl-restaurant/internal/repository"
	"owl-restaurant/internal/sequence"
)

// Dependencies 订单 / 桌台 / 支付 / 通知服务共享的依赖
type Dependencies struct {
	Orders        repository.OrdersRepository
	Tables        repository.TablesRepository
	Payments      repository.PaymentsRepository
	Audits        repository.PaymentAuditsRepository
	Notifications repository.NotificationsRepository
	Sequence      sequence.Generator
	Cache         *cache.Cache // 可为 nil
	Bus           realtime.Publisher
	Effects       EffectRunner
	Logger        *zap.Logger
	Now           func() time.Time
}

// lifecycle 各服务共用的副作用构造与时钟
type lifecycle struct {
	Dependencies
}

func newLifecycle(deps Dependencies) lifecycle {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Effects == nil {
		deps.Effects = NewSyncEffectRunner(deps.Logger)
	}
	if deps.Bus == nil {
		deps.Bus = realtime.NewBus(deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return lifecycle{Dependencies: deps}
}

func (l lifecycle) now() time.Time {
	return l.Now().UTC()
}

func (l lifecycle) run(op string, effects ...Effect) {
	l.Effects.Run(op, effects)
}

func (l lifecycle) broadcast(scope domain.Scope, event string, data any) Effect {
	return Effect{
		Name: "broadcast:" + event,
		Run: func(ctx context.Context) error {
			l.Bus.Publish(ctx, scope, event, data)
			return nil
		},
	}
}

// invalidate 订单 / 桌台 / 支付变化后失效聚合缓存
func (l lifecycle) invalidate(scope domain.Scope) Effect {
	return Effect{
		Name: "cache:invalidate",
		Run: func(ctx context.Context) error {
			if l.Cache != nil {
				l.Cache.Invalidate(ctx, scope, cache.PrefixDashboard, cache.PrefixAnalytics)
			}
			return nil
		},
	}
}

// mutate 读取-修改-条件写回，version 冲突时基于最新状态重试
// fn 返回 errNoChange 表示幂等成功，不写入
func (l lifecycle) mutate(ctx context.Context, scope domain.Scope, orderID string, fn func(o *domain.Order) error) (*domain.Order, bool, error) {
	for attempt := 0; attempt < maxOrderWriteAttempts; attempt++ {
		o, err := l.Orders.GetOrder(ctx, scope, orderID)
		if err != nil {
			return nil, false, storageErr(err, "Order", "get order")
		}
		if err := fn(o); err != nil {
			if errors.Is(err, errNoChange) {
				return o, false, nil
			}
			return nil, false, err
		}
		o.UpdatedAt = l.now()
		err = l.Orders.UpdateOrder(ctx, o)
		if err == nil {
			return o, true, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, false, storageErr(err, "Order", "update order")
		}
		l.Logger.Debug("Order version conflict, retrying",
			zap.String("order_id", orderID),
			zap.Int("attempt", attempt+1),
		)
	}
	return nil, false, domain.Conflict("Order was modified concurrently, please retry")
}

// storageErr 仓储错误 -> 面向调用方的错误，entity 如 "Order" / "Table"
func storageErr(err error, entity, op string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.NotFound(entity + " not found")
	case errors.Is(err, repository.ErrDuplicate):
		return domain.Duplicate(entity + " already exists")
	default:
		return domain.Internal("failed to "+op, err)
	}
}

// authorize 校验认证上下文并检查操作权限
func authorize(actor domain.Actor, op domain.Operation) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	return domain.Authorize(op, actor.Role)
}

func strPtr(s string) *string {
	return &s
}
