package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"owl-restaurant/internal/domain"
)

// Sink 事件投递目标
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Publisher 业务层使用的广播接口
type Publisher interface {
	Publish(ctx context.Context, scope domain.Scope, name string, data any)
}

// Bus 依次投递到所有 sink：至多一次、尽力而为，失败只记录日志
type Bus struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewBus(logger *zap.Logger, sinks ...Sink) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{sinks: sinks, logger: logger, now: time.Now}
}

var _ Publisher = (*Bus)(nil)

// AddSink 启动阶段追加 sink（MQTT / Redis 连接成功后）
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

func (b *Bus) Publish(ctx context.Context, scope domain.Scope, name string, data any) {
	ev := Event{
		Name:     name,
		TenantID: scope.TenantID,
		BranchID: scope.BranchID,
		Data:     data,
		At:       b.now().UTC(),
	}

	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Deliver(ctx, ev); err != nil {
			b.logger.Warn("Failed to deliver realtime event",
				zap.String("sink", s.Name()),
				zap.String("event", name),
				zap.String("tenant_id", scope.TenantID),
				zap.String("branch_id", scope.BranchID),
				zap.Error(err),
			)
		}
	}
}
