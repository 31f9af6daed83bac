package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Effect 主写入成功后执行的副作用（广播、通知、审计、缓存失效）
// 失败只记录日志，不影响主操作结果
type Effect struct {
	Name string
	Run  func(ctx context.Context) error
}

// EffectRunner 按顺序执行一次操作附带的副作用列表
type EffectRunner interface {
	Run(op string, effects []Effect)
}

// SyncEffectRunner 在调用方 goroutine 内同步执行（测试 / 单机调试）
type SyncEffectRunner struct {
	logger *zap.Logger
}

func NewSyncEffectRunner(logger *zap.Logger) *SyncEffectRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncEffectRunner{logger: logger}
}

func (r *SyncEffectRunner) Run(op string, effects []Effect) {
	runEffects(context.Background(), r.logger, op, effects)
}

type effectJob struct {
	op      string
	effects []Effect
}

// QueueEffectRunner 有界队列 + 固定 worker；队列满时丢弃并记录日志
type QueueEffectRunner struct {
	queue   chan effectJob
	workers int
	timeout time.Duration
	logger  *zap.Logger
}

func NewQueueEffectRunner(workers, queueSize int, logger *zap.Logger) *QueueEffectRunner {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueEffectRunner{
		queue:   make(chan effectJob, queueSize),
		workers: workers,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

func (r *QueueEffectRunner) Run(op string, effects []Effect) {
	if len(effects) == 0 {
		return
	}
	select {
	case r.queue <- effectJob{op: op, effects: effects}:
	default:
		r.logger.Warn("Effect queue full, dropping effects",
			zap.String("op", op),
			zap.Int("effects", len(effects)),
		)
	}
}

// Start 启动 worker，阻塞直到 ctx 取消；取消后尽量执行完已入队的任务
func (r *QueueEffectRunner) Start(ctx context.Context) error {
	done := make(chan struct{})
	for i := 0; i < r.workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case job := <-r.queue:
					r.execute(job)
				case <-ctx.Done():
					r.drain()
					return
				}
			}
		}()
	}
	for i := 0; i < r.workers; i++ {
		<-done
	}
	return nil
}

func (r *QueueEffectRunner) drain() {
	for {
		select {
		case job := <-r.queue:
			r.execute(job)
		default:
			return
		}
	}
}

func (r *QueueEffectRunner) execute(job effectJob) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	runEffects(ctx, r.logger, job.op, job.effects)
}

func runEffects(ctx context.Context, logger *zap.Logger, op string, effects []Effect) {
	for _, e := range effects {
		if err := runOne(ctx, e); err != nil {
			logger.Error("Post-commit effect failed",
				zap.String("op", op),
				zap.String("effect", e.Name),
				zap.Error(err),
			)
		}
	}
}

func runOne(ctx context.Context, e Effect) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("effect panicked: %v", p)
		}
	}()
	return e.Run(ctx)
}
