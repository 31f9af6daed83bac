package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ReservationReleaser 释放超时预订
type ReservationReleaser interface {
	ReleaseExpiredReservations(ctx context.Context) (int, error)
}

// NotificationPurger 清理过期通知
type NotificationPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// ReservationSweeper 后台定时任务：释放超时预订 + 清理过期通知
type ReservationSweeper struct {
	tables        ReservationReleaser
	notifications NotificationPurger // 可为 nil
	interval      time.Duration
	logger        *zap.Logger
}

// NewReservationSweeper 创建后台扫描任务
func NewReservationSweeper(tables ReservationReleaser, notifications NotificationPurger, interval time.Duration, logger *zap.Logger) *ReservationSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationSweeper{
		tables:        tables,
		notifications: notifications,
		interval:      interval,
		logger:        logger,
	}
}

// Start 阻塞运行直到 ctx 取消
func (s *ReservationSweeper) Start(ctx context.Context) error {
	s.logger.Info("Reservation sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 立即执行一次
	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reservation sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce 执行一轮扫描，错误只记录日志
func (s *ReservationSweeper) SweepOnce(ctx context.Context) {
	released, err := s.tables.ReleaseExpiredReservations(ctx)
	if err != nil {
		s.logger.Error("Failed to release expired reservations", zap.Error(err))
	} else if released > 0 {
		s.logger.Debug("Released expired reservations", zap.Int("count", released))
	}

	if s.notifications == nil {
		return
	}
	purged, err := s.notifications.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("Failed to purge expired notifications", zap.Error(err))
	} else if purged > 0 {
		s.logger.Debug("Purged expired notifications", zap.Int("count", purged))
	}
}
