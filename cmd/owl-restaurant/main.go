package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"owl-restaurant/internal/cache"
	"owl-restaurant/internal/common/database"
	"owl-restaurant/internal/common/logger"
	"owl-restaurant/internal/common/mqtt"
	rediscommon "owl-restaurant/internal/common/redis"
	"owl-restaurant/internal/config"
	httpapi "owl-restaurant/internal/http"
	"owl-restaurant/internal/realtime"
	"owl-restaurant/internal/repository"
	"owl-restaurant/internal/sequence"
	"owl-restaurant/internal/service"
	"owl-restaurant/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "owl-restaurant")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 数据库：连接失败时退回内存仓储（单实例联调）
	var db *sql.DB
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			defer database.Close(db)
			log.Info("DB enabled for owl-restaurant")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory repositories", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled {
		c := rediscommon.NewRedisClient(&cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rediscommon.Ping(pingCtx, c)
		cancel()
		if err == nil {
			redisClient = c
			defer redisClient.Close()
			log.Info("Redis enabled for owl-restaurant", zap.String("addr", cfg.Redis.Addr))
		} else {
			_ = c.Close()
			log.Warn("Redis enabled but ping failed, redis-backed features disabled", zap.Error(err))
		}
	}

	deps := service.Dependencies{Logger: log}
	if db != nil {
		deps.Orders = repository.NewPostgresOrdersRepository(db)
		deps.Tables = repository.NewPostgresTablesRepository(db)
		deps.Payments = repository.NewPostgresPaymentsRepository(db)
		deps.Audits = repository.NewPostgresPaymentAuditsRepository(db)
		deps.Notifications = repository.NewPostgresNotificationsRepository(db)
	} else {
		deps.Orders = repository.NewMemoryOrdersRepo()
		deps.Tables = repository.NewMemoryTablesRepo()
		deps.Payments = repository.NewMemoryPaymentsRepo()
		deps.Audits = repository.NewMemoryPaymentAuditsRepo()
		deps.Notifications = repository.NewMemoryNotificationsRepo()
	}
	deps.Sequence = newSequence(cfg, db, redisClient, log)

	var cacheStore cache.Store = cache.NewLRUStore(cfg.Cache.Capacity)
	if cfg.Cache.Backend == "redis" && redisClient != nil {
		cacheStore = cache.NewRedisStore(store.NewRedisKV(redisClient), "")
	}
	aggCache := cache.New(cacheStore, log)
	deps.Cache = aggCache

	// 实时事件：websocket 房间 + 可选 MQTT / Redis Stream 桥接
	hub := realtime.NewHub(log)
	bus := realtime.NewBus(log, hub)
	if cfg.MQTT.Enabled {
		mc, err := mqtt.NewClient(&cfg.MQTT)
		if err != nil {
			log.Warn("MQTT bridge disabled", zap.Error(err))
		} else {
			defer mc.Disconnect()
			bus.AddSink(realtime.NewMQTTSink(mc, cfg.MQTT.TopicPrefix, mc.QoS()))
		}
	}
	if cfg.EventStream.Enabled && redisClient != nil {
		bus.AddSink(realtime.NewStreamSink(redisClient, cfg.EventStream.Name, cfg.EventStream.MaxLen))
	}
	deps.Bus = bus

	effects := service.NewQueueEffectRunner(cfg.Effects.Workers, cfg.Effects.QueueSize, log)
	deps.Effects = effects

	var gateway service.PaymentGateway
	if cfg.Payment.GatewayKeyID != "" {
		gateway = service.NewGatewayClient(cfg.Payment.GatewayURL, cfg.Payment.GatewayKeyID, cfg.Payment.GatewayKeySec, cfg.Payment.GatewayTimeout, log)
	}
	if cfg.Payment.WebhookSecret == "" {
		log.Warn("PAYMENT_WEBHOOK_SECRET not set, all webhook calls will be rejected")
	}

	notifySvc := service.NewNotificationService(deps, cfg.Notification.Retention)
	orderSvc := service.NewOrderService(deps, notifySvc)
	tableSvc := service.NewTableService(deps, notifySvc, cfg.Table.ReservationTimeout)
	paymentSvc := service.NewPaymentService(deps, notifySvc, gateway, cfg.Payment.WebhookSecret)
	dashboardSvc := service.NewDashboardService(deps)

	router := httpapi.NewRouter(log)
	router.RegisterOrderRoutes(httpapi.NewOrderHandler(orderSvc, service.NewOrderExporter(deps), log))
	router.RegisterPaymentRoutes(httpapi.NewPaymentHandler(paymentSvc, log))
	router.RegisterTableRoutes(httpapi.NewTableHandler(tableSvc, log))
	router.RegisterNotificationRoutes(httpapi.NewNotificationHandler(notifySvc, log))
	router.RegisterDashboardRoutes(httpapi.NewDashboardHandler(dashboardSvc, log), aggCache, cfg.Cache.DashboardTTL, cfg.Cache.AnalyticsTTL)
	router.RegisterRealtimeRoutes(httpapi.NewRealtimeHandler(hub, log))
	router.RegisterDoctorRoutes(httpapi.NewDoctorHandler(db, redisClient, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)
	sweeper := service.NewReservationSweeper(tableSvc, notifySvc, cfg.Table.SweepInterval, log)

	// 副作用 worker 使用独立 ctx：HTTP 停止后才取消，处理中的请求入队的副作用不会丢
	effectsCtx, stopEffects := context.WithCancel(context.Background())
	defer stopEffects()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return effects.Start(effectsCtx) })
	g.Go(func() error { return sweeper.Start(gctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return shutdownInOrder(srv.Stop, stopEffects, 5*time.Second)
	})

	log.Info("owl-restaurant started", zap.String("addr", cfg.HTTP.Addr))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("owl-restaurant stopped with error", zap.Error(err))
		return err
	}
	log.Info("owl-restaurant stopped")
	return nil
}

// shutdownInOrder 先停 HTTP（等待处理中的请求），再停止副作用 worker；worker 退出前会执行完已入队的任务
func shutdownInOrder(stopServer func(context.Context) error, stopEffects context.CancelFunc, timeout time.Duration) error {
	defer stopEffects()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return stopServer(ctx)
}

// newSequence postgres | redis | memory，所选后端不可用时按 postgres -> redis -> memory 回退
func newSequence(cfg *config.Config, db *sql.DB, redisClient *redis.Client, log *zap.Logger) sequence.Generator {
	switch {
	case cfg.Sequence.Backend == "postgres" && db != nil:
		return sequence.NewPostgresGenerator(db)
	case cfg.Sequence.Backend == "redis" && redisClient != nil:
		return sequence.NewRedisGenerator(store.NewRedisKV(redisClient))
	case cfg.Sequence.Backend == "memory":
		return sequence.NewMemoryGenerator()
	case db != nil:
		return sequence.NewPostgresGenerator(db)
	case redisClient != nil:
		return sequence.NewRedisGenerator(store.NewRedisKV(redisClient))
	}
	log.Warn("No shared sequence backend available, order tokens are per-process", zap.String("backend", cfg.Sequence.Backend))
	return sequence.NewMemoryGenerator()
}
