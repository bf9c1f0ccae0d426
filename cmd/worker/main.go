// Package main runs the background worker: transactional email delivery and the deferred enrollment sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kampus-akademi/backend/config"
	"github.com/kampus-akademi/backend/internal/auth"
	"github.com/kampus-akademi/backend/internal/checkout"
	"github.com/kampus-akademi/backend/internal/courses"
	"github.com/kampus-akademi/backend/internal/discounts"
	"github.com/kampus-akademi/backend/internal/emaillogs"
	"github.com/kampus-akademi/backend/internal/enrollments"
	"github.com/kampus-akademi/backend/internal/events"
	"github.com/kampus-akademi/backend/internal/notify"
	"github.com/kampus-akademi/backend/internal/orders"
	"github.com/kampus-akademi/backend/internal/payment"
	"github.com/kampus-akademi/backend/internal/realtime"
	"github.com/kampus-akademi/backend/internal/worker"
	"github.com/kampus-akademi/backend/pkg/database"
	"github.com/kampus-akademi/backend/pkg/lock"
	"github.com/kampus-akademi/backend/pkg/queue"
	"github.com/kampus-akademi/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var publisher checkout.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kp.Close()
		publisher = kp
	}

	orderRepo := orders.NewRepository(pool)
	emailLogsRepo := emaillogs.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	ledger, err := discounts.NewLedger(discounts.NewRepository(pool), cfg.Referral, logger)
	if err != nil {
		logger.Fatal("discount ledger", zap.Error(err))
	}
	notifier := notify.NewService(emailLogsRepo, jobQueue, orderRepo, notify.Settings{
		BaseURL:       cfg.App.BaseURL,
		DefaultLocale: cfg.App.DefaultLocale,
		AdminAddress:  cfg.Email.AdminAddress,
	}, logger)

	// Status changes reach server instances through Redis pub/sub.
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)

	checkoutSvc, err := checkout.NewService(checkout.Deps{
		Orders:      orderRepo,
		Enrollments: enrollments.NewRepository(pool),
		Ledger:      ledger,
		Courses:     courses.NewRepository(pool),
		Identity:    auth.NewRepository(pool),
		Gateway:     payment.NewGateway(cfg.Gateway),
		State:       payment.NewStateCodec(cfg.Gateway.StateSecret, time.Duration(cfg.Gateway.StateTTLMinutes)*time.Minute),
		Notifier:    notifier,
		Events:      publisher,
		Broadcaster: realtime.NewHub(logger, pubsub, nil),
		Locker:      lock.New(rdb.Client, "lock:", 30*time.Second, logger),
	}, checkout.Settings{
		BaseURL:       cfg.App.BaseURL,
		DefaultLocale: cfg.App.DefaultLocale,
		Locales:       cfg.App.SupportedLocales,
		OrderIDPrefix: cfg.App.OrderIDPrefix,
	}, logger)
	if err != nil {
		logger.Fatal("checkout", zap.Error(err))
	}

	processor := worker.NewEmailProcessor(notify.NewBrevoClient(cfg.Email), emailLogsRepo, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Worker.SyncCron, func() {
		n, err := checkoutSvc.SweepDeferred(workerCtx, cfg.Worker.SyncBatchSize)
		if err != nil {
			logger.Error("deferred enrollment sweep", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("deferred enrollments synced", zap.Int("count", n))
		}
	})
	if err != nil {
		logger.Fatal("schedule sweep", zap.String("cron", cfg.Worker.SyncCron), zap.Error(err))
	}
	scheduler.Start()
	logger.Info("worker started", zap.String("sweep", cfg.Worker.SyncCron))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	stopped := scheduler.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(10 * time.Second):
		logger.Warn("sweep still running at shutdown")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
