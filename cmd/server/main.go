// Package main runs the course checkout HTTP server with order status WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
	"github.com/kampus-akademi/backend/internal/forms"
	"github.com/kampus-akademi/backend/internal/metrics"
	"github.com/kampus-akademi/backend/internal/middleware"
	"github.com/kampus-akademi/backend/internal/notify"
	"github.com/kampus-akademi/backend/internal/orders"
	"github.com/kampus-akademi/backend/internal/payment"
	"github.com/kampus-akademi/backend/internal/realtime"
	"github.com/kampus-akademi/backend/pkg/database"
	"github.com/kampus-akademi/backend/pkg/lock"
	"github.com/kampus-akademi/backend/pkg/queue"
	"github.com/kampus-akademi/backend/pkg/redis"
	"github.com/kampus-akademi/backend/pkg/response"
	"github.com/kampus-akademi/backend/pkg/storage"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Form attachments are optional; without a bucket, attachments are refused.
	var attachments forms.Attachments
	if cfg.AWS.Region != "" && cfg.AWS.FormsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			FormsBucket:          cfg.AWS.FormsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			attachments = s3Client
		}
	}

	var publisher checkout.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kp.Close()
		publisher = kp
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckout(reg)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Stores
	authRepo := auth.NewRepository(pool)
	courseRepo := courses.NewRepository(pool)
	discountRepo := discounts.NewRepository(pool)
	enrollmentRepo := enrollments.NewRepository(pool)
	orderRepo := orders.NewRepository(pool)
	emailLogsRepo := emaillogs.NewRepository(pool)
	formRepo := forms.NewRepository(pool)

	ledger, err := discounts.NewLedger(discountRepo, cfg.Referral, logger)
	if err != nil {
		logger.Fatal("discount ledger", zap.Error(err))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifier := notify.NewService(emailLogsRepo, jobQueue, orderRepo, notify.Settings{
		BaseURL:       cfg.App.BaseURL,
		DefaultLocale: cfg.App.DefaultLocale,
		AdminAddress:  cfg.Email.AdminAddress,
	}, logger)

	checkoutSvc, err := checkout.NewService(checkout.Deps{
		Orders:      orderRepo,
		Enrollments: enrollmentRepo,
		Ledger:      ledger,
		Courses:     courseRepo,
		Identity:    authRepo,
		Gateway:     payment.NewGateway(cfg.Gateway),
		State:       payment.NewStateCodec(cfg.Gateway.StateSecret, time.Duration(cfg.Gateway.StateTTLMinutes)*time.Minute),
		Notifier:    notifier,
		Events:      publisher,
		Broadcaster: hub,
		Locker:      lock.New(rdb.Client, "lock:", 30*time.Second, logger),
		Metrics:     checkoutMetrics,
	}, checkout.Settings{
		BaseURL:       cfg.App.BaseURL,
		DefaultLocale: cfg.App.DefaultLocale,
		Locales:       cfg.App.SupportedLocales,
		OrderIDPrefix: cfg.App.OrderIDPrefix,
	}, logger)
	if err != nil {
		logger.Fatal("checkout", zap.Error(err))
	}

	// Handlers
	authHandler := auth.NewHandler(authRepo, jwtService, cfg.App.DefaultLocale, logger)
	courseHandler := courses.NewHandler(courseRepo, logger)
	discountHandler := discounts.NewHandler(ledger, logger)
	enrollmentHandler := enrollments.NewHandler(enrollmentRepo, logger)
	checkoutHandler := checkout.NewHandler(checkoutSvc, cfg.Gateway.WebhookSecret, logger)
	formHandler := forms.NewHandler(formRepo, attachments, notifier, cfg.App.DefaultLocale, logger)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo, notifier)

	orderStatus := func(ctx context.Context, orderID string) (realtime.OrderStatus, error) {
		o, err := orderRepo.Get(ctx, orderID)
		if err != nil {
			return realtime.OrderStatus{}, err
		}
		return realtime.OrderStatus{OrderID: o.ID, Status: string(o.Status), Enrolled: o.Enrolled}, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger, "/health", "/metrics"))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Catalog and pricing (public)
	router.GET("/courses", courseHandler.List)
	router.GET("/courses/:id", courseHandler.Get)
	discountHandler.RegisterPublic(router, jwtService)

	// Checkout. Guests may order; a bearer token, when present, identifies the buyer.
	router.POST("/orders", middleware.OptionalJWT(jwtService), checkoutHandler.CreateOrder)
	router.GET("/orders/lookup", checkoutHandler.Lookup)
	router.GET("/payments/callback", checkoutHandler.Callback)
	router.POST("/payments/callback", checkoutHandler.Callback)
	router.POST("/payments/webhook", checkoutHandler.Webhook)

	// Public forms (multipart, optional attachment)
	router.POST("/forms/:kind", formHandler.Submit)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)
		api.POST("/orders/sync", checkoutHandler.Sync)
		api.GET("/me/enrollments", enrollmentHandler.ListMine)
		api.GET("/me/referral", discountHandler.MyReferral)
		api.POST("/me/referral", discountHandler.IssueReferral)

		admin := api.Group("/admin", middleware.RequireRole("admin"))
		admin.PUT("/courses/:id", courseHandler.Upsert)
		admin.DELETE("/enrollments", enrollmentHandler.Deactivate)
		admin.GET("/forms", formHandler.List)
		admin.GET("/emails", emailLogsHandler.List)
		admin.POST("/orders/:id/resend-confirmation", emailLogsHandler.Resend)
	}

	// Order status feed (no auth; order ids are unguessable)
	router.GET("/ws/orders", realtime.ServeWs(hub, logger, orderStatus))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
