package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/loomperapp-jpg/loomper-backend/internal/cache"
	"github.com/loomperapp-jpg/loomper-backend/internal/config"
	"github.com/loomperapp-jpg/loomper-backend/internal/events"
	"github.com/loomperapp-jpg/loomper-backend/internal/handler"
	"github.com/loomperapp-jpg/loomper-backend/internal/logging"
	"github.com/loomperapp-jpg/loomper-backend/internal/mercadopago"
	"github.com/loomperapp-jpg/loomper-backend/internal/repository"
	"github.com/loomperapp-jpg/loomper-backend/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logr, err := logging.New(cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logr.Sync() }()

	// Connect to database
	repo, err := repository.New(cfg.Database.DSN(), repository.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer repo.Close()

	catalog, err := config.LoadPackages(cfg.Packages.File)
	if err != nil {
		logr.Fatal("failed to load credit packages", zap.String("file", cfg.Packages.File), zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher events.Publisher = events.NewLogPublisher(logr)
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logr.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		publisher = kp
		logr.Info("ledger events go to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}
	defer publisher.Close()

	var locker cache.Locker = cache.NewLocalLocker()
	if cfg.Redis.URL != "" {
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			logr.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		locker = cache.NewRedisLocker(client)
	} else {
		logr.Warn("REDIS_URL not set, sweep locks are process local")
	}

	gateway := mercadopago.NewClient(cfg.MercadoPago.BaseURL, cfg.MercadoPago.AccessToken, cfg.MercadoPago.Timeout)

	// Create services
	ledgerSvc := service.NewLedgerService(repo, logr, cfg.Ledger.MaxRetries)
	referralSvc := service.NewReferralService(repo, ledgerSvc, publisher, logr, cfg.Ledger.CommissionRetryBackoff)
	paymentSvc := service.NewPaymentService(repo, ledgerSvc, referralSvc, gateway, catalog, publisher, logr)
	checkoutSvc := service.NewCheckoutService(repo, gateway, catalog, cfg, logr)
	expirySvc := service.NewExpiryService(repo, ledgerSvc, publisher, logr, cfg.Sweeps.BatchSize)
	campaignSvc := service.NewCampaignService(repo, ledgerSvc, publisher, logr, cfg.Sweeps.BatchSize)
	walletSvc := service.NewWalletService(repo, ledgerSvc, logr)
	userSvc := service.NewUserService(repo, logr)
	runner := service.NewSweepRunner(expirySvc, campaignSvc, referralSvc, locker, cfg.Sweeps.LockTTL, cfg.Ledger.CommissionBatchSize, logr)

	h := handler.New(repo, userSvc, walletSvc, paymentSvc, checkoutSvc, campaignSvc, runner, logr)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	h.Register(app, handler.RouteConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		InternalAPIKey: cfg.Auth.InternalAPIKey,
	})

	// Start background jobs
	if cfg.Sweeps.Enabled {
		go service.NewCommissionWorker(runner, cfg.Ledger.CommissionWorkerInterval, logr).Start(ctx)
		go service.NewSweepScheduler(runner, cfg.Sweeps.ExpiryInterval, cfg.Sweeps.RenewalInterval, logr).Start(ctx)
	} else {
		logr.Info("in-process workers disabled, expecting /internal/cron triggers")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logr.Info("shutting down server")
		cancel()
		_ = app.Shutdown()
	}()

	logr.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("environment", cfg.Server.Environment))
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		logr.Fatal("failed to start server", zap.Error(err))
	}
}
