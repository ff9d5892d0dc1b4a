package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"growvia-service/internal/audit"
	"growvia-service/internal/config"
	"growvia-service/internal/database"
	grpcServer "growvia-service/internal/grpc"
	"growvia-service/internal/handlers"
	"growvia-service/internal/services"
	"growvia-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	cfg.ConfigureLogging()
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	// Database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logrus.Fatalf("Failed to get sql.DB: %v", err)
	}

	// Audit trail: always logged, mirrored to NATS when configured
	sink, closeSink, err := audit.NewSink(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	if err != nil {
		logrus.Fatalf("Failed to connect NATS: %v", err)
	}
	defer closeSink()

	// Redis/Asynq Client
	redisOpt, err := worker.RedisOpt(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logrus.Fatalf("Invalid redis config: %v", err)
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	redisClient, err := services.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logrus.Fatalf("Failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	// Services
	settings := settingsFrom(cfg)
	queue := worker.NewAsynqPayoutQueue(asynqClient)
	gateway := services.NewPaystackGateway(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.Timeout)
	limiter := services.NewRedisOTPLimiter(redisClient, cfg.Payout.OTPSendsPerHour, time.Hour)

	helperService := services.NewHelperService(db, worker.NewAsynqNotifier(asynqClient), sink)
	access := services.NewAuthorizer(services.NewGormDirectory(db))
	kycService := services.NewKYCService(db, helperService, access)
	walletService := services.NewWalletService(db, helperService, access, kycService, services.GormPointsStore{}, settings)
	payoutService := services.NewPayoutService(db, helperService, access, walletService, kycService, gateway, queue, settings)
	methodService := services.NewPayoutMethodService(db, helperService, access, gateway, limiter, settings)

	r := handlers.NewRouter(&handlers.Handler{
		Wallet:      walletService,
		Payouts:     payoutService,
		Methods:     methodService,
		Affiliates:  services.NewCampaignAffiliateService(db, helperService, access, kycService),
		Commissions: services.NewCommissionService(db, helperService, access),
		KYC:         kycService,
		Access:      access,
		Webhooks:    gateway,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start gRPC health server
	health := grpcServer.NewHealthServer(sqlDB, 0)
	go func() {
		if err := health.Start(ctx, cfg.GRPCPort); err != nil {
			logrus.Errorf("gRPC server stopped: %v", err)
		}
	}()
	defer health.Stop()

	// Start Cron Schedulers
	maintenance := services.NewMaintenanceService(payoutService, methodService, queue, cfg.Scheduler.PayoutSweepAge)
	scheduler, err := maintenance.StartScheduler(cfg.Scheduler.OTPPurgeSpec, cfg.Scheduler.PayoutSweepSpec)
	if err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	logrus.Infof("HTTP Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logrus.Fatal("Failed to start server: ", err)
	}
}

func settingsFrom(cfg *config.Config) services.Settings {
	settings := services.DefaultSettings()
	settings.PointsPerNaira = cfg.Fees.PointsPerNaira
	settings.TransferFeePercent = cfg.Fees.TransferFeePercent
	settings.TransferFeeMinimum = cfg.Fees.TransferFeeMinimum
	settings.WithdrawalFeePercent = cfg.Fees.WithdrawalFeePercent
	settings.WithdrawalFeeCap = cfg.Fees.WithdrawalFeeCap
	settings.MinimumWithdrawal = cfg.Payout.MinimumWithdrawal
	settings.OTPTTL = cfg.Payout.OTPTTL
	return settings
}
