package main

import (
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"growvia-service/internal/audit"
	"growvia-service/internal/config"
	"growvia-service/internal/consumers"
	"growvia-service/internal/database"
	"growvia-service/internal/services"
	"growvia-service/internal/worker"
)

func main() {
	cfg, err := config.Load("../../.env", ".env")
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	cfg.ConfigureLogging()

	// Connect DB
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect database: %v", err)
	}

	// Redis
	redisOpt, err := worker.RedisOpt(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logrus.Fatalf("Invalid redis config: %v", err)
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Audit trail, same sinks as the API
	sink, closeSink, err := audit.NewSink(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	if err != nil {
		logrus.Fatalf("Failed to connect NATS: %v", err)
	}
	defer closeSink()

	// Init Services
	settings := services.DefaultSettings()
	settings.WithdrawalFeePercent = cfg.Fees.WithdrawalFeePercent
	settings.WithdrawalFeeCap = cfg.Fees.WithdrawalFeeCap
	settings.MinimumWithdrawal = cfg.Payout.MinimumWithdrawal

	gateway := services.NewPaystackGateway(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.Timeout)
	helperService := services.NewHelperService(db, worker.NewAsynqNotifier(asynqClient), sink)
	access := services.NewAuthorizer(services.NewGormDirectory(db))
	kycService := services.NewKYCService(db, helperService, access)
	walletService := services.NewWalletService(db, helperService, access, kycService, services.GormPointsStore{}, settings)
	payoutService := services.NewPayoutService(db, helperService, access, walletService, kycService, gateway, worker.NewAsynqPayoutQueue(asynqClient), settings)

	// Processor
	processor := consumers.NewPaymentProcessor(payoutService, consumers.NewLogMailer(nil))

	logrus.Info("Starting Asynq Worker...")
	if err := worker.StartWorker(redisOpt, 0, processor); err != nil {
		logrus.Fatal(err)
	}
}
