package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmtext/booking-engine/internal/client"
	"github.com/mmtext/booking-engine/internal/metrics"
	"github.com/mmtext/booking-engine/internal/repository"
	"github.com/mmtext/booking-engine/internal/worker"
	"github.com/mmtext/booking-engine/pkg/config"
	"github.com/mmtext/booking-engine/pkg/database"
	"github.com/mmtext/booking-engine/pkg/logger"
	pkgredis "github.com/mmtext/booking-engine/pkg/redis"
	"github.com/mmtext/booking-engine/pkg/telemetry"
)

// Standalone queue drainer and expiry sweeper. Runs the same workers as
// the API server for deployments that scale admission separately from
// request handling. The API server's built-in workers should be disabled
// when this binary is deployed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       "info",
		ServiceName: "booking-drain-worker",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting drain worker...")

	ctx := context.Background()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "booking-drain-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry init failed, traces disabled: %v", err))
	}

	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics init failed: %v", err))
	}

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   1 * time.Second,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()

	var notifications client.NotificationPublisher
	notifications, err = client.NewKafkaNotificationPublisher(ctx, &client.NotificationPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.NotificationTopic,
		ServiceName: "booking-drain-worker",
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		notifications = client.NewNoOpNotificationPublisher()
	}
	defer notifications.Close()

	bookingRepo := repository.NewPostgresBookingRepository(db.Pool())
	ticketRepo := repository.NewPostgresTicketRepository(db.Pool())
	lockRepo := repository.NewRedisTicketLockRepository(redisClient)
	queueRepo := repository.NewRedisQueueRepository(redisClient)
	pendingRepo := repository.NewRedisPendingBookingRepository(redisClient)

	if err := lockRepo.LoadScripts(ctx); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to pre-load lock scripts: %v", err))
	}
	if err := queueRepo.LoadScripts(ctx); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to pre-load queue scripts: %v", err))
	}

	var payment client.PaymentClient
	if cfg.Clients.PaymentURL == "" {
		appLog.Warn("No payment URL configured, using stub payment client")
		payment = client.NewStubPaymentClient("http://localhost:8080")
	} else {
		payment = client.NewHTTPPaymentClient(cfg.Clients.PaymentURL, cfg.Clients.RequestTimeout)
	}

	// Status pushes happen in the API server process, so the drainer runs
	// without a notifier here
	drainer := worker.NewQueueDrainer(
		&worker.QueueDrainerConfig{
			DrainInterval: cfg.Drainer.Interval,
			BatchSize:     cfg.Drainer.BatchSize,
			PaymentWindow: cfg.Booking.PaymentWindow,
			ProcessingTTL: cfg.Booking.ProcessingTTL,
		},
		queueRepo,
		bookingRepo,
		ticketRepo,
		lockRepo,
		pendingRepo,
		payment,
		notifications,
		nil,
	)
	if err := drainer.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start queue drainer: %v", err))
	}
	defer drainer.Stop()

	sweeper := worker.NewExpirySweeper(
		bookingRepo,
		queueRepo,
		nil,
		nil,
		&worker.ExpirySweeperConfig{
			BatchSize:       cfg.Drainer.BatchSize,
			CleanupInterval: cfg.Drainer.CleanupInterval,
			HealthInterval:  cfg.Drainer.HealthInterval,
		},
	)
	if err := sweeper.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start expiry sweeper: %v", err))
	}
	defer sweeper.Stop()

	appLog.Info("Drain worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down drain worker...")
}
