package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Import pprof for profiling
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmtext/booking-engine/internal/client"
	"github.com/mmtext/booking-engine/internal/handler"
	"github.com/mmtext/booking-engine/internal/metrics"
	"github.com/mmtext/booking-engine/internal/notifier"
	"github.com/mmtext/booking-engine/internal/repository"
	"github.com/mmtext/booking-engine/internal/service"
	"github.com/mmtext/booking-engine/internal/worker"
	"github.com/mmtext/booking-engine/pkg/config"
	"github.com/mmtext/booking-engine/pkg/database"
	"github.com/mmtext/booking-engine/pkg/logger"
	"github.com/mmtext/booking-engine/pkg/middleware"
	pkgredis "github.com/mmtext/booking-engine/pkg/redis"
	"github.com/mmtext/booking-engine/pkg/telemetry"
	"github.com/mmtext/booking-engine/pkg/workerpool"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       "info",
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}
	if cfg.App.Debug {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting booking engine...")

	ctx := context.Background()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry init failed, traces disabled: %v", err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = telemetry.Shutdown(shutdownCtx)
		}()
	}

	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics init failed: %v", err))
	}

	// Initialize database connection
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
		EnableTracing:   cfg.OTel.Enabled,
		ServiceName:     cfg.OTel.ServiceName,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns))

	// Initialize Redis connection
	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		PoolTimeout:   4 * time.Second,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer redisClient.Close()
	appLog.Info(fmt.Sprintf("Redis connected (pool: %d, minIdle: %d)", cfg.Redis.PoolSize, cfg.Redis.MinIdleConns))

	// Initialize Kafka notification publisher
	var notifications client.NotificationPublisher
	notifications, err = client.NewKafkaNotificationPublisher(ctx, &client.NotificationPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.NotificationTopic,
		ServiceName: cfg.App.Name,
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		notifications = client.NewNoOpNotificationPublisher()
	} else {
		appLog.Info("Kafka notification publisher connected")
	}
	defer notifications.Close()

	// Initialize repositories
	bookingRepo := repository.NewPostgresBookingRepository(db.Pool())
	ticketRepo := repository.NewPostgresTicketRepository(db.Pool())
	lockRepo := repository.NewRedisTicketLockRepository(redisClient)
	queueRepo := repository.NewRedisQueueRepository(redisClient)
	pendingRepo := repository.NewRedisPendingBookingRepository(redisClient)

	// Pre-load Lua scripts into Redis
	if err := lockRepo.LoadScripts(ctx); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to pre-load lock scripts: %v", err))
	}
	if err := queueRepo.LoadScripts(ctx); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to pre-load queue scripts: %v", err))
	} else {
		appLog.Info("Lua scripts pre-loaded into Redis")
	}

	// Worker pools keep webhook handling and notification sends off the
	// request path
	confirmPool := workerpool.New(cfg.Pools.ConfirmationWorkers, cfg.Pools.ConfirmationQueueSize)
	confirmPool.Start()
	defer confirmPool.Stop()

	notifyPool := workerpool.New(cfg.Pools.NotificationWorkers, cfg.Pools.NotificationQueueSize)
	notifyPool.Start()
	defer notifyPool.Stop()

	// External collaborators. An empty supplier URL selects the in-memory
	// stub for local development.
	var supplier client.SupplierClient
	if cfg.Clients.SupplierURL == "" {
		appLog.Warn("No supplier URL configured, using stub supplier")
		supplier = client.NewStubSupplierClient()
	} else {
		supplier = client.NewHTTPSupplierClient(cfg.Clients.SupplierURL, cfg.Clients.RequestTimeout)
	}

	var payment client.PaymentClient
	if cfg.Clients.PaymentURL == "" {
		appLog.Warn("No payment URL configured, using stub payment client")
		payment = client.NewStubPaymentClient("http://localhost:8080")
	} else {
		payment = client.NewHTTPPaymentClient(cfg.Clients.PaymentURL, cfg.Clients.RequestTimeout)
	}

	rateLimiter := service.NewRateLimiter(cfg.Booking.RateLimitMax, cfg.Booking.RateLimitWindow)

	// The booking service pushes updates through the notifier, and the
	// notifier reads statuses back from the booking service. The relay
	// breaks the construction cycle.
	relay := &notifierRelay{}
	bookingService := service.NewBookingService(
		bookingRepo,
		ticketRepo,
		lockRepo,
		queueRepo,
		pendingRepo,
		supplier,
		payment,
		notifications,
		relay,
		confirmPool,
		notifyPool,
		&service.BookingServiceConfig{
			PaymentWindow:  cfg.Booking.PaymentWindow,
			QueueEntryTTL:  cfg.Booking.QueueEntryTTL,
			DrainInterval:  cfg.Drainer.Interval,
			DrainBatchSize: cfg.Drainer.BatchSize,
		},
	)
	availabilityService := service.NewAvailabilityService(ticketRepo, lockRepo)

	statusNotifier := notifier.New(bookingService, &notifier.Config{
		InitialDelayJitter: cfg.Stream.InitialDelayJitter,
		UpdateInterval:     cfg.Stream.UpdateInterval,
		UpdateJitter:       cfg.Stream.UpdateJitter,
		MaxConnectionAge:   cfg.Stream.MaxConnectionAge,
	})
	relay.notifier = statusNotifier
	defer statusNotifier.Shutdown()

	// Background workers
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
		statusNotifier,
	)
	if err := drainer.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start queue drainer: %v", err))
	}
	defer drainer.Stop()

	sweeper := worker.NewExpirySweeper(
		bookingRepo,
		queueRepo,
		rateLimiter,
		statusNotifier,
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

	// Handlers
	bookingHandler := handler.NewBookingHandler(bookingService, rateLimiter, statusNotifier)
	ticketHandler := handler.NewTicketHandler(ticketRepo, availabilityService)
	healthHandler := handler.NewHealthHandler(queueRepo, statusNotifier, drainer, sweeper)

	// Setup Gin
	gin.SetMode(gin.ReleaseMode)
	gin.DisableConsoleColor()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))

	// Liveness and readiness
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "database"})
			return
		}
		if err := redisClient.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "redis"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": cfg.App.Name,
			})
		})

		bookings := v1.Group("/bookings")
		bookings.Use(userIDMiddleware())

		// Create and cancel are retried by browsers on flaky networks.
		// The payment webhook is excluded: providers do not send the
		// key header, and settlement has its own idempotency fence.
		idempotency := middleware.IdempotencyMiddleware(middleware.DefaultIdempotencyConfig(redisClient.Client()))
		{
			bookings.POST("", idempotency, bookingHandler.CreateBooking)
			bookings.POST("/cancel", idempotency, bookingHandler.CancelBooking)
			bookings.POST("/webhook/payment", bookingHandler.PaymentWebhook)
			bookings.GET("/health", healthHandler.GetHealth)
			bookings.GET("/:reference", bookingHandler.GetBooking)
			bookings.GET("/:reference/stream", bookingHandler.StreamStatus)
		}

		v1.GET("/events/:event_id/tickets", ticketHandler.ListAvailableTickets)
		v1.GET("/tickets/:ticket_id", ticketHandler.GetTicket)

		admin := v1.Group("/admin")
		{
			admin.POST("/tickets", ticketHandler.CreateTicket)
			admin.POST("/tickets/batch", ticketHandler.CreateTicketBatch)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		// Status streams stay open for minutes, so the server-wide write
		// timeout must not apply
		WriteTimeout:      0,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start pprof server on separate port for profiling
	go func() {
		pprofAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1000)
		appLog.Info(fmt.Sprintf("pprof server listening on %s", pprofAddr))
		if err := http.ListenAndServe(pprofAddr, nil); err != nil {
			appLog.Error(fmt.Sprintf("pprof server error: %v", err))
		}
	}()

	go func() {
		appLog.Info(fmt.Sprintf("Booking engine listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}

// notifierRelay forwards status pushes once the notifier exists
type notifierRelay struct {
	notifier *notifier.Notifier
}

func (r *notifierRelay) NotifyBookingUpdate(bookingReference string) {
	if r.notifier != nil {
		r.notifier.NotifyBookingUpdate(bookingReference)
	}
}

// userIDMiddleware extracts user_id from X-User-ID header. Upstream
// gateway authentication is assumed.
func userIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}
}
