package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmtext/booking-engine/internal/metrics"
	"github.com/mmtext/booking-engine/internal/repository"
	"github.com/mmtext/booking-engine/pkg/logger"
)

// RateLimiterJanitor prunes expired rate limit windows
type RateLimiterJanitor interface {
	Cleanup()
	ActiveWindows() int
}

// ConnectionCounter reports open status stream connections
type ConnectionCounter interface {
	ActiveConnections() int
}

// ExpirySweeperConfig contains configuration for the expiry sweeper
type ExpirySweeperConfig struct {
	// ScanInterval is the interval between expiry scans (default: 1 minute)
	ScanInterval time.Duration
	// BatchSize is the number of rows expired per scan (default: 100)
	BatchSize int
	// CleanupInterval is the interval between rate limiter sweeps (default: 5 minutes)
	CleanupInterval time.Duration
	// HealthInterval is the interval between queue health reports (default: 30 seconds)
	HealthInterval time.Duration
}

// DefaultExpirySweeperConfig returns default configuration
func DefaultExpirySweeperConfig() *ExpirySweeperConfig {
	return &ExpirySweeperConfig{
		ScanInterval:    time.Minute,
		BatchSize:       100,
		CleanupInterval: 5 * time.Minute,
		HealthInterval:  30 * time.Second,
	}
}

// ExpirySweeper cancels overdue bookings so durable state cannot diverge
// from the TTL-expired ephemeral state. It also hosts the rate limiter
// cleanup and the periodic queue health report.
type ExpirySweeper struct {
	bookingRepo repository.BookingRepository
	queueRepo   repository.QueueRepository
	rateLimiter RateLimiterJanitor
	connections ConnectionCounter
	config      *ExpirySweeperConfig
	log         *logger.Logger
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool

	// Stats
	totalExpired     int64
	lastScanTime     time.Time
	lastExpiredCount int64
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(
	bookingRepo repository.BookingRepository,
	queueRepo repository.QueueRepository,
	rateLimiter RateLimiterJanitor,
	connections ConnectionCounter,
	config *ExpirySweeperConfig,
) *ExpirySweeper {
	if config == nil {
		config = DefaultExpirySweeperConfig()
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.HealthInterval <= 0 {
		config.HealthInterval = 30 * time.Second
	}

	return &ExpirySweeper{
		bookingRepo: bookingRepo,
		queueRepo:   queueRepo,
		rateLimiter: rateLimiter,
		connections: connections,
		config:      config,
		log:         logger.Get(),
		stopCh:      make(chan struct{}),
	}
}

// Start starts the sweeper goroutines
func (w *ExpirySweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry sweeper already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting expiry sweeper")

	w.wg.Add(3)
	go w.expiryLoop(ctx)
	go w.cleanupLoop(ctx)
	go w.healthLoop(ctx)

	return nil
}

// Stop stops the sweeper and waits for in-flight sweeps to finish
func (w *ExpirySweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping expiry sweeper")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Expiry sweeper stopped")
}

func (w *ExpirySweeper) expiryLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.SweepExpiredOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.SweepExpiredOnce(ctx)
		}
	}
}

// SweepExpiredOnce cancels one batch of overdue bookings and returns how
// many rows were flipped.
func (w *ExpirySweeper) SweepExpiredOnce(ctx context.Context) int64 {
	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.mu.Unlock()

	expired, err := w.bookingRepo.ExpireOverdue(ctx, time.Now(), w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to expire overdue bookings: %v", err))
		return 0
	}

	w.mu.Lock()
	w.totalExpired += expired
	w.lastExpiredCount = expired
	w.mu.Unlock()

	if expired > 0 {
		metrics.RecordExpiration(ctx, expired)
		w.log.Info(fmt.Sprintf("Expired %d overdue bookings", expired))
	}

	return expired
}

func (w *ExpirySweeper) cleanupLoop(ctx context.Context) {
	defer w.wg.Done()

	if w.rateLimiter == nil {
		return
	}

	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.rateLimiter.Cleanup()
			w.log.Debug(fmt.Sprintf("Rate limiter cleanup done, %d windows tracked",
				w.rateLimiter.ActiveWindows()))
		}
	}
}

func (w *ExpirySweeper) healthLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.reportQueueHealth(ctx)
		}
	}
}

// reportQueueHealth logs aggregate queue depth and connection counts.
// Failures here are observability-only and never stop the loop.
func (w *ExpirySweeper) reportQueueHealth(ctx context.Context) {
	ticketIDs, err := w.queueRepo.ActiveTicketIDs(ctx)
	if err != nil {
		w.log.Warn(fmt.Sprintf("Health report: failed to list active queues: %v", err))
		return
	}

	var total int64
	for _, ticketID := range ticketIDs {
		size, err := w.queueRepo.Size(ctx, ticketID)
		if err != nil {
			w.log.Warn(fmt.Sprintf("Health report: failed to size queue %s: %v", ticketID, err))
			continue
		}
		total += size
	}

	connections := 0
	if w.connections != nil {
		connections = w.connections.ActiveConnections()
	}

	w.log.Info(fmt.Sprintf("Queue health: %d active queues, %d waiting, %d open streams",
		len(ticketIDs), total, connections))
}

// GetStats returns sweeper statistics
func (w *ExpirySweeper) GetStats() *ExpirySweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpirySweeperStats{
		IsRunning:        w.running,
		TotalExpired:     w.totalExpired,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastExpiredCount,
	}
}

// ExpirySweeperStats contains sweeper statistics
type ExpirySweeperStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int64     `json:"last_expired_count"`
}
