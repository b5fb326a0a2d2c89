package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmtext/booking-engine/internal/client"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/internal/metrics"
	"github.com/mmtext/booking-engine/internal/repository"
	"github.com/mmtext/booking-engine/pkg/logger"
)

// StatusNotifier pushes out-of-band status updates to open streams
type StatusNotifier interface {
	NotifyBookingUpdate(bookingReference string)
}

// QueueDrainerConfig holds configuration for the queue drainer
type QueueDrainerConfig struct {
	// DrainInterval is the time between drain cycles (default: 5 seconds)
	DrainInterval time.Duration
	// BatchSize is the maximum entries admitted per queue per cycle (default: 100)
	BatchSize int
	// PaymentWindow is how long an admitted booking may take to pay (default: 15 minutes)
	PaymentWindow time.Duration
	// ProcessingTTL bounds the per-entry overlap guard marker (default: 30 seconds)
	ProcessingTTL time.Duration
}

// DefaultQueueDrainerConfig returns default configuration
func DefaultQueueDrainerConfig() *QueueDrainerConfig {
	return &QueueDrainerConfig{
		DrainInterval: 5 * time.Second,
		BatchSize:     100,
		PaymentWindow: 15 * time.Minute,
		ProcessingTTL: 30 * time.Second,
	}
}

// QueueDrainer admits queued bookings in fair order, batch by batch
type QueueDrainer struct {
	config        *QueueDrainerConfig
	queueRepo     repository.QueueRepository
	bookingRepo   repository.BookingRepository
	ticketRepo    repository.TicketRepository
	lockRepo      repository.TicketLockRepository
	pendingRepo   repository.PendingBookingRepository
	payment       client.PaymentClient
	notifications client.NotificationPublisher
	notifier      StatusNotifier
	log           *logger.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Stats
	totalAdmitted   int64
	totalCancelled  int64
	lastDrainTime   time.Time
	lastAdmitCount  int
	lastCancelCount int
}

// NewQueueDrainer creates a new queue drainer
func NewQueueDrainer(
	cfg *QueueDrainerConfig,
	queueRepo repository.QueueRepository,
	bookingRepo repository.BookingRepository,
	ticketRepo repository.TicketRepository,
	lockRepo repository.TicketLockRepository,
	pendingRepo repository.PendingBookingRepository,
	payment client.PaymentClient,
	notifications client.NotificationPublisher,
	notifier StatusNotifier,
) *QueueDrainer {
	if cfg == nil {
		cfg = DefaultQueueDrainerConfig()
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = 15 * time.Minute
	}
	if cfg.ProcessingTTL <= 0 {
		cfg.ProcessingTTL = 30 * time.Second
	}
	if notifications == nil {
		notifications = client.NewNoOpNotificationPublisher()
	}

	return &QueueDrainer{
		config:        cfg,
		queueRepo:     queueRepo,
		bookingRepo:   bookingRepo,
		ticketRepo:    ticketRepo,
		lockRepo:      lockRepo,
		pendingRepo:   pendingRepo,
		payment:       payment,
		notifications: notifications,
		notifier:      notifier,
		log:           logger.Get(),
		stopCh:        make(chan struct{}),
	}
}

// Start starts the drain loop
func (w *QueueDrainer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("queue drainer already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info(fmt.Sprintf("Starting queue drainer (interval: %v, batch: %d)",
		w.config.DrainInterval, w.config.BatchSize))

	w.wg.Add(1)
	go w.drainLoop(ctx)

	return nil
}

// Stop stops the drain loop and waits for the current cycle to finish
func (w *QueueDrainer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping queue drainer")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Queue drainer stopped")
}

func (w *QueueDrainer) drainLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.drainAllQueues(ctx)
		}
	}
}

// drainAllQueues runs one cycle over every registered queue. Failures are
// isolated per ticket so one broken queue cannot stall the others.
func (w *QueueDrainer) drainAllQueues(ctx context.Context) {
	started := time.Now()

	ticketIDs, err := w.queueRepo.ActiveTicketIDs(ctx)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to list active queues: %v", err))
		return
	}

	if len(ticketIDs) == 0 {
		return
	}

	admitted := 0
	cancelled := 0
	for _, ticketID := range ticketIDs {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		a, c, err := w.DrainTicketOnce(ctx, ticketID)
		if err != nil {
			w.log.Error(fmt.Sprintf("Failed to drain queue %s: %v", ticketID, err))
			continue
		}
		admitted += a
		cancelled += c

		if a > 0 || c > 0 {
			metrics.RecordDrain(ctx, ticketID, int64(a+c), time.Since(started).Seconds())
		}
	}

	w.mu.Lock()
	w.totalAdmitted += int64(admitted)
	w.totalCancelled += int64(cancelled)
	w.lastDrainTime = started
	w.lastAdmitCount = admitted
	w.lastCancelCount = cancelled
	w.mu.Unlock()

	if admitted > 0 || cancelled > 0 {
		w.log.Info(fmt.Sprintf("Drain cycle finished: %d admitted, %d cancelled across %d queues",
			admitted, cancelled, len(ticketIDs)))
	}
}

// DrainTicketOnce runs one drain pass for a single ticket queue and returns
// how many entries were admitted and cancelled.
func (w *QueueDrainer) DrainTicketOnce(ctx context.Context, ticketID string) (admitted, cancelled int, err error) {
	available, err := w.isTicketAvailable(ctx, ticketID)
	if err != nil {
		return 0, 0, err
	}
	if !available {
		// Sold out, nobody left in this queue can win
		n, err := w.cancelWholeQueue(ctx, ticketID)
		return 0, n, err
	}

	batch, err := w.queueRepo.PopBatch(ctx, ticketID, int64(w.config.BatchSize))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to pop queue batch: %w", err)
	}

	for i, bookingReference := range batch.References {
		if !available {
			w.cancelEntry(ctx, bookingReference, "ticket sold out")
			cancelled++
			continue
		}

		ok := w.admitEntry(ctx, ticketID, bookingReference)
		if ok {
			admitted++
			// One winner locks the ticket, the rest of the batch loses
			var recheckErr error
			available, recheckErr = w.isTicketAvailable(ctx, ticketID)
			if recheckErr != nil {
				// A transient re-check failure must not cancel anyone.
				// Put the rest of the batch back and let a later cycle
				// settle it against a readable ticket.
				w.log.Warn(fmt.Sprintf("Availability re-check failed for %s: %v", ticketID, recheckErr))
				w.requeueEntries(ctx, ticketID, batch.References[i+1:])
				return admitted, cancelled, nil
			}
		}
	}

	if !available {
		n, cancelErr := w.cancelWholeQueue(ctx, ticketID)
		cancelled += n
		if cancelErr != nil {
			w.log.Error(fmt.Sprintf("Failed to cancel remaining queue %s: %v", ticketID, cancelErr))
		}
	}

	return admitted, cancelled, nil
}

// isTicketAvailable checks whether the durable ticket can still be sold.
// The admission lock is deliberately not consulted here: a held lock only
// means this cycle's winner is paying, and the queue keeps waiting.
func (w *QueueDrainer) isTicketAvailable(ctx context.Context, ticketID string) (bool, error) {
	ticket, err := w.ticketRepo.GetByTicketID(ctx, ticketID)
	if err != nil {
		if err == domain.ErrTicketNotFound {
			return false, nil
		}
		return false, err
	}
	return ticket.IsAvailable(), nil
}

// admitEntry moves one queued booking into its payment window. It returns
// true only when the booking now holds the ticket lock.
func (w *QueueDrainer) admitEntry(ctx context.Context, ticketID, bookingReference string) bool {
	processing, err := w.pendingRepo.IsProcessing(ctx, bookingReference)
	if err != nil {
		w.log.Warn(fmt.Sprintf("Processing marker check failed for %s: %v", bookingReference, err))
		return false
	}
	if processing {
		return false
	}

	booking, err := w.bookingRepo.GetByReference(ctx, bookingReference)
	if err != nil {
		if err != domain.ErrBookingNotFound {
			w.log.Warn(fmt.Sprintf("Failed to load booking %s: %v", bookingReference, err))
		}
		return false
	}
	if booking.Status != domain.BookingStatusQueued {
		// Cancelled or already admitted while waiting
		return false
	}

	if err := w.pendingRepo.MarkProcessing(ctx, bookingReference, w.config.ProcessingTTL); err != nil {
		w.log.Warn(fmt.Sprintf("Failed to set processing marker for %s: %v", bookingReference, err))
		return false
	}
	defer func() {
		if err := w.pendingRepo.ClearProcessing(ctx, bookingReference); err != nil {
			w.log.Warn(fmt.Sprintf("Failed to clear processing marker for %s: %v", bookingReference, err))
		}
	}()

	acquired, err := w.lockRepo.Acquire(ctx, ticketID, bookingReference, w.config.PaymentWindow)
	if err != nil {
		w.log.Error(fmt.Sprintf("Lock acquire failed for %s: %v", bookingReference, err))
		return false
	}
	if !acquired {
		w.cancelEntry(ctx, bookingReference, "ticket was taken by another buyer")
		return false
	}

	session, err := w.payment.CreateSession(ctx, bookingReference, booking.Amount, booking.UserID)
	if err != nil {
		w.log.Error(fmt.Sprintf("Payment session failed for %s: %v", bookingReference, err))
		if releaseErr := w.lockRepo.Release(ctx, ticketID); releaseErr != nil {
			w.log.Warn(fmt.Sprintf("Failed to release lock for %s: %v", bookingReference, releaseErr))
		}
		return false
	}

	expiresAt := time.Now().Add(w.config.PaymentWindow)
	pending := &domain.PendingBooking{
		BookingReference: bookingReference,
		UserID:           booking.UserID,
		TicketID:         ticketID,
		ConcurrencyTier:  domain.TierHigh,
		Amount:           booking.Amount,
		PaymentURL:       session.PaymentURL,
		ExpiredAt:        expiresAt,
	}
	if err := w.pendingRepo.Put(ctx, pending, w.config.PaymentWindow); err != nil {
		w.log.Error(fmt.Sprintf("Failed to store pending booking %s: %v", bookingReference, err))
		if releaseErr := w.lockRepo.Release(ctx, ticketID); releaseErr != nil {
			w.log.Warn(fmt.Sprintf("Failed to release lock for %s: %v", bookingReference, releaseErr))
		}
		return false
	}

	if err := w.bookingRepo.MarkPaymentPending(ctx, bookingReference, session.PaymentID, expiresAt); err != nil {
		w.log.Error(fmt.Sprintf("Failed to mark booking %s payment pending: %v", bookingReference, err))
	}

	if w.notifier != nil {
		w.notifier.NotifyBookingUpdate(bookingReference)
	}
	w.sendNotification(func(ctx context.Context) error {
		return w.notifications.SendPaymentLink(ctx, &domain.NotificationEvent{
			UserID:           booking.UserID,
			BookingReference: bookingReference,
			TicketID:         ticketID,
			PaymentURL:       session.PaymentURL,
			Message:          "It is your turn, complete your payment to confirm the booking",
		})
	})

	return true
}

// cancelEntry flips one queued booking to CANCELLED and notifies its owner
func (w *QueueDrainer) cancelEntry(ctx context.Context, bookingReference, reason string) {
	booking, err := w.bookingRepo.GetByReference(ctx, bookingReference)
	if err != nil {
		if err != domain.ErrBookingNotFound {
			w.log.Warn(fmt.Sprintf("Failed to load booking %s for cancellation: %v", bookingReference, err))
		}
		return
	}
	if booking.Status.IsTerminal() {
		return
	}

	if err := w.bookingRepo.Cancel(ctx, bookingReference); err != nil {
		w.log.Error(fmt.Sprintf("Failed to cancel booking %s: %v", bookingReference, err))
		return
	}

	metrics.RecordFailure(ctx, "queue_cancelled")

	if w.notifier != nil {
		w.notifier.NotifyBookingUpdate(bookingReference)
	}
	w.sendNotification(func(ctx context.Context) error {
		return w.notifications.SendFailure(ctx, &domain.NotificationEvent{
			UserID:           booking.UserID,
			BookingReference: bookingReference,
			TicketID:         booking.TicketID,
			Message:          reason,
		})
	})
}

// requeueEntries puts popped entries back on the queue after a cycle aborts
// mid-batch. They rejoin at the tail; losing position beats losing the booking.
func (w *QueueDrainer) requeueEntries(ctx context.Context, ticketID string, references []string) {
	for _, bookingReference := range references {
		if _, err := w.queueRepo.Enqueue(ctx, ticketID, bookingReference); err != nil {
			w.log.Error(fmt.Sprintf("Failed to requeue booking %s: %v", bookingReference, err))
		}
	}
}

// cancelWholeQueue drains and cancels every remaining entry for a ticket
func (w *QueueDrainer) cancelWholeQueue(ctx context.Context, ticketID string) (int, error) {
	cancelled := 0
	for {
		batch, err := w.queueRepo.PopBatch(ctx, ticketID, int64(w.config.BatchSize))
		if err != nil {
			return cancelled, fmt.Errorf("failed to pop queue batch: %w", err)
		}
		if len(batch.References) == 0 {
			return cancelled, nil
		}
		for _, bookingReference := range batch.References {
			w.cancelEntry(ctx, bookingReference, "ticket sold out")
			cancelled++
		}
		if batch.Remaining == 0 {
			return cancelled, nil
		}
	}
}

func (w *QueueDrainer) sendNotification(send func(ctx context.Context) error) {
	notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := send(notifyCtx); err != nil {
		w.log.Warn(fmt.Sprintf("Failed to send notification: %v", err))
	}
}

// GetStats returns drainer statistics
func (w *QueueDrainer) GetStats() *QueueDrainerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &QueueDrainerStats{
		IsRunning:       w.running,
		TotalAdmitted:   w.totalAdmitted,
		TotalCancelled:  w.totalCancelled,
		LastDrainTime:   w.lastDrainTime,
		LastAdmitCount:  w.lastAdmitCount,
		LastCancelCount: w.lastCancelCount,
	}
}

// QueueDrainerStats contains drainer statistics
type QueueDrainerStats struct {
	IsRunning       bool      `json:"is_running"`
	TotalAdmitted   int64     `json:"total_admitted"`
	TotalCancelled  int64     `json:"total_cancelled"`
	LastDrainTime   time.Time `json:"last_drain_time"`
	LastAdmitCount  int       `json:"last_admit_count"`
	LastCancelCount int       `json:"last_cancel_count"`
}
