package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mmtext/booking-engine/internal/client"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/internal/dto"
	"github.com/mmtext/booking-engine/internal/metrics"
	"github.com/mmtext/booking-engine/internal/repository"
	"github.com/mmtext/booking-engine/pkg/logger"
	"github.com/mmtext/booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// StatusNotifier pushes out-of-band status updates to open streams
type StatusNotifier interface {
	NotifyBookingUpdate(bookingReference string)
}

// TaskPool dispatches background jobs
type TaskPool interface {
	Submit(job func())
}

// BookingService defines the interface for booking admission and lifecycle
type BookingService interface {
	// CreateBooking admits a booking request according to its ticket's
	// concurrency tier
	CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error)

	// GetBookingDetails returns the current status of a booking
	GetBookingDetails(ctx context.Context, bookingReference string) (*dto.BookingResponse, error)

	// HandlePaymentWebhook accepts a payment settlement event and resolves
	// it asynchronously
	HandlePaymentWebhook(ctx context.Context, req *dto.PaymentWebhookRequest) error

	// CancelBooking cancels a booking on behalf of its owner
	CancelBooking(ctx context.Context, bookingReference, userID string) (*dto.CancelBookingResponse, error)
}

// bookingService implements BookingService
type bookingService struct {
	bookingRepo   repository.BookingRepository
	ticketRepo    repository.TicketRepository
	lockRepo      repository.TicketLockRepository
	queueRepo     repository.QueueRepository
	pendingRepo   repository.PendingBookingRepository
	supplier      client.SupplierClient
	payment       client.PaymentClient
	notifications client.NotificationPublisher
	notifier      StatusNotifier
	confirmPool   TaskPool
	notifyPool    TaskPool

	paymentWindow  time.Duration
	queueEntryTTL  time.Duration
	drainInterval  time.Duration
	drainBatchSize int
}

// BookingServiceConfig contains configuration for the booking service
type BookingServiceConfig struct {
	PaymentWindow  time.Duration
	QueueEntryTTL  time.Duration
	DrainInterval  time.Duration
	DrainBatchSize int
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookingRepo repository.BookingRepository,
	ticketRepo repository.TicketRepository,
	lockRepo repository.TicketLockRepository,
	queueRepo repository.QueueRepository,
	pendingRepo repository.PendingBookingRepository,
	supplier client.SupplierClient,
	payment client.PaymentClient,
	notifications client.NotificationPublisher,
	notifier StatusNotifier,
	confirmPool TaskPool,
	notifyPool TaskPool,
	cfg *BookingServiceConfig,
) BookingService {
	paymentWindow := 15 * time.Minute
	queueEntryTTL := time.Hour
	drainInterval := 5 * time.Second
	drainBatchSize := 100
	if cfg != nil {
		if cfg.PaymentWindow > 0 {
			paymentWindow = cfg.PaymentWindow
		}
		if cfg.QueueEntryTTL > 0 {
			queueEntryTTL = cfg.QueueEntryTTL
		}
		if cfg.DrainInterval > 0 {
			drainInterval = cfg.DrainInterval
		}
		if cfg.DrainBatchSize > 0 {
			drainBatchSize = cfg.DrainBatchSize
		}
	}
	if notifications == nil {
		notifications = client.NewNoOpNotificationPublisher()
	}
	return &bookingService{
		bookingRepo:    bookingRepo,
		ticketRepo:     ticketRepo,
		lockRepo:       lockRepo,
		queueRepo:      queueRepo,
		pendingRepo:    pendingRepo,
		supplier:       supplier,
		payment:        payment,
		notifications:  notifications,
		notifier:       notifier,
		confirmPool:    confirmPool,
		notifyPool:     notifyPool,
		paymentWindow:  paymentWindow,
		queueEntryTTL:  queueEntryTTL,
		drainInterval:  drainInterval,
		drainBatchSize: drainBatchSize,
	}
}

// CreateBooking admits a booking request according to its ticket's
// concurrency tier
func (s *bookingService) CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || req.TicketID == "" {
		span.SetStatus(codes.Error, "invalid ticket_id")
		return nil, domain.ErrInvalidTicketID
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("ticket_id", req.TicketID),
	)

	ticket, err := s.ticketRepo.GetByTicketID(ctx, req.TicketID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("concurrency_tier", string(ticket.ConcurrencyTier)))

	if !ticket.IsAvailable() {
		span.SetStatus(codes.Ok, "")
		return cancelledResponse("", "ticket is no longer available"), nil
	}

	// A held admission lock means another buyer is inside their payment
	// window. Rejecting here keeps LOW tier from a wasted supplier round
	// trip and HIGH tier from queueing a request that cannot win.
	held, err := s.lockRepo.IsHeld(ctx, ticket.TicketID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if held {
		span.SetStatus(codes.Ok, "")
		return cancelledResponse("", "another buyer is completing payment for this ticket"), nil
	}

	bookingReference := domain.NewBookingReference()
	span.SetAttributes(attribute.String("booking_reference", bookingReference))

	var resp *dto.CreateBookingResponse
	switch ticket.ConcurrencyTier {
	case domain.TierLow:
		resp, err = s.createLowTier(ctx, userID, ticket, bookingReference)
	case domain.TierMedium:
		resp, err = s.createMediumTier(ctx, userID, ticket, bookingReference)
	case domain.TierHigh:
		resp, err = s.createHighTier(ctx, userID, ticket, bookingReference)
	default:
		err = domain.ErrInvalidConcurrencyTier
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("booking_status", resp.Status))
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// createLowTier reserves real inventory with the supplier before admitting
func (s *bookingService) createLowTier(ctx context.Context, userID string, ticket *domain.Ticket, bookingReference string) (*dto.CreateBookingResponse, error) {
	reservation, err := s.supplier.Reserve(ctx, ticket.TicketID, userID)
	if err != nil {
		logger.Get().Warn("Supplier reservation failed",
			zap.String("ticket_id", ticket.TicketID),
			zap.Error(err))
		return cancelledResponse(bookingReference, "supplier could not reserve the ticket"), nil
	}
	if !reservation.Available {
		return cancelledResponse(bookingReference, "ticket is sold out at the supplier"), nil
	}

	expiresAt := reservation.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(s.paymentWindow)
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = s.paymentWindow
		expiresAt = time.Now().Add(ttl)
	}

	acquired, err := s.lockRepo.Acquire(ctx, ticket.TicketID, bookingReference, ttl)
	if err != nil {
		s.cancelSupplierReservation(ctx, reservation.ReservationID)
		return nil, err
	}
	if !acquired {
		// Lost the race, give the hold back to the supplier
		s.cancelSupplierReservation(ctx, reservation.ReservationID)
		return cancelledResponse(bookingReference, "ticket was taken by another buyer"), nil
	}

	return s.admitToPayment(ctx, userID, ticket, bookingReference, reservation.ReservationID, expiresAt, ttl)
}

// createMediumTier admits with a fixed payment window and no supplier hold
func (s *bookingService) createMediumTier(ctx context.Context, userID string, ticket *domain.Ticket, bookingReference string) (*dto.CreateBookingResponse, error) {
	expiresAt := time.Now().Add(s.paymentWindow)

	acquired, err := s.lockRepo.Acquire(ctx, ticket.TicketID, bookingReference, s.paymentWindow)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return cancelledResponse(bookingReference, "ticket was taken by another buyer"), nil
	}

	return s.admitToPayment(ctx, userID, ticket, bookingReference, "", expiresAt, s.paymentWindow)
}

// admitToPayment runs the shared lock-held admission tail: payment session,
// pending record, payment link notification
func (s *bookingService) admitToPayment(ctx context.Context, userID string, ticket *domain.Ticket, bookingReference, supplierReservationID string, expiresAt time.Time, ttl time.Duration) (*dto.CreateBookingResponse, error) {
	session, err := s.payment.CreateSession(ctx, bookingReference, ticket.Price, userID)
	if err != nil {
		s.rollbackAdmission(ctx, ticket.TicketID, supplierReservationID)
		return nil, err
	}

	pending := &domain.PendingBooking{
		BookingReference:      bookingReference,
		UserID:                userID,
		TicketID:              ticket.TicketID,
		EventID:               ticket.EventID,
		ConcurrencyTier:       ticket.ConcurrencyTier,
		Amount:                ticket.Price,
		SupplierReservationID: supplierReservationID,
		PaymentURL:            session.PaymentURL,
		ExpiredAt:             expiresAt,
	}
	if err := s.pendingRepo.Put(ctx, pending, ttl); err != nil {
		s.rollbackAdmission(ctx, ticket.TicketID, supplierReservationID)
		return nil, err
	}

	s.sendNotification(func(ctx context.Context) error {
		return s.notifications.SendPaymentLink(ctx, &domain.NotificationEvent{
			UserID:           userID,
			BookingReference: bookingReference,
			TicketID:         ticket.TicketID,
			PaymentURL:       session.PaymentURL,
			Message:          "Complete your payment to confirm the booking",
		})
	})

	metrics.RecordAdmission(ctx, string(ticket.ConcurrencyTier))

	return &dto.CreateBookingResponse{
		BookingReference: bookingReference,
		Status:           string(domain.BookingStatusPaymentPending),
		PaymentURL:       session.PaymentURL,
		ExpiresAt:        &expiresAt,
	}, nil
}

// createHighTier defers admission entirely to the queue drainer
func (s *bookingService) createHighTier(ctx context.Context, userID string, ticket *domain.Ticket, bookingReference string) (*dto.CreateBookingResponse, error) {
	expiresAt := time.Now().Add(s.queueEntryTTL)
	booking := &domain.Booking{
		BookingReference: bookingReference,
		UserID:           userID,
		TicketID:         ticket.TicketID,
		ConcurrencyTier:  domain.TierHigh,
		Status:           domain.BookingStatusQueued,
		Amount:           ticket.Price,
		ExpiresAt:        &expiresAt,
	}
	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		return nil, err
	}

	result, err := s.queueRepo.Enqueue(ctx, ticket.TicketID, bookingReference)
	if err != nil {
		// Fail closed: a row without a queue entry would never drain
		if cancelErr := s.bookingRepo.Cancel(ctx, bookingReference); cancelErr != nil {
			logger.Get().Error("Failed to cancel booking after enqueue failure",
				zap.String("booking_reference", bookingReference),
				zap.Error(cancelErr))
		}
		return nil, err
	}

	metrics.RecordQueued(ctx, ticket.TicketID)

	return &dto.CreateBookingResponse{
		BookingReference: bookingReference,
		Status:           string(domain.BookingStatusQueued),
		QueuePosition:    result.Position,
		EstimatedWait:    s.estimateWaitSeconds(result.Position),
		ExpiresAt:        &expiresAt,
		Message:          "You are in the queue, keep this page open",
	}, nil
}

// estimateWaitSeconds projects queue wait from the drainer's configured
// batch size and interval
func (s *bookingService) estimateWaitSeconds(position int64) int64 {
	if position <= 0 {
		return 0
	}
	batch := int64(s.drainBatchSize)
	cycles := (position + batch - 1) / batch
	return cycles * int64(s.drainInterval/time.Second)
}

// GetBookingDetails returns the current status of a booking
func (s *bookingService) GetBookingDetails(ctx context.Context, bookingReference string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get_details")
	defer span.End()

	if bookingReference == "" {
		span.SetStatus(codes.Error, "invalid booking_reference")
		return nil, domain.ErrInvalidBookingReference
	}

	span.SetAttributes(attribute.String("booking_reference", bookingReference))

	pending, err := s.pendingRepo.Get(ctx, bookingReference)
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return dto.FromPending(pending), nil
	}
	if err != domain.ErrBookingNotFound {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	booking, err := s.bookingRepo.GetByReference(ctx, bookingReference)
	if err != nil {
		if err != domain.ErrBookingNotFound {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	resp := dto.FromDomain(booking)
	if booking.Status == domain.BookingStatusQueued {
		position, err := s.queueRepo.Position(ctx, booking.TicketID, bookingReference)
		if err == nil && position > 0 {
			resp.QueuePosition = position
			resp.EstimatedWait = s.estimateWaitSeconds(position)
		}
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// HandlePaymentWebhook accepts a payment settlement event and resolves it
// asynchronously. The caller always gets nil once the event parsed; all
// processing failures are logged, never propagated.
func (s *bookingService) HandlePaymentWebhook(ctx context.Context, req *dto.PaymentWebhookRequest) error {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.payment_webhook")
	defer span.End()

	if req == nil || req.BookingReference == "" {
		span.SetStatus(codes.Error, "invalid booking_reference")
		return domain.ErrInvalidBookingReference
	}

	span.SetAttributes(
		attribute.String("booking_reference", req.BookingReference),
		attribute.String("payment_status", req.Status),
	)

	metrics.RecordWebhook(ctx, req.Status)

	bookingReference := req.BookingReference
	paymentID := req.PaymentID
	success := req.IsSuccess()

	s.confirmPool.Submit(func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if success {
			s.confirmBooking(jobCtx, bookingReference, paymentID)
		} else {
			s.cleanupFailedPayment(jobCtx, bookingReference)
		}
	})

	span.SetStatus(codes.Ok, "")
	return nil
}

// confirmBooking finalizes a paid booking. The pending record's absence is
// the idempotency fence: a replayed webhook finds nothing and stops.
func (s *bookingService) confirmBooking(ctx context.Context, bookingReference, paymentID string) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.confirm")
	defer span.End()

	span.SetAttributes(attribute.String("booking_reference", bookingReference))

	log := logger.Get().With(zap.String("booking_reference", bookingReference))

	pending, err := s.pendingRepo.Get(ctx, bookingReference)
	if err == domain.ErrBookingNotFound {
		span.SetStatus(codes.Ok, "already processed")
		return
	}
	if err != nil {
		log.Error("Failed to load pending booking for confirmation", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	holder, err := s.lockRepo.Holder(ctx, pending.TicketID)
	if err != nil {
		log.Error("Failed to check lock holder", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if holder == "" {
		// The lock lapsed before settlement. The buyer still paid inside
		// the provider's window, so the booking confirms anyway; this is
		// the one path around the lock-ownership fence.
		log.Warn("Confirming booking whose admission lock already expired")
	} else if holder != bookingReference {
		// Another booking holds the ticket, do not double-book
		log.Warn("Lock held by another booking at confirmation time",
			zap.String("holder", holder))
		span.SetStatus(codes.Error, "lock holder mismatch")
		return
	}

	now := time.Now()
	if err := s.ticketRepo.MarkBooked(ctx, pending.TicketID, pending.UserID, bookingReference, now); err != nil {
		if err == domain.ErrTicketUnavailable {
			// Replay after a partial failure left the ticket BOOKED
			log.Warn("Ticket already booked, completing cleanup")
		} else {
			log.Error("Failed to mark ticket booked", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
	}

	booking := &domain.Booking{
		BookingReference:      bookingReference,
		UserID:                pending.UserID,
		TicketID:              pending.TicketID,
		ConcurrencyTier:       pending.ConcurrencyTier,
		Status:                domain.BookingStatusConfirmed,
		Amount:                pending.Amount,
		SupplierReservationID: pending.SupplierReservationID,
		PaymentID:             paymentID,
		PaidAt:                &now,
	}
	if err := s.bookingRepo.Confirm(ctx, booking); err != nil {
		log.Error("Failed to persist confirmed booking", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	if err := s.pendingRepo.Delete(ctx, bookingReference); err != nil {
		log.Warn("Failed to delete pending booking", zap.Error(err))
	}
	if err := s.lockRepo.Release(ctx, pending.TicketID); err != nil {
		log.Warn("Failed to release ticket lock", zap.Error(err))
	}
	if err := s.pendingRepo.ClearProcessing(ctx, bookingReference); err != nil {
		log.Warn("Failed to clear processing marker", zap.Error(err))
	}

	if pending.ConcurrencyTier == domain.TierLow && pending.SupplierReservationID != "" {
		if _, err := s.supplier.Confirm(ctx, pending.SupplierReservationID, paymentID); err != nil {
			log.Warn("Failed to confirm supplier reservation", zap.Error(err))
		}
	}

	s.sendNotification(func(ctx context.Context) error {
		return s.notifications.SendConfirmation(ctx, &domain.NotificationEvent{
			UserID:           pending.UserID,
			BookingReference: bookingReference,
			TicketID:         pending.TicketID,
			Message:          "Your booking is confirmed",
		})
	})
	if s.notifier != nil {
		s.notifier.NotifyBookingUpdate(bookingReference)
	}

	metrics.RecordConfirmation(ctx, string(pending.ConcurrencyTier))
	span.SetStatus(codes.Ok, "")
}

// cleanupFailedPayment unwinds a failed or expired payment. Like
// confirmation it is a no-op when the pending record is gone.
func (s *bookingService) cleanupFailedPayment(ctx context.Context, bookingReference string) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.payment_cleanup")
	defer span.End()

	span.SetAttributes(attribute.String("booking_reference", bookingReference))

	log := logger.Get().With(zap.String("booking_reference", bookingReference))

	pending, err := s.pendingRepo.Get(ctx, bookingReference)
	if err == domain.ErrBookingNotFound {
		span.SetStatus(codes.Ok, "already processed")
		return
	}
	if err != nil {
		log.Error("Failed to load pending booking for cleanup", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	if err := s.lockRepo.Release(ctx, pending.TicketID); err != nil {
		log.Warn("Failed to release ticket lock", zap.Error(err))
	}
	if pending.ConcurrencyTier == domain.TierLow && pending.SupplierReservationID != "" {
		s.cancelSupplierReservation(ctx, pending.SupplierReservationID)
	}
	if err := s.pendingRepo.Delete(ctx, bookingReference); err != nil {
		log.Warn("Failed to delete pending booking", zap.Error(err))
	}
	if err := s.pendingRepo.ClearProcessing(ctx, bookingReference); err != nil {
		log.Warn("Failed to clear processing marker", zap.Error(err))
	}

	// High tier bookings have a durable PAYMENT_PENDING row to flip
	if pending.ConcurrencyTier == domain.TierHigh {
		if err := s.bookingRepo.Cancel(ctx, bookingReference); err != nil && err != domain.ErrBookingNotFound {
			log.Warn("Failed to cancel durable booking", zap.Error(err))
		}
	}

	s.sendNotification(func(ctx context.Context) error {
		return s.notifications.SendFailure(ctx, &domain.NotificationEvent{
			UserID:           pending.UserID,
			BookingReference: bookingReference,
			TicketID:         pending.TicketID,
			Message:          "Your payment did not complete and the booking was released",
		})
	})
	if s.notifier != nil {
		s.notifier.NotifyBookingUpdate(bookingReference)
	}

	metrics.RecordFailure(ctx, "payment_failed")
	span.SetStatus(codes.Ok, "")
}

// CancelBooking cancels a booking on behalf of its owner
func (s *bookingService) CancelBooking(ctx context.Context, bookingReference, userID string) (*dto.CancelBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	if bookingReference == "" {
		span.SetStatus(codes.Error, "invalid booking_reference")
		return nil, domain.ErrInvalidBookingReference
	}
	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	span.SetAttributes(
		attribute.String("booking_reference", bookingReference),
		attribute.String("user_id", userID),
	)

	pending, err := s.pendingRepo.Get(ctx, bookingReference)
	if err == nil {
		if pending.UserID != userID {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		resp, err := s.cancelPendingPayment(ctx, pending)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetStatus(codes.Ok, "")
		return resp, nil
	}
	if err != domain.ErrBookingNotFound {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	booking, err := s.bookingRepo.GetByReferenceAndUser(ctx, bookingReference, userID)
	if err != nil {
		if err != domain.ErrBookingNotFound {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	var resp *dto.CancelBookingResponse
	switch booking.Status {
	case domain.BookingStatusConfirmed:
		resp, err = s.cancelConfirmed(ctx, booking)
	case domain.BookingStatusQueued:
		resp, err = s.cancelQueued(ctx, booking)
	case domain.BookingStatusCancelled:
		resp = &dto.CancelBookingResponse{
			BookingReference: bookingReference,
			Status:           string(domain.BookingStatusCancelled),
			Message:          "booking is already cancelled",
		}
	default:
		// PAYMENT_PENDING row without a pending record: the window
		// expired, just flip the durable state
		if cancelErr := s.bookingRepo.Cancel(ctx, bookingReference); cancelErr != nil && cancelErr != domain.ErrBookingNotFound {
			err = cancelErr
		} else {
			resp = &dto.CancelBookingResponse{
				BookingReference: bookingReference,
				Status:           string(domain.BookingStatusCancelled),
				Message:          "booking cancelled",
			}
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordCancellation(ctx, "user_request")
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// cancelPendingPayment unwinds a booking still inside its payment window
func (s *bookingService) cancelPendingPayment(ctx context.Context, pending *domain.PendingBooking) (*dto.CancelBookingResponse, error) {
	log := logger.Get().With(zap.String("booking_reference", pending.BookingReference))

	if err := s.lockRepo.Release(ctx, pending.TicketID); err != nil {
		log.Warn("Failed to release ticket lock", zap.Error(err))
	}
	if pending.ConcurrencyTier == domain.TierLow && pending.SupplierReservationID != "" {
		s.cancelSupplierReservation(ctx, pending.SupplierReservationID)
	}
	if err := s.pendingRepo.Delete(ctx, pending.BookingReference); err != nil {
		return nil, err
	}
	if err := s.pendingRepo.ClearProcessing(ctx, pending.BookingReference); err != nil {
		log.Warn("Failed to clear processing marker", zap.Error(err))
	}
	if pending.ConcurrencyTier == domain.TierHigh {
		if err := s.bookingRepo.Cancel(ctx, pending.BookingReference); err != nil && err != domain.ErrBookingNotFound {
			log.Warn("Failed to cancel durable booking", zap.Error(err))
		}
	}

	s.sendNotification(func(ctx context.Context) error {
		return s.notifications.SendCancellation(ctx, &domain.NotificationEvent{
			UserID:           pending.UserID,
			BookingReference: pending.BookingReference,
			TicketID:         pending.TicketID,
			Message:          "Your booking was cancelled",
		})
	})
	if s.notifier != nil {
		s.notifier.NotifyBookingUpdate(pending.BookingReference)
	}

	metrics.RecordCancellation(ctx, "user_request")

	return &dto.CancelBookingResponse{
		BookingReference: pending.BookingReference,
		Status:           string(domain.BookingStatusCancelled),
		Message:          "booking cancelled",
	}, nil
}

// cancelConfirmed refunds a paid booking and returns the ticket to inventory
func (s *bookingService) cancelConfirmed(ctx context.Context, booking *domain.Booking) (*dto.CancelBookingResponse, error) {
	refundID, err := s.payment.Refund(ctx, booking.PaymentID, booking.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to refund booking %s: %w", booking.BookingReference, err)
	}

	if err := s.ticketRepo.MarkAvailable(ctx, booking.TicketID); err != nil {
		logger.Get().Warn("Failed to return ticket to inventory",
			zap.String("ticket_id", booking.TicketID),
			zap.Error(err))
	}
	if err := s.bookingRepo.Cancel(ctx, booking.BookingReference); err != nil {
		return nil, err
	}

	s.sendNotification(func(ctx context.Context) error {
		return s.notifications.SendCancellation(ctx, &domain.NotificationEvent{
			UserID:           booking.UserID,
			BookingReference: booking.BookingReference,
			TicketID:         booking.TicketID,
			Message:          "Your booking was cancelled and the payment refunded",
		})
	})
	if s.notifier != nil {
		s.notifier.NotifyBookingUpdate(booking.BookingReference)
	}

	return &dto.CancelBookingResponse{
		BookingReference: booking.BookingReference,
		Status:           string(domain.BookingStatusCancelled),
		RefundID:         refundID,
		Message:          "booking cancelled and refunded",
	}, nil
}

// cancelQueued removes a waiting booking from its queue
func (s *bookingService) cancelQueued(ctx context.Context, booking *domain.Booking) (*dto.CancelBookingResponse, error) {
	if err := s.queueRepo.Remove(ctx, booking.TicketID, booking.BookingReference); err != nil {
		logger.Get().Warn("Failed to remove booking from queue",
			zap.String("booking_reference", booking.BookingReference),
			zap.Error(err))
	}
	if err := s.bookingRepo.Cancel(ctx, booking.BookingReference); err != nil {
		return nil, err
	}

	s.sendNotification(func(ctx context.Context) error {
		return s.notifications.SendCancellation(ctx, &domain.NotificationEvent{
			UserID:           booking.UserID,
			BookingReference: booking.BookingReference,
			TicketID:         booking.TicketID,
			Message:          "Your booking was cancelled and you left the queue",
		})
	})
	if s.notifier != nil {
		s.notifier.NotifyBookingUpdate(booking.BookingReference)
	}

	return &dto.CancelBookingResponse{
		BookingReference: booking.BookingReference,
		Status:           string(domain.BookingStatusCancelled),
		Message:          "booking cancelled",
	}, nil
}

// rollbackAdmission releases a held lock and supplier reservation after a
// mid-admission failure
func (s *bookingService) rollbackAdmission(ctx context.Context, ticketID, supplierReservationID string) {
	if err := s.lockRepo.Release(ctx, ticketID); err != nil {
		logger.Get().Warn("Failed to release ticket lock during rollback",
			zap.String("ticket_id", ticketID),
			zap.Error(err))
	}
	if supplierReservationID != "" {
		s.cancelSupplierReservation(ctx, supplierReservationID)
	}
}

// cancelSupplierReservation is best effort, failures are logged only
func (s *bookingService) cancelSupplierReservation(ctx context.Context, reservationID string) {
	if _, err := s.supplier.Cancel(ctx, reservationID); err != nil {
		logger.Get().Warn("Failed to cancel supplier reservation",
			zap.String("reservation_id", reservationID),
			zap.Error(err))
	}
}

// sendNotification dispatches a fire-and-forget notification on the
// notification pool
func (s *bookingService) sendNotification(send func(ctx context.Context) error) {
	if s.notifyPool == nil {
		return
	}
	s.notifyPool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := send(ctx); err != nil {
			logger.Get().Warn("Failed to send notification", zap.Error(err))
		}
	})
}

func cancelledResponse(bookingReference, message string) *dto.CreateBookingResponse {
	return &dto.CreateBookingResponse{
		BookingReference: bookingReference,
		Status:           string(domain.BookingStatusCancelled),
		Message:          message,
	}
}
