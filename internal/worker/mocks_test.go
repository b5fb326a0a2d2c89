package worker

import (
	"context"
	"sync"
	"time"

	"github.com/mmtext/booking-engine/internal/client"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/internal/repository"
)

type mockBookingRepo struct {
	GetByReferenceFunc     func(ctx context.Context, bookingReference string) (*domain.Booking, error)
	MarkPaymentPendingFunc func(ctx context.Context, bookingReference, paymentID string, expiresAt time.Time) error
	CancelFunc             func(ctx context.Context, bookingReference string) error
	ExpireOverdueFunc      func(ctx context.Context, now time.Time, limit int) (int64, error)
}

func (m *mockBookingRepo) Create(ctx context.Context, booking *domain.Booking) error { return nil }

func (m *mockBookingRepo) GetByReference(ctx context.Context, bookingReference string) (*domain.Booking, error) {
	if m.GetByReferenceFunc != nil {
		return m.GetByReferenceFunc(ctx, bookingReference)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *mockBookingRepo) GetByReferenceAndUser(ctx context.Context, bookingReference, userID string) (*domain.Booking, error) {
	return nil, domain.ErrBookingNotFound
}

func (m *mockBookingRepo) UpdateStatus(ctx context.Context, bookingReference string, status domain.BookingStatus) error {
	return nil
}

func (m *mockBookingRepo) MarkPaymentPending(ctx context.Context, bookingReference, paymentID string, expiresAt time.Time) error {
	if m.MarkPaymentPendingFunc != nil {
		return m.MarkPaymentPendingFunc(ctx, bookingReference, paymentID, expiresAt)
	}
	return nil
}

func (m *mockBookingRepo) Confirm(ctx context.Context, booking *domain.Booking) error { return nil }

func (m *mockBookingRepo) Cancel(ctx context.Context, bookingReference string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, bookingReference)
	}
	return nil
}

func (m *mockBookingRepo) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int64, error) {
	if m.ExpireOverdueFunc != nil {
		return m.ExpireOverdueFunc(ctx, now, limit)
	}
	return 0, nil
}

type mockTicketRepo struct {
	GetByTicketIDFunc func(ctx context.Context, ticketID string) (*domain.Ticket, error)
}

func (m *mockTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error { return nil }

func (m *mockTicketRepo) CreateBatch(ctx context.Context, tickets []*domain.Ticket) (int, error) {
	return len(tickets), nil
}

func (m *mockTicketRepo) GetByTicketID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if m.GetByTicketIDFunc != nil {
		return m.GetByTicketIDFunc(ctx, ticketID)
	}
	return nil, domain.ErrTicketNotFound
}

func (m *mockTicketRepo) ListAvailableByEvent(ctx context.Context, eventID string) ([]*domain.Ticket, error) {
	return []*domain.Ticket{}, nil
}

func (m *mockTicketRepo) MarkBooked(ctx context.Context, ticketID, userID, bookingReference string, bookedAt time.Time) error {
	return nil
}

func (m *mockTicketRepo) MarkAvailable(ctx context.Context, ticketID string) error { return nil }

type mockLockRepo struct {
	AcquireFunc func(ctx context.Context, ticketID, bookingReference string, ttl time.Duration) (bool, error)
	ReleaseFunc func(ctx context.Context, ticketID string) error
}

func (m *mockLockRepo) Acquire(ctx context.Context, ticketID, bookingReference string, ttl time.Duration) (bool, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, ticketID, bookingReference, ttl)
	}
	return true, nil
}

func (m *mockLockRepo) Release(ctx context.Context, ticketID string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, ticketID)
	}
	return nil
}

func (m *mockLockRepo) IsHeld(ctx context.Context, ticketID string) (bool, error) { return false, nil }

func (m *mockLockRepo) Holder(ctx context.Context, ticketID string) (string, error) { return "", nil }

func (m *mockLockRepo) LockedTicketIDs(ctx context.Context, eventID string) ([]string, error) {
	return []string{}, nil
}

type mockQueueRepo struct {
	EnqueueFunc         func(ctx context.Context, ticketID, bookingReference string) (*repository.EnqueueResult, error)
	PopBatchFunc        func(ctx context.Context, ticketID string, count int64) (*repository.PopBatchResult, error)
	SizeFunc            func(ctx context.Context, ticketID string) (int64, error)
	ActiveTicketIDsFunc func(ctx context.Context) ([]string, error)
}

func (m *mockQueueRepo) Enqueue(ctx context.Context, ticketID, bookingReference string) (*repository.EnqueueResult, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, ticketID, bookingReference)
	}
	return &repository.EnqueueResult{Position: 1, TotalInQueue: 1}, nil
}

func (m *mockQueueRepo) PopBatch(ctx context.Context, ticketID string, count int64) (*repository.PopBatchResult, error) {
	if m.PopBatchFunc != nil {
		return m.PopBatchFunc(ctx, ticketID, count)
	}
	return &repository.PopBatchResult{}, nil
}

func (m *mockQueueRepo) Position(ctx context.Context, ticketID, bookingReference string) (int64, error) {
	return 0, nil
}

func (m *mockQueueRepo) Size(ctx context.Context, ticketID string) (int64, error) {
	if m.SizeFunc != nil {
		return m.SizeFunc(ctx, ticketID)
	}
	return 0, nil
}

func (m *mockQueueRepo) Remove(ctx context.Context, ticketID, bookingReference string) error {
	return nil
}

func (m *mockQueueRepo) ActiveTicketIDs(ctx context.Context) ([]string, error) {
	if m.ActiveTicketIDsFunc != nil {
		return m.ActiveTicketIDsFunc(ctx)
	}
	return []string{}, nil
}

type mockPendingRepo struct {
	PutFunc          func(ctx context.Context, booking *domain.PendingBooking, ttl time.Duration) error
	IsProcessingFunc func(ctx context.Context, bookingReference string) (bool, error)
}

func (m *mockPendingRepo) Put(ctx context.Context, booking *domain.PendingBooking, ttl time.Duration) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, booking, ttl)
	}
	return nil
}

func (m *mockPendingRepo) Get(ctx context.Context, bookingReference string) (*domain.PendingBooking, error) {
	return nil, domain.ErrBookingNotFound
}

func (m *mockPendingRepo) Delete(ctx context.Context, bookingReference string) error { return nil }

func (m *mockPendingRepo) MarkProcessing(ctx context.Context, bookingReference string, ttl time.Duration) error {
	return nil
}

func (m *mockPendingRepo) IsProcessing(ctx context.Context, bookingReference string) (bool, error) {
	if m.IsProcessingFunc != nil {
		return m.IsProcessingFunc(ctx, bookingReference)
	}
	return false, nil
}

func (m *mockPendingRepo) ClearProcessing(ctx context.Context, bookingReference string) error {
	return nil
}

type mockPaymentClient struct {
	CreateSessionFunc func(ctx context.Context, bookingReference string, amount float64, userID string) (*client.PaymentSession, error)
}

func (m *mockPaymentClient) CreateSession(ctx context.Context, bookingReference string, amount float64, userID string) (*client.PaymentSession, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, bookingReference, amount, userID)
	}
	return &client.PaymentSession{
		PaymentID:  "PAY-TEST",
		PaymentURL: "https://payment.example.com/checkout/PAY-TEST",
	}, nil
}

func (m *mockPaymentClient) Refund(ctx context.Context, paymentID string, amount float64) (string, error) {
	return "REF-TEST", nil
}

type recordingNotifier struct {
	mu         sync.Mutex
	references []string
}

func (n *recordingNotifier) NotifyBookingUpdate(bookingReference string) {
	n.mu.Lock()
	n.references = append(n.references, bookingReference)
	n.mu.Unlock()
}

func (n *recordingNotifier) Notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.references...)
}

var (
	_ repository.BookingRepository        = (*mockBookingRepo)(nil)
	_ repository.TicketRepository         = (*mockTicketRepo)(nil)
	_ repository.TicketLockRepository     = (*mockLockRepo)(nil)
	_ repository.QueueRepository          = (*mockQueueRepo)(nil)
	_ repository.PendingBookingRepository = (*mockPendingRepo)(nil)
	_ client.PaymentClient                = (*mockPaymentClient)(nil)
	_ StatusNotifier                      = (*recordingNotifier)(nil)
)
