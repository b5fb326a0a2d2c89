package service

import (
	"context"
	"sync"
	"time"

	"github.com/mmtext/booking-engine/internal/client"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/internal/repository"
)

// MockBookingRepository is a mock implementation of BookingRepository
type MockBookingRepository struct {
	CreateFunc                func(ctx context.Context, booking *domain.Booking) error
	GetByReferenceFunc        func(ctx context.Context, bookingReference string) (*domain.Booking, error)
	GetByReferenceAndUserFunc func(ctx context.Context, bookingReference, userID string) (*domain.Booking, error)
	UpdateStatusFunc          func(ctx context.Context, bookingReference string, status domain.BookingStatus) error
	MarkPaymentPendingFunc    func(ctx context.Context, bookingReference, paymentID string, expiresAt time.Time) error
	ConfirmFunc               func(ctx context.Context, booking *domain.Booking) error
	CancelFunc                func(ctx context.Context, bookingReference string) error
	ExpireOverdueFunc         func(ctx context.Context, now time.Time, limit int) (int64, error)
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, booking)
	}
	return nil
}

func (m *MockBookingRepository) GetByReference(ctx context.Context, bookingReference string) (*domain.Booking, error) {
	if m.GetByReferenceFunc != nil {
		return m.GetByReferenceFunc(ctx, bookingReference)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) GetByReferenceAndUser(ctx context.Context, bookingReference, userID string) (*domain.Booking, error) {
	if m.GetByReferenceAndUserFunc != nil {
		return m.GetByReferenceAndUserFunc(ctx, bookingReference, userID)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, bookingReference string, status domain.BookingStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, bookingReference, status)
	}
	return nil
}

func (m *MockBookingRepository) MarkPaymentPending(ctx context.Context, bookingReference, paymentID string, expiresAt time.Time) error {
	if m.MarkPaymentPendingFunc != nil {
		return m.MarkPaymentPendingFunc(ctx, bookingReference, paymentID, expiresAt)
	}
	return nil
}

func (m *MockBookingRepository) Confirm(ctx context.Context, booking *domain.Booking) error {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, booking)
	}
	return nil
}

func (m *MockBookingRepository) Cancel(ctx context.Context, bookingReference string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, bookingReference)
	}
	return nil
}

func (m *MockBookingRepository) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int64, error) {
	if m.ExpireOverdueFunc != nil {
		return m.ExpireOverdueFunc(ctx, now, limit)
	}
	return 0, nil
}

// MockTicketRepository is a mock implementation of TicketRepository
type MockTicketRepository struct {
	CreateFunc               func(ctx context.Context, ticket *domain.Ticket) error
	CreateBatchFunc          func(ctx context.Context, tickets []*domain.Ticket) (int, error)
	GetByTicketIDFunc        func(ctx context.Context, ticketID string) (*domain.Ticket, error)
	ListAvailableByEventFunc func(ctx context.Context, eventID string) ([]*domain.Ticket, error)
	MarkBookedFunc           func(ctx context.Context, ticketID, userID, bookingReference string, bookedAt time.Time) error
	MarkAvailableFunc        func(ctx context.Context, ticketID string) error
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, ticket)
	}
	return nil
}

func (m *MockTicketRepository) CreateBatch(ctx context.Context, tickets []*domain.Ticket) (int, error) {
	if m.CreateBatchFunc != nil {
		return m.CreateBatchFunc(ctx, tickets)
	}
	return len(tickets), nil
}

func (m *MockTicketRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if m.GetByTicketIDFunc != nil {
		return m.GetByTicketIDFunc(ctx, ticketID)
	}
	return nil, domain.ErrTicketNotFound
}

func (m *MockTicketRepository) ListAvailableByEvent(ctx context.Context, eventID string) ([]*domain.Ticket, error) {
	if m.ListAvailableByEventFunc != nil {
		return m.ListAvailableByEventFunc(ctx, eventID)
	}
	return []*domain.Ticket{}, nil
}

func (m *MockTicketRepository) MarkBooked(ctx context.Context, ticketID, userID, bookingReference string, bookedAt time.Time) error {
	if m.MarkBookedFunc != nil {
		return m.MarkBookedFunc(ctx, ticketID, userID, bookingReference, bookedAt)
	}
	return nil
}

func (m *MockTicketRepository) MarkAvailable(ctx context.Context, ticketID string) error {
	if m.MarkAvailableFunc != nil {
		return m.MarkAvailableFunc(ctx, ticketID)
	}
	return nil
}

// MockLockRepository is a mock implementation of TicketLockRepository
type MockLockRepository struct {
	AcquireFunc         func(ctx context.Context, ticketID, bookingReference string, ttl time.Duration) (bool, error)
	ReleaseFunc         func(ctx context.Context, ticketID string) error
	IsHeldFunc          func(ctx context.Context, ticketID string) (bool, error)
	HolderFunc          func(ctx context.Context, ticketID string) (string, error)
	LockedTicketIDsFunc func(ctx context.Context, eventID string) ([]string, error)
}

func (m *MockLockRepository) Acquire(ctx context.Context, ticketID, bookingReference string, ttl time.Duration) (bool, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, ticketID, bookingReference, ttl)
	}
	return true, nil
}

func (m *MockLockRepository) Release(ctx context.Context, ticketID string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, ticketID)
	}
	return nil
}

func (m *MockLockRepository) IsHeld(ctx context.Context, ticketID string) (bool, error) {
	if m.IsHeldFunc != nil {
		return m.IsHeldFunc(ctx, ticketID)
	}
	return false, nil
}

func (m *MockLockRepository) Holder(ctx context.Context, ticketID string) (string, error) {
	if m.HolderFunc != nil {
		return m.HolderFunc(ctx, ticketID)
	}
	return "", nil
}

func (m *MockLockRepository) LockedTicketIDs(ctx context.Context, eventID string) ([]string, error) {
	if m.LockedTicketIDsFunc != nil {
		return m.LockedTicketIDsFunc(ctx, eventID)
	}
	return []string{}, nil
}

// MockQueueRepository is a mock implementation of QueueRepository
type MockQueueRepository struct {
	EnqueueFunc         func(ctx context.Context, ticketID, bookingReference string) (*repository.EnqueueResult, error)
	PopBatchFunc        func(ctx context.Context, ticketID string, count int64) (*repository.PopBatchResult, error)
	PositionFunc        func(ctx context.Context, ticketID, bookingReference string) (int64, error)
	SizeFunc            func(ctx context.Context, ticketID string) (int64, error)
	RemoveFunc          func(ctx context.Context, ticketID, bookingReference string) error
	ActiveTicketIDsFunc func(ctx context.Context) ([]string, error)
}

func (m *MockQueueRepository) Enqueue(ctx context.Context, ticketID, bookingReference string) (*repository.EnqueueResult, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, ticketID, bookingReference)
	}
	return &repository.EnqueueResult{Position: 1, TotalInQueue: 1}, nil
}

func (m *MockQueueRepository) PopBatch(ctx context.Context, ticketID string, count int64) (*repository.PopBatchResult, error) {
	if m.PopBatchFunc != nil {
		return m.PopBatchFunc(ctx, ticketID, count)
	}
	return &repository.PopBatchResult{}, nil
}

func (m *MockQueueRepository) Position(ctx context.Context, ticketID, bookingReference string) (int64, error) {
	if m.PositionFunc != nil {
		return m.PositionFunc(ctx, ticketID, bookingReference)
	}
	return 0, nil
}

func (m *MockQueueRepository) Size(ctx context.Context, ticketID string) (int64, error) {
	if m.SizeFunc != nil {
		return m.SizeFunc(ctx, ticketID)
	}
	return 0, nil
}

func (m *MockQueueRepository) Remove(ctx context.Context, ticketID, bookingReference string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, ticketID, bookingReference)
	}
	return nil
}

func (m *MockQueueRepository) ActiveTicketIDs(ctx context.Context) ([]string, error) {
	if m.ActiveTicketIDsFunc != nil {
		return m.ActiveTicketIDsFunc(ctx)
	}
	return []string{}, nil
}

// MockPendingRepository is a mock implementation of PendingBookingRepository
type MockPendingRepository struct {
	PutFunc             func(ctx context.Context, booking *domain.PendingBooking, ttl time.Duration) error
	GetFunc             func(ctx context.Context, bookingReference string) (*domain.PendingBooking, error)
	DeleteFunc          func(ctx context.Context, bookingReference string) error
	MarkProcessingFunc  func(ctx context.Context, bookingReference string, ttl time.Duration) error
	IsProcessingFunc    func(ctx context.Context, bookingReference string) (bool, error)
	ClearProcessingFunc func(ctx context.Context, bookingReference string) error
}

func (m *MockPendingRepository) Put(ctx context.Context, booking *domain.PendingBooking, ttl time.Duration) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, booking, ttl)
	}
	return nil
}

func (m *MockPendingRepository) Get(ctx context.Context, bookingReference string) (*domain.PendingBooking, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, bookingReference)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockPendingRepository) Delete(ctx context.Context, bookingReference string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, bookingReference)
	}
	return nil
}

func (m *MockPendingRepository) MarkProcessing(ctx context.Context, bookingReference string, ttl time.Duration) error {
	if m.MarkProcessingFunc != nil {
		return m.MarkProcessingFunc(ctx, bookingReference, ttl)
	}
	return nil
}

func (m *MockPendingRepository) IsProcessing(ctx context.Context, bookingReference string) (bool, error) {
	if m.IsProcessingFunc != nil {
		return m.IsProcessingFunc(ctx, bookingReference)
	}
	return false, nil
}

func (m *MockPendingRepository) ClearProcessing(ctx context.Context, bookingReference string) error {
	if m.ClearProcessingFunc != nil {
		return m.ClearProcessingFunc(ctx, bookingReference)
	}
	return nil
}

// MockSupplierClient is a mock implementation of client.SupplierClient
type MockSupplierClient struct {
	ReserveFunc func(ctx context.Context, ticketID, userID string) (*client.SupplierReservation, error)
	ConfirmFunc func(ctx context.Context, reservationID, paymentID string) (bool, error)
	CancelFunc  func(ctx context.Context, reservationID string) (bool, error)

	mu        sync.Mutex
	cancelled []string
}

func (m *MockSupplierClient) Reserve(ctx context.Context, ticketID, userID string) (*client.SupplierReservation, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, ticketID, userID)
	}
	return &client.SupplierReservation{
		Available:     true,
		ReservationID: "RSV-TEST",
		ExpiresAt:     time.Now().Add(15 * time.Minute),
	}, nil
}

func (m *MockSupplierClient) Confirm(ctx context.Context, reservationID, paymentID string) (bool, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, reservationID, paymentID)
	}
	return true, nil
}

func (m *MockSupplierClient) Cancel(ctx context.Context, reservationID string) (bool, error) {
	m.mu.Lock()
	m.cancelled = append(m.cancelled, reservationID)
	m.mu.Unlock()
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, reservationID)
	}
	return true, nil
}

// CancelledReservations returns reservation ids passed to Cancel
func (m *MockSupplierClient) CancelledReservations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.cancelled...)
}

// MockPaymentClient is a mock implementation of client.PaymentClient
type MockPaymentClient struct {
	CreateSessionFunc func(ctx context.Context, bookingReference string, amount float64, userID string) (*client.PaymentSession, error)
	RefundFunc        func(ctx context.Context, paymentID string, amount float64) (string, error)
}

func (m *MockPaymentClient) CreateSession(ctx context.Context, bookingReference string, amount float64, userID string) (*client.PaymentSession, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, bookingReference, amount, userID)
	}
	return &client.PaymentSession{
		PaymentID:  "PAY-TEST",
		PaymentURL: "https://payment.example.com/checkout/PAY-TEST",
	}, nil
}

func (m *MockPaymentClient) Refund(ctx context.Context, paymentID string, amount float64) (string, error) {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, paymentID, amount)
	}
	return "REF-TEST", nil
}

// recordingNotifier captures status pushes
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

// syncPool runs jobs inline so tests observe their effects immediately
type syncPool struct{}

func (syncPool) Submit(job func()) { job() }

var (
	_ repository.BookingRepository        = (*MockBookingRepository)(nil)
	_ repository.TicketRepository         = (*MockTicketRepository)(nil)
	_ repository.TicketLockRepository     = (*MockLockRepository)(nil)
	_ repository.QueueRepository          = (*MockQueueRepository)(nil)
	_ repository.PendingBookingRepository = (*MockPendingRepository)(nil)
	_ client.SupplierClient               = (*MockSupplierClient)(nil)
	_ client.PaymentClient                = (*MockPaymentClient)(nil)
)
