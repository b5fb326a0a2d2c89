package repository

import (
	"context"
	"time"

	"github.com/mmtext/booking-engine/internal/domain"
)

// TicketLockRepository guards a ticket during its payment window.
// A lock acquired by one booking reference must be invisible to every
// other booking attempt until it is released or its TTL lapses.
type TicketLockRepository interface {
	// Acquire attempts to take the lock for a booking reference.
	// Returns false when another holder already owns the lock.
	Acquire(ctx context.Context, ticketID, bookingReference string, ttl time.Duration) (bool, error)

	// Release unconditionally frees the lock
	Release(ctx context.Context, ticketID string) error

	// IsHeld reports whether the lock currently exists
	IsHeld(ctx context.Context, ticketID string) (bool, error)

	// Holder returns the booking reference holding the lock ("" when free)
	Holder(ctx context.Context, ticketID string) (string, error)

	// LockedTicketIDs lists ticket ids with active locks for an event
	LockedTicketIDs(ctx context.Context, eventID string) ([]string, error)
}

// EnqueueResult represents the result of joining a ticket queue
type EnqueueResult struct {
	Position     int64
	TotalInQueue int64
}

// PopBatchResult represents the entries drained from a queue head
type PopBatchResult struct {
	References []string
	Remaining  int64
}

// QueueRepository is the FIFO admission queue, one queue per ticket.
// Membership and the active-queue index are kept consistent atomically.
type QueueRepository interface {
	// Enqueue appends a booking to the ticket's queue and registers the
	// queue in the active index. Position is 1-based.
	Enqueue(ctx context.Context, ticketID, bookingReference string) (*EnqueueResult, error)

	// PopBatch atomically removes up to count entries from the queue head.
	// When the queue empties it is deregistered from the active index in
	// the same operation.
	PopBatch(ctx context.Context, ticketID string, count int64) (*PopBatchResult, error)

	// Position returns a booking's 1-based position, or 0 when absent
	Position(ctx context.Context, ticketID, bookingReference string) (int64, error)

	// Size returns the number of waiting bookings
	Size(ctx context.Context, ticketID string) (int64, error)

	// Remove deletes a single booking from the queue
	Remove(ctx context.Context, ticketID, bookingReference string) error

	// ActiveTicketIDs lists ticket ids with registered queues
	ActiveTicketIDs(ctx context.Context) ([]string, error)
}

// PendingBookingRepository stores payment-window records with TTL.
// It also owns the short-lived processing markers the drainer uses to
// guard against double admission.
type PendingBookingRepository interface {
	Put(ctx context.Context, booking *domain.PendingBooking, ttl time.Duration) error

	// Get returns domain.ErrBookingNotFound when the record is absent or expired
	Get(ctx context.Context, bookingReference string) (*domain.PendingBooking, error)

	Delete(ctx context.Context, bookingReference string) error

	MarkProcessing(ctx context.Context, bookingReference string, ttl time.Duration) error
	IsProcessing(ctx context.Context, bookingReference string) (bool, error)
	ClearProcessing(ctx context.Context, bookingReference string) error
}

// BookingRepository persists durable booking records
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByReference returns domain.ErrBookingNotFound when no row exists
	GetByReference(ctx context.Context, bookingReference string) (*domain.Booking, error)

	// GetByReferenceAndUser scopes the lookup to the requesting user
	GetByReferenceAndUser(ctx context.Context, bookingReference, userID string) (*domain.Booking, error)

	UpdateStatus(ctx context.Context, bookingReference string, status domain.BookingStatus) error

	// MarkPaymentPending moves a queued booking into its payment window
	MarkPaymentPending(ctx context.Context, bookingReference, paymentID string, expiresAt time.Time) error

	// Confirm upserts the booking as CONFIRMED with payment details
	Confirm(ctx context.Context, booking *domain.Booking) error

	// Cancel flips the booking to CANCELLED and stamps cancelled_at
	Cancel(ctx context.Context, bookingReference string) error

	// ExpireOverdue cancels QUEUED and PAYMENT_PENDING rows whose
	// expires_at has passed, returning the number of rows touched
	ExpireOverdue(ctx context.Context, now time.Time, limit int) (int64, error)
}

// TicketRepository persists ticket inventory
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	CreateBatch(ctx context.Context, tickets []*domain.Ticket) (int, error)

	// GetByTicketID returns domain.ErrTicketNotFound when no row exists
	GetByTicketID(ctx context.Context, ticketID string) (*domain.Ticket, error)

	// ListAvailableByEvent returns tickets whose durable status is AVAILABLE
	ListAvailableByEvent(ctx context.Context, eventID string) ([]*domain.Ticket, error)

	// MarkBooked transitions a ticket to BOOKED with buyer details
	MarkBooked(ctx context.Context, ticketID, userID, bookingReference string, bookedAt time.Time) error

	// MarkAvailable returns a ticket to inventory, clearing buyer details
	MarkAvailable(ctx context.Context, ticketID string) error
}
