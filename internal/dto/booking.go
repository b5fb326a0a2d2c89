package dto

import (
	"time"

	"github.com/mmtext/booking-engine/internal/domain"
)

// CreateBookingRequest represents a request to create a booking
type CreateBookingRequest struct {
	TicketID string `json:"ticket_id" binding:"required"`
	EventID  string `json:"event_id,omitempty"`
}

// CreateBookingResponse represents the admission decision for a booking request
type CreateBookingResponse struct {
	BookingReference string     `json:"booking_reference"`
	Status           string     `json:"status"`
	PaymentURL       string     `json:"payment_url,omitempty"`
	QueuePosition    int64      `json:"queue_position,omitempty"`
	EstimatedWait    int64      `json:"estimated_wait_seconds,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Message          string     `json:"message,omitempty"`
}

// CancelBookingRequest represents a request to cancel a booking
type CancelBookingRequest struct {
	BookingReference string `json:"booking_reference" binding:"required"`
}

// CancelBookingResponse represents the result of a cancellation
type CancelBookingResponse struct {
	BookingReference string `json:"booking_reference"`
	Status           string `json:"status"`
	RefundID         string `json:"refund_id,omitempty"`
	Message          string `json:"message,omitempty"`
}

// PaymentWebhookRequest represents an inbound payment settlement event
type PaymentWebhookRequest struct {
	BookingReference string  `json:"booking_reference" binding:"required"`
	PaymentID        string  `json:"payment_id" binding:"required"`
	Status           string  `json:"status" binding:"required"` // SUCCESS or FAILED
	Amount           float64 `json:"amount,omitempty"`
}

// IsSuccess returns true if the webhook reports a settled payment
func (r *PaymentWebhookRequest) IsSuccess() bool {
	return r.Status == "SUCCESS"
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	BookingReference string     `json:"booking_reference"`
	UserID           string     `json:"user_id"`
	TicketID         string     `json:"ticket_id"`
	ConcurrencyTier  string     `json:"concurrency_tier"`
	Status           string     `json:"status"`
	Amount           float64    `json:"amount"`
	PaymentID        string     `json:"payment_id,omitempty"`
	PaymentURL       string     `json:"payment_url,omitempty"`
	QueuePosition    int64      `json:"queue_position,omitempty"`
	EstimatedWait    int64      `json:"estimated_wait_seconds,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// FromDomain converts a durable booking to a BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		BookingReference: b.BookingReference,
		UserID:           b.UserID,
		TicketID:         b.TicketID,
		ConcurrencyTier:  string(b.ConcurrencyTier),
		Status:           string(b.Status),
		Amount:           b.Amount,
		PaymentID:        b.PaymentID,
		PaidAt:           b.PaidAt,
		CancelledAt:      b.CancelledAt,
		ExpiresAt:        b.ExpiresAt,
		CreatedAt:        b.CreatedAt,
	}
}

// FromPending converts a payment-window record to a BookingResponse
func FromPending(p *domain.PendingBooking) *BookingResponse {
	expires := p.ExpiredAt
	return &BookingResponse{
		BookingReference: p.BookingReference,
		UserID:           p.UserID,
		TicketID:         p.TicketID,
		ConcurrencyTier:  string(p.ConcurrencyTier),
		Status:           string(domain.BookingStatusPaymentPending),
		Amount:           p.Amount,
		PaymentURL:       p.PaymentURL,
		ExpiresAt:        &expires,
	}
}
