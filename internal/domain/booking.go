package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusQueued         BookingStatus = "QUEUED"
	BookingStatusPaymentPending BookingStatus = "PAYMENT_PENDING"
	BookingStatusConfirmed      BookingStatus = "CONFIRMED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
)

// IsTerminal returns true if no further transitions are possible
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCancelled
}

// IsValid checks if the status is a known value
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusQueued, BookingStatusPaymentPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// ConcurrencyTier classifies tickets by expected booking contention
type ConcurrencyTier string

const (
	TierLow    ConcurrencyTier = "LOW"
	TierMedium ConcurrencyTier = "MEDIUM"
	TierHigh   ConcurrencyTier = "HIGH"
)

// IsValid checks if the tier is a known value
func (t ConcurrencyTier) IsValid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh:
		return true
	}
	return false
}

// Booking represents a durable booking record
type Booking struct {
	ID                    int64           `json:"id"`
	BookingReference      string          `json:"booking_reference"`
	UserID                string          `json:"user_id"`
	TicketID              string          `json:"ticket_id"`
	ConcurrencyTier       ConcurrencyTier `json:"concurrency_tier"`
	Status                BookingStatus   `json:"status"`
	Amount                float64         `json:"amount"`
	SupplierReservationID string          `json:"supplier_reservation_id,omitempty"`
	PaymentID             string          `json:"payment_id,omitempty"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	CancelledAt           *time.Time      `json:"cancelled_at,omitempty"`
	ExpiresAt             *time.Time      `json:"expires_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// PendingBooking is the short-lived payment-window record kept in Redis.
// It exists only between admission and payment settlement; its absence after
// a webhook arrives means the booking was already settled or has expired.
type PendingBooking struct {
	BookingReference      string          `json:"booking_reference"`
	UserID                string          `json:"user_id"`
	TicketID              string          `json:"ticket_id"`
	EventID               string          `json:"event_id"`
	ConcurrencyTier       ConcurrencyTier `json:"concurrency_tier"`
	Amount                float64         `json:"amount"`
	SupplierReservationID string          `json:"supplier_reservation_id,omitempty"`
	PaymentURL            string          `json:"payment_url,omitempty"`
	ExpiredAt             time.Time       `json:"expired_at"`
}

// IsExpired returns true if the payment window has passed
func (p *PendingBooking) IsExpired() bool {
	return time.Now().After(p.ExpiredAt)
}

// NewBookingReference generates a unique booking reference.
// Format: BK-<unix millis>-<8 uppercase hex chars>.
func NewBookingReference() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	suffix := strings.ToUpper(hex.EncodeToString(buf))
	return "BK-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + suffix
}
