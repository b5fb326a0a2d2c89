package domain

import "time"

// TicketStatus represents inventory state of a ticket
type TicketStatus string

const (
	TicketStatusAvailable TicketStatus = "AVAILABLE"
	TicketStatusBooked    TicketStatus = "BOOKED"
)

// Ticket represents a single sellable seat
type Ticket struct {
	ID               int64           `json:"id"`
	TicketID         string          `json:"ticket_id"`
	EventID          string          `json:"event_id"`
	EventName        string          `json:"event_name"`
	SeatNumber       string          `json:"seat_number"`
	Price            float64         `json:"price"`
	ConcurrencyTier  ConcurrencyTier `json:"concurrency_tier"`
	Status           TicketStatus    `json:"status"`
	BookedByUserID   string          `json:"booked_by_user_id,omitempty"`
	BookingReference string          `json:"booking_reference,omitempty"`
	BookedAt         *time.Time      `json:"booked_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsAvailable returns true if the ticket can still be sold
func (t *Ticket) IsAvailable() bool {
	return t.Status == TicketStatusAvailable
}
