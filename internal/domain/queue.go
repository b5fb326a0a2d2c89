package domain

import "time"

// QueueEntry represents a booking's position in a ticket's admission queue
type QueueEntry struct {
	BookingReference string    `json:"booking_reference"`
	TicketID         string    `json:"ticket_id"`
	Position         int64     `json:"position"`
	JoinedAt         time.Time `json:"joined_at"`
}

// QueueStatus represents the current state of a single ticket queue
type QueueStatus struct {
	TicketID      string `json:"ticket_id"`
	TotalInQueue  int64  `json:"total_in_queue"`
	EstimatedWait int64  `json:"estimated_wait_seconds"`
}

// Validate validates the queue entry
func (q *QueueEntry) Validate() error {
	if q.BookingReference == "" {
		return ErrInvalidBookingReference
	}
	if q.TicketID == "" {
		return ErrInvalidTicketID
	}
	return nil
}
