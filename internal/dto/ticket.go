package dto

import (
	"time"

	"github.com/mmtext/booking-engine/internal/domain"
)

// CreateTicketRequest represents a request to register a sellable ticket
type CreateTicketRequest struct {
	TicketID        string  `json:"ticket_id" binding:"required"`
	EventID         string  `json:"event_id" binding:"required"`
	EventName       string  `json:"event_name"`
	SeatNumber      string  `json:"seat_number"`
	Price           float64 `json:"price" binding:"gte=0"`
	ConcurrencyTier string  `json:"concurrency_tier" binding:"required,oneof=LOW MEDIUM HIGH"`
}

// ToDomain converts the request to a domain ticket
func (r *CreateTicketRequest) ToDomain() *domain.Ticket {
	return &domain.Ticket{
		TicketID:        r.TicketID,
		EventID:         r.EventID,
		EventName:       r.EventName,
		SeatNumber:      r.SeatNumber,
		Price:           r.Price,
		ConcurrencyTier: domain.ConcurrencyTier(r.ConcurrencyTier),
		Status:          domain.TicketStatusAvailable,
	}
}

// CreateTicketBatchRequest registers many tickets in one call
type CreateTicketBatchRequest struct {
	Tickets []CreateTicketRequest `json:"tickets" binding:"required,min=1,dive"`
}

// CreateTicketBatchResponse reports how many tickets were inserted
type CreateTicketBatchResponse struct {
	Created int `json:"created"`
}

// TicketResponse represents a ticket in API responses
type TicketResponse struct {
	TicketID        string    `json:"ticket_id"`
	EventID         string    `json:"event_id"`
	EventName       string    `json:"event_name,omitempty"`
	SeatNumber      string    `json:"seat_number,omitempty"`
	Price           float64   `json:"price"`
	ConcurrencyTier string    `json:"concurrency_tier"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// FromTicket converts a domain ticket to a TicketResponse
func FromTicket(t *domain.Ticket) *TicketResponse {
	return &TicketResponse{
		TicketID:        t.TicketID,
		EventID:         t.EventID,
		EventName:       t.EventName,
		SeatNumber:      t.SeatNumber,
		Price:           t.Price,
		ConcurrencyTier: string(t.ConcurrencyTier),
		Status:          string(t.Status),
		CreatedAt:       t.CreatedAt,
	}
}
