package service

import (
	"context"
	"testing"

	"github.com/mmtext/booking-engine/internal/domain"
)

func TestAvailabilityService_IsTicketAvailable(t *testing.T) {
	tests := []struct {
		name   string
		ticket *domain.Ticket
		held   bool
		want   bool
	}{
		{
			name:   "available and unlocked",
			ticket: availableTicket(domain.TierMedium),
			want:   true,
		},
		{
			name: "sold",
			ticket: &domain.Ticket{
				TicketID: "ticket-001",
				Status:   domain.TicketStatusBooked,
			},
			want: false,
		},
		{
			name:   "held by a payment window",
			ticket: availableTicket(domain.TierMedium),
			held:   true,
			want:   false,
		},
		{
			name: "unknown ticket",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticketRepo := &MockTicketRepository{}
			if tt.ticket != nil {
				ticketRepo.GetByTicketIDFunc = func(ctx context.Context, ticketID string) (*domain.Ticket, error) {
					return tt.ticket, nil
				}
			}
			lockRepo := &MockLockRepository{
				IsHeldFunc: func(ctx context.Context, ticketID string) (bool, error) {
					return tt.held, nil
				},
			}

			svc := NewAvailabilityService(ticketRepo, lockRepo)
			got, err := svc.IsTicketAvailable(context.Background(), "ticket-001")
			if err != nil {
				t.Fatalf("IsTicketAvailable() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsTicketAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAvailabilityService_GetAvailableTickets(t *testing.T) {
	ticketRepo := &MockTicketRepository{
		ListAvailableByEventFunc: func(ctx context.Context, eventID string) ([]*domain.Ticket, error) {
			return []*domain.Ticket{
				{TicketID: "ticket-001", Status: domain.TicketStatusAvailable},
				{TicketID: "ticket-002", Status: domain.TicketStatusAvailable},
				{TicketID: "ticket-003", Status: domain.TicketStatusAvailable},
			}, nil
		},
	}
	lockRepo := &MockLockRepository{
		LockedTicketIDsFunc: func(ctx context.Context, eventID string) ([]string, error) {
			return []string{"ticket-002"}, nil
		},
	}

	svc := NewAvailabilityService(ticketRepo, lockRepo)
	tickets, err := svc.GetAvailableTickets(context.Background(), "event-001")
	if err != nil {
		t.Fatalf("GetAvailableTickets() error = %v", err)
	}

	if len(tickets) != 2 {
		t.Fatalf("got %d tickets, want 2 (locked ticket excluded)", len(tickets))
	}
	for _, ticket := range tickets {
		if ticket.TicketID == "ticket-002" {
			t.Error("locked ticket should be excluded from the listing")
		}
	}
}
