package service

import (
	"context"

	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/internal/repository"
	"github.com/mmtext/booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AvailabilityService answers whether tickets can still be sold
type AvailabilityService interface {
	// IsTicketAvailable reports whether a ticket is unsold and unlocked
	IsTicketAvailable(ctx context.Context, ticketID string) (bool, error)

	// GetTicket loads a ticket by its public id
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)

	// GetAvailableTickets lists sellable tickets for an event, excluding
	// tickets currently held by an admission lock
	GetAvailableTickets(ctx context.Context, eventID string) ([]*domain.Ticket, error)
}

type availabilityService struct {
	ticketRepo repository.TicketRepository
	lockRepo   repository.TicketLockRepository
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(ticketRepo repository.TicketRepository, lockRepo repository.TicketLockRepository) AvailabilityService {
	return &availabilityService{
		ticketRepo: ticketRepo,
		lockRepo:   lockRepo,
	}
}

// IsTicketAvailable reports whether a ticket is unsold and unlocked
func (s *availabilityService) IsTicketAvailable(ctx context.Context, ticketID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.is_available")
	defer span.End()

	span.SetAttributes(attribute.String("ticket.id", ticketID))

	ticket, err := s.ticketRepo.GetByTicketID(ctx, ticketID)
	if err != nil {
		if err == domain.ErrTicketNotFound {
			span.SetStatus(codes.Ok, "")
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	if !ticket.IsAvailable() {
		span.SetStatus(codes.Ok, "")
		return false, nil
	}

	held, err := s.lockRepo.IsHeld(ctx, ticketID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	span.SetAttributes(attribute.Bool("ticket.locked", held))
	span.SetStatus(codes.Ok, "")
	return !held, nil
}

// GetTicket loads a ticket by its public id
func (s *availabilityService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.ticketRepo.GetByTicketID(ctx, ticketID)
}

// GetAvailableTickets lists sellable tickets for an event, excluding tickets
// currently held by an admission lock
func (s *availabilityService) GetAvailableTickets(ctx context.Context, eventID string) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.list_available")
	defer span.End()

	span.SetAttributes(attribute.String("event.id", eventID))

	tickets, err := s.ticketRepo.ListAvailableByEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	lockedIDs, err := s.lockRepo.LockedTicketIDs(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	locked := make(map[string]struct{}, len(lockedIDs))
	for _, id := range lockedIDs {
		locked[id] = struct{}{}
	}

	available := make([]*domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if _, held := locked[t.TicketID]; !held {
			available = append(available, t)
		}
	}

	span.SetAttributes(
		attribute.Int("tickets.available", len(available)),
		attribute.Int("tickets.locked", len(lockedIDs)),
	)
	span.SetStatus(codes.Ok, "")
	return available, nil
}

var _ AvailabilityService = (*availabilityService)(nil)
