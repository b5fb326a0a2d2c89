package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresTicketRepository implements TicketRepository using PostgreSQL with pgxpool
type PostgresTicketRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketRepository creates a new PostgresTicketRepository
func NewPostgresTicketRepository(pool *pgxpool.Pool) *PostgresTicketRepository {
	return &PostgresTicketRepository{pool: pool}
}

const ticketColumns = `
	id, ticket_id, event_id, event_name, seat_number, price,
	concurrency_tier, status, booked_by_user_id, booking_reference,
	booked_at, created_at, updated_at
`

// Create inserts a new ticket
func (r *PostgresTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticket.TicketID),
		attribute.String("event_id", ticket.EventID),
	)

	query := `
		INSERT INTO tickets (
			ticket_id, event_id, event_name, seat_number, price,
			concurrency_tier, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $8
		)
		RETURNING id
	`

	now := time.Now()
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusAvailable
	}

	err := r.pool.QueryRow(ctx, query,
		ticket.TicketID,
		ticket.EventID,
		ticket.EventName,
		ticket.SeatNumber,
		ticket.Price,
		string(ticket.ConcurrencyTier),
		string(ticket.Status),
		now,
	).Scan(&ticket.ID)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CreateBatch inserts multiple tickets, returning the number created
func (r *PostgresTicketRepository) CreateBatch(ctx context.Context, tickets []*domain.Ticket) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.create_batch")
	defer span.End()

	span.SetAttributes(attribute.Int("count", len(tickets)))

	batch := &pgx.Batch{}
	now := time.Now()
	query := `
		INSERT INTO tickets (
			ticket_id, event_id, event_name, seat_number, price,
			concurrency_tier, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (ticket_id) DO NOTHING
	`

	for _, t := range tickets {
		status := t.Status
		if status == "" {
			status = domain.TicketStatusAvailable
		}
		batch.Queue(query,
			t.TicketID, t.EventID, t.EventName, t.SeatNumber, t.Price,
			string(t.ConcurrencyTier), string(status), now,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	created := 0
	for range tickets {
		tag, err := results.Exec()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return created, fmt.Errorf("failed to create tickets: %w", err)
		}
		created += int(tag.RowsAffected())
	}

	span.SetAttributes(attribute.Int("created", created))
	span.SetStatus(codes.Ok, "")
	return created, nil
}

// GetByTicketID retrieves a ticket by its external id
func (r *PostgresTicketRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.get_by_ticket_id")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", ticketID))

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_id = $1`

	ticket, err := scanTicketRow(r.pool.QueryRow(ctx, query, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "not found")
			return nil, domain.ErrTicketNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return ticket, nil
}

// ListAvailableByEvent returns tickets whose durable status is AVAILABLE
func (r *PostgresTicketRepository) ListAvailableByEvent(ctx context.Context, eventID string) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.list_available")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE event_id = $1 AND status = $2
		ORDER BY seat_number
	`

	rows, err := r.pool.Query(ctx, query, eventID, string(domain.TicketStatusAvailable))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list available tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(tickets)))
	span.SetStatus(codes.Ok, "")
	return tickets, nil
}

// MarkBooked transitions a ticket to BOOKED with buyer details
func (r *PostgresTicketRepository) MarkBooked(ctx context.Context, ticketID, userID, bookingReference string, bookedAt time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.mark_booked")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("booking_reference", bookingReference),
	)

	query := `
		UPDATE tickets SET
			status = $2,
			booked_by_user_id = $3,
			booking_reference = $4,
			booked_at = $5,
			updated_at = $6
		WHERE ticket_id = $1 AND status = $7
	`

	result, err := r.pool.Exec(ctx, query,
		ticketID,
		string(domain.TicketStatusBooked),
		userID,
		bookingReference,
		bookedAt,
		time.Now(),
		string(domain.TicketStatusAvailable),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark ticket booked: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "unavailable")
		return domain.ErrTicketUnavailable
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// MarkAvailable returns a ticket to inventory, clearing buyer details
func (r *PostgresTicketRepository) MarkAvailable(ctx context.Context, ticketID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.mark_available")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", ticketID))

	query := `
		UPDATE tickets SET
			status = $2,
			booked_by_user_id = NULL,
			booking_reference = NULL,
			booked_at = NULL,
			updated_at = $3
		WHERE ticket_id = $1
	`

	result, err := r.pool.Exec(ctx, query, ticketID, string(domain.TicketStatusAvailable), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark ticket available: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrTicketNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// scanTicketRow scans a single row into a Ticket struct
func scanTicketRow(row pgx.Row) (*domain.Ticket, error) {
	ticket := &domain.Ticket{}
	var (
		tier             string
		status           string
		bookedByUserID   *string
		bookingReference *string
	)

	err := row.Scan(
		&ticket.ID,
		&ticket.TicketID,
		&ticket.EventID,
		&ticket.EventName,
		&ticket.SeatNumber,
		&ticket.Price,
		&tier,
		&status,
		&bookedByUserID,
		&bookingReference,
		&ticket.BookedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ticket.ConcurrencyTier = domain.ConcurrencyTier(tier)
	ticket.Status = domain.TicketStatus(status)
	if bookedByUserID != nil {
		ticket.BookedByUserID = *bookedByUserID
	}
	if bookingReference != nil {
		ticket.BookingReference = *bookingReference
	}

	return ticket, nil
}

// Ensure PostgresTicketRepository implements TicketRepository
var _ TicketRepository = (*PostgresTicketRepository)(nil)
