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

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

const bookingColumns = `
	id, booking_reference, user_id, ticket_id, concurrency_tier, status,
	amount, supplier_reservation_id, payment_id,
	paid_at, cancelled_at, expires_at, created_at, updated_at
`

// Create creates a new booking record in the database
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_reference", booking.BookingReference),
		attribute.String("user_id", booking.UserID),
		attribute.String("ticket_id", booking.TicketID),
	)

	query := `
		INSERT INTO bookings (
			booking_reference, user_id, ticket_id, concurrency_tier, status,
			amount, supplier_reservation_id, payment_id,
			paid_at, cancelled_at, expires_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13
		)
		RETURNING id
	`

	now := time.Now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	err := r.pool.QueryRow(ctx, query,
		booking.BookingReference,
		booking.UserID,
		booking.TicketID,
		string(booking.ConcurrencyTier),
		string(booking.Status),
		booking.Amount,
		nullString(booking.SupplierReservationID),
		nullString(booking.PaymentID),
		booking.PaidAt,
		booking.CancelledAt,
		booking.ExpiresAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Scan(&booking.ID)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByReference retrieves a booking by its reference
func (r *PostgresBookingRepository) GetByReference(ctx context.Context, bookingReference string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_reference")
	defer span.End()

	span.SetAttributes(attribute.String("booking_reference", bookingReference))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_reference = $1`

	booking, err := scanBookingRow(r.pool.QueryRow(ctx, query, bookingReference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetByReferenceAndUser scopes the lookup to the requesting user
func (r *PostgresBookingRepository) GetByReferenceAndUser(ctx context.Context, bookingReference, userID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_reference_and_user")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_reference", bookingReference),
		attribute.String("user_id", userID),
	)

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_reference = $1 AND user_id = $2`

	booking, err := scanBookingRow(r.pool.QueryRow(ctx, query, bookingReference, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// UpdateStatus updates only the status of a booking
func (r *PostgresBookingRepository) UpdateStatus(ctx context.Context, bookingReference string, status domain.BookingStatus) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update_status")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_reference", bookingReference),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE bookings SET
			status = $2,
			updated_at = $3
		WHERE booking_reference = $1
	`

	result, err := r.pool.Exec(ctx, query, bookingReference, string(status), time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// MarkPaymentPending moves a queued booking into its payment window
func (r *PostgresBookingRepository) MarkPaymentPending(ctx context.Context, bookingReference, paymentID string, expiresAt time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.mark_payment_pending")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_reference", bookingReference),
		attribute.String("payment_id", paymentID),
	)

	query := `
		UPDATE bookings SET
			status = $2,
			payment_id = $3,
			expires_at = $4,
			updated_at = $5
		WHERE booking_reference = $1 AND status = $6
	`

	result, err := r.pool.Exec(ctx, query,
		bookingReference,
		string(domain.BookingStatusPaymentPending),
		nullString(paymentID),
		expiresAt,
		time.Now(),
		string(domain.BookingStatusQueued),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark booking payment pending: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found or not queued")
		return domain.ErrInvalidBookingStatus
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Confirm upserts the booking as CONFIRMED with payment details.
// LOW and MEDIUM tier bookings reach the database for the first time
// here; HIGH tier rows already exist and are updated in place.
func (r *PostgresBookingRepository) Confirm(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.confirm")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_reference", booking.BookingReference),
		attribute.String("payment_id", booking.PaymentID),
	)

	query := `
		INSERT INTO bookings (
			booking_reference, user_id, ticket_id, concurrency_tier, status,
			amount, supplier_reservation_id, payment_id,
			paid_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11
		)
		ON CONFLICT (booking_reference) DO UPDATE SET
			status = EXCLUDED.status,
			payment_id = EXCLUDED.payment_id,
			paid_at = EXCLUDED.paid_at,
			supplier_reservation_id = EXCLUDED.supplier_reservation_id,
			expires_at = NULL,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now()
	_, err := r.pool.Exec(ctx, query,
		booking.BookingReference,
		booking.UserID,
		booking.TicketID,
		string(booking.ConcurrencyTier),
		string(domain.BookingStatusConfirmed),
		booking.Amount,
		nullString(booking.SupplierReservationID),
		nullString(booking.PaymentID),
		booking.PaidAt,
		now,
		now,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to confirm booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Cancel flips the booking to CANCELLED and stamps cancelled_at
func (r *PostgresBookingRepository) Cancel(ctx context.Context, bookingReference string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("booking_reference", bookingReference))

	query := `
		UPDATE bookings SET
			status = $2,
			cancelled_at = $3,
			updated_at = $3
		WHERE booking_reference = $1
	`

	now := time.Now()
	result, err := r.pool.Exec(ctx, query, bookingReference, string(domain.BookingStatusCancelled), now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to cancel booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ExpireOverdue cancels QUEUED and PAYMENT_PENDING rows whose expires_at
// has passed, returning the number of rows touched
func (r *PostgresBookingRepository) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.expire_overdue")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		UPDATE bookings SET
			status = $1,
			cancelled_at = $2,
			updated_at = $2
		WHERE id IN (
			SELECT id FROM bookings
			WHERE status IN ($3, $4)
				AND expires_at IS NOT NULL
				AND expires_at < $2
			LIMIT $5
		)
	`

	result, err := r.pool.Exec(ctx, query,
		string(domain.BookingStatusCancelled),
		now,
		string(domain.BookingStatusQueued),
		string(domain.BookingStatusPaymentPending),
		limit,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to expire overdue bookings: %w", err)
	}

	expired := result.RowsAffected()
	span.SetAttributes(attribute.Int64("expired", expired))
	span.SetStatus(codes.Ok, "")
	return expired, nil
}

// scanBookingRow scans a single row into a Booking struct
func scanBookingRow(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		tier                  string
		status                string
		supplierReservationID *string
		paymentID             *string
	)

	err := row.Scan(
		&booking.ID,
		&booking.BookingReference,
		&booking.UserID,
		&booking.TicketID,
		&tier,
		&status,
		&booking.Amount,
		&supplierReservationID,
		&paymentID,
		&booking.PaidAt,
		&booking.CancelledAt,
		&booking.ExpiresAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.ConcurrencyTier = domain.ConcurrencyTier(tier)
	booking.Status = domain.BookingStatus(status)
	if supplierReservationID != nil {
		booking.SupplierReservationID = *supplierReservationID
	}
	if paymentID != nil {
		booking.PaymentID = *paymentID
	}

	return booking, nil
}

// Helper function to convert empty string to nil pointer
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresBookingRepository implements BookingRepository
var _ BookingRepository = (*PostgresBookingRepository)(nil)
