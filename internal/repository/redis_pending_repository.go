package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmtext/booking-engine/internal/domain"
	pkgredis "github.com/mmtext/booking-engine/pkg/redis"
	"github.com/mmtext/booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	pendingKeyPrefix    = "booking:"
	processingKeyPrefix = "processing:"
)

// RedisPendingBookingRepository implements PendingBookingRepository using
// Redis TTL keys. Expiry is never swept by the application; the key
// simply vanishes and absence means the payment window closed.
type RedisPendingBookingRepository struct {
	client *pkgredis.Client
}

// NewRedisPendingBookingRepository creates a new RedisPendingBookingRepository
func NewRedisPendingBookingRepository(client *pkgredis.Client) *RedisPendingBookingRepository {
	return &RedisPendingBookingRepository{client: client}
}

func pendingKey(bookingReference string) string {
	return pendingKeyPrefix + bookingReference
}

func processingKey(bookingReference string) string {
	return processingKeyPrefix + bookingReference
}

// Put stores the payment-window record with TTL
func (r *RedisPendingBookingRepository) Put(ctx context.Context, booking *domain.PendingBooking, ttl time.Duration) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.pending.put")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_reference", booking.BookingReference),
		attribute.String("ticket_id", booking.TicketID),
	)

	payload, err := json.Marshal(booking)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal pending booking: %w", err)
	}

	if err := r.client.Set(ctx, pendingKey(booking.BookingReference), payload, ttl).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to store pending booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Get returns domain.ErrBookingNotFound when the record is absent or expired
func (r *RedisPendingBookingRepository) Get(ctx context.Context, bookingReference string) (*domain.PendingBooking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.pending.get")
	defer span.End()

	span.SetAttributes(attribute.String("booking_reference", bookingReference))

	payload, err := r.client.Get(ctx, pendingKey(bookingReference)).Result()
	if err != nil {
		if err.Error() == "redis: nil" {
			span.SetStatus(codes.Ok, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get pending booking: %w", err)
	}

	var booking domain.PendingBooking
	if err := json.Unmarshal([]byte(payload), &booking); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to unmarshal pending booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return &booking, nil
}

// Delete removes the payment-window record
func (r *RedisPendingBookingRepository) Delete(ctx context.Context, bookingReference string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.pending.delete")
	defer span.End()

	span.SetAttributes(attribute.String("booking_reference", bookingReference))

	if err := r.client.Del(ctx, pendingKey(bookingReference)).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete pending booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// MarkProcessing sets the duplicate-admission guard marker
func (r *RedisPendingBookingRepository) MarkProcessing(ctx context.Context, bookingReference string, ttl time.Duration) error {
	if err := r.client.Set(ctx, processingKey(bookingReference), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark booking processing: %w", err)
	}
	return nil
}

// IsProcessing reports whether the guard marker exists
func (r *RedisPendingBookingRepository) IsProcessing(ctx context.Context, bookingReference string) (bool, error) {
	exists, err := r.client.Exists(ctx, processingKey(bookingReference)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processing marker: %w", err)
	}
	return exists == 1, nil
}

// ClearProcessing removes the guard marker
func (r *RedisPendingBookingRepository) ClearProcessing(ctx context.Context, bookingReference string) error {
	if err := r.client.Del(ctx, processingKey(bookingReference)).Err(); err != nil {
		return fmt.Errorf("failed to clear processing marker: %w", err)
	}
	return nil
}

// Ensure RedisPendingBookingRepository implements PendingBookingRepository
var _ PendingBookingRepository = (*RedisPendingBookingRepository)(nil)
