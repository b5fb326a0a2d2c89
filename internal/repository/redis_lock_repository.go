package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	pkgredis "github.com/mmtext/booking-engine/pkg/redis"
	"github.com/mmtext/booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed scripts/acquire_lock.lua
var acquireLockScript string

// Script name for caching
const scriptAcquireLock = "acquire_lock"

const lockKeyPrefix = "ticket:"

// RedisTicketLockRepository implements TicketLockRepository using Redis
type RedisTicketLockRepository struct {
	client *pkgredis.Client
}

// NewRedisTicketLockRepository creates a new RedisTicketLockRepository
func NewRedisTicketLockRepository(client *pkgredis.Client) *RedisTicketLockRepository {
	return &RedisTicketLockRepository{client: client}
}

// LoadScripts loads all lock Lua scripts into Redis
func (r *RedisTicketLockRepository) LoadScripts(ctx context.Context) error {
	if _, err := r.client.LoadScript(ctx, scriptAcquireLock, acquireLockScript); err != nil {
		return fmt.Errorf("failed to load script %s: %w", scriptAcquireLock, err)
	}
	return nil
}

func lockKey(ticketID string) string {
	return lockKeyPrefix + ticketID
}

// Acquire attempts to take the ticket lock for a booking reference.
// Existence check and set run in one Lua script so two concurrent
// callers can never both see the key absent.
func (r *RedisTicketLockRepository) Acquire(ctx context.Context, ticketID, bookingReference string, ttl time.Duration) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.lock.acquire")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("booking_reference", bookingReference),
	)

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}

	keys := []string{lockKey(ticketID)}
	args := []interface{}{
		bookingReference, // ARGV[1]: holder
		ttlSeconds,       // ARGV[2]: ttl_seconds
	}

	result := r.client.EvalWithFallback(ctx, scriptAcquireLock, acquireLockScript, keys, args...)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		// Fail closed: an indeterminate lock must not admit a booking
		return false, fmt.Errorf("failed to execute acquire_lock script: %w", result.Err())
	}

	acquired, err := result.Int64()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to parse script result: %w", err)
	}

	span.SetAttributes(attribute.Bool("acquired", acquired == 1))
	span.SetStatus(codes.Ok, "")
	return acquired == 1, nil
}

// Release unconditionally frees the lock
func (r *RedisTicketLockRepository) Release(ctx context.Context, ticketID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.lock.release")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", ticketID))

	if err := r.client.Del(ctx, lockKey(ticketID)).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to release ticket lock: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// IsHeld reports whether the lock currently exists
func (r *RedisTicketLockRepository) IsHeld(ctx context.Context, ticketID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.lock.is_held")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", ticketID))

	exists, err := r.client.Exists(ctx, lockKey(ticketID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to check ticket lock: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return exists == 1, nil
}

// Holder returns the booking reference holding the lock ("" when free)
func (r *RedisTicketLockRepository) Holder(ctx context.Context, ticketID string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.lock.holder")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", ticketID))

	holder, err := r.client.Get(ctx, lockKey(ticketID)).Result()
	if err != nil {
		if err.Error() == "redis: nil" {
			span.SetStatus(codes.Ok, "not held")
			return "", nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to get lock holder: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return holder, nil
}

// LockedTicketIDs lists ticket ids with active locks for an event.
// Ticket ids are prefixed with their event id, so a single SCAN
// pattern covers the event.
func (r *RedisTicketLockRepository) LockedTicketIDs(ctx context.Context, eventID string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.lock.locked_ticket_ids")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	pattern := lockKeyPrefix + eventID + "*"
	var ticketIDs []string
	var cursor uint64

	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan ticket locks: %w", err)
		}

		for _, key := range keys {
			ticketIDs = append(ticketIDs, strings.TrimPrefix(key, lockKeyPrefix))
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("count", len(ticketIDs)))
	span.SetStatus(codes.Ok, "")
	return ticketIDs, nil
}

// Ensure RedisTicketLockRepository implements TicketLockRepository
var _ TicketLockRepository = (*RedisTicketLockRepository)(nil)
