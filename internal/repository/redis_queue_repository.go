package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	pkgredis "github.com/mmtext/booking-engine/pkg/redis"
	"github.com/mmtext/booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed scripts/enqueue.lua
var enqueueScript string

//go:embed scripts/pop_batch.lua
var popBatchScript string

//go:embed scripts/remove_entry.lua
var removeEntryScript string

// Script names for caching
const (
	scriptEnqueue     = "enqueue"
	scriptPopBatch    = "pop_batch"
	scriptRemoveEntry = "remove_entry"
)

const (
	queueKeyPrefix = "queue:"
	activeIndexKey = "active_queues"
)

// RedisQueueRepository implements QueueRepository using Redis sorted sets.
// Enqueue order is the sorted-set score (enqueue time in millis), so the
// head of the set is always the earliest waiter.
type RedisQueueRepository struct {
	client *pkgredis.Client
}

// NewRedisQueueRepository creates a new RedisQueueRepository
func NewRedisQueueRepository(client *pkgredis.Client) *RedisQueueRepository {
	return &RedisQueueRepository{client: client}
}

// LoadScripts loads all queue Lua scripts into Redis
func (r *RedisQueueRepository) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptEnqueue:     enqueueScript,
		scriptPopBatch:    popBatchScript,
		scriptRemoveEntry: removeEntryScript,
	}

	for name, script := range scripts {
		if _, err := r.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}

	return nil
}

func queueKey(ticketID string) string {
	return queueKeyPrefix + ticketID
}

// Enqueue appends a booking to the ticket's queue and registers the queue
// in the active index atomically
func (r *RedisQueueRepository) Enqueue(ctx context.Context, ticketID, bookingReference string) (*EnqueueResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.queue.enqueue")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("booking_reference", bookingReference),
	)

	keys := []string{queueKey(ticketID), activeIndexKey}
	args := []interface{}{
		bookingReference,       // ARGV[1]: booking reference
		time.Now().UnixMilli(), // ARGV[2]: score
		ticketID,               // ARGV[3]: ticket id
	}

	result := r.client.EvalWithFallback(ctx, scriptEnqueue, enqueueScript, keys, args...)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return nil, fmt.Errorf("failed to execute enqueue script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse script result: %w", err)
	}

	if len(values) < 2 {
		span.SetStatus(codes.Error, "unexpected result length")
		return nil, fmt.Errorf("unexpected script result length: %d", len(values))
	}

	position, _ := toInt64(values[0])
	total, _ := toInt64(values[1])

	span.SetAttributes(
		attribute.Int64("position", position),
		attribute.Int64("total_in_queue", total),
	)
	span.SetStatus(codes.Ok, "")
	return &EnqueueResult{
		Position:     position,
		TotalInQueue: total,
	}, nil
}

// PopBatch atomically removes up to count entries from the queue head,
// deregistering the queue from the active index when it empties
func (r *RedisQueueRepository) PopBatch(ctx context.Context, ticketID string, count int64) (*PopBatchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.queue.pop_batch")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.Int64("count", count),
	)

	keys := []string{queueKey(ticketID), activeIndexKey}
	args := []interface{}{
		count,    // ARGV[1]: batch size
		ticketID, // ARGV[2]: ticket id
	}

	result := r.client.EvalWithFallback(ctx, scriptPopBatch, popBatchScript, keys, args...)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return nil, fmt.Errorf("failed to execute pop_batch script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse script result: %w", err)
	}

	if len(values) < 2 {
		span.SetStatus(codes.Error, "unexpected result length")
		return nil, fmt.Errorf("unexpected script result length: %d", len(values))
	}

	rawEntries, ok := values[0].([]interface{})
	if !ok {
		span.SetStatus(codes.Error, "unexpected entries type")
		return nil, fmt.Errorf("unexpected entries type %T", values[0])
	}

	references := make([]string, 0, len(rawEntries))
	for _, e := range rawEntries {
		if s, ok := e.(string); ok {
			references = append(references, s)
		}
	}

	remaining, _ := toInt64(values[1])

	span.SetAttributes(
		attribute.Int("popped", len(references)),
		attribute.Int64("remaining", remaining),
	)
	span.SetStatus(codes.Ok, "")
	return &PopBatchResult{
		References: references,
		Remaining:  remaining,
	}, nil
}

// Position returns a booking's 1-based position, or 0 when absent
func (r *RedisQueueRepository) Position(ctx context.Context, ticketID, bookingReference string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.queue.position")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("booking_reference", bookingReference),
	)

	rank, err := r.client.ZRank(ctx, queueKey(ticketID), bookingReference).Result()
	if err != nil {
		if err.Error() == "redis: nil" {
			span.SetStatus(codes.Ok, "not in queue")
			return 0, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to get queue position: %w", err)
	}

	span.SetAttributes(attribute.Int64("position", rank+1))
	span.SetStatus(codes.Ok, "")
	return rank + 1, nil
}

// Size returns the number of waiting bookings
func (r *RedisQueueRepository) Size(ctx context.Context, ticketID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.queue.size")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", ticketID))

	count, err := r.client.ZCard(ctx, queueKey(ticketID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to get queue size: %w", err)
	}

	span.SetAttributes(attribute.Int64("count", count))
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// Remove deletes a single booking from the queue, keeping the active
// index consistent when the queue empties
func (r *RedisQueueRepository) Remove(ctx context.Context, ticketID, bookingReference string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.queue.remove")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("booking_reference", bookingReference),
	)

	keys := []string{queueKey(ticketID), activeIndexKey}
	args := []interface{}{
		bookingReference, // ARGV[1]: booking reference
		ticketID,         // ARGV[2]: ticket id
	}

	result := r.client.EvalWithFallback(ctx, scriptRemoveEntry, removeEntryScript, keys, args...)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return fmt.Errorf("failed to execute remove_entry script: %w", result.Err())
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ActiveTicketIDs lists ticket ids with registered queues
func (r *RedisQueueRepository) ActiveTicketIDs(ctx context.Context) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.queue.active_ticket_ids")
	defer span.End()

	ticketIDs, err := r.client.SMembers(ctx, activeIndexKey).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list active queues: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(ticketIDs)))
	span.SetStatus(codes.Ok, "")
	return ticketIDs, nil
}

// Helper function to convert interface{} to int64
func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case float64:
		return int64(val), true
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Ensure RedisQueueRepository implements QueueRepository
var _ QueueRepository = (*RedisQueueRepository)(nil)
