package metrics

import (
	"context"
	"sync"

	"github.com/mmtext/booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Admission counters
	BookingsAdmitted  *telemetry.Counter
	BookingsQueued    *telemetry.Counter
	BookingsConfirmed *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	BookingsExpired   *telemetry.Counter
	BookingsFailed    *telemetry.Counter

	// Queue counters
	QueueJoined  *telemetry.Counter
	QueueDrained *telemetry.Counter

	// Webhook and stream counters
	WebhooksReceived  *telemetry.Counter
	RateLimitRejected *telemetry.Counter
	ErrorsTotal       *telemetry.Counter

	// Histograms
	DrainCycleDuration *telemetry.Histogram
	RequestDuration    *telemetry.Histogram

	// Gauges
	ActivePendingBookings *telemetry.UpDownCounter
	QueueDepth            *telemetry.UpDownCounter
	StreamConnections     *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all booking metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	BookingsAdmitted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_admissions_total",
		Description: "Total number of bookings admitted to payment",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsQueued, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_queued_total",
		Description: "Total number of bookings placed in a queue",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_confirmations_total",
		Description: "Total number of bookings confirmed",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_cancellations_total",
		Description: "Total number of cancelled bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsExpired, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_expirations_total",
		Description: "Total number of expired bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	BookingsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_failures_total",
		Description: "Total number of failed bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	QueueJoined, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "queue_joins_total",
		Description: "Total number of bookings that joined a queue",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	QueueDrained, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "queue_drained_total",
		Description: "Total number of queue entries drained",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksReceived, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_webhooks_total",
		Description: "Total number of payment webhooks received",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RateLimitRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "stream_rate_limited_total",
		Description: "Total number of stream connections rejected by rate limiting",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ErrorsTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "booking_errors_total",
		Description: "Total number of errors by type",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	DrainCycleDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "queue_drain_cycle_duration_seconds",
		Description: "Duration of one queue drain cycle",
		Unit:        "s",
	}, []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
	if err != nil {
		return err
	}

	RequestDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "booking_request_duration_seconds",
		Description: "HTTP request duration in seconds",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
	if err != nil {
		return err
	}

	ActivePendingBookings, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "booking_active_pending",
		Description: "Current number of bookings awaiting payment",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	QueueDepth, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "queue_depth",
		Description: "Current number of bookings waiting in queues",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	StreamConnections, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "stream_connections",
		Description: "Current number of open status stream connections",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordAdmission records a booking admitted straight to payment
func RecordAdmission(ctx context.Context, tier string) {
	if BookingsAdmitted != nil {
		BookingsAdmitted.Inc(ctx,
			attribute.String("tier", tier),
		)
	}
	if ActivePendingBookings != nil {
		ActivePendingBookings.Inc(ctx)
	}
}

// RecordQueued records a booking placed in a queue
func RecordQueued(ctx context.Context, ticketID string) {
	if BookingsQueued != nil {
		BookingsQueued.Inc(ctx,
			attribute.String("ticket_id", ticketID),
		)
	}
	if QueueJoined != nil {
		QueueJoined.Inc(ctx,
			attribute.String("ticket_id", ticketID),
		)
	}
	if QueueDepth != nil {
		QueueDepth.Inc(ctx)
	}
}

// RecordConfirmation records a confirmed booking
func RecordConfirmation(ctx context.Context, tier string) {
	if BookingsConfirmed != nil {
		BookingsConfirmed.Inc(ctx,
			attribute.String("tier", tier),
		)
	}
	if ActivePendingBookings != nil {
		ActivePendingBookings.Dec(ctx)
	}
}

// RecordCancellation records a cancelled booking
func RecordCancellation(ctx context.Context, reason string) {
	if BookingsCancelled != nil {
		BookingsCancelled.Inc(ctx,
			attribute.String("reason", reason),
		)
	}
}

// RecordExpiration records a batch of expired bookings
func RecordExpiration(ctx context.Context, count int64) {
	if BookingsExpired != nil {
		BookingsExpired.Add(ctx, count)
	}
}

// RecordFailure records a failed booking
func RecordFailure(ctx context.Context, reason string) {
	if BookingsFailed != nil {
		BookingsFailed.Inc(ctx,
			attribute.String("reason", reason),
		)
	}
}

// RecordDrain records entries drained from a queue in one cycle
func RecordDrain(ctx context.Context, ticketID string, count int64, durationSeconds float64) {
	if QueueDrained != nil {
		QueueDrained.Add(ctx, count,
			attribute.String("ticket_id", ticketID),
		)
	}
	if QueueDepth != nil {
		QueueDepth.Add(ctx, -count)
	}
	if DrainCycleDuration != nil {
		DrainCycleDuration.Record(ctx, durationSeconds,
			attribute.String("ticket_id", ticketID),
		)
	}
}

// RecordWebhook records an inbound payment webhook
func RecordWebhook(ctx context.Context, status string) {
	if WebhooksReceived != nil {
		WebhooksReceived.Inc(ctx,
			attribute.String("status", status),
		)
	}
}

// RecordRateLimited records a rejected stream connection
func RecordRateLimited(ctx context.Context) {
	if RateLimitRejected != nil {
		RateLimitRejected.Inc(ctx)
	}
}

// RecordError records an error by type and operation
func RecordError(ctx context.Context, errorType, operation string) {
	if ErrorsTotal != nil {
		ErrorsTotal.Inc(ctx,
			attribute.String("error_type", errorType),
			attribute.String("operation", operation),
		)
	}
}

// RecordRequestDuration records HTTP request duration
func RecordRequestDuration(ctx context.Context, operation string, durationSeconds float64) {
	if RequestDuration != nil {
		RequestDuration.Record(ctx, durationSeconds,
			attribute.String("operation", operation),
		)
	}
}

// StreamOpened records a new status stream connection
func StreamOpened(ctx context.Context) {
	if StreamConnections != nil {
		StreamConnections.Inc(ctx)
	}
}

// StreamClosed records a closed status stream connection
func StreamClosed(ctx context.Context) {
	if StreamConnections != nil {
		StreamConnections.Dec(ctx)
	}
}
