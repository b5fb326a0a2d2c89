// Package notifier pushes booking status updates to subscribed clients on a
// jittered schedule, so a burst of queued buyers does not poll in lockstep.
package notifier

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/internal/dto"
	"github.com/mmtext/booking-engine/internal/metrics"
	"github.com/mmtext/booking-engine/pkg/logger"
	"go.uber.org/zap"
)

// Event is one message pushed to a subscriber
type Event struct {
	Name string
	Data interface{}
}

// Subscriber is a transport-agnostic sink for status events
type Subscriber interface {
	// Send pushes one event to the client. An error means the client is
	// gone and the subscription should be dropped.
	Send(event Event) error

	// Close releases the subscriber's transport
	Close()
}

// StatusSource reads the current status of a booking
type StatusSource interface {
	GetBookingDetails(ctx context.Context, bookingReference string) (*dto.BookingResponse, error)
}

// Config holds notifier scheduling parameters
type Config struct {
	InitialDelayJitter time.Duration
	UpdateInterval     time.Duration
	UpdateJitter       time.Duration
	MaxConnectionAge   time.Duration
}

// DefaultConfig returns default notifier configuration
func DefaultConfig() *Config {
	return &Config{
		InitialDelayJitter: 2 * time.Second,
		UpdateInterval:     3 * time.Second,
		UpdateJitter:       2 * time.Second,
		MaxConnectionAge:   5 * time.Minute,
	}
}

// Notifier maintains at most one subscriber per booking reference and feeds
// each one periodic status updates until the booking reaches a terminal
// state or the connection ages out.
type Notifier struct {
	source StatusSource
	config *Config

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	bookingReference string
	subscriber       Subscriber
	kick             chan struct{}
	done             chan struct{}
	closeOnce        sync.Once
}

func (s *subscription) stop() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// New creates a notifier reading statuses from source
func New(source StatusSource, cfg *Config) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Notifier{
		source: source,
		config: cfg,
		subs:   make(map[string]*subscription),
	}
}

// Register attaches a subscriber for a booking reference. A previous
// subscriber for the same reference is closed and replaced.
func (n *Notifier) Register(bookingReference string, subscriber Subscriber) {
	sub := &subscription{
		bookingReference: bookingReference,
		subscriber:       subscriber,
		kick:             make(chan struct{}, 1),
		done:             make(chan struct{}),
	}

	n.mu.Lock()
	if old, ok := n.subs[bookingReference]; ok {
		old.stop()
	}
	n.subs[bookingReference] = sub
	n.mu.Unlock()

	metrics.StreamOpened(context.Background())

	// Tell the client how fast to come back if this connection drops
	if err := subscriber.Send(Event{
		Name: "connected",
		Data: &dto.StatusUpdate{
			BookingReference: bookingReference,
			ReconnectMillis:  3000,
			Message:          "status stream open",
		},
	}); err != nil {
		n.remove(sub)
		return
	}

	go n.run(sub)
}

// Unregister drops the subscriber for a booking reference, if any
func (n *Notifier) Unregister(bookingReference string) {
	n.mu.Lock()
	sub, ok := n.subs[bookingReference]
	n.mu.Unlock()
	if ok {
		sub.stop()
	}
}

// NotifyBookingUpdate pushes an immediate status read to an open stream.
// It is a no-op when no subscriber is registered for the reference.
func (n *Notifier) NotifyBookingUpdate(bookingReference string) {
	n.mu.Lock()
	sub, ok := n.subs[bookingReference]
	n.mu.Unlock()
	if !ok {
		return
	}
	select {
	case sub.kick <- struct{}{}:
	default:
	}
}

// ActiveConnections returns the number of open subscriptions
func (n *Notifier) ActiveConnections() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Shutdown closes every open subscription
func (n *Notifier) Shutdown() {
	n.mu.Lock()
	subs := make([]*subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (n *Notifier) run(sub *subscription) {
	defer n.remove(sub)

	maxAge := time.NewTimer(n.config.MaxConnectionAge)
	defer maxAge.Stop()

	// Spread first reads over the jitter window so a drain cycle's worth of
	// clients does not hit the status source at once
	timer := time.NewTimer(jitter(n.config.InitialDelayJitter))
	defer timer.Stop()

	for {
		select {
		case <-sub.done:
			return
		case <-maxAge.C:
			return
		case <-sub.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		if terminal := n.push(sub); terminal {
			return
		}

		timer.Reset(n.config.UpdateInterval + jitter(n.config.UpdateJitter))
	}
}

// push sends the current status to the subscriber. It returns true when the
// stream should close: terminal status, pending handoff, or a dead client.
func (n *Notifier) push(sub *subscription) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	details, err := n.source.GetBookingDetails(ctx, sub.bookingReference)
	if err != nil {
		if err == domain.ErrBookingNotFound {
			_ = sub.subscriber.Send(Event{
				Name: "error",
				Data: &dto.StatusUpdate{
					BookingReference: sub.bookingReference,
					Message:          "booking not found or expired",
				},
			})
			return true
		}
		logger.Get().Warn("Failed to read booking status for stream",
			zap.String("booking_reference", sub.bookingReference),
			zap.Error(err))
		return false
	}

	update := &dto.StatusUpdate{
		BookingReference: sub.bookingReference,
		Status:           details.Status,
		Position:         details.QueuePosition,
		EstimatedWait:    details.EstimatedWait,
		ReconnectMillis:  reconnectHintMillis(details.QueuePosition),
	}

	switch details.Status {
	case string(domain.BookingStatusPaymentPending):
		if err := sub.subscriber.Send(Event{Name: "queue-status", Data: update}); err != nil {
			return true
		}
		_ = sub.subscriber.Send(Event{
			Name: "redirect",
			Data: &dto.StatusUpdate{
				BookingReference: sub.bookingReference,
				Status:           details.Status,
				PaymentURL:       details.PaymentURL,
				Message:          "proceed to payment",
			},
		})
		return true
	case string(domain.BookingStatusConfirmed), string(domain.BookingStatusCancelled):
		_ = sub.subscriber.Send(Event{Name: "queue-status", Data: update})
		return true
	default:
		return sub.subscriber.Send(Event{Name: "queue-status", Data: update}) != nil
	}
}

func (n *Notifier) remove(sub *subscription) {
	n.mu.Lock()
	if current, ok := n.subs[sub.bookingReference]; ok && current == sub {
		delete(n.subs, sub.bookingReference)
	}
	n.mu.Unlock()

	sub.stop()
	sub.subscriber.Close()
	metrics.StreamClosed(context.Background())
}

// reconnectHintMillis slows reconnects down for clients deep in the queue
func reconnectHintMillis(position int64) int64 {
	switch {
	case position <= 100:
		return 3000
	case position <= 500:
		return 5000
	case position <= 1000:
		return 8000
	default:
		return 12000
	}
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
