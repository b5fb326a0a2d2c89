package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/internal/dto"
)

// chanSubscriber buffers pushed events for inspection
type chanSubscriber struct {
	events  chan Event
	closed  chan struct{}
	sendErr error
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{
		events: make(chan Event, 16),
		closed: make(chan struct{}),
	}
}

func (s *chanSubscriber) Send(event Event) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	select {
	case s.events <- event:
	default:
	}
	return nil
}

func (s *chanSubscriber) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

func (s *chanSubscriber) next(t *testing.T, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for an event")
		return Event{}
	}
}

func (s *chanSubscriber) waitClosed(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for the subscriber to close")
	}
}

// fakeStatusSource serves canned booking details
type fakeStatusSource struct {
	details *dto.BookingResponse
	err     error
}

func (f *fakeStatusSource) GetBookingDetails(ctx context.Context, bookingReference string) (*dto.BookingResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.details, nil
}

func fastConfig() *Config {
	return &Config{
		InitialDelayJitter: time.Millisecond,
		UpdateInterval:     5 * time.Millisecond,
		UpdateJitter:       time.Millisecond,
		MaxConnectionAge:   time.Second,
	}
}

func TestNotifier_RegisterSendsConnected(t *testing.T) {
	source := &fakeStatusSource{details: &dto.BookingResponse{
		BookingReference: "BK-1",
		Status:           string(domain.BookingStatusQueued),
		QueuePosition:    10,
	}}
	n := New(source, fastConfig())
	defer n.Shutdown()

	sub := newChanSubscriber()
	n.Register("BK-1", sub)

	ev := sub.next(t, time.Second)
	if ev.Name != "connected" {
		t.Fatalf("first event = %s, want connected", ev.Name)
	}
	update, ok := ev.Data.(*dto.StatusUpdate)
	if !ok {
		t.Fatalf("connected payload type = %T, want *dto.StatusUpdate", ev.Data)
	}
	if update.ReconnectMillis != 3000 {
		t.Errorf("connected reconnect hint = %d, want 3000", update.ReconnectMillis)
	}
	if n.ActiveConnections() != 1 {
		t.Errorf("ActiveConnections() = %d, want 1", n.ActiveConnections())
	}
}

func TestNotifier_QueuedUpdatesKeepStreaming(t *testing.T) {
	source := &fakeStatusSource{details: &dto.BookingResponse{
		BookingReference: "BK-1",
		Status:           string(domain.BookingStatusQueued),
		QueuePosition:    250,
		EstimatedWait:    15,
	}}
	n := New(source, fastConfig())
	defer n.Shutdown()

	sub := newChanSubscriber()
	n.Register("BK-1", sub)
	sub.next(t, time.Second) // connected

	ev := sub.next(t, time.Second)
	if ev.Name != "queue-status" {
		t.Fatalf("event = %s, want queue-status", ev.Name)
	}
	update := ev.Data.(*dto.StatusUpdate)
	if update.Position != 250 {
		t.Errorf("position = %d, want 250", update.Position)
	}
	if update.ReconnectMillis != 5000 {
		t.Errorf("reconnect hint at position 250 = %d, want 5000", update.ReconnectMillis)
	}

	// A non-terminal status keeps the subscription open
	sub.next(t, time.Second)
	if n.ActiveConnections() != 1 {
		t.Errorf("ActiveConnections() = %d, want 1", n.ActiveConnections())
	}
}

func TestNotifier_TerminalStatusClosesStream(t *testing.T) {
	source := &fakeStatusSource{details: &dto.BookingResponse{
		BookingReference: "BK-1",
		Status:           string(domain.BookingStatusConfirmed),
	}}
	n := New(source, fastConfig())
	defer n.Shutdown()

	sub := newChanSubscriber()
	n.Register("BK-1", sub)
	sub.next(t, time.Second) // connected

	ev := sub.next(t, time.Second)
	if ev.Name != "queue-status" {
		t.Fatalf("event = %s, want queue-status", ev.Name)
	}
	sub.waitClosed(t, time.Second)

	if n.ActiveConnections() != 0 {
		t.Errorf("ActiveConnections() after terminal push = %d, want 0", n.ActiveConnections())
	}
}

func TestNotifier_PaymentPendingRedirects(t *testing.T) {
	source := &fakeStatusSource{details: &dto.BookingResponse{
		BookingReference: "BK-1",
		Status:           string(domain.BookingStatusPaymentPending),
		PaymentURL:       "https://payment.example.com/checkout/PAY-1",
	}}
	n := New(source, fastConfig())
	defer n.Shutdown()

	sub := newChanSubscriber()
	n.Register("BK-1", sub)
	sub.next(t, time.Second) // connected

	status := sub.next(t, time.Second)
	if status.Name != "queue-status" {
		t.Fatalf("event = %s, want queue-status", status.Name)
	}
	redirect := sub.next(t, time.Second)
	if redirect.Name != "redirect" {
		t.Fatalf("event = %s, want redirect", redirect.Name)
	}
	update := redirect.Data.(*dto.StatusUpdate)
	if update.PaymentURL == "" {
		t.Error("expected the redirect to carry the payment URL")
	}
	sub.waitClosed(t, time.Second)
}

func TestNotifier_UnknownBookingClosesStream(t *testing.T) {
	source := &fakeStatusSource{err: domain.ErrBookingNotFound}
	n := New(source, fastConfig())
	defer n.Shutdown()

	sub := newChanSubscriber()
	n.Register("BK-MISSING", sub)
	sub.next(t, time.Second) // connected

	ev := sub.next(t, time.Second)
	if ev.Name != "error" {
		t.Fatalf("event = %s, want error", ev.Name)
	}
	sub.waitClosed(t, time.Second)
}

func TestNotifier_FirstPushWaitsForJitter(t *testing.T) {
	source := &fakeStatusSource{details: &dto.BookingResponse{
		BookingReference: "BK-1",
		Status:           string(domain.BookingStatusQueued),
		QueuePosition:    42,
	}}
	n := New(source, &Config{
		InitialDelayJitter: time.Minute,
		UpdateInterval:     time.Minute,
		UpdateJitter:       time.Minute,
		MaxConnectionAge:   time.Hour,
	})
	defer n.Shutdown()

	sub := newChanSubscriber()
	n.Register("BK-1", sub)

	ev := sub.next(t, time.Second)
	if ev.Name != "connected" {
		t.Fatalf("first event = %s, want connected", ev.Name)
	}

	// No status push may arrive before the initial jitter elapses
	select {
	case ev := <-sub.events:
		t.Errorf("got %s before the jitter window elapsed", ev.Name)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestNotifier_KickPushesImmediately(t *testing.T) {
	source := &fakeStatusSource{details: &dto.BookingResponse{
		BookingReference: "BK-1",
		Status:           string(domain.BookingStatusQueued),
		QueuePosition:    1,
	}}
	// Long intervals so only the kick can explain a prompt push
	n := New(source, &Config{
		InitialDelayJitter: time.Minute,
		UpdateInterval:     time.Minute,
		UpdateJitter:       time.Minute,
		MaxConnectionAge:   time.Hour,
	})
	defer n.Shutdown()

	sub := newChanSubscriber()
	n.Register("BK-1", sub)
	sub.next(t, time.Second) // connected

	n.NotifyBookingUpdate("BK-1")

	ev := sub.next(t, time.Second)
	if ev.Name != "queue-status" {
		t.Errorf("event after kick = %s, want queue-status", ev.Name)
	}
}

func TestNotifier_ReplacesExistingSubscriber(t *testing.T) {
	source := &fakeStatusSource{details: &dto.BookingResponse{
		BookingReference: "BK-1",
		Status:           string(domain.BookingStatusQueued),
		QueuePosition:    1,
	}}
	n := New(source, &Config{
		InitialDelayJitter: time.Minute,
		UpdateInterval:     time.Minute,
		UpdateJitter:       time.Minute,
		MaxConnectionAge:   time.Hour,
	})
	defer n.Shutdown()

	first := newChanSubscriber()
	n.Register("BK-1", first)
	first.next(t, time.Second)

	second := newChanSubscriber()
	n.Register("BK-1", second)
	second.next(t, time.Second)

	first.waitClosed(t, time.Second)
	if n.ActiveConnections() != 1 {
		t.Errorf("ActiveConnections() = %d, want 1", n.ActiveConnections())
	}
}

func TestNotifier_DeadClientIsRemoved(t *testing.T) {
	source := &fakeStatusSource{details: &dto.BookingResponse{
		BookingReference: "BK-1",
		Status:           string(domain.BookingStatusQueued),
	}}
	n := New(source, fastConfig())
	defer n.Shutdown()

	sub := newChanSubscriber()
	sub.sendErr = errors.New("client gone")
	n.Register("BK-1", sub)

	sub.waitClosed(t, time.Second)
	if n.ActiveConnections() != 0 {
		t.Errorf("ActiveConnections() = %d, want 0", n.ActiveConnections())
	}
}

func TestReconnectHintMillis(t *testing.T) {
	tests := []struct {
		position int64
		want     int64
	}{
		{1, 3000},
		{100, 3000},
		{101, 5000},
		{500, 5000},
		{501, 8000},
		{1000, 8000},
		{1001, 12000},
		{50000, 12000},
	}
	for _, tt := range tests {
		if got := reconnectHintMillis(tt.position); got != tt.want {
			t.Errorf("reconnectHintMillis(%d) = %d, want %d", tt.position, got, tt.want)
		}
	}
}
