package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/google/uuid"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/pkg/retry"
	"github.com/mmtext/booking-engine/pkg/telemetry"
)

// SupplierReservation is the supplier's answer to a reservation request
type SupplierReservation struct {
	Available     bool      `json:"available"`
	ReservationID string    `json:"reservation_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// SupplierClient reserves inventory with the upstream ticket supplier
type SupplierClient interface {
	// Reserve asks the supplier to hold a ticket for a user
	Reserve(ctx context.Context, ticketID, userID string) (*SupplierReservation, error)

	// Confirm finalizes a reservation after payment
	Confirm(ctx context.Context, reservationID, paymentID string) (bool, error)

	// Cancel releases a reservation
	Cancel(ctx context.Context, reservationID string) (bool, error)
}

// HTTPSupplierClient implements SupplierClient against the supplier gateway
type HTTPSupplierClient struct {
	baseURL    string
	httpClient *http.Client
	retrier    *retry.Retrier
}

// NewHTTPSupplierClient creates a supplier client with a bounded request timeout
func NewHTTPSupplierClient(baseURL string, timeout time.Duration) *HTTPSupplierClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTPSupplierClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retrier: retry.New(&retry.Config{
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		}),
	}
}

// Reserve asks the supplier to hold a ticket for a user
func (c *HTTPSupplierClient) Reserve(ctx context.Context, ticketID, userID string) (*SupplierReservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "client.supplier.reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket.id", ticketID),
		attribute.String("user.id", userID),
	)

	payload := map[string]string{
		"ticket_id": ticketID,
		"user_id":   userID,
	}

	var reservation SupplierReservation
	if err := c.postJSON(ctx, "/api/v1/reservations", payload, &reservation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", domain.ErrSupplierUnavailable, err)
	}

	span.SetAttributes(attribute.Bool("supplier.available", reservation.Available))
	span.SetStatus(codes.Ok, "")
	return &reservation, nil
}

// Confirm finalizes a reservation after payment
func (c *HTTPSupplierClient) Confirm(ctx context.Context, reservationID, paymentID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "client.supplier.confirm")
	defer span.End()

	span.SetAttributes(attribute.String("reservation.id", reservationID))

	payload := map[string]string{
		"payment_id": paymentID,
	}

	var result struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := c.postJSON(ctx, "/api/v1/reservations/"+reservationID+"/confirm", payload, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("%w: %v", domain.ErrSupplierUnavailable, err)
	}

	span.SetStatus(codes.Ok, "")
	return result.Confirmed, nil
}

// Cancel releases a reservation
func (c *HTTPSupplierClient) Cancel(ctx context.Context, reservationID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "client.supplier.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("reservation.id", reservationID))

	var result struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := c.postJSON(ctx, "/api/v1/reservations/"+reservationID+"/cancel", nil, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("%w: %v", domain.ErrSupplierUnavailable, err)
	}

	span.SetStatus(codes.Ok, "")
	return result.Cancelled, nil
}

func (c *HTTPSupplierClient) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	result := c.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Retryable(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Retryable(err)
		}

		if resp.StatusCode >= 500 {
			return retry.Retryable(fmt.Errorf("supplier returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("supplier returned %d: %s", resp.StatusCode, string(data)))
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return retry.Permanent(fmt.Errorf("failed to decode supplier response: %w", err))
			}
		}
		return nil
	})

	return result.Err
}

// StubSupplierClient is an in-process supplier for local development and tests.
// Every reservation succeeds and is remembered until cancelled.
type StubSupplierClient struct {
	mu           sync.Mutex
	reservations map[string]string
	holdDuration time.Duration
}

// NewStubSupplierClient creates a stub supplier with a 15 minute hold window
func NewStubSupplierClient() *StubSupplierClient {
	return &StubSupplierClient{
		reservations: make(map[string]string),
		holdDuration: 15 * time.Minute,
	}
}

func (c *StubSupplierClient) Reserve(ctx context.Context, ticketID, userID string) (*SupplierReservation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reservationID := "RSV-" + uuid.New().String()
	c.reservations[reservationID] = ticketID

	return &SupplierReservation{
		Available:     true,
		ReservationID: reservationID,
		ExpiresAt:     time.Now().Add(c.holdDuration),
	}, nil
}

func (c *StubSupplierClient) Confirm(ctx context.Context, reservationID, paymentID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.reservations[reservationID]
	return ok, nil
}

func (c *StubSupplierClient) Cancel(ctx context.Context, reservationID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.reservations[reservationID]
	delete(c.reservations, reservationID)
	return ok, nil
}

var _ SupplierClient = (*HTTPSupplierClient)(nil)
var _ SupplierClient = (*StubSupplierClient)(nil)
