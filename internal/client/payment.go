package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/google/uuid"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/pkg/retry"
	"github.com/mmtext/booking-engine/pkg/telemetry"
)

// PaymentSession is a checkout session created with the payment provider
type PaymentSession struct {
	PaymentID  string `json:"payment_id"`
	PaymentURL string `json:"payment_url"`
}

// PaymentClient creates checkout sessions and issues refunds
type PaymentClient interface {
	// CreateSession opens a checkout session for a booking
	CreateSession(ctx context.Context, bookingReference string, amount float64, userID string) (*PaymentSession, error)

	// Refund refunds a completed payment and returns the refund id
	Refund(ctx context.Context, paymentID string, amount float64) (string, error)
}

// HTTPPaymentClient implements PaymentClient against the payment gateway
type HTTPPaymentClient struct {
	baseURL    string
	httpClient *http.Client
	retrier    *retry.Retrier
}

// NewHTTPPaymentClient creates a payment client with a bounded request timeout
func NewHTTPPaymentClient(baseURL string, timeout time.Duration) *HTTPPaymentClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTPPaymentClient{
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

// CreateSession opens a checkout session for a booking
func (c *HTTPPaymentClient) CreateSession(ctx context.Context, bookingReference string, amount float64, userID string) (*PaymentSession, error) {
	ctx, span := telemetry.StartSpan(ctx, "client.payment.create_session")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking.reference", bookingReference),
		attribute.Float64("booking.amount", amount),
	)

	payload := map[string]interface{}{
		"booking_reference": bookingReference,
		"amount":            amount,
		"user_id":           userID,
	}

	var session PaymentSession
	if err := c.postJSON(ctx, "/api/v1/sessions", payload, &session); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentSession, err)
	}

	span.SetStatus(codes.Ok, "")
	return &session, nil
}

// Refund refunds a completed payment and returns the refund id
func (c *HTTPPaymentClient) Refund(ctx context.Context, paymentID string, amount float64) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "client.payment.refund")
	defer span.End()

	span.SetAttributes(attribute.String("payment.id", paymentID))

	payload := map[string]interface{}{
		"amount": amount,
	}

	var result struct {
		RefundID string `json:"refund_id"`
	}
	if err := c.postJSON(ctx, "/api/v1/payments/"+paymentID+"/refund", payload, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to refund payment %s: %w", paymentID, err)
	}

	span.SetStatus(codes.Ok, "")
	return result.RefundID, nil
}

func (c *HTTPPaymentClient) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
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
			return retry.Retryable(fmt.Errorf("payment provider returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("payment provider returned %d: %s", resp.StatusCode, string(data)))
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return retry.Permanent(fmt.Errorf("failed to decode payment response: %w", err))
			}
		}
		return nil
	})

	return result.Err
}

// StubPaymentClient is an in-process payment provider for local development
// and tests. Sessions and refunds always succeed.
type StubPaymentClient struct {
	baseURL string
}

// NewStubPaymentClient creates a stub payment client
func NewStubPaymentClient(baseURL string) *StubPaymentClient {
	if baseURL == "" {
		baseURL = "https://payments.example.com"
	}
	return &StubPaymentClient{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c *StubPaymentClient) CreateSession(ctx context.Context, bookingReference string, amount float64, userID string) (*PaymentSession, error) {
	paymentID := "PAY-" + uuid.New().String()
	return &PaymentSession{
		PaymentID:  paymentID,
		PaymentURL: c.baseURL + "/checkout/" + paymentID,
	}, nil
}

func (c *StubPaymentClient) Refund(ctx context.Context, paymentID string, amount float64) (string, error) {
	return "REF-" + uuid.New().String(), nil
}

var _ PaymentClient = (*HTTPPaymentClient)(nil)
var _ PaymentClient = (*StubPaymentClient)(nil)
