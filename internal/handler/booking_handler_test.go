package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/internal/dto"
	"github.com/mmtext/booking-engine/internal/notifier"
)

// mockBookingService is a mock implementation of service.BookingService
type mockBookingService struct {
	CreateBookingFunc        func(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error)
	GetBookingDetailsFunc    func(ctx context.Context, bookingReference string) (*dto.BookingResponse, error)
	HandlePaymentWebhookFunc func(ctx context.Context, req *dto.PaymentWebhookRequest) error
	CancelBookingFunc        func(ctx context.Context, bookingReference, userID string) (*dto.CancelBookingResponse, error)
}

func (m *mockBookingService) CreateBooking(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, userID, req)
	}
	return &dto.CreateBookingResponse{
		BookingReference: "BK-TEST",
		Status:           string(domain.BookingStatusPaymentPending),
	}, nil
}

func (m *mockBookingService) GetBookingDetails(ctx context.Context, bookingReference string) (*dto.BookingResponse, error) {
	if m.GetBookingDetailsFunc != nil {
		return m.GetBookingDetailsFunc(ctx, bookingReference)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *mockBookingService) HandlePaymentWebhook(ctx context.Context, req *dto.PaymentWebhookRequest) error {
	if m.HandlePaymentWebhookFunc != nil {
		return m.HandlePaymentWebhookFunc(ctx, req)
	}
	return nil
}

func (m *mockBookingService) CancelBooking(ctx context.Context, bookingReference, userID string) (*dto.CancelBookingResponse, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingReference, userID)
	}
	return &dto.CancelBookingResponse{
		BookingReference: bookingReference,
		Status:           string(domain.BookingStatusCancelled),
	}, nil
}

// allowAllLimiter is a rate limiter that never rejects
type allowAllLimiter struct{ allow bool }

func (l *allowAllLimiter) Allow(bookingReference string) bool { return l.allow }
func (l *allowAllLimiter) Cleanup()                           {}
func (l *allowAllLimiter) ActiveWindows() int                 { return 0 }

func newTestRouter(svc *mockBookingService, limiter *allowAllLimiter, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewBookingHandler(svc, limiter, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	r.POST("/bookings", h.CreateBooking)
	r.POST("/bookings/cancel", h.CancelBooking)
	r.POST("/bookings/webhook/payment", h.PaymentWebhook)
	r.GET("/bookings/:reference", h.GetBooking)
	r.GET("/bookings/:reference/stream", h.StreamStatus)
	return r
}

func TestBookingHandler_CreateBooking(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       string
		setup      func(*mockBookingService)
		wantStatus int
	}{
		{
			name:       "admitted",
			userID:     "user-001",
			body:       `{"ticket_id":"ticket-001"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:   "cancelled on the spot",
			userID: "user-001",
			body:   `{"ticket_id":"ticket-001"}`,
			setup: func(m *mockBookingService) {
				m.CreateBookingFunc = func(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
					return &dto.CreateBookingResponse{
						BookingReference: "BK-TEST",
						Status:           string(domain.BookingStatusCancelled),
						Message:          "ticket was taken by another buyer",
					}, nil
				}
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "missing user",
			userID:     "",
			body:       `{"ticket_id":"ticket-001"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed body",
			userID:     "user-001",
			body:       `{"ticket_id":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing ticket id",
			userID:     "user-001",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "ticket not found",
			userID: "user-001",
			body:   `{"ticket_id":"missing"}`,
			setup: func(m *mockBookingService) {
				m.CreateBookingFunc = func(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
					return nil, domain.ErrTicketNotFound
				}
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "payment gateway down",
			userID: "user-001",
			body:   `{"ticket_id":"ticket-001"}`,
			setup: func(m *mockBookingService) {
				m.CreateBookingFunc = func(ctx context.Context, userID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
					return nil, domain.ErrPaymentSession
				}
			},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockBookingService{}
			if tt.setup != nil {
				tt.setup(svc)
			}
			router := newTestRouter(svc, &allowAllLimiter{allow: true}, tt.userID)

			req := httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestBookingHandler_GetBooking(t *testing.T) {
	t.Run("own booking", func(t *testing.T) {
		svc := &mockBookingService{
			GetBookingDetailsFunc: func(ctx context.Context, bookingReference string) (*dto.BookingResponse, error) {
				return &dto.BookingResponse{
					BookingReference: bookingReference,
					UserID:           "user-001",
					Status:           string(domain.BookingStatusQueued),
					QueuePosition:    7,
				}, nil
			},
		}
		router := newTestRouter(svc, &allowAllLimiter{allow: true}, "user-001")

		req := httptest.NewRequest(http.MethodGet, "/bookings/BK-1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
		}
		var resp dto.BookingResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.QueuePosition != 7 {
			t.Errorf("queue position = %d, want 7", resp.QueuePosition)
		}
	})

	t.Run("someone else's booking looks absent", func(t *testing.T) {
		svc := &mockBookingService{
			GetBookingDetailsFunc: func(ctx context.Context, bookingReference string) (*dto.BookingResponse, error) {
				return &dto.BookingResponse{
					BookingReference: bookingReference,
					UserID:           "user-002",
					Status:           string(domain.BookingStatusConfirmed),
				}, nil
			},
		}
		router := newTestRouter(svc, &allowAllLimiter{allow: true}, "user-001")

		req := httptest.NewRequest(http.MethodGet, "/bookings/BK-1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("unknown reference", func(t *testing.T) {
		router := newTestRouter(&mockBookingService{}, &allowAllLimiter{allow: true}, "user-001")

		req := httptest.NewRequest(http.MethodGet, "/bookings/BK-MISSING", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	t.Run("cancelled with refund", func(t *testing.T) {
		svc := &mockBookingService{
			CancelBookingFunc: func(ctx context.Context, bookingReference, userID string) (*dto.CancelBookingResponse, error) {
				return &dto.CancelBookingResponse{
					BookingReference: bookingReference,
					Status:           string(domain.BookingStatusCancelled),
					RefundID:         "REF-1",
				}, nil
			},
		}
		router := newTestRouter(svc, &allowAllLimiter{allow: true}, "user-001")

		body := `{"booking_reference":"BK-1"}`
		req := httptest.NewRequest(http.MethodPost, "/bookings/cancel", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
		}
		var resp dto.CancelBookingResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.RefundID != "REF-1" {
			t.Errorf("refund id = %s, want REF-1", resp.RefundID)
		}
	})

	t.Run("not the owner", func(t *testing.T) {
		svc := &mockBookingService{
			CancelBookingFunc: func(ctx context.Context, bookingReference, userID string) (*dto.CancelBookingResponse, error) {
				return nil, domain.ErrBookingNotFound
			},
		}
		router := newTestRouter(svc, &allowAllLimiter{allow: true}, "user-001")

		body := `{"booking_reference":"BK-1"}`
		req := httptest.NewRequest(http.MethodPost, "/bookings/cancel", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestBookingHandler_PaymentWebhook(t *testing.T) {
	t.Run("acknowledged", func(t *testing.T) {
		var got *dto.PaymentWebhookRequest
		svc := &mockBookingService{
			HandlePaymentWebhookFunc: func(ctx context.Context, req *dto.PaymentWebhookRequest) error {
				got = req
				return nil
			},
		}
		// No user context: the provider does not authenticate as a user
		router := newTestRouter(svc, &allowAllLimiter{allow: true}, "")

		body := `{"booking_reference":"BK-1","payment_id":"PAY-1","status":"SUCCESS"}`
		req := httptest.NewRequest(http.MethodPost, "/bookings/webhook/payment", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
		}
		if got == nil || got.BookingReference != "BK-1" || !got.IsSuccess() {
			t.Errorf("webhook payload = %+v, want BK-1 SUCCESS", got)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		router := newTestRouter(&mockBookingService{}, &allowAllLimiter{allow: true}, "")

		req := httptest.NewRequest(http.MethodPost, "/bookings/webhook/payment", strings.NewReader(`not json`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestBookingHandler_StreamStatus_RateLimited(t *testing.T) {
	router := newTestRouter(&mockBookingService{}, &allowAllLimiter{allow: false}, "user-001")

	req := httptest.NewRequest(http.MethodGet, "/bookings/BK-1/stream", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %s, want text/event-stream", got)
	}
	body := w.Body.String()
	if !strings.Contains(body, "retry: 60000") {
		t.Errorf("expected a retry hint in the SSE body, got %q", body)
	}
	if !strings.Contains(body, "event: error") {
		t.Errorf("expected an error event in the SSE body, got %q", body)
	}
}

func TestBookingHandler_StreamStatus_FirstPushIsJittered(t *testing.T) {
	svc := &mockBookingService{
		GetBookingDetailsFunc: func(ctx context.Context, bookingReference string) (*dto.BookingResponse, error) {
			return &dto.BookingResponse{
				BookingReference: bookingReference,
				UserID:           "user-001",
				Status:           string(domain.BookingStatusQueued),
				QueuePosition:    42,
			}, nil
		},
	}
	statusNotifier := notifier.New(svc, &notifier.Config{
		InitialDelayJitter: time.Minute,
		UpdateInterval:     time.Minute,
		UpdateJitter:       time.Minute,
		MaxConnectionAge:   time.Hour,
	})
	defer statusNotifier.Shutdown()

	gin.SetMode(gin.TestMode)
	h := NewBookingHandler(svc, &allowAllLimiter{allow: true}, statusNotifier)
	r := gin.New()
	r.GET("/bookings/:reference/stream", h.StreamStatus)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/bookings/BK-1/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: connected") {
		t.Fatalf("expected a connected event, got %q", body)
	}
	// The first status read is spread over the jitter window, so nothing
	// else may have been pushed inside the request deadline
	if strings.Contains(body, "event: queue-status") {
		t.Errorf("status pushed before the jitter window elapsed: %q", body)
	}
}

func TestBookingHandler_StreamStatus_UnknownReference(t *testing.T) {
	router := newTestRouter(&mockBookingService{}, &allowAllLimiter{allow: true}, "user-001")

	req := httptest.NewRequest(http.MethodGet, "/bookings/BK-MISSING/stream", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
