package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/internal/dto"
	"github.com/mmtext/booking-engine/internal/metrics"
	"github.com/mmtext/booking-engine/internal/notifier"
	"github.com/mmtext/booking-engine/internal/service"
	"github.com/mmtext/booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles booking HTTP requests.
// Admission decisions return synchronously; payment settlement arrives
// later through the webhook and is applied asynchronously.
type BookingHandler struct {
	bookingService service.BookingService
	rateLimiter    service.RateLimiter
	notifier       *notifier.Notifier
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService, rateLimiter service.RateLimiter, statusNotifier *notifier.Notifier) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		rateLimiter:    rateLimiter,
		notifier:       statusNotifier,
	}
}

// CreateBooking handles POST /bookings.
// Returns 201 with the admission decision, or 409 when the ticket could
// not be held and the attempt was cancelled on the spot.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := c.GetString("user_id")
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
			Code:  "UNAUTHORIZED",
		})
		return
	}

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("ticket_id", req.TicketID),
	)

	result, err := h.bookingService.CreateBooking(ctx, userID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("booking_reference", result.BookingReference),
		attribute.String("status", result.Status),
	)
	span.SetStatus(codes.Ok, "")

	if result.Status == string(domain.BookingStatusCancelled) {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// GetBooking handles GET /bookings/:reference
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := c.GetString("user_id")
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
			Code:  "UNAUTHORIZED",
		})
		return
	}

	bookingReference := c.Param("reference")
	if bookingReference == "" {
		span.SetStatus(codes.Error, "booking reference required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "booking reference required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(
		attribute.String("booking_reference", bookingReference),
		attribute.String("user_id", userID),
	)

	result, err := h.bookingService.GetBookingDetails(ctx, bookingReference)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	// Another user's booking looks absent, not forbidden
	if result.UserID != "" && result.UserID != userID {
		span.SetStatus(codes.Error, "booking not found")
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: domain.ErrBookingNotFound.Error(),
			Code:  "NOT_FOUND",
		})
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// CancelBooking handles POST /bookings/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID := c.GetString("user_id")
	if userID == "" {
		span.SetStatus(codes.Error, "unauthorized")
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
			Code:  "UNAUTHORIZED",
		})
		return
	}

	var req dto.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(
		attribute.String("booking_reference", req.BookingReference),
		attribute.String("user_id", userID),
	)

	result, err := h.bookingService.CancelBooking(ctx, req.BookingReference, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// PaymentWebhook handles POST /bookings/webhook/payment.
// Settlement is applied on a worker pool, so a parseable webhook is always
// acknowledged. The provider retries on non-2xx only.
func (h *BookingHandler) PaymentWebhook(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.payment_webhook")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid webhook payload")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid webhook payload",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(
		attribute.String("booking_reference", req.BookingReference),
		attribute.String("payment_status", req.Status),
	)

	if err := h.bookingService.HandlePaymentWebhook(ctx, &req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid webhook payload",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

// StreamStatus handles GET /bookings/:reference/stream.
// Upgrades the connection to server-sent events and hands it to the
// notifier, which pushes status until the booking reaches a handoff or
// terminal state.
func (h *BookingHandler) StreamStatus(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.stream")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingReference := c.Param("reference")
	if bookingReference == "" {
		span.SetStatus(codes.Error, "booking reference required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "booking reference required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(attribute.String("booking_reference", bookingReference))

	if !h.rateLimiter.Allow(bookingReference) {
		metrics.RecordRateLimited(ctx)
		span.SetStatus(codes.Error, "rate limited")

		// Answer over SSE so EventSource clients honor the retry hint
		// instead of hammering the endpoint with reconnects
		sub := newSSESubscriber(c)
		_ = sub.Send(notifier.Event{
			Name: "error",
			Data: &dto.StatusUpdate{
				BookingReference: bookingReference,
				ReconnectMillis:  60000,
				Message:          "too many status requests, slow down",
			},
		})
		sub.Close()
		return
	}

	// Reject unknown references before upgrading the connection
	if _, err := h.bookingService.GetBookingDetails(ctx, bookingReference); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	// The first status push arrives on the notifier's jittered schedule,
	// so a drain cycle's worth of reconnecting clients does not hit the
	// status source at once
	sub := newSSESubscriber(c)
	h.notifier.Register(bookingReference, sub)

	select {
	case <-sub.Done():
	case <-c.Request.Context().Done():
		// Client went away. Closing the subscriber makes the next push
		// fail, which removes the subscription.
		sub.Close()
		h.notifier.NotifyBookingUpdate(bookingReference)
	}

	span.SetStatus(codes.Ok, "")
}

// handleError converts domain errors to HTTP responses
func (h *BookingHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrBookingNotFound),
		errors.Is(err, domain.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_FOUND",
		})
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
	case errors.Is(err, domain.ErrTicketUnavailable):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "TICKET_UNAVAILABLE",
		})
	case errors.Is(err, domain.ErrTicketLocked):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "TICKET_LOCKED",
			Message: "Another buyer is completing payment for this ticket",
		})
	case errors.Is(err, domain.ErrBookingAlreadyExists):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "ALREADY_EXISTS",
		})
	case errors.Is(err, domain.ErrBookingExpired):
		c.JSON(http.StatusGone, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "EXPIRED",
		})
	case errors.Is(err, domain.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "RATE_LIMITED",
		})
	case errors.Is(err, domain.ErrSupplierUnavailable):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "SUPPLIER_UNAVAILABLE",
			Message: "The ticket supplier is not responding. Please try again.",
		})
	case errors.Is(err, domain.ErrPaymentSession):
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "PAYMENT_SESSION_FAILED",
			Message: "Could not start a payment session. Please try again.",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
