package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/internal/dto"
	"github.com/mmtext/booking-engine/internal/repository"
	"github.com/mmtext/booking-engine/internal/service"
	"github.com/mmtext/booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TicketHandler handles ticket inventory HTTP requests
type TicketHandler struct {
	ticketRepo   repository.TicketRepository
	availability service.AvailabilityService
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(ticketRepo repository.TicketRepository, availability service.AvailabilityService) *TicketHandler {
	return &TicketHandler{
		ticketRepo:   ticketRepo,
		availability: availability,
	}
}

// CreateTicket handles POST /admin/tickets
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateTicketRequest
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
		attribute.String("ticket_id", req.TicketID),
		attribute.String("event_id", req.EventID),
		attribute.String("concurrency_tier", req.ConcurrencyTier),
	)

	ticket := req.ToDomain()
	if err := h.ticketRepo.Create(ctx, ticket); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "failed to create ticket",
			Code:    "INTERNAL_ERROR",
			Message: err.Error(),
		})
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, dto.FromTicket(ticket))
}

// CreateTicketBatch handles POST /admin/tickets/batch
func (h *TicketHandler) CreateTicketBatch(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket.create_batch")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateTicketBatchRequest
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

	span.SetAttributes(attribute.Int("ticket_count", len(req.Tickets)))

	tickets := make([]*domain.Ticket, 0, len(req.Tickets))
	for i := range req.Tickets {
		tickets = append(tickets, req.Tickets[i].ToDomain())
	}

	created, err := h.ticketRepo.CreateBatch(ctx, tickets)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "failed to create tickets",
			Code:    "INTERNAL_ERROR",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(attribute.Int("created", created))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, dto.CreateTicketBatchResponse{Created: created})
}

// GetTicket handles GET /tickets/:ticket_id
func (h *TicketHandler) GetTicket(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ticketID := c.Param("ticket_id")
	if ticketID == "" {
		span.SetStatus(codes.Error, "ticket id required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "ticket id required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(attribute.String("ticket_id", ticketID))

	ticket, err := h.availability.GetTicket(ctx, ticketID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error: err.Error(),
				Code:  "NOT_FOUND",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.FromTicket(ticket))
}

// ListAvailableTickets handles GET /events/:event_id/tickets.
// Tickets currently held by a paying buyer are excluded even though their
// durable status is still AVAILABLE.
func (h *TicketHandler) ListAvailableTickets(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.ticket.list_available")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("event_id")
	if eventID == "" {
		span.SetStatus(codes.Error, "event id required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "event id required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	tickets, err := h.availability.GetAvailableTickets(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	responses := make([]*dto.TicketResponse, 0, len(tickets))
	for _, ticket := range tickets {
		responses = append(responses, dto.FromTicket(ticket))
	}

	span.SetAttributes(attribute.Int("available", len(responses)))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Success: true,
		Data:    responses,
	})
}
