package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmtext/booking-engine/internal/dto"
	"github.com/mmtext/booking-engine/internal/repository"
	"github.com/mmtext/booking-engine/internal/worker"
)

// ConnectionCounter reports open status stream connections
type ConnectionCounter interface {
	ActiveConnections() int
}

// HealthHandler exposes engine health for monitoring
type HealthHandler struct {
	queueRepo   repository.QueueRepository
	connections ConnectionCounter
	drainer     *worker.QueueDrainer
	sweeper     *worker.ExpirySweeper
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(queueRepo repository.QueueRepository, connections ConnectionCounter, drainer *worker.QueueDrainer, sweeper *worker.ExpirySweeper) *HealthHandler {
	return &HealthHandler{
		queueRepo:   queueRepo,
		connections: connections,
		drainer:     drainer,
		sweeper:     sweeper,
	}
}

// HealthResponse represents the engine health report
type HealthResponse struct {
	Status  string                     `json:"status"`
	Queues  *dto.QueueHealth           `json:"queues"`
	Drainer *worker.QueueDrainerStats  `json:"drainer,omitempty"`
	Sweeper *worker.ExpirySweeperStats `json:"sweeper,omitempty"`
}

// GetHealth handles GET /bookings/health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	health := &dto.QueueHealth{
		QueueDepths: map[string]int64{},
	}

	ticketIDs, err := h.queueRepo.ActiveTicketIDs(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
		return
	}

	health.ActiveQueues = len(ticketIDs)
	for _, ticketID := range ticketIDs {
		size, err := h.queueRepo.Size(ctx, ticketID)
		if err != nil {
			continue
		}
		health.QueueDepths[ticketID] = size
		health.TotalWaiting += size
	}

	if h.connections != nil {
		health.ActiveConnections = h.connections.ActiveConnections()
	}

	resp := HealthResponse{
		Status: "ok",
		Queues: health,
	}
	if h.drainer != nil {
		resp.Drainer = h.drainer.GetStats()
	}
	if h.sweeper != nil {
		resp.Sweeper = h.sweeper.GetStats()
	}

	c.JSON(http.StatusOK, resp)
}
