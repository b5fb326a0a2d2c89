package dto

// QueuePositionResponse represents a booking's current queue position
type QueuePositionResponse struct {
	BookingReference string `json:"booking_reference"`
	Position         int64  `json:"position"`
	TotalInQueue     int64  `json:"total_in_queue"`
	EstimatedWait    int64  `json:"estimated_wait_seconds"`
}

// StatusUpdate is the payload pushed over the status stream
type StatusUpdate struct {
	BookingReference string `json:"booking_reference"`
	Status           string `json:"status"`
	Position         int64  `json:"position,omitempty"`
	EstimatedWait    int64  `json:"estimated_wait_seconds,omitempty"`
	PaymentURL       string `json:"payment_url,omitempty"`
	ReconnectMillis  int64  `json:"reconnect_ms,omitempty"`
	Message          string `json:"message,omitempty"`
}

// QueueHealth summarizes queue depths for monitoring
type QueueHealth struct {
	ActiveQueues      int              `json:"active_queues"`
	TotalWaiting      int64            `json:"total_waiting"`
	QueueDepths       map[string]int64 `json:"queue_depths"`
	ActiveConnections int              `json:"active_connections"`
}
