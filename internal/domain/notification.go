package domain

import "time"

// NotificationType classifies outbound user notifications
type NotificationType string

const (
	NotificationConfirmation NotificationType = "BOOKING_CONFIRMATION"
	NotificationFailure      NotificationType = "BOOKING_FAILURE"
	NotificationCancellation NotificationType = "BOOKING_CANCELLATION"
	NotificationPaymentLink  NotificationType = "PAYMENT_LINK"
)

// NotificationEvent is the payload published for user-facing notifications
type NotificationEvent struct {
	Type             NotificationType `json:"type"`
	UserID           string           `json:"user_id"`
	BookingReference string           `json:"booking_reference"`
	TicketID         string           `json:"ticket_id,omitempty"`
	Message          string           `json:"message,omitempty"`
	PaymentURL       string           `json:"payment_url,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at"`
}
