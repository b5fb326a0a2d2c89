package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmtext/booking-engine/internal/domain"
	"github.com/mmtext/booking-engine/pkg/kafka"
	"github.com/mmtext/booking-engine/pkg/retry"
)

// NotificationPublisher delivers user-facing booking notifications.
// Publishing is best effort; callers treat failures as non-fatal.
type NotificationPublisher interface {
	// SendConfirmation notifies a user that their booking is confirmed
	SendConfirmation(ctx context.Context, event *domain.NotificationEvent) error

	// SendFailure notifies a user that their booking could not complete
	SendFailure(ctx context.Context, event *domain.NotificationEvent) error

	// SendCancellation notifies a user that their booking was cancelled
	SendCancellation(ctx context.Context, event *domain.NotificationEvent) error

	// SendPaymentLink delivers a checkout link to a user
	SendPaymentLink(ctx context.Context, event *domain.NotificationEvent) error

	// Close closes the publisher
	Close() error
}

// KafkaNotificationPublisher implements NotificationPublisher over Kafka
type KafkaNotificationPublisher struct {
	producer    *kafka.Producer
	dlq         *retry.KafkaDLQPublisher
	topic       string
	serviceName string
}

// NotificationPublisherConfig contains configuration for the notification publisher
type NotificationPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaNotificationPublisher creates a Kafka-backed notification publisher
func NewKafkaNotificationPublisher(ctx context.Context, cfg *NotificationPublisherConfig) (*KafkaNotificationPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notification publisher config is required")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "booking-notifications"
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "booking-engine"
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "booking-engine-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		BatchSize:     100,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	dlqCfg := retry.DefaultDLQConfig()
	dlqCfg.Source = serviceName
	dlq := retry.NewKafkaDLQPublisher(&retry.KafkaProducerAdapter{Producer: producer}, dlqCfg)

	return &KafkaNotificationPublisher{
		producer:    producer,
		dlq:         dlq,
		topic:       topic,
		serviceName: serviceName,
	}, nil
}

// SendConfirmation notifies a user that their booking is confirmed
func (p *KafkaNotificationPublisher) SendConfirmation(ctx context.Context, event *domain.NotificationEvent) error {
	return p.publish(ctx, domain.NotificationConfirmation, event)
}

// SendFailure notifies a user that their booking could not complete
func (p *KafkaNotificationPublisher) SendFailure(ctx context.Context, event *domain.NotificationEvent) error {
	return p.publish(ctx, domain.NotificationFailure, event)
}

// SendCancellation notifies a user that their booking was cancelled
func (p *KafkaNotificationPublisher) SendCancellation(ctx context.Context, event *domain.NotificationEvent) error {
	return p.publish(ctx, domain.NotificationCancellation, event)
}

// SendPaymentLink delivers a checkout link to a user
func (p *KafkaNotificationPublisher) SendPaymentLink(ctx context.Context, event *domain.NotificationEvent) error {
	return p.publish(ctx, domain.NotificationPaymentLink, event)
}

// Close closes the underlying producer
func (p *KafkaNotificationPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

func (p *KafkaNotificationPublisher) publish(ctx context.Context, notificationType domain.NotificationType, event *domain.NotificationEvent) error {
	event.Type = notificationType
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	headers := map[string]string{
		"notification_type": string(notificationType),
		"event_id":          uuid.New().String(),
		"source":            p.serviceName,
		"content_type":      "application/json",
	}

	// Keyed by user so one user's notifications stay ordered
	if err := p.producer.ProduceJSON(ctx, p.topic, event.UserID, event, headers); err != nil {
		p.publishToDLQ(ctx, event, headers, err)
		return fmt.Errorf("failed to publish %s notification: %w", notificationType, err)
	}

	return nil
}

// publishToDLQ parks an undeliverable notification on the dead letter
// topic so it can be replayed after the outage. Best effort.
func (p *KafkaNotificationPublisher) publishToDLQ(ctx context.Context, event *domain.NotificationEvent, headers map[string]string, cause error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	now := time.Now()
	_ = p.dlq.PublishToDLQ(ctx, &retry.DLQMessage{
		ID:             headers["event_id"],
		OriginalTopic:  p.topic,
		OriginalKey:    event.UserID,
		Payload:        payload,
		Headers:        headers,
		Error:          cause.Error(),
		Attempts:       1,
		FirstAttemptAt: now,
		LastAttemptAt:  now,
	})
}

// NoOpNotificationPublisher is used when Kafka brokers are unreachable
type NoOpNotificationPublisher struct{}

// NewNoOpNotificationPublisher creates a no-op notification publisher
func NewNoOpNotificationPublisher() *NoOpNotificationPublisher {
	return &NoOpNotificationPublisher{}
}

func (p *NoOpNotificationPublisher) SendConfirmation(ctx context.Context, event *domain.NotificationEvent) error {
	return nil
}

func (p *NoOpNotificationPublisher) SendFailure(ctx context.Context, event *domain.NotificationEvent) error {
	return nil
}

func (p *NoOpNotificationPublisher) SendCancellation(ctx context.Context, event *domain.NotificationEvent) error {
	return nil
}

func (p *NoOpNotificationPublisher) SendPaymentLink(ctx context.Context, event *domain.NotificationEvent) error {
	return nil
}

func (p *NoOpNotificationPublisher) Close() error {
	return nil
}

var _ NotificationPublisher = (*KafkaNotificationPublisher)(nil)
var _ NotificationPublisher = (*NoOpNotificationPublisher)(nil)
