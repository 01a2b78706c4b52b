package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Notifier delivers customer and owner messages. All calls are fire-and-
// forget from the caller's point of view: a delivery failure is logged and
// swallowed, never allowed to undo a committed state transition.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, orderID uuid.UUID) error
	SendOwnerNotification(ctx context.Context, orderID uuid.UUID) error
	SendOrderStatusUpdate(ctx context.Context, orderID uuid.UUID, status string) error
}

// Alerter records operational anomalies.
type Alerter interface {
	RecordSystemAlert(ctx context.Context, message, detail string) error
}

type message struct {
	Type    string    `json:"type"`
	OrderID string    `json:"order_id,omitempty"`
	Status  string    `json:"status,omitempty"`
	Message string    `json:"message,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// KafkaPublisher implements Notifier and Alerter over two topics.
type KafkaPublisher struct {
	notifications *kafka.Writer
	alerts        *kafka.Writer
}

func NewKafkaPublisher(brokers []string, notificationTopic, alertTopic string) *KafkaPublisher {
	return &KafkaPublisher{
		notifications: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    notificationTopic,
			Balancer: &kafka.LeastBytes{},
		},
		alerts: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    alertTopic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) Close() {
	if err := p.notifications.Close(); err != nil {
		log.Printf("error closing notification writer: %v", err)
	}
	if err := p.alerts.Close(); err != nil {
		log.Printf("error closing alert writer: %v", err)
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, w *kafka.Writer, key string, m message) error {
	m.SentAt = time.Now()
	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message failed: %w", err)
	}
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) SendOrderConfirmation(ctx context.Context, orderID uuid.UUID) error {
	return p.publish(ctx, p.notifications, orderID.String(), message{
		Type:    "order.confirmation",
		OrderID: orderID.String(),
	})
}

func (p *KafkaPublisher) SendOwnerNotification(ctx context.Context, orderID uuid.UUID) error {
	return p.publish(ctx, p.notifications, orderID.String(), message{
		Type:    "order.owner_notification",
		OrderID: orderID.String(),
	})
}

func (p *KafkaPublisher) SendOrderStatusUpdate(ctx context.Context, orderID uuid.UUID, status string) error {
	return p.publish(ctx, p.notifications, orderID.String(), message{
		Type:    "order.status_update",
		OrderID: orderID.String(),
		Status:  status,
	})
}

func (p *KafkaPublisher) RecordSystemAlert(ctx context.Context, msg, detail string) error {
	return p.publish(ctx, p.alerts, "system", message{
		Type:    "system.alert",
		Message: msg,
		Detail:  detail,
	})
}

// LogPublisher is the fallback when no brokers are configured.
type LogPublisher struct{}

func (LogPublisher) SendOrderConfirmation(_ context.Context, orderID uuid.UUID) error {
	log.Printf("📧 [NOTIFY] order confirmation for %s", orderID)
	return nil
}

func (LogPublisher) SendOwnerNotification(_ context.Context, orderID uuid.UUID) error {
	log.Printf("📧 [NOTIFY] owner notification for %s", orderID)
	return nil
}

func (LogPublisher) SendOrderStatusUpdate(_ context.Context, orderID uuid.UUID, status string) error {
	log.Printf("📧 [NOTIFY] order %s status update: %s", orderID, status)
	return nil
}

func (LogPublisher) RecordSystemAlert(_ context.Context, msg, detail string) error {
	log.Printf("🚨 [ALERT] %s: %s", msg, detail)
	return nil
}
