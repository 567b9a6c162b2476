package events

import (
	"context"
	"time"
)

// Routing keys for domain events
const (
	FeedbackRecorded  = "feedback.recorded"
	FeedbackEscalated = "feedback.escalated"
	MessageStatus     = "message.status"
)

// Publisher delivers domain events to interested consumers
type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// FeedbackEvent is published when feedback is recorded or escalated
type FeedbackEvent struct {
	FeedbackID uint      `json:"feedback_id"`
	BookingID  uint      `json:"booking_id"`
	CustomerID uint      `json:"customer_id"`
	Rating     int       `json:"rating"`
	Source     string    `json:"source"`
	Positive   bool      `json:"positive"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MessageStatusEvent is published when a delivery status callback changes a
// logged message.
type MessageStatusEvent struct {
	MessageSID string    `json:"message_sid"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
