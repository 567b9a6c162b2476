package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"cater/internal/domain"
	"cater/internal/metrics"
	apperrors "cater/pkg/errors"

	"gorm.io/gorm"
)

const defaultSendTimeout = 15 * time.Second

// Message kinds, used for logs and metrics
const (
	KindBookingConfirmation  = "booking_confirmation"
	KindEventReminder        = "event_reminder"
	KindFeedbackRequest      = "feedback_request"
	KindFeedbackConfirmation = "feedback_confirmation"
)

// Message is one outbound WhatsApp message to a customer. Body is sent as
// free text unless ContentSID names a template.
type Message struct {
	Kind       string
	Customer   *domain.Customer
	BookingID  *uint
	Body       string
	ContentSID string
	Vars       map[string]string
}

// Notifier gates outbound messages on customer opt-in, sends them through the
// active service and records every attempt in the message log. Failures
// are logged, never returned.
type Notifier struct {
	db          *gorm.DB
	services    *OutboundServiceStore
	dispatchers map[string]Dispatcher
	timeout     time.Duration
}

// NewNotifier creates a notifier. dispatchers is keyed by provider name.
func NewNotifier(db *gorm.DB, dispatchers map[string]Dispatcher, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Notifier{
		db:          db,
		services:    NewOutboundServiceStore(db),
		dispatchers: dispatchers,
		timeout:     timeout,
	}
}

// Notify sends msg and reports whether the provider accepted it
func (n *Notifier) Notify(ctx context.Context, msg Message) bool {
	c := msg.Customer
	if c == nil {
		return false
	}
	if !c.WhatsAppOptIn {
		log.Printf("[NOTIFY] %s not sent: customer %d has opted out", msg.Kind, c.ID)
		metrics.RecordOutboundMessage(msg.Kind, "opted_out")
		return false
	}

	svc, err := n.services.Active(ctx)
	if err != nil {
		log.Printf("[NOTIFY] %s not sent: %v", msg.Kind, err)
		metrics.RecordOutboundMessage(msg.Kind, "no_service")
		return false
	}
	dispatcher, ok := n.dispatchers[svc.Provider]
	if !ok {
		log.Printf("[NOTIFY] %s not sent: no dispatcher for provider %q", msg.Kind, svc.Provider)
		metrics.RecordOutboundMessage(msg.Kind, "no_service")
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var result *SendResult
	text := msg.Body
	if msg.ContentSID != "" {
		vars, _ := json.Marshal(msg.Vars)
		text = fmt.Sprintf("Template:%s vars:%s", msg.ContentSID, vars)
		result, err = dispatcher.SendTemplate(sendCtx, svc, c.Phone, msg.ContentSID, msg.Vars)
	} else {
		result, err = dispatcher.Send(sendCtx, svc, c.Phone, msg.Body)
	}

	entry := &domain.MessageLog{
		Direction:  domain.DirectionOutbound,
		CustomerID: &c.ID,
		BookingID:  msg.BookingID,
		ToNumber:   c.Phone,
		Message:    text,
	}
	switch {
	case err != nil:
		entry.Status = domain.StatusError
		entry.ErrorMessage = err.Error()
		if !apperrors.IsTransport(err) {
			err = apperrors.Wrap(apperrors.ErrCodeTransport, "send failed", err)
		}
		log.Printf("[NOTIFY] %s to %s failed: %v", msg.Kind, c.Phone, err)
	case result == nil:
		entry.Status = domain.StatusFailed
		entry.ErrorMessage = "empty response from provider"
		log.Printf("[NOTIFY] %s to %s: dispatcher returned no result", msg.Kind, c.Phone)
	case !result.Accepted:
		entry.Status = domain.StatusFailed
		entry.ErrorMessage = result.Error
		entry.ResponseData = result.Raw
		log.Printf("[NOTIFY] %s to %s rejected: %s", msg.Kind, c.Phone, result.Error)
	default:
		entry.Status = domain.InitialSendStatus(result.Status)
		entry.ResponseData = result.Raw
		if result.SID != "" {
			sid := result.SID
			entry.MessageSID = &sid
		}
		log.Printf("[NOTIFY] %s sent to %s sid=%s status=%s", msg.Kind, c.Phone, result.SID, entry.Status)
	}

	// The send already happened; the log write must not be cut short by the
	// caller's deadline.
	if dbErr := n.db.WithContext(context.WithoutCancel(ctx)).Create(entry).Error; dbErr != nil {
		log.Printf("[NOTIFY] Failed to write message log for %s: %v", msg.Kind, dbErr)
	}

	metrics.RecordOutboundMessage(msg.Kind, string(entry.Status))
	return err == nil && result != nil && result.Accepted
}

// FormatEventDate renders an event date for customer-facing messages
func FormatEventDate(t time.Time) string {
	return t.Format("Monday, January 2, 2006 at 3:04 PM")
}

// BookingConfirmationText is sent when a booking is confirmed and as the
// day-before reminder.
func BookingConfirmationText(customer *domain.Customer, b *domain.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎉 *Booking Confirmed!*\n\nHello %s,\n\n", customer.Name)
	fmt.Fprintf(&sb, "Your booking for *%s* has been confirmed!\n\n", b.EventName)
	sb.WriteString("📅 *Event Details:*\n")
	fmt.Fprintf(&sb, "• Reference: %s\n", b.Reference)
	fmt.Fprintf(&sb, "• Date: %s\n", FormatEventDate(b.EventDate))
	if b.Venue != "" {
		fmt.Fprintf(&sb, "• Venue: %s\n", b.Venue)
	}
	fmt.Fprintf(&sb, "• Guests: %d\n\n", b.GuestCount)
	sb.WriteString("We're excited to cater your special event! 🍽️\n\n_Thank you for choosing our catering services._")
	return sb.String()
}

// FeedbackRequestText asks the customer to rate a completed event
func FeedbackRequestText(b *domain.Booking) string {
	return fmt.Sprintf("Thank you for choosing our catering services! 🙏\n\n"+
		"How was your experience with *%s*?\n\n"+
		"Please rate our service: ⭐⭐⭐⭐⭐\n\n"+
		"Reply with:\n• Rating (1-5 stars)\n• Your feedback\n\n"+
		"Your opinion helps us improve!", b.EventName)
}

// FeedbackThanksText confirms a recorded rating back to the customer
func FeedbackThanksText(f *domain.Feedback) string {
	stars := strings.Repeat("⭐", f.Rating)
	if f.IsPositive() {
		return fmt.Sprintf("Thank you for your %d-star rating! %s\n\nWe're delighted you enjoyed our service.", f.Rating, stars)
	}
	return fmt.Sprintf("Thank you for your feedback (%d/5). %s\n\n"+
		"We're sorry we fell short. A member of our team will reach out to you shortly.", f.Rating, stars)
}
