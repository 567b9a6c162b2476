package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"cater/internal/domain"
	"cater/internal/metrics"
	apperrors "cater/pkg/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EventKind classifies a webhook delivery
type EventKind string

const (
	EventStatusUpdate   EventKind = "status_update"
	EventInboundMessage EventKind = "inbound_message"
	EventIgnored        EventKind = "ignored"
)

// InboundEvent is a typed webhook delivery from the messaging provider
type InboundEvent struct {
	From          string
	Body          string
	MessageSID    string
	MessageStatus string
	ErrorCode     string
	ErrorMessage  string

	// Raw is the full payload, kept for the audit trail.
	Raw string
}

// Kind classifies the event. A message body with no status, or the status
// "received", is an inbound message. Otherwise any status makes it a
// delivery status update.
func (e InboundEvent) Kind() EventKind {
	status := strings.ToLower(strings.TrimSpace(e.MessageStatus))
	if strings.TrimSpace(e.Body) != "" && (status == "" || status == string(domain.StatusReceived)) {
		return EventInboundMessage
	}
	if status != "" {
		return EventStatusUpdate
	}
	return EventIgnored
}

// Outcome results reported by the router
const (
	ResultStatusApplied    = "status_applied"
	ResultFeedbackRecorded = "feedback_recorded"
	ResultNoCustomer       = "no_customer"
	ResultNoBooking        = "no_booking"
	ResultDuplicate        = "duplicate"
	ResultMalformed        = "malformed"
	ResultIgnored          = "ignored"
	ResultError            = "error"
)

// Outcome describes what the router did with an event. It is informational;
// the webhook acknowledges every delivery regardless.
type Outcome struct {
	Kind       EventKind
	Result     string
	FeedbackID uint
	Rating     int
	Confirmed  bool
	Escalated  bool
	Err        error
}

// InboundRouter runs webhook events through the feedback pipeline
type InboundRouter struct {
	resolver    *CustomerResolver
	matcher     *BookingMatcher
	extractor   *RatingExtractor
	recorder    *FeedbackRecorder
	notifier    *Notifier
	logs        *MessageLogService
	templateSID string
}

// NewInboundRouter creates a router. When templateSID is set the feedback
// confirmation is sent as that content template.
func NewInboundRouter(resolver *CustomerResolver, matcher *BookingMatcher, extractor *RatingExtractor,
	recorder *FeedbackRecorder, notifier *Notifier, logs *MessageLogService, templateSID string) *InboundRouter {
	return &InboundRouter{
		resolver:    resolver,
		matcher:     matcher,
		extractor:   extractor,
		recorder:    recorder,
		notifier:    notifier,
		logs:        logs,
		templateSID: templateSID,
	}
}

// Handle classifies and processes one event. It never panics and never
// returns an error; failures are logged and reported in the Outcome.
func (r *InboundRouter) Handle(ctx context.Context, ev InboundEvent) (out Outcome) {
	kind := ev.Kind()
	ctx, span := otel.Tracer("cater/router").Start(ctx, "router.handle")
	span.SetAttributes(attribute.String("webhook.kind", string(kind)))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			log.Printf("[ROUTER] Panic while handling %s event: %v", kind, p)
			out = Outcome{Kind: kind, Result: ResultError, Err: fmt.Errorf("panic: %v", p)}
		}
		if out.Err != nil && out.Result == ResultError {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Result)
		}
		span.SetAttributes(attribute.String("webhook.result", out.Result))
	}()

	metrics.RecordWebhookEvent(string(kind))

	switch kind {
	case EventStatusUpdate:
		return r.handleStatus(ctx, ev)
	case EventInboundMessage:
		out = r.handleInbound(ctx, ev)
		metrics.RecordFeedbackOutcome(out.Result)
		return out
	default:
		log.Printf("[ROUTER] Ignoring webhook without body or status (sid=%q)", ev.MessageSID)
		return Outcome{Kind: kind, Result: ResultIgnored}
	}
}

func (r *InboundRouter) handleStatus(ctx context.Context, ev InboundEvent) Outcome {
	out := Outcome{Kind: EventStatusUpdate}
	if ev.MessageSID == "" {
		out.Result = ResultMalformed
		out.Err = apperrors.New(apperrors.ErrCodeMalformedPayload, "status callback without MessageSid")
		log.Printf("[ROUTER] %v", out.Err)
		return out
	}

	_, err := r.logs.ApplyStatus(ctx, StatusUpdate{
		MessageSID:   ev.MessageSID,
		Status:       ev.MessageStatus,
		ErrorCode:    ev.ErrorCode,
		ErrorMessage: ev.ErrorMessage,
		Raw:          ev.Raw,
	})
	if err != nil {
		log.Printf("[ROUTER] Failed to apply status %q for %s: %v", ev.MessageStatus, ev.MessageSID, err)
		out.Result = ResultError
		out.Err = err
		return out
	}
	out.Result = ResultStatusApplied
	return out
}

func (r *InboundRouter) handleInbound(ctx context.Context, ev InboundEvent) Outcome {
	out := Outcome{Kind: EventInboundMessage}
	if strings.TrimSpace(ev.From) == "" {
		out.Result = ResultMalformed
		out.Err = apperrors.New(apperrors.ErrCodeMalformedPayload, "inbound message without sender")
		log.Printf("[ROUTER] %v", out.Err)
		return out
	}

	customer, resolveErr := r.resolver.Resolve(ctx, ev.From)

	var customerID *uint
	if customer != nil {
		customerID = &customer.ID
	}
	if _, err := r.logs.LogInbound(ctx, ev.From, ev.Body, ev.MessageSID, ev.Raw, customerID); err != nil {
		log.Printf("[ROUTER] Failed to log inbound message from %s: %v", ev.From, err)
	}

	if resolveErr != nil {
		return failed(out, resolveErr, ResultNoCustomer)
	}

	booking, err := r.matcher.FindEligible(ctx, customer)
	if err != nil {
		return failed(out, err, ResultNoBooking)
	}

	rating, comment := r.extractor.Extract(ev.Body)
	out.Rating = rating

	feedback, err := r.recorder.RecordDetailed(ctx, booking.ID, rating, comment, domain.SourceWhatsApp,
		FeedbackDetails{MessageSID: ev.MessageSID})
	if err != nil {
		return failed(out, err, "")
	}
	out.Result = ResultFeedbackRecorded
	out.FeedbackID = feedback.ID

	msg := Message{
		Kind:      KindFeedbackConfirmation,
		Customer:  customer,
		BookingID: &booking.ID,
		Body:      FeedbackThanksText(feedback),
	}
	if r.templateSID != "" {
		msg.ContentSID = r.templateSID
		msg.Vars = map[string]string{"1": strconv.Itoa(feedback.Rating), "2": booking.EventName}
	}
	if r.notifier.Notify(ctx, msg) {
		out.Confirmed = true
		if err := r.recorder.MarkConfirmed(ctx, booking.ID); err != nil {
			log.Printf("[ROUTER] %v", err)
		}
	}

	if r.recorder.NeedsEscalation(feedback) {
		if followUp, err := r.recorder.Escalate(ctx, feedback); err != nil {
			log.Printf("[ROUTER] Escalation failed for feedback %d: %v", feedback.ID, err)
		} else {
			out.Escalated = followUp != nil
		}
	}
	return out
}

// failed maps a pipeline error to an outcome. Benign results are logged by
// the component that produced them.
func failed(out Outcome, err error, notFound string) Outcome {
	out.Err = err
	switch {
	case apperrors.IsNotFound(err) && notFound != "":
		out.Result = notFound
	case apperrors.IsDuplicateFeedback(err):
		out.Result = ResultDuplicate
	case apperrors.IsMalformedPayload(err):
		out.Result = ResultMalformed
	default:
		out.Result = ResultError
		log.Printf("[ROUTER] Feedback pipeline failed: %v", err)
	}
	return out
}
