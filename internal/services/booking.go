package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cater/internal/domain"
	"cater/internal/metrics"
	apperrors "cater/pkg/errors"

	"gorm.io/gorm"
)

// DefaultLookbackWindow bounds how old an event may be and still receive
// feedback from an inbound message.
const DefaultLookbackWindow = 7 * 24 * time.Hour

// BookingMatcher finds the booking an inbound rating belongs to
type BookingMatcher struct {
	db     *gorm.DB
	window time.Duration
	now    func() time.Time
}

// NewBookingMatcher creates a matcher with the given look-back window
func NewBookingMatcher(db *gorm.DB, window time.Duration) *BookingMatcher {
	if window <= 0 {
		window = DefaultLookbackWindow
	}
	return &BookingMatcher{db: db, window: window, now: time.Now}
}

// FindEligible returns the customer's most recent completed booking without
// feedback whose event happened within the look-back window.
func (m *BookingMatcher) FindEligible(ctx context.Context, customer *domain.Customer) (*domain.Booking, error) {
	start := time.Now()
	now := m.now().UTC()

	hasFeedback := m.db.Model(&domain.Feedback{}).Select("1").Where("feedbacks.booking_id = bookings.id")

	var booking domain.Booking
	err := m.db.WithContext(ctx).
		Where("customer_id = ?", customer.ID).
		Where("state = ?", domain.BookingCompleted).
		Where("event_date BETWEEN ? AND ?", now.Add(-m.window), now).
		Where("NOT EXISTS (?)", hasFeedback).
		Order("event_date DESC").
		Order("id DESC").
		First(&booking).Error
	metrics.RecordDBQuery("find_eligible_booking", time.Since(start), ignoreNotFound(err))

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[BOOKING] No booking awaiting feedback for customer %d", customer.ID)
			return nil, apperrors.New(apperrors.ErrCodeNotFound, "no booking awaiting feedback")
		}
		return nil, fmt.Errorf("failed to find eligible booking: %w", err)
	}
	return &booking, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// CreateBookingInput holds the fields accepted when creating a booking
type CreateBookingInput struct {
	CustomerID uint      `json:"customer_id" validate:"required"`
	EventName  string    `json:"event_name" validate:"required,min=2,max=200"`
	EventType  string    `json:"event_type" validate:"omitempty,oneof=wedding birthday corporate funeral outdooring graduation other"`
	Venue      string    `json:"venue" validate:"max=200"`
	GuestCount int       `json:"guest_count" validate:"required,min=1"`
	EventDate  time.Time `json:"event_date" validate:"required"`
}

// BookingService runs the booking lifecycle and its customer messages
type BookingService struct {
	db       *gorm.DB
	notifier *Notifier
	now      func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(db *gorm.DB, notifier *Notifier) *BookingService {
	return &BookingService{db: db, notifier: notifier, now: time.Now}
}

// Create adds a draft booking for an existing customer. The event must be in
// the future.
func (s *BookingService) Create(ctx context.Context, in CreateBookingInput) (*domain.Booking, error) {
	if !in.EventDate.After(s.now()) {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "event date must be in the future")
	}

	var customer domain.Customer
	if err := s.db.WithContext(ctx).First(&customer, in.CustomerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("customer not found")
		}
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}

	eventType := in.EventType
	if eventType == "" {
		eventType = "other"
	}
	booking := &domain.Booking{
		CustomerID: customer.ID,
		EventName:  in.EventName,
		EventType:  eventType,
		Venue:      in.Venue,
		GuestCount: in.GuestCount,
		EventDate:  in.EventDate.UTC(),
		State:      domain.BookingDraft,
	}
	if err := s.db.WithContext(ctx).Create(booking).Error; err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	log.Printf("[BOOKING] Created booking %s (id=%d) for customer %d on %s",
		booking.Reference, booking.ID, customer.ID, booking.EventDate.Format(time.RFC3339))
	return booking, nil
}

// Get loads a booking with its customer
func (s *BookingService) Get(ctx context.Context, id uint) (*domain.Booking, error) {
	var booking domain.Booking
	if err := s.db.WithContext(ctx).Preload("Customer").First(&booking, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("booking not found")
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return &booking, nil
}

// Confirm moves a draft booking to confirmed and sends the confirmation
func (s *BookingService) Confirm(ctx context.Context, id uint) (*domain.Booking, error) {
	booking, err := s.transition(ctx, id, domain.BookingConfirmed)
	if err != nil {
		return nil, err
	}
	s.SendConfirmation(ctx, booking, KindBookingConfirmation)
	return booking, nil
}

// Start marks a confirmed booking as in progress
func (s *BookingService) Start(ctx context.Context, id uint) (*domain.Booking, error) {
	return s.transition(ctx, id, domain.BookingInProgress)
}

// Complete marks an in-progress booking as completed and asks for feedback
func (s *BookingService) Complete(ctx context.Context, id uint) (*domain.Booking, error) {
	booking, err := s.transition(ctx, id, domain.BookingCompleted)
	if err != nil {
		return nil, err
	}
	s.SendFeedbackRequest(ctx, booking)
	return booking, nil
}

// Cancel cancels a booking that has not finished
func (s *BookingService) Cancel(ctx context.Context, id uint) (*domain.Booking, error) {
	return s.transition(ctx, id, domain.BookingCancelled)
}

func (s *BookingService) transition(ctx context.Context, id uint, next domain.BookingState) (*domain.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.State.CanTransitionTo(next) {
		return nil, apperrors.New(apperrors.ErrCodeInvalidBookingState,
			fmt.Sprintf("cannot move booking from %s to %s", booking.State, next))
	}

	// Conditional on the current state so concurrent transitions cannot both win.
	res := s.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND state = ?", booking.ID, booking.State).
		Update("state", next)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update booking state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidBookingState, "booking state changed concurrently")
	}

	log.Printf("[BOOKING] Booking %s moved %s -> %s", booking.Reference, booking.State, next)
	booking.State = next
	return booking, nil
}

// SendConfirmation sends the booking details to the customer and records the
// delivery on the booking.
func (s *BookingService) SendConfirmation(ctx context.Context, booking *domain.Booking, kind string) bool {
	customer, err := s.customerOf(ctx, booking)
	if err != nil {
		log.Printf("[BOOKING] %s for %s skipped: %v", kind, booking.Reference, err)
		return false
	}

	id := booking.ID
	delivered := s.notifier.Notify(ctx, Message{
		Kind:      kind,
		Customer:  customer,
		BookingID: &id,
		Body:      BookingConfirmationText(customer, booking),
	})

	now := s.now().UTC()
	updates := map[string]interface{}{}
	if delivered {
		updates["confirmation_sent"] = true
		updates["last_message_at"] = now
		booking.ConfirmationSent = true
		booking.LastMessageAt = &now
	}
	if kind == KindEventReminder {
		// Mark reminders as handled even when undelivered so the sweep does
		// not retry opted-out customers every run.
		updates["reminder_sent_at"] = now
		booking.ReminderSentAt = &now
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&domain.Booking{}).Where("id = ?", booking.ID).Updates(updates).Error; err != nil {
			log.Printf("[BOOKING] Failed to record %s for %s: %v", kind, booking.Reference, err)
		}
	}
	return delivered
}

// SendFeedbackRequest asks the customer to rate a completed booking
func (s *BookingService) SendFeedbackRequest(ctx context.Context, booking *domain.Booking) bool {
	customer, err := s.customerOf(ctx, booking)
	if err != nil {
		log.Printf("[BOOKING] Feedback request for %s skipped: %v", booking.Reference, err)
		return false
	}

	id := booking.ID
	delivered := s.notifier.Notify(ctx, Message{
		Kind:      KindFeedbackRequest,
		Customer:  customer,
		BookingID: &id,
		Body:      FeedbackRequestText(booking),
	})

	now := s.now().UTC()
	updates := map[string]interface{}{
		"feedback_request_sent":    true,
		"feedback_request_sent_at": now,
	}
	if delivered {
		updates["last_message_at"] = now
		booking.LastMessageAt = &now
	}
	booking.FeedbackRequestSent = true
	booking.FeedbackRequestSentAt = &now
	if err := s.db.WithContext(ctx).Model(&domain.Booking{}).Where("id = ?", booking.ID).Updates(updates).Error; err != nil {
		log.Printf("[BOOKING] Failed to record feedback request for %s: %v", booking.Reference, err)
	}
	return delivered
}

func (s *BookingService) customerOf(ctx context.Context, booking *domain.Booking) (*domain.Customer, error) {
	if booking.Customer != nil {
		return booking.Customer, nil
	}
	var customer domain.Customer
	if err := s.db.WithContext(ctx).First(&customer, booking.CustomerID).Error; err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	booking.Customer = &customer
	return &customer, nil
}
