package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"cater/internal/domain"
	"cater/internal/events"
	"cater/internal/metrics"
	apperrors "cater/pkg/errors"

	"github.com/jinzhu/now"
	"gorm.io/gorm"
)

// FeedbackDetails holds the optional parts of a feedback record. Zero
// sub-ratings default to the overall rating.
type FeedbackDetails struct {
	FoodQuality    int
	ServiceQuality int
	Presentation   int
	Timeliness     int
	WouldRecommend *bool

	// MessageSID identifies the inbound message the rating came from
	MessageSID string
}

// FeedbackRecorder persists feedback with one record per booking and raises
// follow-ups for low ratings.
type FeedbackRecorder struct {
	db            *gorm.DB
	email         *EmailService
	staffEmail    string
	publisher     events.Publisher
	escalateBelow int
	now           func() time.Time

	// pending tracks staff emails still in flight
	pending sync.WaitGroup
}

// NewFeedbackRecorder creates a new feedback recorder
func NewFeedbackRecorder(db *gorm.DB, email *EmailService, staffEmail string, publisher events.Publisher, escalateBelow int) *FeedbackRecorder {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if escalateBelow <= 0 {
		escalateBelow = domain.PositiveRating
	}
	return &FeedbackRecorder{
		db:            db,
		email:         email,
		staffEmail:    staffEmail,
		publisher:     publisher,
		escalateBelow: escalateBelow,
		now:           time.Now,
	}
}

// Record stores a rating for a booking
func (r *FeedbackRecorder) Record(ctx context.Context, bookingID uint, rating int, comment string, source domain.FeedbackSource) (*domain.Feedback, error) {
	return r.RecordDetailed(ctx, bookingID, rating, comment, source, FeedbackDetails{})
}

// RecordDetailed stores a rating with individual sub-ratings. It fails with
// DuplicateFeedback when the booking, or the inbound message named in
// details, already has feedback, including when a concurrent call won the
// race, and leaves the existing record untouched.
func (r *FeedbackRecorder) RecordDetailed(ctx context.Context, bookingID uint, rating int, comment string, source domain.FeedbackSource, details FeedbackDetails) (*domain.Feedback, error) {
	if rating < domain.MinRating || rating > domain.MaxRating {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRating, fmt.Sprintf("rating %d is outside 1..5", rating))
	}
	if !source.Valid() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidRating, fmt.Sprintf("unknown feedback source %q", source))
	}
	for _, sub := range []int{details.FoodQuality, details.ServiceQuality, details.Presentation, details.Timeliness} {
		if sub != 0 && (sub < domain.MinRating || sub > domain.MaxRating) {
			return nil, apperrors.New(apperrors.ErrCodeInvalidRating, fmt.Sprintf("sub-rating %d is outside 1..5", sub))
		}
	}

	feedbackDate := r.now().UTC()
	feedback := &domain.Feedback{
		BookingID:      bookingID,
		Rating:         rating,
		Comments:       strings.TrimSpace(comment),
		FoodQuality:    orRating(details.FoodQuality, rating),
		ServiceQuality: orRating(details.ServiceQuality, rating),
		Presentation:   orRating(details.Presentation, rating),
		Timeliness:     orRating(details.Timeliness, rating),
		WouldRecommend: rating >= domain.PositiveRating,
		Source:         source,
		FeedbackDate:   feedbackDate,
	}
	if details.WouldRecommend != nil {
		feedback.WouldRecommend = *details.WouldRecommend
	}
	if sid := strings.TrimSpace(details.MessageSID); sid != "" {
		feedback.MessageSID = &sid
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking domain.Booking
		if err := tx.First(&booking, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewNotFoundError(fmt.Sprintf("booking %d not found", bookingID))
			}
			return fmt.Errorf("failed to load booking: %w", err)
		}
		if booking.State != domain.BookingCompleted {
			return apperrors.New(apperrors.ErrCodeInvalidBookingState,
				fmt.Sprintf("booking %s is %s, not completed", booking.Reference, booking.State))
		}
		if feedbackDate.Before(booking.EventDate) {
			return apperrors.New(apperrors.ErrCodeInvalidBookingState,
				fmt.Sprintf("feedback for booking %s precedes its event", booking.Reference))
		}

		var existing int64
		if feedback.MessageSID != nil {
			err := tx.Model(&domain.Feedback{}).Where("message_sid = ?", *feedback.MessageSID).Count(&existing).Error
			if err != nil {
				return fmt.Errorf("failed to check existing feedback: %w", err)
			}
			if existing > 0 {
				return apperrors.New(apperrors.ErrCodeDuplicateFeedback,
					fmt.Sprintf("message %s was already recorded as feedback", *feedback.MessageSID))
			}
		}
		if err := tx.Model(&domain.Feedback{}).Where("booking_id = ?", bookingID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing feedback: %w", err)
		}
		if existing > 0 {
			return apperrors.New(apperrors.ErrCodeDuplicateFeedback, fmt.Sprintf("booking %s already has feedback", booking.Reference))
		}

		feedback.CustomerID = booking.CustomerID
		if err := tx.Create(feedback).Error; err != nil {
			// The unique indexes decide races the counts above cannot see.
			if isUniqueViolation(err) {
				return apperrors.Wrap(apperrors.ErrCodeDuplicateFeedback,
					fmt.Sprintf("booking %s or its message already has feedback", booking.Reference), err)
			}
			return fmt.Errorf("failed to create feedback: %w", err)
		}

		if err := tx.Model(&domain.Booking{}).Where("id = ?", bookingID).Update("feedback_received", true).Error; err != nil {
			return fmt.Errorf("failed to flag booking: %w", err)
		}
		feedback.Booking = &booking
		return nil
	})
	if err != nil {
		switch {
		case apperrors.IsDuplicateFeedback(err):
			log.Printf("[FEEDBACK] Duplicate feedback for booking %d ignored", bookingID)
		case apperrors.IsInvalidBookingState(err), apperrors.IsNotFound(err):
			log.Printf("[FEEDBACK] Warning: %v", err)
		}
		return nil, err
	}

	log.Printf("[FEEDBACK] Recorded %d-star %s feedback id=%d for booking %d", rating, source, feedback.ID, bookingID)
	metrics.RecordFeedbackRating(rating, string(source))
	r.publish(ctx, events.FeedbackRecorded, feedback)
	return feedback, nil
}

func orRating(v, rating int) int {
	if v == 0 {
		return rating
	}
	return v
}

// NeedsEscalation reports whether a feedback should raise a staff follow-up
func (r *FeedbackRecorder) NeedsEscalation(f *domain.Feedback) bool {
	return f.Rating < r.escalateBelow
}

// MarkConfirmed records that the customer received the thank-you message
func (r *FeedbackRecorder) MarkConfirmed(ctx context.Context, bookingID uint) error {
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ?", bookingID).
		Update("feedback_confirmed", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark feedback confirmed: %w", err)
	}
	return nil
}

// Escalate creates a follow-up task due the next business day, emails staff
// in the background and publishes an escalation event. Failures are logged
// and do not affect the recorded feedback.
func (r *FeedbackRecorder) Escalate(ctx context.Context, f *domain.Feedback) (*domain.FollowUp, error) {
	reference := fmt.Sprintf("booking %d", f.BookingID)
	if f.Booking != nil {
		reference = f.Booking.Reference
	}

	followUp := &domain.FollowUp{
		BookingID:  f.BookingID,
		FeedbackID: f.ID,
		Rating:     f.Rating,
		Summary:    fmt.Sprintf("Low rating (%d/5) for %s", f.Rating, reference),
		Note:       f.Comments,
		DueAt:      nextBusinessDay(r.now().UTC()),
		Status:     domain.FollowUpOpen,
	}
	if err := r.db.WithContext(ctx).Create(followUp).Error; err != nil {
		if isUniqueViolation(err) {
			log.Printf("[FEEDBACK] Follow-up for feedback %d already exists", f.ID)
			return nil, nil
		}
		log.Printf("[FEEDBACK] Failed to create follow-up for feedback %d: %v", f.ID, err)
		return nil, fmt.Errorf("failed to create follow-up: %w", err)
	}
	log.Printf("[FEEDBACK] Escalated feedback %d (%d/5), follow-up %d due %s",
		f.ID, f.Rating, followUp.ID, followUp.DueAt.Format("2006-01-02"))

	if r.email != nil {
		// SMTP is slow and may stall; the webhook reply must not wait on it.
		notifyCtx := context.WithoutCancel(ctx)
		r.pending.Add(1)
		go func() {
			defer r.pending.Done()
			r.notifyStaff(notifyCtx, f, followUp)
		}()
	}
	r.publish(ctx, events.FeedbackEscalated, f)
	return followUp, nil
}

// Wait blocks until staff emails started by Escalate finish or ctx expires
func (r *FeedbackRecorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *FeedbackRecorder) notifyStaff(ctx context.Context, f *domain.Feedback, followUp *domain.FollowUp) {
	recipients := []string{}
	if r.staffEmail != "" {
		recipients = append(recipients, r.staffEmail)
	}
	var staff []domain.User
	if err := r.db.WithContext(ctx).Where("receives_escalations = ? AND is_active = ?", true, true).Find(&staff).Error; err != nil {
		log.Printf("[FEEDBACK] Failed to load escalation recipients: %v", err)
	}
	for _, u := range staff {
		recipients = append(recipients, u.Email)
	}
	if len(recipients) == 0 {
		log.Printf("[FEEDBACK] No staff recipients for follow-up %d", followUp.ID)
		return
	}

	alert := FollowUpAlert{
		Summary:  followUp.Summary,
		Rating:   f.Rating,
		Comments: f.Comments,
		DueAt:    followUp.DueAt,
	}
	if f.Booking != nil {
		alert.Event = f.Booking.EventName
		alert.Reference = f.Booking.Reference
	}
	var customer domain.Customer
	if err := r.db.WithContext(ctx).First(&customer, f.CustomerID).Error; err == nil {
		alert.Customer = customer.Name
		alert.Phone = customer.Phone
	}

	for _, to := range recipients {
		if err := r.email.SendFollowUpAlert(to, alert); err != nil {
			log.Printf("[FEEDBACK] Failed to email %s about follow-up %d: %v", to, followUp.ID, err)
		}
	}
}

func (r *FeedbackRecorder) publish(ctx context.Context, key string, f *domain.Feedback) {
	evt := events.FeedbackEvent{
		FeedbackID: f.ID,
		BookingID:  f.BookingID,
		CustomerID: f.CustomerID,
		Rating:     f.Rating,
		Source:     string(f.Source),
		Positive:   f.IsPositive(),
		OccurredAt: f.FeedbackDate,
	}
	if err := r.publisher.Publish(ctx, key, evt); err != nil {
		log.Printf("[FEEDBACK] Failed to publish %s for feedback %d: %v", key, f.ID, err)
	}
}

// nextBusinessDay returns 9am on the next weekday after t
func nextBusinessDay(t time.Time) time.Time {
	day := now.With(t).BeginningOfDay().AddDate(0, 0, 1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	return day.Add(9 * time.Hour)
}

// FeedbackService lists and manually records feedback for the admin API
type FeedbackService struct {
	db       *gorm.DB
	recorder *FeedbackRecorder
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(db *gorm.DB, recorder *FeedbackRecorder) *FeedbackService {
	return &FeedbackService{db: db, recorder: recorder}
}

// ManualFeedbackInput is feedback taken by staff over the phone, by email or in person
type ManualFeedbackInput struct {
	Rating         int    `json:"rating" validate:"required,min=1,max=5"`
	Comments       string `json:"comments" validate:"max=5000"`
	Source         string `json:"source" validate:"required,oneof=phone email in_person"`
	FoodQuality    int    `json:"food_quality" validate:"omitempty,min=1,max=5"`
	ServiceQuality int    `json:"service_quality" validate:"omitempty,min=1,max=5"`
	Presentation   int    `json:"presentation" validate:"omitempty,min=1,max=5"`
	Timeliness     int    `json:"timeliness" validate:"omitempty,min=1,max=5"`
	WouldRecommend *bool  `json:"would_recommend"`
}

// RecordManual stores staff-entered feedback and escalates low ratings
func (s *FeedbackService) RecordManual(ctx context.Context, bookingID uint, in ManualFeedbackInput) (*domain.Feedback, error) {
	f, err := s.recorder.RecordDetailed(ctx, bookingID, in.Rating, in.Comments, domain.FeedbackSource(in.Source), FeedbackDetails{
		FoodQuality:    in.FoodQuality,
		ServiceQuality: in.ServiceQuality,
		Presentation:   in.Presentation,
		Timeliness:     in.Timeliness,
		WouldRecommend: in.WouldRecommend,
	})
	if err != nil {
		return nil, err
	}
	if s.recorder.NeedsEscalation(f) {
		if _, err := s.recorder.Escalate(ctx, f); err != nil {
			log.Printf("[FEEDBACK] Escalation failed for feedback %d: %v", f.ID, err)
		}
	}
	return f, nil
}

// List returns feedback newest first
func (s *FeedbackService) List(ctx context.Context, skip, limit int) ([]domain.Feedback, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	var feedbacks []domain.Feedback
	err := s.db.WithContext(ctx).
		Order("feedback_date DESC").
		Order("id DESC").
		Offset(skip).
		Limit(limit).
		Find(&feedbacks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feedback: %w", err)
	}
	return feedbacks, nil
}
