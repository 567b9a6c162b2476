package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingState is the scheduling state of a booking
type BookingState string

const (
	BookingDraft      BookingState = "draft"
	BookingConfirmed  BookingState = "confirmed"
	BookingInProgress BookingState = "in_progress"
	BookingCompleted  BookingState = "completed"
	BookingCancelled  BookingState = "cancelled"
)

// bookingFlow is the forward-only sequence a booking moves through.
var bookingFlow = []BookingState{BookingDraft, BookingConfirmed, BookingInProgress, BookingCompleted}

// IsTerminal reports whether no further transitions are possible
func (s BookingState) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// CanTransitionTo reports whether a booking may move from s to next.
// Bookings advance exactly one step along the flow; cancellation is allowed
// from any non-terminal state.
func (s BookingState) CanTransitionTo(next BookingState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == BookingCancelled {
		return true
	}
	for i, st := range bookingFlow {
		if st == s {
			return i+1 < len(bookingFlow) && bookingFlow[i+1] == next
		}
	}
	return false
}

// Booking represents a catering engagement for a customer
type Booking struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	Reference  string       `gorm:"uniqueIndex;not null" json:"reference"`
	CustomerID uint         `gorm:"not null;index" json:"customer_id"`
	Customer   *Customer    `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	EventName  string       `gorm:"not null" json:"event_name"`
	EventType  string       `gorm:"default:'other'" json:"event_type"` // wedding, birthday, corporate, funeral, outdooring, graduation, other
	Venue      string       `json:"venue"`
	GuestCount int          `json:"guest_count"`
	State      BookingState `gorm:"type:varchar(20);not null;index" json:"state"`
	EventDate  time.Time    `gorm:"not null;index" json:"event_date"`

	ConfirmationSent      bool       `gorm:"not null" json:"confirmation_sent"`
	LastMessageAt         *time.Time `json:"last_message_at"`
	ReminderSentAt        *time.Time `json:"reminder_sent_at"`
	FeedbackRequestSent   bool       `gorm:"not null;index" json:"feedback_request_sent"`
	FeedbackRequestSentAt *time.Time `json:"feedback_request_sent_at"`
	FeedbackReceived      bool       `gorm:"not null" json:"feedback_received"`
	FeedbackConfirmed     bool       `gorm:"not null" json:"feedback_confirmed"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// TableName specifies the table name for Booking
func (Booking) TableName() string {
	return "bookings"
}

// BeforeCreate hook
func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	b.CreatedAt = time.Now().UTC()
	if b.State == "" {
		b.State = BookingDraft
	}
	if b.Reference == "" {
		b.Reference = NewBookingReference()
	}
	return nil
}

// BeforeUpdate hook
func (b *Booking) BeforeUpdate(tx *gorm.DB) error {
	now := time.Now().UTC()
	b.UpdatedAt = &now
	return nil
}

// NewBookingReference returns a short human-readable booking reference
func NewBookingReference() string {
	id := uuid.New().String()
	return fmt.Sprintf("BK-%s", id[:8])
}
