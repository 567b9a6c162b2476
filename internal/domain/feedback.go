package domain

import (
	"time"

	"gorm.io/gorm"
)

// FeedbackSource records how a rating reached us
type FeedbackSource string

const (
	SourceWhatsApp FeedbackSource = "whatsapp"
	SourcePhone    FeedbackSource = "phone"
	SourceEmail    FeedbackSource = "email"
	SourceInPerson FeedbackSource = "in_person"
)

// Valid reports whether s is a known feedback source
func (s FeedbackSource) Valid() bool {
	switch s {
	case SourceWhatsApp, SourcePhone, SourceEmail, SourceInPerson:
		return true
	}
	return false
}

const (
	MinRating = 1
	MaxRating = 5

	// PositiveRating is the lowest rating counted as positive. Anything
	// below it is escalated to staff.
	PositiveRating = 4
)

// Feedback is a customer's rating of one completed booking.
// The unique index on booking_id enforces one feedback per booking, the one
// on message_sid one feedback per inbound message.
type Feedback struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	BookingID      uint           `gorm:"not null;uniqueIndex:idx_feedbacks_booking_id" json:"booking_id"`
	Booking        *Booking       `gorm:"foreignKey:BookingID" json:"booking,omitempty"`
	CustomerID     uint           `gorm:"not null;index" json:"customer_id"`
	Rating         int            `gorm:"not null" json:"rating"`
	Comments       string         `gorm:"type:text" json:"comments"`
	FoodQuality    int            `gorm:"not null" json:"food_quality"`
	ServiceQuality int            `gorm:"not null" json:"service_quality"`
	Presentation   int            `gorm:"not null" json:"presentation"`
	Timeliness     int            `gorm:"not null" json:"timeliness"`
	WouldRecommend bool           `gorm:"not null" json:"would_recommend"`
	Source         FeedbackSource `gorm:"type:varchar(20);not null" json:"source"`
	FeedbackDate   time.Time      `gorm:"not null;index" json:"feedback_date"`

	// MessageSID is the provider id of the inbound message that carried the
	// rating. A message yields at most one feedback.
	MessageSID *string `gorm:"column:message_sid;uniqueIndex:idx_feedbacks_message_sid" json:"message_sid,omitempty"`

	CreatedAt      time.Time      `json:"created_at"`
}

// TableName specifies the table name for Feedback
func (Feedback) TableName() string {
	return "feedbacks"
}

// IsPositive reports whether the rating counts as positive
func (f *Feedback) IsPositive() bool {
	return f.Rating >= PositiveRating
}

// BeforeCreate hook
func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	f.CreatedAt = time.Now().UTC()
	if f.FeedbackDate.IsZero() {
		f.FeedbackDate = f.CreatedAt
	}
	return nil
}
