package domain

import (
	"time"

	"gorm.io/gorm"
)

const (
	FollowUpOpen = "open"
	FollowUpDone = "done"
)

// FollowUp is a staff task raised when a customer leaves a low rating
type FollowUp struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	BookingID  uint       `gorm:"not null;index" json:"booking_id"`
	FeedbackID uint       `gorm:"not null;uniqueIndex" json:"feedback_id"`
	Rating     int        `gorm:"not null" json:"rating"`
	Summary    string     `gorm:"not null" json:"summary"`
	Note       string     `gorm:"type:text" json:"note"`
	DueAt      time.Time  `gorm:"not null;index" json:"due_at"`
	Status     string     `gorm:"type:varchar(10);not null;index" json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ClosedAt   *time.Time `json:"closed_at"`
}

// TableName specifies the table name for FollowUp
func (FollowUp) TableName() string {
	return "follow_ups"
}

// BeforeCreate hook
func (f *FollowUp) BeforeCreate(tx *gorm.DB) error {
	f.CreatedAt = time.Now().UTC()
	if f.Status == "" {
		f.Status = FollowUpOpen
	}
	return nil
}
