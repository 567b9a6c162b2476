package domain

import (
	"time"

	"gorm.io/gorm"
)

// User is a staff account allowed to use the admin API
type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Username       string     `gorm:"uniqueIndex;not null" json:"username"`
	Email          string     `gorm:"uniqueIndex;not null" json:"email"`
	HashedPassword string     `gorm:"not null" json:"-"`
	FullName       *string    `json:"full_name"`
	IsActive       bool       `gorm:"not null" json:"is_active"`
	IsAdmin        bool       `gorm:"not null" json:"is_admin"`
	IsStaff        bool       `gorm:"not null" json:"is_staff"`

	// Staff with this flag are emailed when a customer leaves a low rating.
	ReceivesEscalations bool `gorm:"not null;index" json:"receives_escalations"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// HasScope reports whether the user satisfies a JWT scope ("admin" or "staff")
func (u *User) HasScope(scope string) bool {
	switch scope {
	case "admin":
		return u.IsAdmin
	case "staff":
		return u.IsStaff || u.IsAdmin
	default:
		return false
	}
}

// BeforeCreate hook
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate hook
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now().UTC()
	return nil
}
