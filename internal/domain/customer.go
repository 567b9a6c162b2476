package domain

import (
	"time"

	"gorm.io/gorm"
)

// Customer represents a catering customer reachable over WhatsApp
type Customer struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"not null" json:"name"`
	Phone         string     `gorm:"uniqueIndex;not null" json:"phone"` // normalized E.164, e.g. +233241234567
	Email         *string    `gorm:"index" json:"email"`
	WhatsAppOptIn bool       `gorm:"column:whatsapp_opt_in;not null" json:"whatsapp_opt_in"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

// TableName specifies the table name for Customer
func (Customer) TableName() string {
	return "customers"
}

// BeforeCreate hook
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	c.CreatedAt = time.Now().UTC()
	return nil
}

// BeforeUpdate hook
func (c *Customer) BeforeUpdate(tx *gorm.DB) error {
	now := time.Now().UTC()
	c.UpdatedAt = &now
	return nil
}
