package domain

import (
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	ProviderTwilio  = "twilio"
	ProviderConsole = "console"
)

// OutboundService is a configured WhatsApp sender. At most one row is active.
type OutboundService struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Name                string     `gorm:"uniqueIndex;not null" json:"name"`
	Provider            string     `gorm:"type:varchar(20);not null" json:"provider"`
	APIURL              string     `json:"api_url"`
	AccountSID          string     `json:"account_sid"`
	AuthToken           string     `json:"-"`
	FromNumber          string     `json:"from_number"`
	MessagingServiceSID string     `json:"messaging_service_sid"`
	StatusCallbackBase  string     `json:"status_callback_base"`
	Active              bool       `gorm:"not null;index" json:"active"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at"`
}

// TableName specifies the table name for OutboundService
func (OutboundService) TableName() string {
	return "outbound_services"
}

// StatusCallbackURL returns the callback URL Twilio should post delivery
// updates to, or "" when the base URL is not publicly reachable.
func (s *OutboundService) StatusCallbackURL() string {
	base := strings.TrimRight(strings.TrimSpace(s.StatusCallbackBase), "/")
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	switch u.Hostname() {
	case "", "localhost", "127.0.0.1", "0.0.0.0", "::1":
		return ""
	}
	return base + "/whatsapp/status"
}

// BeforeCreate hook
func (s *OutboundService) BeforeCreate(tx *gorm.DB) error {
	s.CreatedAt = time.Now().UTC()
	return nil
}

// BeforeUpdate hook
func (s *OutboundService) BeforeUpdate(tx *gorm.DB) error {
	now := time.Now().UTC()
	s.UpdatedAt = &now
	return nil
}
