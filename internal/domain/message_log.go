package domain

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// MessageDirection distinguishes sent from received messages
type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

// MessageStatus is the delivery state of a logged message
type MessageStatus string

const (
	StatusQueued    MessageStatus = "queued"
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusReceived  MessageStatus = "received"
	StatusFailed    MessageStatus = "failed"
	StatusError     MessageStatus = "error"
)

// ParseCallbackStatus maps a provider status token onto a MessageStatus.
// Unknown tokens return false and must not change a stored status.
func ParseCallbackStatus(token string) (MessageStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "queued", "accepted", "scheduled":
		return StatusQueued, true
	case "sending":
		return StatusSending, true
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "read":
		return StatusRead, true
	case "failed", "undelivered", "canceled":
		return StatusFailed, true
	}
	return "", false
}

// InitialSendStatus maps the status returned by an accepted send.
// Anything outside the in-flight set is recorded as sent.
func InitialSendStatus(token string) MessageStatus {
	switch s := MessageStatus(strings.ToLower(token)); s {
	case StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusRead:
		return s
	}
	return StatusSent
}

// MessageLog is the audit row for one inbound or outbound message.
// ResponseData only ever grows; each provider payload is appended.
// An inbound SID appears on at most one row.
type MessageLog struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	Direction    MessageDirection `gorm:"type:varchar(10);not null;index" json:"direction"`
	CustomerID   *uint            `gorm:"index" json:"customer_id"`
	BookingID    *uint            `gorm:"index" json:"booking_id"`
	ToNumber     string           `gorm:"not null" json:"to_number"`
	Message      string           `gorm:"type:text" json:"message"`
	Status       MessageStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	MessageSID   *string          `gorm:"column:message_sid;index;uniqueIndex:idx_message_logs_inbound_sid,where:direction = 'inbound'" json:"message_sid"`
	ResponseData string           `gorm:"type:text" json:"response_data"`
	ErrorMessage string           `gorm:"type:text" json:"error_message"`
	SendDate     time.Time        `gorm:"not null" json:"send_date"`
	UpdatedAt    *time.Time       `json:"updated_at"`
}

// TableName specifies the table name for MessageLog
func (MessageLog) TableName() string {
	return "message_logs"
}

// AppendResponse adds a payload to the audit trail
func (m *MessageLog) AppendResponse(payload string) {
	if payload == "" {
		return
	}
	if m.ResponseData == "" {
		m.ResponseData = payload
		return
	}
	m.ResponseData += "\n" + payload
}

// BeforeCreate hook
func (m *MessageLog) BeforeCreate(tx *gorm.DB) error {
	if m.SendDate.IsZero() {
		m.SendDate = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate hook
func (m *MessageLog) BeforeUpdate(tx *gorm.DB) error {
	now := time.Now().UTC()
	m.UpdatedAt = &now
	return nil
}
