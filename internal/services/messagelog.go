package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cater/internal/domain"
	"cater/internal/events"

	"gorm.io/gorm"
)

// StatusUpdate is a delivery status callback for a previously sent message
type StatusUpdate struct {
	MessageSID   string
	Status       string
	ErrorCode    string
	ErrorMessage string
	Raw          string
}

// MessageLogService keeps the message audit trail current
type MessageLogService struct {
	db        *gorm.DB
	publisher events.Publisher
}

// NewMessageLogService creates a new message log service
func NewMessageLogService(db *gorm.DB, publisher events.Publisher) *MessageLogService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &MessageLogService{db: db, publisher: publisher}
}

// ApplyStatus merges a status callback into the log row with the same SID.
// Recognized statuses replace the stored one; unknown tokens leave it as is.
// The raw payload is always appended. A callback for an unknown SID creates a
// minimal row.
func (s *MessageLogService) ApplyStatus(ctx context.Context, u StatusUpdate) (*domain.MessageLog, error) {
	if u.MessageSID == "" {
		return nil, NewBadRequestError("status callback without MessageSid")
	}
	status, known := domain.ParseCallbackStatus(u.Status)

	var entry domain.MessageLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("message_sid = ?", u.MessageSID).Order("id").First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			sid := u.MessageSID
			entry = domain.MessageLog{
				Direction:    domain.DirectionOutbound,
				ToNumber:     "unknown",
				Status:       domain.StatusSent,
				MessageSID:   &sid,
				ResponseData: u.Raw,
			}
			if known {
				entry.Status = status
			}
			if entry.Status == domain.StatusFailed {
				entry.ErrorMessage = callbackError(u)
			}
			log.Printf("[MESSAGELOG] Status %q for unknown sid %s, creating log entry", u.Status, u.MessageSID)
			return tx.Create(&entry).Error
		}
		if err != nil {
			return fmt.Errorf("failed to load message log: %w", err)
		}

		updates := map[string]interface{}{}
		if known {
			updates["status"] = status
			entry.Status = status
		} else {
			log.Printf("[MESSAGELOG] Ignoring unrecognized status %q for sid %s", u.Status, u.MessageSID)
		}
		entry.AppendResponse(u.Raw)
		updates["response_data"] = entry.ResponseData
		if known && status == domain.StatusFailed {
			if msg := callbackError(u); msg != "" {
				updates["error_message"] = msg
				entry.ErrorMessage = msg
			}
		}
		now := time.Now().UTC()
		updates["updated_at"] = now
		entry.UpdatedAt = &now
		return tx.Model(&domain.MessageLog{}).Where("id = ?", entry.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	if known {
		evt := events.MessageStatusEvent{
			MessageSID: u.MessageSID,
			Status:     string(entry.Status),
			Error:      entry.ErrorMessage,
			OccurredAt: time.Now().UTC(),
		}
		if err := s.publisher.Publish(ctx, events.MessageStatus, evt); err != nil {
			log.Printf("[MESSAGELOG] Failed to publish status for %s: %v", u.MessageSID, err)
		}
	}
	return &entry, nil
}

func callbackError(u StatusUpdate) string {
	return strings.TrimSpace(u.ErrorCode + " " + u.ErrorMessage)
}

// LogInbound records a received message. A redelivery with the same SID
// appends its payload to the existing row instead of adding another.
func (s *MessageLogService) LogInbound(ctx context.Context, from, body, sid, raw string, customerID *uint) (*domain.MessageLog, error) {
	if from == "" {
		from = "unknown"
	}

	entry, err := s.logInbound(ctx, from, body, sid, raw, customerID)
	if err != nil && sid != "" && isUniqueViolation(err) {
		// A concurrent delivery of the same message inserted first.
		log.Printf("[MESSAGELOG] Inbound sid %s logged concurrently, appending", sid)
		entry, err = s.logInbound(ctx, from, body, sid, raw, customerID)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *MessageLogService) logInbound(ctx context.Context, from, body, sid, raw string, customerID *uint) (*domain.MessageLog, error) {
	var entry domain.MessageLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if sid != "" {
			err := tx.Where("message_sid = ? AND direction = ?", sid, domain.DirectionInbound).First(&entry).Error
			if err == nil {
				entry.AppendResponse(raw)
				return tx.Model(&domain.MessageLog{}).Where("id = ?", entry.ID).
					Update("response_data", entry.ResponseData).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load message log: %w", err)
			}
		}

		entry = domain.MessageLog{
			Direction:    domain.DirectionInbound,
			CustomerID:   customerID,
			ToNumber:     from,
			Message:      body,
			Status:       domain.StatusReceived,
			ResponseData: raw,
		}
		if sid != "" {
			entry.MessageSID = &sid
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
