package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"cater/internal/config"
	"cater/internal/domain"
	apperrors "cater/pkg/errors"

	"gorm.io/gorm"
)

// OutboundServiceStore manages the configured WhatsApp senders
type OutboundServiceStore struct {
	db *gorm.DB
}

// NewOutboundServiceStore creates a new outbound service store
func NewOutboundServiceStore(db *gorm.DB) *OutboundServiceStore {
	return &OutboundServiceStore{db: db}
}

// Active returns the single active outbound service
func (s *OutboundServiceStore) Active(ctx context.Context) (*domain.OutboundService, error) {
	var svc domain.OutboundService
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").First(&svc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrCodeNotFound, "no active WhatsApp service configured")
		}
		return nil, fmt.Errorf("failed to load active service: %w", err)
	}
	return &svc, nil
}

// Activate saves svc (matched by name) and makes it the only active service
func (s *OutboundServiceStore) Activate(ctx context.Context, svc *domain.OutboundService) (*domain.OutboundService, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.OutboundService{}).Where("active = ?", true).Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate services: %w", err)
		}

		var existing domain.OutboundService
		err := tx.Where("name = ?", svc.Name).First(&existing).Error
		switch {
		case err == nil:
			svc.ID = existing.ID
			svc.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to look up service: %w", err)
		}

		svc.Active = true
		if err := tx.Save(svc).Error; err != nil {
			return fmt.Errorf("failed to save service: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WHATSAPP] Activated outbound service %q (provider=%s)", svc.Name, svc.Provider)
	return svc, nil
}

// ServiceFromConfig builds an outbound service from environment settings
func ServiceFromConfig(cfg *config.Config) *domain.OutboundService {
	provider := strings.ToLower(cfg.WhatsApp.Provider)
	if provider != domain.ProviderTwilio {
		provider = domain.ProviderConsole
	}
	return &domain.OutboundService{
		Name:                "default-" + provider,
		Provider:            provider,
		APIURL:              cfg.WhatsApp.APIURL,
		AccountSID:          cfg.WhatsApp.AccountSID,
		AuthToken:           cfg.WhatsApp.AuthToken,
		FromNumber:          cfg.WhatsApp.FromNumber,
		MessagingServiceSID: cfg.WhatsApp.MessagingServiceSID,
		StatusCallbackBase:  cfg.App.BaseURL,
	}
}
