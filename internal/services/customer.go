package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cater/internal/domain"
	"cater/internal/util"
	apperrors "cater/pkg/errors"

	"gorm.io/gorm"
)

// CustomerResolver maps an inbound phone number to a known customer
type CustomerResolver struct {
	db *gorm.DB
}

// NewCustomerResolver creates a new customer resolver
func NewCustomerResolver(db *gorm.DB) *CustomerResolver {
	return &CustomerResolver{db: db}
}

// Resolve normalizes phone and looks up the customer by exact match.
// No fuzzy matching: an unknown number is NotFound.
func (r *CustomerResolver) Resolve(ctx context.Context, phone string) (*domain.Customer, error) {
	normalized := util.NormalizePhone(phone)
	if normalized == "" {
		return nil, apperrors.New(apperrors.ErrCodeMalformedPayload, "sender phone is empty")
	}

	var customer domain.Customer
	err := r.db.WithContext(ctx).Where("phone = ?", normalized).First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[CUSTOMER] No customer for phone %s", normalized)
			return nil, apperrors.New(apperrors.ErrCodeNotFound, fmt.Sprintf("no customer with phone %s", normalized))
		}
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}
	return &customer, nil
}

// CreateCustomerInput holds the fields accepted when registering a customer
type CreateCustomerInput struct {
	Name          string  `json:"name" validate:"required,min=2,max=100"`
	Phone         string  `json:"phone" validate:"required,min=7,max=32"`
	Email         *string `json:"email" validate:"omitempty,email"`
	WhatsAppOptIn *bool   `json:"whatsapp_opt_in"`
}

// CustomerService manages customer records for the admin API
type CustomerService struct {
	db *gorm.DB
}

// NewCustomerService creates a new customer service
func NewCustomerService(db *gorm.DB) *CustomerService {
	return &CustomerService{db: db}
}

// Create registers a customer with a normalized phone number. Customers are
// opted in to WhatsApp unless the input says otherwise.
func (s *CustomerService) Create(ctx context.Context, in CreateCustomerInput) (*domain.Customer, error) {
	phone := util.NormalizePhone(in.Phone)
	if phone == "" {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "phone must contain digits")
	}

	customer := &domain.Customer{
		Name:          in.Name,
		Phone:         phone,
		Email:         in.Email,
		WhatsAppOptIn: true,
	}
	if in.WhatsAppOptIn != nil {
		customer.WhatsAppOptIn = *in.WhatsAppOptIn
	}

	if err := s.db.WithContext(ctx).Create(customer).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Wrap(apperrors.ErrCodeBadRequest, "phone already registered", err)
		}
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	log.Printf("[CUSTOMER] Created customer id=%d phone=%s opt_in=%v", customer.ID, customer.Phone, customer.WhatsAppOptIn)
	return customer, nil
}

// SetOptIn updates a customer's WhatsApp opt-in flag
func (s *CustomerService) SetOptIn(ctx context.Context, customerID uint, optIn bool) error {
	res := s.db.WithContext(ctx).Model(&domain.Customer{}).Where("id = ?", customerID).Update("whatsapp_opt_in", optIn)
	if res.Error != nil {
		return fmt.Errorf("failed to update opt-in: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrCodeNotFound, "customer not found")
	}
	return nil
}
