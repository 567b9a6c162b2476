package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cater/internal/config"
	"cater/internal/domain"
	"cater/internal/metrics"
	"cater/internal/util"
	apperrors "cater/pkg/errors"

	"goa.design/goa/v3/security"
	"gorm.io/gorm"
)

type userContextKey struct{}

// WithUser returns a context carrying the authenticated user
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the authenticated user, if any
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*domain.User)
	return user, ok
}

// LoginPayload holds staff credentials
type LoginPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is returned on a successful login
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuthService authenticates staff users for the admin API
type AuthService struct {
	db  *gorm.DB
	cfg *config.AuthConfig
}

// NewAuthService creates a new auth service
func NewAuthService(db *gorm.DB, cfg *config.AuthConfig) *AuthService {
	return &AuthService{db: db, cfg: cfg}
}

// Login checks the credentials and issues a bearer token
func (s *AuthService) Login(ctx context.Context, p LoginPayload) (*LoginResult, error) {
	username := strings.TrimSpace(p.Username)
	password := strings.TrimSpace(p.Password)

	log.Printf("[AUTH] Login attempt for user: %s", username)

	var user domain.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		metrics.RecordAuthAttempt(false)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[AUTH] Login failed: user '%s' not found", username)
			return nil, NewUnauthorizedError("incorrect username or password")
		}
		log.Printf("[AUTH] Login failed: database error for user '%s': %v", username, err)
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !util.CheckPasswordHash(password, user.HashedPassword) {
		log.Printf("[AUTH] Login failed: invalid password for user '%s'", username)
		metrics.RecordAuthAttempt(false)
		return nil, NewUnauthorizedError("incorrect username or password")
	}

	if !user.IsActive {
		log.Printf("[AUTH] Login failed: user '%s' is inactive", username)
		metrics.RecordAuthAttempt(false)
		return nil, NewUnauthorizedError("user account is inactive")
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		log.Printf("[AUTH] Failed to record last login for '%s': %v", username, err)
	}

	token, expiresAt, err := util.GenerateToken(s.cfg, &user)
	if err != nil {
		log.Printf("[AUTH] Login failed: token generation error for user '%s': %v", username, err)
		return nil, NewInternalError("failed to generate token", err)
	}

	log.Printf("[AUTH] Login successful for user '%s' (id=%d, admin=%v, staff=%v)", username, user.ID, user.IsAdmin, user.IsStaff)
	metrics.RecordAuthAttempt(true)

	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// Authenticate validates a bearer token and checks the scheme's required
// scopes against the user's current roles.
func (s *AuthService) Authenticate(ctx context.Context, token string, scheme *security.JWTScheme) (*domain.User, error) {
	claims, err := util.ValidateToken(s.cfg, token)
	if err != nil {
		return nil, NewUnauthorizedError("invalid or expired token")
	}

	user, err := util.GetUserFromToken(s.db.WithContext(ctx), claims)
	if err != nil {
		return nil, NewUnauthorizedError("user not found")
	}
	if !user.IsActive {
		return nil, NewUnauthorizedError("user account is inactive")
	}

	if scheme != nil && len(scheme.RequiredScopes) > 0 {
		allowed := false
		for _, scope := range scheme.RequiredScopes {
			if user.HasScope(scope) {
				allowed = true
				break
			}
		}
		if !allowed {
			log.Printf("[AUTH] User '%s' lacks scopes %v", user.Username, scheme.RequiredScopes)
			return nil, apperrors.New(apperrors.ErrCodeForbidden, "insufficient permissions")
		}
	}
	return user, nil
}
