package util

import (
	"errors"
	"fmt"
	"time"

	"cater/internal/config"
	"cater/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims represents JWT claims. Subject carries the username.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// ScopesFor lists the API scopes granted to a user
func ScopesFor(user *domain.User) []string {
	var scopes []string
	if user.HasScope("staff") {
		scopes = append(scopes, "staff")
	}
	if user.HasScope("admin") {
		scopes = append(scopes, "admin")
	}
	return scopes
}

// GenerateToken generates a signed JWT for a user and returns it with its expiry
func GenerateToken(cfg *config.AuthConfig, user *domain.User) (string, time.Time, error) {
	now := time.Now()
	expirationTime := now.Add(time.Duration(cfg.TokenExpiryMinutes) * time.Minute)

	claims := &Claims{
		Scopes: ScopesFor(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expirationTime, nil
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(cfg *config.AuthConfig, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.SecretKey), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetUserFromToken gets user from token claims
func GetUserFromToken(db *gorm.DB, claims *Claims) (*domain.User, error) {
	var user domain.User
	if err := db.Where("username = ?", claims.Subject).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	return &user, nil
}
