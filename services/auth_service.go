package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const adminTokenTTL = 12 * time.Hour

// AdminAuthService trades the shared admin key for a short-lived bearer
// token. The key itself is never stored, only its bcrypt hash.
type AdminAuthService struct {
	keyHash   []byte
	jwtSecret []byte
	logger    *slog.Logger
}

func NewAdminAuthService(keyHash, jwtSecret string, logger *slog.Logger) *AdminAuthService {
	return &AdminAuthService{
		keyHash:   []byte(keyHash),
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

// IssueToken verifies the admin key and signs an admin-role token.
func (s *AdminAuthService) IssueToken(ctx context.Context, key string) (string, error) {
	if len(s.keyHash) == 0 {
		return "", fmt.Errorf("%w: admin access is not configured", ErrInvalidAdminKey)
	}
	if err := bcrypt.CompareHashAndPassword(s.keyHash, []byte(key)); err != nil {
		s.logger.Warn("admin key rejected")
		return "", ErrInvalidAdminKey
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"role": "admin",
		"exp":  now.Add(adminTokenTTL).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}
