package service

import (
	"context"
	"errors"
	"time"

	"ridez/internal/auth"
	"ridez/internal/domain"
	"ridez/internal/repository"
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(user *domain.User) (string, time.Time, error)
}

// AuthService exchanges credentials for access tokens.
type AuthService struct {
	userRepo repository.UserRepository
	tokens   TokenIssuer
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repository.UserRepository, tokens TokenIssuer) *AuthService {
	return &AuthService{userRepo: userRepo, tokens: tokens}
}

// Login checks the credentials and returns a signed token with its expiry.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if username == "" || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", time.Time{}, ErrInvalidCredentials
		}
		return "", time.Time{}, err
	}

	if !user.IsActive || user.PasswordHash == "" || !auth.CheckPassword(password, user.PasswordHash) {
		return "", time.Time{}, ErrInvalidCredentials
	}

	return s.tokens.Issue(user)
}
