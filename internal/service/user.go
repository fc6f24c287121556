package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"ridez/internal/auth"
	"ridez/internal/domain"
	"ridez/internal/redis"
	"ridez/internal/repository"
)

// UserService handles user administration.
type UserService struct {
	userRepo repository.UserRepository
	cache    redis.RideCache
	log      logrus.FieldLogger
}

// NewUserService creates a new UserService. cache holds the ride details that
// nest users; it may be nil.
func NewUserService(userRepo repository.UserRepository, cache redis.RideCache, log logrus.FieldLogger) *UserService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UserService{userRepo: userRepo, cache: cache, log: log}
}

// CreateUserInput contains the fields of a new user.
type CreateUserInput struct {
	Username    string
	Password    string
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Role        domain.Role
}

// Create validates and persists a new user.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	if in.Role == "" {
		in.Role = domain.RoleRider
	}

	errs := fieldErrors{}
	if in.Username == "" {
		errs.add("username", "this field may not be blank")
	}
	if in.Email == "" {
		errs.add("email", "this field may not be blank")
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		errs.add("email", "enter a valid email address")
	}
	switch {
	case in.PhoneNumber == "":
		errs.add("phone_number", "this field may not be blank")
	case utf8.RuneCountInString(in.PhoneNumber) > domain.PhoneNumberMaxLength:
		errs.add("phone_number", fmt.Sprintf("ensure this field has no more than %d characters", domain.PhoneNumberMaxLength))
	}
	if !in.Role.Valid() {
		errs.add("role", fmt.Sprintf("%q is not a valid choice", in.Role))
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:    in.Username,
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Role:        in.Role,
		IsActive:    true,
	}

	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user created")

	return user, nil
}

// List returns every user ordered by ID.
func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	return s.userRepo.GetAll(ctx)
}

// Get retrieves a user by ID.
func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	if id <= 0 {
		return nil, ErrInvalidUserID
	}
	return s.userRepo.GetByID(ctx, id)
}

// Delete removes a user. Rides referencing the user keep existing with the
// reference cleared, and their cached details are dropped.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidUserID
	}

	rideIDs, err := s.userRepo.Delete(ctx, id)
	if err != nil {
		return err
	}

	if s.cache != nil {
		for _, rideID := range rideIDs {
			if err := s.cache.InvalidateRide(ctx, rideID); err != nil {
				s.log.WithError(err).WithField("ride_id", rideID).Warn("ride cache invalidation failed")
			}
		}
	}

	s.log.WithFields(logrus.Fields{"user_id": id, "rides": len(rideIDs)}).Info("user deleted")
	return nil
}
