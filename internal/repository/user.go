package repository

import (
	"context"

	"ridez/internal/domain"
)

// UserRepository defines the persistence operations for users.
type UserRepository interface {
	// Create adds a new user and sets its ID.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetAll retrieves all users.
	GetAll(ctx context.Context) ([]*domain.User, error)

	// Delete removes a user and returns the ids of the rides that referenced
	// it. Those rides keep existing with the reference cleared.
	Delete(ctx context.Context, id int64) ([]int64, error)
}
