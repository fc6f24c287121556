package repository

import (
	"context"
	"time"

	"ridez/internal/domain"
	"ridez/internal/query"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride and sets its ID.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride with its rider, driver and events created at or after eventsSince.
	GetByID(ctx context.Context, id int64, eventsSince time.Time) (*domain.Ride, error)

	// List retrieves one page of rides matching q along with the total match count.
	List(ctx context.Context, q query.RideQuery, eventsSince time.Time) ([]*domain.Ride, int, error)

	// Update overwrites an existing ride.
	Update(ctx context.Context, ride *domain.Ride) error

	// Delete removes a ride and its events.
	Delete(ctx context.Context, id int64) error
}

// RideEventRepository defines the persistence operations for ride events.
type RideEventRepository interface {
	// Create persists a new event and sets its ID and creation time.
	Create(ctx context.Context, event *domain.RideEvent) error

	// ListByRide retrieves the events of a ride created at or after since, oldest first.
	ListByRide(ctx context.Context, rideID int64, since time.Time) ([]domain.RideEvent, error)
}
