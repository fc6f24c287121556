package redis

import (
	"context"

	"ridez/internal/domain"
)

// RideCache defines the ride caching operations used by the ride service.
type RideCache interface {
	GetRide(ctx context.Context, rideID int64) (*domain.Ride, error)
	SetRide(ctx context.Context, ride *domain.Ride) error
	InvalidateRide(ctx context.Context, rideID int64) error
}

// Ensure concrete types implement interfaces.
var _ RideCache = (*CacheStore)(nil)
