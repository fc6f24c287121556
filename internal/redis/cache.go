package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ridez/internal/domain"
)

// DefaultRideCacheTTL bounds how stale a cached ride detail can be.
const DefaultRideCacheTTL = 10 * time.Second

const rideCachePrefix = "cache:ride:"

// CacheStore handles ride caching in Redis.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheStore creates a new CacheStore. A non-positive ttl uses DefaultRideCacheTTL.
func NewCacheStore(client *redis.Client, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultRideCacheTTL
	}
	return &CacheStore{client: client, ttl: ttl}
}

// CachedUser is the cached form of a ride's rider or driver.
type CachedUser struct {
	ID          int64  `json:"id"`
	Role        string `json:"role"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// CachedRideEvent is the cached form of a ride event.
type CachedRideEvent struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CachedRide represents a cached ride entity.
type CachedRide struct {
	ID               int64             `json:"id"`
	Status           string            `json:"status"`
	Rider            *CachedUser       `json:"rider,omitempty"`
	Driver           *CachedUser       `json:"driver,omitempty"`
	PickupLatitude   float64           `json:"pickup_latitude"`
	PickupLongitude  float64           `json:"pickup_longitude"`
	DropoffLatitude  float64           `json:"dropoff_latitude"`
	DropoffLongitude float64           `json:"dropoff_longitude"`
	PickupTime       time.Time         `json:"pickup_time"`
	Events           []CachedRideEvent `json:"events,omitempty"`
}

// GetRide retrieves a ride from cache. A miss returns nil, nil.
func (s *CacheStore) GetRide(ctx context.Context, rideID int64) (*domain.Ride, error) {
	data, err := s.client.Get(ctx, rideKey(rideID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var cached CachedRide
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return cached.toDomain(), nil
}

// SetRide stores a ride in cache.
func (s *CacheStore) SetRide(ctx context.Context, ride *domain.Ride) error {
	data, err := json.Marshal(newCachedRide(ride))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rideKey(ride.ID), data, s.ttl).Err()
}

// InvalidateRide removes a ride from cache.
func (s *CacheStore) InvalidateRide(ctx context.Context, rideID int64) error {
	return s.client.Del(ctx, rideKey(rideID)).Err()
}

func rideKey(id int64) string {
	return rideCachePrefix + strconv.FormatInt(id, 10)
}

func newCachedUser(u *domain.User) *CachedUser {
	if u == nil {
		return nil
	}
	return &CachedUser{
		ID:          u.ID,
		Role:        string(u.Role),
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
	}
}

func (u *CachedUser) toDomain() *domain.User {
	if u == nil {
		return nil
	}
	return &domain.User{
		ID:          u.ID,
		Role:        domain.Role(u.Role),
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
	}
}

func newCachedRide(r *domain.Ride) *CachedRide {
	cached := &CachedRide{
		ID:               r.ID,
		Status:           string(r.Status),
		Rider:            newCachedUser(r.Rider),
		Driver:           newCachedUser(r.Driver),
		PickupLatitude:   r.PickupLatitude,
		PickupLongitude:  r.PickupLongitude,
		DropoffLatitude:  r.DropoffLatitude,
		DropoffLongitude: r.DropoffLongitude,
		PickupTime:       r.PickupTime,
	}
	for _, e := range r.Events {
		cached.Events = append(cached.Events, CachedRideEvent{
			ID:          e.ID,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	return cached
}

func (c *CachedRide) toDomain() *domain.Ride {
	ride := &domain.Ride{
		ID:               c.ID,
		Status:           domain.RideStatus(c.Status),
		Rider:            c.Rider.toDomain(),
		Driver:           c.Driver.toDomain(),
		PickupLatitude:   c.PickupLatitude,
		PickupLongitude:  c.PickupLongitude,
		DropoffLatitude:  c.DropoffLatitude,
		DropoffLongitude: c.DropoffLongitude,
		PickupTime:       c.PickupTime,
	}
	if ride.Rider != nil {
		ride.RiderID = &ride.Rider.ID
	}
	if ride.Driver != nil {
		ride.DriverID = &ride.Driver.ID
	}
	for _, e := range c.Events {
		ride.Events = append(ride.Events, domain.RideEvent{
			ID:          e.ID,
			RideID:      c.ID,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	return ride
}
