package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridez/internal/domain"
)

// setupMiniredis creates a new miniredis server and returns a Redis client connected to it.
func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestCacheStore_RoundTrip(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewCacheStore(client, time.Minute)
	ctx := context.Background()

	pickup := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ride := &domain.Ride{
		ID:               8,
		Status:           domain.RideStatusPickup,
		Rider:            &domain.User{ID: 2, Role: domain.RoleRider, FirstName: "Ada", Email: "ada@example.com"},
		PickupLatitude:   37.7,
		PickupLongitude:  -122.4,
		DropoffLatitude:  37.8,
		DropoffLongitude: -122.5,
		PickupTime:       pickup,
		Events:           []domain.RideEvent{{ID: 1, RideID: 8, Description: "requested", CreatedAt: pickup}},
	}

	require.NoError(t, store.SetRide(ctx, ride))

	got, err := store.GetRide(ctx, 8)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.RideStatusPickup, got.Status)
	require.NotNil(t, got.Rider)
	assert.Equal(t, "ada@example.com", got.Rider.Email)
	require.NotNil(t, got.RiderID)
	assert.Equal(t, int64(2), *got.RiderID)
	assert.Nil(t, got.Driver)
	assert.Nil(t, got.DriverID)
	assert.True(t, pickup.Equal(got.PickupTime))
	require.Len(t, got.Events, 1)
	assert.Equal(t, "requested", got.Events[0].Description)
}

func TestCacheStore_MissReturnsNil(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewCacheStore(client, 0)

	got, err := store.GetRide(context.Background(), 404)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheStore_InvalidateAndExpire(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewCacheStore(client, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, store.SetRide(ctx, &domain.Ride{ID: 1, Status: domain.RideStatusEnRoute}))
	assert.True(t, mr.Exists("cache:ride:1"))
	assert.Equal(t, 5*time.Second, mr.TTL("cache:ride:1"))

	require.NoError(t, store.InvalidateRide(ctx, 1))
	assert.False(t, mr.Exists("cache:ride:1"))

	require.NoError(t, store.SetRide(ctx, &domain.Ride{ID: 2, Status: domain.RideStatusEnRoute}))
	mr.FastForward(6 * time.Second)

	got, err := store.GetRide(ctx, 2)
	assert.NoError(t, err)
	assert.Nil(t, got)
}
