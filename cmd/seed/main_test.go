package main

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridez/internal/domain"
)

func TestFixtureUser_Roles(t *testing.T) {
	roles := map[domain.Role]int{}
	seen := map[string]bool{}
	for i := 1; i <= ridersCount+driversCount+adminsCount; i++ {
		u := fixtureUser(i)
		roles[u.Role]++
		for _, v := range []string{u.Username, u.Email, u.PhoneNumber} {
			require.False(t, seen[v], "duplicate %s", v)
			seen[v] = true
		}
		assert.LessOrEqual(t, len(u.PhoneNumber), 16)
	}

	assert.Equal(t, ridersCount, roles[domain.RoleRider])
	assert.Equal(t, driversCount, roles[domain.RoleDriver])
	assert.Equal(t, adminsCount, roles[domain.RoleAdmin])
}

func newTestSeeder() *seeder {
	return &seeder{
		rng:  rand.New(rand.NewPCG(0, 0)),
		base: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFixtureRide_Deterministic(t *testing.T) {
	riders := []int64{1, 2, 3}
	drivers := []int64{10, 11}

	a, b := newTestSeeder(), newTestSeeder()
	withoutDriver := 0
	for r := 1; r <= ridesCount; r++ {
		x := a.fixtureRide(r, riders, drivers)
		y := b.fixtureRide(r, riders, drivers)
		require.Equal(t, x, y)

		assert.True(t, x.Status.Valid())
		assert.InDelta(t, 37.7, x.PickupLatitude, 0.1)
		assert.InDelta(t, -122.4, x.PickupLongitude, 0.1)
		assert.False(t, x.PickupTime.Before(a.base.Add(-7*24*time.Hour)))
		assert.False(t, x.PickupTime.After(a.base.Add(31*24*time.Hour)))
		if x.DriverID == nil {
			withoutDriver++
		}
	}

	assert.Positive(t, withoutDriver)
	assert.Less(t, withoutDriver, ridesCount/4)
}

func TestRound6(t *testing.T) {
	assert.Equal(t, 37.123457, round6(37.1234567))
	assert.Equal(t, -122.4, round6(-122.4000001))
}
