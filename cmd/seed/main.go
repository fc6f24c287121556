// Command seed fills the database with a deterministic set of users, rides
// and ride events for local API testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"ridez/internal/app"
	"ridez/internal/auth"
	"ridez/internal/config"
	"ridez/internal/domain"
	"ridez/internal/repository"
	"ridez/internal/repository/postgres"
)

const (
	ridersCount  = 100
	driversCount = 40
	adminsCount  = 10
	ridesCount   = 400
	heavyRides   = 6
)

var statuses = []domain.RideStatus{domain.RideStatusEnRoute, domain.RideStatusPickup, domain.RideStatusDropoff}

func main() {
	reset := flag.Bool("reset", false, "truncate users, rides and ride_events before seeding")
	flag.Parse()

	cfg := config.Load()
	log := app.NewLogger(cfg.Log)

	ctx := context.Background()

	db, err := app.NewDatabase(ctx, cfg.Database, nil)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.WithError(err).Fatal("failed to apply schema")
	}

	if *reset {
		if _, err := db.ExecContext(ctx, `TRUNCATE ride_events, rides, users RESTART IDENTITY CASCADE`); err != nil {
			log.WithError(err).Fatal("failed to reset tables")
		}
	}

	s := &seeder{
		db:    db,
		users: postgres.NewUserRepository(db),
		rides: postgres.NewRideRepository(db),
		rng:   rand.New(rand.NewPCG(0, 0)),
		base:  time.Now().UTC().Add(-72 * time.Hour).Truncate(time.Second),
		log:   log,
	}

	counts, err := s.run(ctx, cfg.Seed.AdminPassword)
	if err != nil {
		log.WithError(err).Fatal("seeding failed")
	}

	log.WithFields(logrus.Fields{
		"users":  counts.users,
		"rides":  counts.rides,
		"events": counts.events,
	}).Info("seed complete")
}

type seeder struct {
	db    *sqlx.DB
	users repository.UserRepository
	rides repository.RideRepository
	rng   *rand.Rand
	base  time.Time
	log   logrus.FieldLogger
}

type seedCounts struct {
	users, rides, events int
}

func (s *seeder) run(ctx context.Context, adminPassword string) (seedCounts, error) {
	var counts seedCounts

	adminHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return counts, fmt.Errorf("hash admin password: %w", err)
	}

	riderIDs := make([]int64, 0, ridersCount)
	driverIDs := make([]int64, 0, driversCount)

	for i := 1; i <= ridersCount+driversCount+adminsCount; i++ {
		user := fixtureUser(i)
		if user.Role == domain.RoleAdmin {
			user.PasswordHash = adminHash
		}
		if err := s.users.Create(ctx, user); err != nil {
			return counts, fmt.Errorf("create user %s: %w", user.Username, err)
		}
		switch user.Role {
		case domain.RoleRider:
			riderIDs = append(riderIDs, user.ID)
		case domain.RoleDriver:
			driverIDs = append(driverIDs, user.ID)
		}
		counts.users++
	}

	pickupTimes := make(map[int64]time.Time, ridesCount)
	rideIDs := make([]int64, 0, ridesCount)

	for r := 1; r <= ridesCount; r++ {
		ride := s.fixtureRide(r, riderIDs, driverIDs)
		if err := s.rides.Create(ctx, ride); err != nil {
			return counts, fmt.Errorf("create ride %d: %w", r, err)
		}
		pickupTimes[ride.ID] = ride.PickupTime
		rideIDs = append(rideIDs, ride.ID)
		counts.rides++
	}

	heavy := make(map[int64]bool, heavyRides)
	for _, i := range s.rng.Perm(len(rideIDs))[:heavyRides] {
		heavy[rideIDs[i]] = true
	}

	events := postgres.NewRideEventRepository(s.db)
	for _, id := range rideIDs {
		n := 1 + s.rng.IntN(4)
		if heavy[id] {
			n = 10 + s.rng.IntN(16)
		}
		for e := 0; e < n; e++ {
			offset := time.Duration(s.rng.IntN(841)-120+e*2) * time.Minute
			event := &domain.RideEvent{
				RideID:      id,
				Description: fmt.Sprintf("Event %d for ride %d", e+1, id),
				CreatedAt:   pickupTimes[id].Add(offset),
			}
			if err := events.Create(ctx, event); err != nil {
				return counts, fmt.Errorf("create event for ride %d: %w", id, err)
			}
			counts.events++
		}
	}

	return counts, nil
}

func fixtureUser(i int) *domain.User {
	role := domain.RoleRider
	switch {
	case i > ridersCount+driversCount:
		role = domain.RoleAdmin
	case i > ridersCount:
		role = domain.RoleDriver
	}

	return &domain.User{
		Username:    fmt.Sprintf("user%d", i),
		FirstName:   fmt.Sprintf("User%d", i),
		LastName:    "Test",
		Email:       fmt.Sprintf("user%d@example.com", i),
		PhoneNumber: fmt.Sprintf("+1555000%05d", i),
		Role:        role,
		IsActive:    true,
	}
}

// fixtureRide places rides on a grid around a fixed city center with pickup
// times spread from a week before to a month after the base date.
func (s *seeder) fixtureRide(r int, riderIDs, driverIDs []int64) *domain.Ride {
	riderID := riderIDs[r%len(riderIDs)]

	var driverID *int64
	if s.rng.Float64() >= 0.1 {
		id := driverIDs[r%len(driverIDs)]
		driverID = &id
	}

	offset := s.rng.IntN(37*24*60+1) - 7*24*60 + r%60

	return &domain.Ride{
		Status:           statuses[r%len(statuses)],
		RiderID:          &riderID,
		DriverID:         driverID,
		PickupLatitude:   round6(37.7 + float64(r%100)*0.0007),
		PickupLongitude:  round6(-122.4 + float64(r%100)*0.0009),
		DropoffLatitude:  round6(37.8 + float64((r*3)%100)*0.0006),
		DropoffLongitude: round6(-122.5 + float64((r*5)%100)*0.0008),
		PickupTime:       s.base.Add(time.Duration(offset) * time.Minute),
	}
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
