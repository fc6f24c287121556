package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"ridez/internal/domain"
	"ridez/internal/query"
	"ridez/internal/redis"
	"ridez/internal/repository"
)

// DefaultEventsWindow is how far back listed ride events reach.
const DefaultEventsWindow = 24 * time.Hour

// Transactor runs ride writes atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(rides repository.RideRepository, events repository.RideEventRepository) error) error
}

// RideService handles ride operations.
type RideService struct {
	rideRepo     repository.RideRepository
	eventRepo    repository.RideEventRepository
	userRepo     repository.UserRepository
	tx           Transactor
	cache        redis.RideCache
	log          logrus.FieldLogger
	eventsWindow time.Duration
	now          func() time.Time
}

// RideServiceConfig holds the optional settings of a RideService.
type RideServiceConfig struct {
	Cache        redis.RideCache
	Logger       logrus.FieldLogger
	EventsWindow time.Duration
}

// NewRideService creates a new RideService.
func NewRideService(
	rideRepo repository.RideRepository,
	eventRepo repository.RideEventRepository,
	userRepo repository.UserRepository,
	tx Transactor,
	cfg RideServiceConfig,
) *RideService {
	s := &RideService{
		rideRepo:     rideRepo,
		eventRepo:    eventRepo,
		userRepo:     userRepo,
		tx:           tx,
		cache:        cfg.Cache,
		log:          cfg.Logger,
		eventsWindow: cfg.EventsWindow,
		now:          time.Now,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.eventsWindow <= 0 {
		s.eventsWindow = DefaultEventsWindow
	}
	return s
}

// RideInput contains every writable field of a ride.
type RideInput struct {
	Status           domain.RideStatus
	RiderID          *int64
	DriverID         *int64
	PickupLatitude   float64
	PickupLongitude  float64
	DropoffLatitude  float64
	DropoffLongitude float64
	PickupTime       time.Time
}

// NullableID is a patchable reference: Set reports whether the caller sent it.
type NullableID struct {
	Set bool
	ID  *int64
}

// RidePatch contains the fields a partial update changes; nil fields are kept.
type RidePatch struct {
	Status           *domain.RideStatus
	RiderID          NullableID
	DriverID         NullableID
	PickupLatitude   *float64
	PickupLongitude  *float64
	DropoffLatitude  *float64
	DropoffLongitude *float64
	PickupTime       *time.Time
}

// ListResult is one page of rides.
type ListResult struct {
	Rides []*domain.Ride
	Total int
}

// List returns the rides matching q, with events from the recent window.
func (s *RideService) List(ctx context.Context, q query.RideQuery) (*ListResult, error) {
	rides, total, err := s.rideRepo.List(ctx, q, s.eventsSince())
	if err != nil {
		return nil, err
	}
	return &ListResult{Rides: rides, Total: total}, nil
}

// Get retrieves a ride, serving it from cache when possible.
func (s *RideService) Get(ctx context.Context, id int64) (*domain.Ride, error) {
	if id <= 0 {
		return nil, ErrInvalidRideID
	}

	if s.cache != nil {
		cached, err := s.cache.GetRide(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("ride_id", id).Warn("ride cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	ride, err := s.rideRepo.GetByID(ctx, id, s.eventsSince())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetRide(ctx, ride); err != nil {
			s.log.WithError(err).WithField("ride_id", id).Warn("ride cache write failed")
		}
	}

	return ride, nil
}

// Create validates and persists a new ride.
func (s *RideService) Create(ctx context.Context, in RideInput) (*domain.Ride, error) {
	if in.Status == "" {
		in.Status = domain.RideStatusEnRoute
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	ride := &domain.Ride{}
	applyInput(ride, in)

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, referenceError(err, in)
	}

	s.log.WithFields(logrus.Fields{"ride_id": ride.ID, "status": ride.Status}).Info("ride created")

	return s.rideRepo.GetByID(ctx, ride.ID, s.eventsSince())
}

// Update replaces every writable field of a ride.
func (s *RideService) Update(ctx context.Context, id int64, in RideInput) (*domain.Ride, error) {
	if id <= 0 {
		return nil, ErrInvalidRideID
	}
	if in.Status == "" {
		in.Status = domain.RideStatusEnRoute
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	return s.write(ctx, id, func(*domain.Ride) RideInput { return in })
}

// Patch changes only the fields set in p.
func (s *RideService) Patch(ctx context.Context, id int64, p RidePatch) (*domain.Ride, error) {
	if id <= 0 {
		return nil, ErrInvalidRideID
	}

	var merged RideInput
	ride, err := s.write(ctx, id, func(current *domain.Ride) RideInput {
		merged = mergePatch(current, p)
		return merged
	}, func(ctx context.Context) error {
		return s.validate(ctx, merged)
	})
	if err != nil {
		return nil, err
	}
	return ride, nil
}

// write loads the ride inside a transaction, applies the input produced by
// next, and records a status change event when the status moves. Optional
// checks run after next and before anything is written.
func (s *RideService) write(ctx context.Context, id int64, next func(current *domain.Ride) RideInput, checks ...func(context.Context) error) (*domain.Ride, error) {
	var from, to domain.RideStatus

	err := s.tx.WithinTx(ctx, func(rides repository.RideRepository, events repository.RideEventRepository) error {
		ride, err := rides.GetByID(ctx, id, s.eventsSince())
		if err != nil {
			return err
		}

		in := next(ride)
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}

		from = ride.Status
		applyInput(ride, in)
		to = ride.Status

		if err := rides.Update(ctx, ride); err != nil {
			return referenceError(err, in)
		}

		if from != to {
			return events.Create(ctx, &domain.RideEvent{
				RideID:      id,
				Description: fmt.Sprintf("status changed from %s to %s", from, to),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)

	if from != to {
		s.log.WithFields(logrus.Fields{"ride_id": id, "from": from, "to": to}).Info("ride status changed")
	}

	return s.rideRepo.GetByID(ctx, id, s.eventsSince())
}

// Delete removes a ride and its events.
func (s *RideService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidRideID
	}

	if err := s.rideRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.log.WithField("ride_id", id).Info("ride deleted")

	return nil
}

// AddEvent attaches a new event to a ride.
func (s *RideService) AddEvent(ctx context.Context, rideID int64, description string) (*domain.RideEvent, error) {
	if rideID <= 0 {
		return nil, ErrInvalidRideID
	}

	description = strings.TrimSpace(description)
	errs := fieldErrors{}
	switch {
	case description == "":
		errs.add("description", "this field may not be blank")
	case utf8.RuneCountInString(description) > domain.RideEventDescriptionMaxLength:
		errs.add("description", fmt.Sprintf("ensure this field has no more than %d characters", domain.RideEventDescriptionMaxLength))
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	if _, err := s.rideRepo.GetByID(ctx, rideID, s.now()); err != nil {
		return nil, err
	}

	event := &domain.RideEvent{RideID: rideID, Description: description}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		if errors.Is(err, repository.ErrInvalidReference) {
			return nil, fmt.Errorf("ride %d: %w", rideID, repository.ErrNotFound)
		}
		return nil, err
	}

	s.invalidate(ctx, rideID)

	return event, nil
}

func (s *RideService) eventsSince() time.Time {
	return s.now().Add(-s.eventsWindow)
}

func (s *RideService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRide(ctx, id); err != nil {
		s.log.WithError(err).WithField("ride_id", id).Warn("ride cache invalidation failed")
	}
}

// validate checks field values and that referenced users exist.
func (s *RideService) validate(ctx context.Context, in RideInput) error {
	errs := fieldErrors{}

	if !in.Status.Valid() {
		errs.add("status", fmt.Sprintf("%q is not a valid choice", in.Status))
	}
	if !isValidLatitude(in.PickupLatitude) {
		errs.add("pickup_latitude", "ensure this value is between -90 and 90")
	}
	if !isValidLongitude(in.PickupLongitude) {
		errs.add("pickup_longitude", "ensure this value is between -180 and 180")
	}
	if !isValidLatitude(in.DropoffLatitude) {
		errs.add("dropoff_latitude", "ensure this value is between -90 and 90")
	}
	if !isValidLongitude(in.DropoffLongitude) {
		errs.add("dropoff_longitude", "ensure this value is between -180 and 180")
	}
	if in.PickupTime.IsZero() {
		errs.add("pickup_time", "this field is required")
	}

	if err := s.checkUser(ctx, "rider_id", in.RiderID, errs); err != nil {
		return err
	}
	if err := s.checkUser(ctx, "driver_id", in.DriverID, errs); err != nil {
		return err
	}

	return errs.err()
}

// checkUser records a field error when id references no user. Only
// unexpected lookup failures are returned.
func (s *RideService) checkUser(ctx context.Context, field string, id *int64, errs fieldErrors) error {
	if id == nil {
		return nil
	}
	if *id <= 0 {
		errs.add(field, fmt.Sprintf("invalid pk \"%d\" - object does not exist", *id))
		return nil
	}

	_, err := s.userRepo.GetByID(ctx, *id)
	if errors.Is(err, repository.ErrNotFound) {
		errs.add(field, fmt.Sprintf("invalid pk \"%d\" - object does not exist", *id))
		return nil
	}
	return err
}

// referenceError reports a user removed between validation and the write
// the same way validate reports a missing user.
func referenceError(err error, in RideInput) error {
	var ref *repository.ReferenceError
	if !errors.As(err, &ref) {
		return err
	}

	var id *int64
	switch ref.Field {
	case "rider_id":
		id = in.RiderID
	case "driver_id":
		id = in.DriverID
	}
	if id == nil {
		return err
	}

	errs := fieldErrors{}
	errs.add(ref.Field, fmt.Sprintf("invalid pk \"%d\" - object does not exist", *id))
	return errs.err()
}

func applyInput(ride *domain.Ride, in RideInput) {
	ride.Status = in.Status
	ride.RiderID = in.RiderID
	ride.DriverID = in.DriverID
	ride.PickupLatitude = in.PickupLatitude
	ride.PickupLongitude = in.PickupLongitude
	ride.DropoffLatitude = in.DropoffLatitude
	ride.DropoffLongitude = in.DropoffLongitude
	ride.PickupTime = in.PickupTime
}

func mergePatch(current *domain.Ride, p RidePatch) RideInput {
	in := RideInput{
		Status:           current.Status,
		RiderID:          current.RiderID,
		DriverID:         current.DriverID,
		PickupLatitude:   current.PickupLatitude,
		PickupLongitude:  current.PickupLongitude,
		DropoffLatitude:  current.DropoffLatitude,
		DropoffLongitude: current.DropoffLongitude,
		PickupTime:       current.PickupTime,
	}
	if p.Status != nil {
		in.Status = *p.Status
	}
	if p.RiderID.Set {
		in.RiderID = p.RiderID.ID
	}
	if p.DriverID.Set {
		in.DriverID = p.DriverID.ID
	}
	if p.PickupLatitude != nil {
		in.PickupLatitude = *p.PickupLatitude
	}
	if p.PickupLongitude != nil {
		in.PickupLongitude = *p.PickupLongitude
	}
	if p.DropoffLatitude != nil {
		in.DropoffLatitude = *p.DropoffLatitude
	}
	if p.DropoffLongitude != nil {
		in.DropoffLongitude = *p.DropoffLongitude
	}
	if p.PickupTime != nil {
		in.PickupTime = *p.PickupTime
	}
	return in
}

func isValidLatitude(lat float64) bool {
	return lat >= -90 && lat <= 90
}

func isValidLongitude(lng float64) bool {
	return lng >= -180 && lng <= 180
}
