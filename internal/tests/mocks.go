package tests

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"ridez/internal/domain"
	"ridez/internal/geo"
	"ridez/internal/query"
	"ridez/internal/redis"
	"ridez/internal/repository"
	"ridez/internal/service"
)

// ──────────────────────────────────────────────
// SHARED IN-MEMORY STORE
// ──────────────────────────────────────────────

// MockStore holds the tables shared by the mock repositories so rides can be
// joined with their rider, driver and events.
type MockStore struct {
	mu     sync.RWMutex
	users  map[int64]*domain.User
	rides  map[int64]*domain.Ride
	events map[int64]*domain.RideEvent

	nextUserID  int64
	nextRideID  int64
	nextEventID int64
}

// NewMockStore creates an empty store.
func NewMockStore() *MockStore {
	return &MockStore{
		users:  make(map[int64]*domain.User),
		rides:  make(map[int64]*domain.Ride),
		events: make(map[int64]*domain.RideEvent),
	}
}

// snapshot copies every table so a failed transaction can be undone.
func (s *MockStore) snapshot() *MockStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := NewMockStore()
	for id, u := range s.users {
		cp := *u
		c.users[id] = &cp
	}
	for id, r := range s.rides {
		cp := *r
		c.rides[id] = &cp
	}
	for id, e := range s.events {
		cp := *e
		c.events[id] = &cp
	}
	c.nextUserID, c.nextRideID, c.nextEventID = s.nextUserID, s.nextRideID, s.nextEventID
	return c
}

func (s *MockStore) restore(from *MockStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.rides, s.events = from.users, from.rides, from.events
	s.nextUserID, s.nextRideID, s.nextEventID = from.nextUserID, from.nextRideID, from.nextEventID
}

// joined returns a copy of ride with rider, driver and events since the cutoff.
// Callers hold s.mu.
func (s *MockStore) joined(ride *domain.Ride, since time.Time) *domain.Ride {
	cp := *ride
	cp.Rider, cp.Driver, cp.Distance = nil, nil, nil
	if cp.RiderID != nil {
		if u, ok := s.users[*cp.RiderID]; ok {
			user := *u
			cp.Rider = &user
		}
	}
	if cp.DriverID != nil {
		if u, ok := s.users[*cp.DriverID]; ok {
			user := *u
			cp.Driver = &user
		}
	}
	cp.Events = s.eventsFor(ride.ID, since)
	return &cp
}

func (s *MockStore) eventsFor(rideID int64, since time.Time) []domain.RideEvent {
	var events []domain.RideEvent
	for _, e := range s.events {
		if e.RideID == rideID && !e.CreatedAt.Before(since) {
			events = append(events, *e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
	return events
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	store *MockStore

	// Counters for verification
	GetByIDCallCount int32

	// Error injection
	CreateError error
}

// NewMockUserRepository creates a user repository backed by store.
func NewMockUserRepository(store *MockStore) *MockUserRepository {
	return &MockUserRepository{store: store}
}

// AddUser inserts a user, assigning an ID when it has none.
func (m *MockUserRepository) AddUser(user *domain.User) *domain.User {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if user.ID == 0 {
		m.store.nextUserID++
		user.ID = m.store.nextUserID
	} else if user.ID > m.store.nextUserID {
		m.store.nextUserID = user.ID
	}
	cp := *user
	m.store.users[user.ID] = &cp
	return user
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.store.mu.RLock()
	for _, u := range m.store.users {
		if u.Username == user.Username || u.Email == user.Email || u.PhoneNumber == user.PhoneNumber {
			m.store.mu.RUnlock()
			return repository.ErrConflict
		}
	}
	m.store.mu.RUnlock()

	user.CreatedAt = time.Now()
	m.AddUser(user)
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	atomic.AddInt32(&m.GetByIDCallCount, 1)
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	u, ok := m.store.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	for _, u := range m.store.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) GetAll(ctx context.Context) ([]*domain.User, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	result := make([]*domain.User, 0, len(m.store.users))
	for _, u := range m.store.users {
		cp := *u
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Delete removes the user, nulls ride references to it and returns the
// affected ride ids in ascending order.
func (m *MockUserRepository) Delete(ctx context.Context, id int64) ([]int64, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.store.users[id]; !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.store.users, id)
	var rideIDs []int64
	for _, r := range m.store.rides {
		touched := false
		if r.RiderID != nil && *r.RiderID == id {
			r.RiderID = nil
			touched = true
		}
		if r.DriverID != nil && *r.DriverID == id {
			r.DriverID = nil
			touched = true
		}
		if touched {
			rideIDs = append(rideIDs, r.ID)
		}
	}
	sort.Slice(rideIDs, func(i, j int) bool { return rideIDs[i] < rideIDs[j] })
	return rideIDs, nil
}

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is a mock implementation of RideRepository. List mirrors
// the SQL implementation: filters, Haversine distance, ordering with an id
// tiebreaker, window total and pagination.
type MockRideRepository struct {
	store *MockStore

	// Counters for verification
	GetByIDCallCount int32
	ListCallCount    int32
	UpdateCallCount  int32

	// Error injection
	CreateError error
	ListError   error
	UpdateError error

	// LastQuery is the query passed to the most recent List call.
	LastQuery query.RideQuery
}

// NewMockRideRepository creates a ride repository backed by store.
func NewMockRideRepository(store *MockStore) *MockRideRepository {
	return &MockRideRepository{store: store}
}

// AddRide inserts a ride, assigning an ID when it has none.
func (m *MockRideRepository) AddRide(ride *domain.Ride) *domain.Ride {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if ride.ID == 0 {
		m.store.nextRideID++
		ride.ID = m.store.nextRideID
	} else if ride.ID > m.store.nextRideID {
		m.store.nextRideID = ride.ID
	}
	cp := *ride
	cp.Rider, cp.Driver, cp.Events, cp.Distance = nil, nil, nil, nil
	m.store.rides[ride.ID] = &cp
	return ride
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	if err := m.checkReferences(ride); err != nil {
		return err
	}
	m.AddRide(ride)
	return nil
}

// checkReferences mirrors the rider/driver foreign keys.
func (m *MockRideRepository) checkReferences(ride *domain.Ride) error {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	if ride.RiderID != nil {
		if _, ok := m.store.users[*ride.RiderID]; !ok {
			return &repository.ReferenceError{Field: "rider_id"}
		}
	}
	if ride.DriverID != nil {
		if _, ok := m.store.users[*ride.DriverID]; !ok {
			return &repository.ReferenceError{Field: "driver_id"}
		}
	}
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id int64, eventsSince time.Time) (*domain.Ride, error) {
	atomic.AddInt32(&m.GetByIDCallCount, 1)
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	r, ok := m.store.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.store.joined(r, eventsSince), nil
}

func (m *MockRideRepository) List(ctx context.Context, q query.RideQuery, eventsSince time.Time) ([]*domain.Ride, int, error) {
	atomic.AddInt32(&m.ListCallCount, 1)
	m.LastQuery = q
	if m.ListError != nil {
		return nil, 0, m.ListError
	}

	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	email := strings.ToLower(q.RiderEmail)
	withDistance := q.WantsDistance() && q.Point != nil

	var rides []*domain.Ride
	for _, r := range m.store.rides {
		if len(q.Statuses) > 0 && !containsStatus(q.Statuses, r.Status) {
			continue
		}
		ride := m.store.joined(r, eventsSince)
		if email != "" && (ride.Rider == nil || !strings.Contains(strings.ToLower(ride.Rider.Email), email)) {
			continue
		}
		if withDistance {
			from := geo.Point{Lat: ride.PickupLatitude, Lon: ride.PickupLongitude}
			if q.Origin == query.OriginDropoff {
				from = geo.Point{Lat: ride.DropoffLatitude, Lon: ride.DropoffLongitude}
			}
			d := geo.Distance(from, *q.Point)
			ride.Distance = &d
		}
		rides = append(rides, ride)
	}

	sort.SliceStable(rides, func(i, j int) bool {
		return lessRide(rides[i], rides[j], q.Ordering)
	})

	total := len(rides)
	start := min(q.Offset, total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	return rides[start:end], total, nil
}

func lessRide(a, b *domain.Ride, ordering []query.OrderField) bool {
	for _, f := range ordering {
		var c int
		switch f.Field {
		case "id":
			c = compare(a.ID, b.ID)
		case "pickup_time":
			c = a.PickupTime.Compare(b.PickupTime)
		case "status":
			c = strings.Compare(string(a.Status), string(b.Status))
		case query.FieldDistance:
			if a.Distance == nil || b.Distance == nil {
				continue
			}
			c = compare(*a.Distance, *b.Distance)
		}
		if c == 0 {
			continue
		}
		if f.Desc {
			return c > 0
		}
		return c < 0
	}
	return a.ID < b.ID
}

func compare[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func containsStatus(statuses []domain.RideStatus, s domain.RideStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func (m *MockRideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	if err := m.checkReferences(ride); err != nil {
		return err
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.store.rides[ride.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *ride
	cp.Rider, cp.Driver, cp.Events, cp.Distance = nil, nil, nil, nil
	m.store.rides[ride.ID] = &cp
	return nil
}

// Delete removes the ride and cascades to its events.
func (m *MockRideRepository) Delete(ctx context.Context, id int64) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.store.rides[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.store.rides, id)
	for eid, e := range m.store.events {
		if e.RideID == id {
			delete(m.store.events, eid)
		}
	}
	return nil
}

// GetRide returns the stored ride for test assertions.
func (m *MockRideRepository) GetRide(id int64) *domain.Ride {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	r, ok := m.store.rides[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// ──────────────────────────────────────────────
// MOCK RIDE EVENT REPOSITORY
// ──────────────────────────────────────────────

// MockRideEventRepository is a mock implementation of RideEventRepository.
type MockRideEventRepository struct {
	store *MockStore

	// Counters for verification
	CreateCallCount int32

	// Error injection
	CreateError error
}

// NewMockRideEventRepository creates an event repository backed by store.
func NewMockRideEventRepository(store *MockStore) *MockRideEventRepository {
	return &MockRideEventRepository{store: store}
}

func (m *MockRideEventRepository) Create(ctx context.Context, event *domain.RideEvent) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if _, ok := m.store.rides[event.RideID]; !ok {
		return &repository.ReferenceError{Field: "ride_id"}
	}
	m.store.nextEventID++
	event.ID = m.store.nextEventID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	cp := *event
	m.store.events[event.ID] = &cp
	return nil
}

func (m *MockRideEventRepository) ListByRide(ctx context.Context, rideID int64, since time.Time) ([]domain.RideEvent, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return m.store.eventsFor(rideID, since), nil
}

// Events returns every stored event of a ride regardless of age.
func (m *MockRideEventRepository) Events(rideID int64) []domain.RideEvent {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return m.store.eventsFor(rideID, time.Time{})
}

// ──────────────────────────────────────────────
// MOCK TRANSACTION MANAGER
// ──────────────────────────────────────────────

// MockTxManager runs fn against the mock repositories and restores the store
// when fn fails.
type MockTxManager struct {
	store  *MockStore
	rides  repository.RideRepository
	events repository.RideEventRepository

	// Counters for verification
	BeginCount    int32
	RollbackCount int32
}

// NewMockTxManager creates a transaction manager over the given repositories.
func NewMockTxManager(store *MockStore, rides repository.RideRepository, events repository.RideEventRepository) *MockTxManager {
	return &MockTxManager{store: store, rides: rides, events: events}
}

func (m *MockTxManager) WithinTx(ctx context.Context, fn func(rides repository.RideRepository, events repository.RideEventRepository) error) error {
	atomic.AddInt32(&m.BeginCount, 1)
	before := m.store.snapshot()
	if err := fn(m.rides, m.events); err != nil {
		atomic.AddInt32(&m.RollbackCount, 1)
		m.store.restore(before)
		return err
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK RIDE CACHE
// ──────────────────────────────────────────────

// MockRideCache is an in-memory RideCache.
type MockRideCache struct {
	mu    sync.RWMutex
	rides map[int64]*domain.Ride

	// Counters for verification
	HitCount        int32
	InvalidateCount int32

	// Error injection
	GetError error
}

var _ redis.RideCache = (*MockRideCache)(nil)

// NewMockRideCache creates an empty cache.
func NewMockRideCache() *MockRideCache {
	return &MockRideCache{rides: make(map[int64]*domain.Ride)}
}

func (m *MockRideCache) GetRide(ctx context.Context, id int64) (*domain.Ride, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, nil
	}
	atomic.AddInt32(&m.HitCount, 1)
	cp := *r
	return &cp, nil
}

func (m *MockRideCache) SetRide(ctx context.Context, ride *domain.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ride
	m.rides[ride.ID] = &cp
	return nil
}

func (m *MockRideCache) InvalidateRide(ctx context.Context, id int64) error {
	atomic.AddInt32(&m.InvalidateCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rides, id)
	return nil
}

// Has reports whether the ride is cached.
func (m *MockRideCache) Has(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rides[id]
	return ok
}

// ──────────────────────────────────────────────
// FIXTURE
// ──────────────────────────────────────────────

// Fixture bundles the mocks and services for one test.
type Fixture struct {
	Store  *MockStore
	Users  *MockUserRepository
	Rides  *MockRideRepository
	Events *MockRideEventRepository
	Tx     *MockTxManager
	Cache  *MockRideCache
}

// NewFixture wires a fresh set of mocks.
func NewFixture() *Fixture {
	store := NewMockStore()
	rides := NewMockRideRepository(store)
	events := NewMockRideEventRepository(store)
	return &Fixture{
		Store:  store,
		Users:  NewMockUserRepository(store),
		Rides:  rides,
		Events: events,
		Tx:     NewMockTxManager(store, rides, events),
		Cache:  NewMockRideCache(),
	}
}

// RideService builds a RideService over the fixture's mocks.
func (f *Fixture) RideService() *service.RideService {
	return service.NewRideService(f.Rides, f.Events, f.Users, f.Tx, service.RideServiceConfig{
		Cache:  f.Cache,
		Logger: quietLogger(),
	})
}

// UserService builds a UserService over the fixture's mocks.
func (f *Fixture) UserService() *service.UserService {
	return service.NewUserService(f.Users, f.Cache, quietLogger())
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
