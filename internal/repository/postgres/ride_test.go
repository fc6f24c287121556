package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridez/internal/domain"
	"ridez/internal/geo"
	"ridez/internal/query"
	"ridez/internal/repository"
)

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db := sqlx.NewDb(mockDB, "sqlmock")
	t.Cleanup(func() { db.Close() })

	return db, mock
}

var rideColumns = []string{
	"id", "status", "rider_id", "driver_id",
	"pickup_latitude", "pickup_longitude", "dropoff_latitude", "dropoff_longitude", "pickup_time",
	"rider.id", "rider.role", "rider.first_name", "rider.last_name", "rider.email", "rider.phone_number",
	"driver.id", "driver.role", "driver.first_name", "driver.last_name", "driver.email", "driver.phone_number",
}

func rideValues(id int64, status string, pickupTime time.Time, withRider bool) []driver.Value {
	values := []driver.Value{id, status}
	if withRider {
		values = append(values, int64(1), nil)
	} else {
		values = append(values, nil, nil)
	}
	values = append(values, 37.7, -122.4, 37.8, -122.5, pickupTime)
	if withRider {
		values = append(values, int64(1), "rider", "Ada", "Lovelace", "ada@example.com", "+15550000001")
	} else {
		values = append(values, nil, nil, nil, nil, nil, nil)
	}
	return append(values, nil, nil, nil, nil, nil, nil)
}

func TestBuildListQuery_WithoutDistance(t *testing.T) {
	stmt, args := buildListQuery(query.RideQuery{
		Statuses:   []domain.RideStatus{domain.RideStatusPickup, domain.RideStatusDropoff},
		RiderEmail: "ada_l%",
		Ordering:   []query.OrderField{{Field: "pickup_time", Desc: true}},
		Limit:      10,
		Offset:     20,
	})

	assert.NotContains(t, stmt, "atan2")
	assert.NotContains(t, stmt, "AS distance")
	assert.Contains(t, stmt, "r.status = ANY($1)")
	assert.Contains(t, stmt, "rider.email ILIKE '%' || $2 || '%'")
	assert.Contains(t, stmt, "ORDER BY r.pickup_time DESC, r.id ASC")
	assert.Contains(t, stmt, "LIMIT $3 OFFSET $4")

	require.Len(t, args, 4)
	assert.Equal(t, pq.Array([]string{"pickup", "dropoff"}), args[0])
	assert.Equal(t, `ada\_l\%`, args[1])
	assert.Equal(t, 10, args[2])
	assert.Equal(t, 20, args[3])
}

func TestBuildListQuery_DistanceKeepsPosition(t *testing.T) {
	stmt, args := buildListQuery(query.RideQuery{
		Ordering: []query.OrderField{{Field: "pickup_time"}, {Field: "distance", Desc: true}, {Field: "id"}},
		Origin:   query.OriginPickup,
		Point:    &geo.Point{Lat: 37.75, Lon: -122.45},
		Limit:    100,
	})

	assert.Contains(t, stmt, geo.DistanceSQL("r.pickup_latitude", "r.pickup_longitude", 1, 2)+" AS distance")
	assert.Contains(t, stmt, "ORDER BY r.pickup_time ASC, distance DESC, r.id ASC")
	assert.Equal(t, []any{37.75, -122.45, 100, 0}, args)
}

func TestBuildListQuery_DropoffOrigin(t *testing.T) {
	stmt, _ := buildListQuery(query.RideQuery{
		Ordering: []query.OrderField{{Field: "distance"}},
		Origin:   query.OriginDropoff,
		Point:    &geo.Point{Lat: 1, Lon: 2},
		Limit:    100,
	})

	assert.Contains(t, stmt, "radians(r.dropoff_latitude)")
	assert.NotContains(t, stmt, "radians(r.pickup_latitude)")
	assert.Contains(t, stmt, "ORDER BY distance ASC, r.id ASC")
}

func TestBuildListQuery_LatLonNeverFilter(t *testing.T) {
	stmt, _ := buildListQuery(query.RideQuery{
		Ordering: []query.OrderField{{Field: "distance"}},
		Point:    &geo.Point{Lat: 1, Lon: 2},
		Limit:    100,
	})

	assert.NotContains(t, stmt, "WHERE")
}

func TestRideRepository_List_DistanceOrdering(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRideRepository(db)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)

	columns := append(append([]string{}, rideColumns...), "total_count", "distance")
	rows := sqlmock.NewRows(columns).
		AddRow(append(rideValues(7, "pickup", now, true), int64(2), 9.5)...).
		AddRow(append(rideValues(3, "dropoff", now, false), int64(2), 1.25)...)

	mock.ExpectQuery(regexp.QuoteMeta("AS distance")).
		WithArgs(37.7, -122.4, 100, 0).
		WillReturnRows(rows)

	mock.ExpectQuery(regexp.QuoteMeta("FROM ride_events")).
		WithArgs(sqlmock.AnyArg(), since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ride_id", "description", "created_at"}).
			AddRow(int64(11), int64(7), "driver arrived", now.Add(-time.Hour)))

	rides, total, err := repo.List(context.Background(), query.RideQuery{
		Ordering: []query.OrderField{{Field: "distance", Desc: true}},
		Origin:   query.OriginPickup,
		Point:    &geo.Point{Lat: 37.7, Lon: -122.4},
		Limit:    100,
	}, since)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, rides, 2)

	assert.Equal(t, int64(7), rides[0].ID)
	require.NotNil(t, rides[0].Distance)
	assert.Equal(t, 9.5, *rides[0].Distance)
	require.NotNil(t, rides[0].Rider)
	assert.Equal(t, "ada@example.com", rides[0].Rider.Email)
	assert.Nil(t, rides[0].Driver)
	require.Len(t, rides[0].Events, 1)
	assert.Equal(t, "driver arrived", rides[0].Events[0].Description)

	assert.Nil(t, rides[1].Rider)
	assert.Nil(t, rides[1].RiderID)
	assert.Empty(t, rides[1].Events)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRideRepository_List_EmptyPageCountsSeparately(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRideRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM rides r").
		WillReturnRows(sqlmock.NewRows(append(append([]string{}, rideColumns...), "total_count")))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	rides, total, err := repo.List(context.Background(), query.RideQuery{Limit: 10, Offset: 50}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, rides)
	assert.Equal(t, 42, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRideRepository_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRideRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.id = $1")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	ride, err := repo.GetByID(context.Background(), 99, time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, ride)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRideRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRideRepository(db)

	riderID := int64(4)
	pickup := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	ride := &domain.Ride{
		Status:           domain.RideStatusEnRoute,
		RiderID:          &riderID,
		PickupLatitude:   37.7,
		PickupLongitude:  -122.4,
		DropoffLatitude:  37.8,
		DropoffLongitude: -122.5,
		PickupTime:       pickup,
	}

	mock.ExpectQuery("INSERT INTO rides").
		WithArgs(domain.RideStatusEnRoute, int64(4), nil, 37.7, -122.4, 37.8, -122.5, pickup).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

	require.NoError(t, repo.Create(context.Background(), ride))
	assert.Equal(t, int64(12), ride.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRideRepository_Update_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRideRepository(db)

	mock.ExpectExec("UPDATE rides").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &domain.Ride{ID: 5, Status: domain.RideStatusPickup})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRideRepository_Delete(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRideRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rides WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Delete(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	db, mock := setupMockDB(t)
	txm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rides").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := txm.WithinTx(context.Background(), func(rides repository.RideRepository, _ repository.RideEventRepository) error {
		return rides.Update(context.Background(), &domain.Ride{ID: 1, Status: domain.RideStatusPickup})
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager_Commits(t *testing.T) {
	db, mock := setupMockDB(t)
	txm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE rides").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO ride_events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
	mock.ExpectCommit()

	err := txm.WithinTx(context.Background(), func(rides repository.RideRepository, events repository.RideEventRepository) error {
		if err := rides.Update(context.Background(), &domain.Ride{ID: 1, Status: domain.RideStatusPickup}); err != nil {
			return err
		}
		return events.Create(context.Background(), &domain.RideEvent{RideID: 1, Description: "status changed"})
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
