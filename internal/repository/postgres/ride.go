package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ridez/internal/domain"
	"ridez/internal/geo"
	"ridez/internal/query"
	"ridez/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sqlx.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sqlx.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// rideSelect joins the rider and driver so a page of rides is one round trip.
const rideSelect = `
	SELECT
		r.id, r.status, r.rider_id, r.driver_id,
		r.pickup_latitude, r.pickup_longitude, r.dropoff_latitude, r.dropoff_longitude, r.pickup_time,
		rider.id AS "rider.id", rider.role AS "rider.role",
		rider.first_name AS "rider.first_name", rider.last_name AS "rider.last_name",
		rider.email AS "rider.email", rider.phone_number AS "rider.phone_number",
		driver.id AS "driver.id", driver.role AS "driver.role",
		driver.first_name AS "driver.first_name", driver.last_name AS "driver.last_name",
		driver.email AS "driver.email", driver.phone_number AS "driver.phone_number"`

const rideFrom = `
	FROM rides r
	LEFT JOIN users rider ON rider.id = r.rider_id
	LEFT JOIN users driver ON driver.id = r.driver_id`

// orderColumns maps ordering fields to SQL. distance is the computed column alias.
var orderColumns = map[string]string{
	"id":                "r.id",
	"pickup_time":       "r.pickup_time",
	"status":            "r.status",
	query.FieldDistance: "distance",
}

// originColumns maps a distance origin to its latitude/longitude columns.
var originColumns = map[query.Origin][2]string{
	query.OriginPickup:  {"r.pickup_latitude", "r.pickup_longitude"},
	query.OriginDropoff: {"r.dropoff_latitude", "r.dropoff_longitude"},
}

type joinedUser struct {
	ID          sql.NullInt64  `db:"id"`
	Role        sql.NullString `db:"role"`
	FirstName   sql.NullString `db:"first_name"`
	LastName    sql.NullString `db:"last_name"`
	Email       sql.NullString `db:"email"`
	PhoneNumber sql.NullString `db:"phone_number"`
}

func (u joinedUser) toDomain() *domain.User {
	if !u.ID.Valid {
		return nil
	}
	return &domain.User{
		ID:          u.ID.Int64,
		Role:        domain.Role(u.Role.String),
		FirstName:   u.FirstName.String,
		LastName:    u.LastName.String,
		Email:       u.Email.String,
		PhoneNumber: u.PhoneNumber.String,
	}
}

type rideRow struct {
	ID               int64           `db:"id"`
	Status           string          `db:"status"`
	RiderID          sql.NullInt64   `db:"rider_id"`
	DriverID         sql.NullInt64   `db:"driver_id"`
	PickupLatitude   float64         `db:"pickup_latitude"`
	PickupLongitude  float64         `db:"pickup_longitude"`
	DropoffLatitude  float64         `db:"dropoff_latitude"`
	DropoffLongitude float64         `db:"dropoff_longitude"`
	PickupTime       time.Time       `db:"pickup_time"`
	Rider            joinedUser      `db:"rider"`
	Driver           joinedUser      `db:"driver"`
	Distance         sql.NullFloat64 `db:"distance"`
	TotalCount       int             `db:"total_count"`
}

func (r rideRow) toDomain() *domain.Ride {
	ride := &domain.Ride{
		ID:               r.ID,
		Status:           domain.RideStatus(r.Status),
		Rider:            r.Rider.toDomain(),
		Driver:           r.Driver.toDomain(),
		PickupLatitude:   r.PickupLatitude,
		PickupLongitude:  r.PickupLongitude,
		DropoffLatitude:  r.DropoffLatitude,
		DropoffLongitude: r.DropoffLongitude,
		PickupTime:       r.PickupTime,
	}
	if r.RiderID.Valid {
		ride.RiderID = &r.RiderID.Int64
	}
	if r.DriverID.Valid {
		ride.DriverID = &r.DriverID.Int64
	}
	if r.Distance.Valid {
		ride.Distance = &r.Distance.Float64
	}
	return ride
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	stmt := `
		INSERT INTO rides (status, rider_id, driver_id, pickup_latitude, pickup_longitude, dropoff_latitude, dropoff_longitude, pickup_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.q.QueryRowxContext(ctx, stmt,
		ride.Status,
		nullableID(ride.RiderID),
		nullableID(ride.DriverID),
		ride.PickupLatitude,
		ride.PickupLongitude,
		ride.DropoffLatitude,
		ride.DropoffLongitude,
		ride.PickupTime,
	).Scan(&ride.ID)

	return mapError(err)
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id int64, eventsSince time.Time) (*domain.Ride, error) {
	var row rideRow
	if err := sqlx.GetContext(ctx, r.q, &row, rideSelect+rideFrom+` WHERE r.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	ride := row.toDomain()

	events, err := listEvents(ctx, r.q, []int64{ride.ID}, eventsSince)
	if err != nil {
		return nil, err
	}
	ride.Events = events[ride.ID]

	return ride, nil
}

// List retrieves one page of rides matching q.
//
// Filtering, the distance computation, ordering and pagination all run in a
// single statement; the total comes from a window count over the filtered set.
func (r *RideRepository) List(ctx context.Context, q query.RideQuery, eventsSince time.Time) ([]*domain.Ride, int, error) {
	stmt, args := buildListQuery(q)

	var rows []rideRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, stmt, args...); err != nil {
		return nil, 0, err
	}

	total := 0
	if len(rows) > 0 {
		total = rows[0].TotalCount
	} else if q.Offset > 0 {
		countStmt, countArgs := buildCountQuery(q)
		if err := sqlx.GetContext(ctx, r.q, &total, countStmt, countArgs...); err != nil {
			return nil, 0, err
		}
	}

	rides := make([]*domain.Ride, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		rides = append(rides, row.toDomain())
		ids = append(ids, row.ID)
	}

	events, err := listEvents(ctx, r.q, ids, eventsSince)
	if err != nil {
		return nil, 0, err
	}
	for _, ride := range rides {
		ride.Events = events[ride.ID]
	}

	return rides, total, nil
}

// Update updates an existing ride.
func (r *RideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	stmt := `
		UPDATE rides
		SET status = $1, rider_id = $2, driver_id = $3, pickup_latitude = $4, pickup_longitude = $5,
			dropoff_latitude = $6, dropoff_longitude = $7, pickup_time = $8
		WHERE id = $9
	`

	result, err := r.q.ExecContext(ctx, stmt,
		ride.Status,
		nullableID(ride.RiderID),
		nullableID(ride.DriverID),
		ride.PickupLatitude,
		ride.PickupLongitude,
		ride.DropoffLatitude,
		ride.DropoffLongitude,
		ride.PickupTime,
		ride.ID,
	)
	if err != nil {
		return mapError(err)
	}

	return expectAffected(result)
}

// Delete removes a ride. Its events are removed by ON DELETE CASCADE.
func (r *RideRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM rides WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// whereBuilder accumulates positional arguments alongside SQL conditions.
type whereBuilder struct {
	conds []string
	args  []any
}

// add binds v and returns its parameter index.
func (b *whereBuilder) add(v any) int {
	b.args = append(b.args, v)
	return len(b.args)
}

func (b *whereBuilder) arg(v any) string {
	return fmt.Sprintf("$%d", b.add(v))
}

func (b *whereBuilder) sql() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func buildWhere(q query.RideQuery) *whereBuilder {
	b := &whereBuilder{}

	if len(q.Statuses) > 0 {
		statuses := make([]string, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			statuses = append(statuses, string(s))
		}
		b.conds = append(b.conds, "r.status = ANY("+b.arg(pq.Array(statuses))+")")
	}

	if q.RiderEmail != "" {
		b.conds = append(b.conds, "rider.email ILIKE '%' || "+b.arg(escapeLike(q.RiderEmail))+" || '%'")
	}

	return b
}

func buildListQuery(q query.RideQuery) (string, []any) {
	b := buildWhere(q)

	var sb strings.Builder
	sb.WriteString(rideSelect)
	sb.WriteString(",\n\t\tCOUNT(*) OVER () AS total_count")

	if q.WantsDistance() && q.Point != nil {
		cols := originColumns[q.Origin]
		if cols[0] == "" {
			cols = originColumns[query.OriginPickup]
		}
		latArg := b.add(q.Point.Lat)
		lonArg := b.add(q.Point.Lon)
		sb.WriteString(",\n\t\t")
		sb.WriteString(geo.DistanceSQL(cols[0], cols[1], latArg, lonArg))
		sb.WriteString(" AS distance")
	}

	sb.WriteString(rideFrom)
	sb.WriteString(b.sql())
	sb.WriteString(orderBy(q))
	sb.WriteString(" LIMIT " + b.arg(q.Limit))
	sb.WriteString(" OFFSET " + b.arg(q.Offset))

	return sb.String(), b.args
}

func buildCountQuery(q query.RideQuery) (string, []any) {
	b := buildWhere(q)
	return `SELECT COUNT(*)` + rideFrom + b.sql(), b.args
}

// orderBy renders the ORDER BY clause. r.id is appended as a tiebreaker so
// pages are stable.
func orderBy(q query.RideQuery) string {
	terms := make([]string, 0, len(q.Ordering)+1)
	hasID := false
	for _, f := range q.Ordering {
		col, ok := orderColumns[f.Field]
		if !ok || (f.Field == query.FieldDistance && q.Point == nil) {
			continue
		}
		if f.Field == "id" {
			hasID = true
		}
		if f.Desc {
			col += " DESC"
		} else {
			col += " ASC"
		}
		terms = append(terms, col)
	}
	if !hasID {
		terms = append(terms, "r.id ASC")
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func expectAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
