package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ridez/internal/domain"
)

// RideEventRepository is a PostgreSQL implementation of repository.RideEventRepository.
type RideEventRepository struct {
	q Querier
}

// NewRideEventRepository creates a new PostgreSQL ride event repository.
func NewRideEventRepository(db *sqlx.DB) *RideEventRepository {
	return &RideEventRepository{q: db}
}

// NewRideEventRepositoryWithTx creates a ride event repository using a transaction.
func NewRideEventRepositoryWithTx(tx *sqlx.Tx) *RideEventRepository {
	return &RideEventRepository{q: tx}
}

type rideEventRow struct {
	ID          int64     `db:"id"`
	RideID      int64     `db:"ride_id"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r rideEventRow) toDomain() domain.RideEvent {
	return domain.RideEvent{
		ID:          r.ID,
		RideID:      r.RideID,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

// Create persists a new event. A zero CreatedAt defaults to the database clock.
func (r *RideEventRepository) Create(ctx context.Context, event *domain.RideEvent) error {
	query := `
		INSERT INTO ride_events (ride_id, description, created_at)
		VALUES ($1, $2, COALESCE($3, NOW()))
		RETURNING id, created_at
	`

	var createdAt *time.Time
	if !event.CreatedAt.IsZero() {
		createdAt = &event.CreatedAt
	}

	err := r.q.QueryRowxContext(ctx, query, event.RideID, event.Description, createdAt).
		Scan(&event.ID, &event.CreatedAt)
	return mapError(err)
}

// ListByRide retrieves the events of a ride created at or after since.
func (r *RideEventRepository) ListByRide(ctx context.Context, rideID int64, since time.Time) ([]domain.RideEvent, error) {
	events, err := listEvents(ctx, r.q, []int64{rideID}, since)
	if err != nil {
		return nil, err
	}
	return events[rideID], nil
}

// listEvents loads the events of several rides in one query, grouped by ride.
func listEvents(ctx context.Context, q Querier, rideIDs []int64, since time.Time) (map[int64][]domain.RideEvent, error) {
	grouped := make(map[int64][]domain.RideEvent, len(rideIDs))
	if len(rideIDs) == 0 {
		return grouped, nil
	}

	query := `
		SELECT id, ride_id, description, created_at
		FROM ride_events
		WHERE ride_id = ANY($1) AND created_at >= $2
		ORDER BY created_at, id
	`

	var rows []rideEventRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, pq.Array(rideIDs), since); err != nil {
		return nil, err
	}

	for _, row := range rows {
		grouped[row.RideID] = append(grouped[row.RideID], row.toDomain())
	}
	return grouped, nil
}
