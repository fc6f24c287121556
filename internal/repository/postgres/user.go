package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"ridez/internal/domain"
	"ridez/internal/repository"
)

const userColumns = `id, username, first_name, last_name, email, phone_number, role, password_hash, is_active, created_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{q: db}
}

type userRow struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	Email        string    `db:"email"`
	PhoneNumber  string    `db:"phone_number"`
	Role         string    `db:"role"`
	PasswordHash string    `db:"password_hash"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Username:     r.Username,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Email:        r.Email,
		PhoneNumber:  r.PhoneNumber,
		Role:         domain.Role(r.Role),
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
	}
}

// Create adds a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (username, first_name, last_name, email, phone_number, role, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.q.QueryRowxContext(ctx, query,
		user.Username,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PhoneNumber,
		user.Role,
		user.PasswordHash,
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt)
	return mapError(err)
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row userRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// GetAll retrieves all users.
func (r *UserRepository) GetAll(ctx context.Context) ([]*domain.User, error) {
	var rows []userRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, err
	}

	users := make([]*domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toDomain())
	}
	return users, nil
}

// Delete removes a user and returns the ids of the rides that referenced it.
// Foreign keys on rides are ON DELETE SET NULL, so those rides keep existing
// with the reference cleared.
func (r *UserRepository) Delete(ctx context.Context, id int64) ([]int64, error) {
	stmt := `
		WITH deleted AS (
			DELETE FROM users WHERE id = $1 RETURNING id
		)
		SELECT d.id AS user_id, r.id AS ride_id
		FROM deleted d
		LEFT JOIN rides r ON r.rider_id = d.id OR r.driver_id = d.id
		ORDER BY r.id
	`

	var rows []struct {
		UserID int64         `db:"user_id"`
		RideID sql.NullInt64 `db:"ride_id"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, stmt, id); err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}

	rideIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		if row.RideID.Valid {
			rideIDs = append(rideIDs, row.RideID.Int64)
		}
	}
	return rideIDs, nil
}
