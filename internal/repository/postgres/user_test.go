package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridez/internal/domain"
	"ridez/internal/repository"
)

func TestUserRepository_GetByUsername(t *testing.T) {
	testCases := []struct {
		name       string
		mockSetup  func(mock sqlmock.Sqlmock)
		assertFunc func(t *testing.T, user *domain.User, err error)
	}{
		{
			name: "found",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"id", "username", "first_name", "last_name", "email", "phone_number", "role", "password_hash", "is_active", "created_at"}).
					AddRow(int64(141), "user141", "User141", "Test", "user141@example.com", "+155500000141", "admin", "hash", true, time.Now())
				mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
					WithArgs("user141").
					WillReturnRows(rows)
			},
			assertFunc: func(t *testing.T, user *domain.User, err error) {
				require.NoError(t, err)
				assert.Equal(t, int64(141), user.ID)
				assert.Equal(t, domain.RoleAdmin, user.Role)
				assert.True(t, user.IsActive)
			},
		},
		{
			name: "not found",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
					WithArgs("user141").
					WillReturnError(sql.ErrNoRows)
			},
			assertFunc: func(t *testing.T, user *domain.User, err error) {
				assert.ErrorIs(t, err, repository.ErrNotFound)
				assert.Nil(t, user)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			tc.mockSetup(mock)

			user, err := NewUserRepository(db).GetByUsername(context.Background(), "user141")
			tc.assertFunc(t, user, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_Create_Conflict(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "users_phone_number_key"})

	err := NewUserRepository(db).Create(context.Background(), &domain.User{
		Username:    "dup",
		Email:       "dup@example.com",
		PhoneNumber: "+15550000001",
		Role:        domain.RoleRider,
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Contains(t, err.Error(), "users_phone_number_key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "users_email_key"})

	err := NewUserRepository(db).Create(context.Background(), &domain.User{
		Username:    "other",
		Email:       "dup@example.com",
		PhoneNumber: "+15550000002",
		Role:        domain.RoleRider,
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Contains(t, err.Error(), "users_email_key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Delete(t *testing.T) {
	deleteStmt := regexp.QuoteMeta("DELETE FROM users WHERE id = $1 RETURNING id")

	testCases := []struct {
		name       string
		mockSetup  func(mock sqlmock.Sqlmock)
		assertFunc func(t *testing.T, rideIDs []int64, err error)
	}{
		{
			name: "returns referencing rides",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(deleteStmt).
					WithArgs(int64(3)).
					WillReturnRows(sqlmock.NewRows([]string{"user_id", "ride_id"}).
						AddRow(int64(3), int64(10)).
						AddRow(int64(3), int64(12)))
			},
			assertFunc: func(t *testing.T, rideIDs []int64, err error) {
				require.NoError(t, err)
				assert.Equal(t, []int64{10, 12}, rideIDs)
			},
		},
		{
			name: "no rides",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(deleteStmt).
					WithArgs(int64(3)).
					WillReturnRows(sqlmock.NewRows([]string{"user_id", "ride_id"}).AddRow(int64(3), nil))
			},
			assertFunc: func(t *testing.T, rideIDs []int64, err error) {
				require.NoError(t, err)
				assert.Empty(t, rideIDs)
			},
		},
		{
			name: "not found",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(deleteStmt).
					WithArgs(int64(3)).
					WillReturnRows(sqlmock.NewRows([]string{"user_id", "ride_id"}))
			},
			assertFunc: func(t *testing.T, rideIDs []int64, err error) {
				assert.ErrorIs(t, err, repository.ErrNotFound)
				assert.Nil(t, rideIDs)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			tc.mockSetup(mock)

			rideIDs, err := NewUserRepository(db).Delete(context.Background(), 3)
			tc.assertFunc(t, rideIDs, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRideRepository_Update_MissingUser(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec("UPDATE rides").
		WillReturnError(&pq.Error{Code: foreignKeyViolation, Constraint: "rides_driver_id_fkey"})

	driverID := int64(9)
	err := NewRideRepository(db).Update(context.Background(), &domain.Ride{ID: 1, Status: domain.RideStatusPickup, DriverID: &driverID})

	var ref *repository.ReferenceError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "driver_id", ref.Field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchema_EmailIsUnique(t *testing.T) {
	found := false
	for _, stmt := range Schema {
		if strings.Contains(stmt, "UNIQUE INDEX IF NOT EXISTS users_email_key ON users (email)") {
			found = true
		}
	}
	assert.True(t, found, "users.email must carry a unique index")
}

func TestEnsureSchema(t *testing.T) {
	db, mock := setupMockDB(t)

	for range Schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
