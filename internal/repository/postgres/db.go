package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ridez/internal/repository"
)

// Querier is an interface satisfied by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
}

// Ensure interfaces are satisfied.
var (
	_ Querier = (*sqlx.DB)(nil)
	_ Querier = (*sqlx.Tx)(nil)
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// foreignKeyFields maps foreign key constraints to the column they guard.
var foreignKeyFields = map[string]string{
	"rides_rider_id_fkey":      "rider_id",
	"rides_driver_id_fkey":     "driver_id",
	"ride_events_ride_id_fkey": "ride_id",
}

// mapError translates driver errors into repository errors.
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case uniqueViolation:
		return fmt.Errorf("%w: %s", repository.ErrConflict, pqErr.Constraint)
	case foreignKeyViolation:
		field, ok := foreignKeyFields[pqErr.Constraint]
		if !ok {
			field = pqErr.Constraint
		}
		return &repository.ReferenceError{Field: field}
	}
	return err
}

// TxManager runs ride writes inside a single transaction.
type TxManager struct {
	db *sqlx.DB
}

// NewTxManager creates a new TxManager.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx calls fn with transaction-scoped repositories, committing when fn
// returns nil and rolling back otherwise.
func (m *TxManager) WithinTx(ctx context.Context, fn func(rides repository.RideRepository, events repository.RideEventRepository) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(NewRideRepositoryWithTx(tx), NewRideEventRepositoryWithTx(tx)); err != nil {
		return err
	}

	return tx.Commit()
}
