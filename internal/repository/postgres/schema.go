package postgres

import (
	"context"
	"fmt"
)

// Schema creates the tables used by the repositories. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      VARCHAR(150) NOT NULL UNIQUE,
		first_name    VARCHAR(150) NOT NULL DEFAULT '',
		last_name     VARCHAR(150) NOT NULL DEFAULT '',
		email         VARCHAR(254) NOT NULL,
		phone_number  VARCHAR(16)  NOT NULL UNIQUE,
		role          VARCHAR(50)  NOT NULL,
		password_hash VARCHAR(128) NOT NULL DEFAULT '',
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rides (
		id                BIGSERIAL PRIMARY KEY,
		status            VARCHAR(8) NOT NULL DEFAULT 'en-route',
		rider_id          BIGINT REFERENCES users(id) ON DELETE SET NULL,
		driver_id         BIGINT REFERENCES users(id) ON DELETE SET NULL,
		pickup_latitude   DOUBLE PRECISION NOT NULL,
		pickup_longitude  DOUBLE PRECISION NOT NULL,
		dropoff_latitude  DOUBLE PRECISION NOT NULL,
		dropoff_longitude DOUBLE PRECISION NOT NULL,
		pickup_time       TIMESTAMPTZ NOT NULL,
		CONSTRAINT rides_status_check CHECK (status IN ('en-route', 'pickup', 'dropoff'))
	)`,
	`CREATE TABLE IF NOT EXISTS ride_events (
		id          BIGSERIAL PRIMARY KEY,
		ride_id     BIGINT NOT NULL REFERENCES rides(id) ON DELETE CASCADE,
		description VARCHAR(255) NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (email)`,
	`CREATE INDEX IF NOT EXISTS rides_status_idx ON rides (status)`,
	`CREATE INDEX IF NOT EXISTS rides_pickup_time_idx ON rides (pickup_time)`,
	`CREATE INDEX IF NOT EXISTS rides_rider_id_idx ON rides (rider_id)`,
	`CREATE INDEX IF NOT EXISTS ride_events_ride_created_idx ON ride_events (ride_id, created_at)`,
}

// EnsureSchema applies Schema in order.
func EnsureSchema(ctx context.Context, q Querier) error {
	for i, stmt := range Schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
