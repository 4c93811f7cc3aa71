package storage

import (
	"context"

	"github.com/avelinov/salonbook/libs/db"
)

// The booking service owns the schema; reminder and notification services
// expect it to be in place. Every statement is idempotent.
//
// appointments_active_slot is the engine's race guard: among active rows the
// (provider_id, scheduled_at) pair is unique, so of N concurrent bookings for
// one slot exactly one insert succeeds and the rest fail with 23505.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS services (
		id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		name text NOT NULL UNIQUE,
		duration_minutes int NOT NULL,
		price int NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS providers (
		id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		name text NOT NULL UNIQUE,
		active boolean NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		chat_id bigint UNIQUE,
		username text NOT NULL DEFAULT '',
		name text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS admins (
		id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		chat_id bigint NOT NULL UNIQUE,
		username text NOT NULL DEFAULT '',
		name text NOT NULL DEFAULT '',
		added_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		client_id uuid NOT NULL REFERENCES clients (id),
		service_id uuid NOT NULL REFERENCES services (id),
		provider_id uuid NOT NULL REFERENCES providers (id),
		scheduled_at timestamptz NOT NULL,
		status text NOT NULL DEFAULT 'active',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		reminder_day_sent boolean NOT NULL DEFAULT false,
		reminder_hour_sent boolean NOT NULL DEFAULT false,
		reminder_admin_sent boolean NOT NULL DEFAULT false
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot
		ON appointments (provider_id, scheduled_at)
		WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS appointments_status_time ON appointments (status, scheduled_at)`,
	`CREATE INDEX IF NOT EXISTS appointments_client_status ON appointments (client_id, status)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		appointment_id uuid NOT NULL UNIQUE REFERENCES appointments (id),
		client_id uuid NOT NULL REFERENCES clients (id),
		provider_id uuid NOT NULL REFERENCES providers (id),
		service_id uuid NOT NULL REFERENCES services (id),
		rating int NOT NULL CHECK (rating >= 1 AND rating <= 5),
		comment text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id bigserial PRIMARY KEY,
		event_id uuid NOT NULL DEFAULT gen_random_uuid(),
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		event_type text NOT NULL,
		payload jsonb NOT NULL,
		traceparent text NOT NULL DEFAULT '',
		tracestate text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now(),
		published_at timestamptz
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_unpublished ON outbox_events (id) WHERE published_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS inbox_events (
		event_id text PRIMARY KEY,
		event_type text NOT NULL,
		received_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS review_request_jobs (
		id bigserial PRIMARY KEY,
		idempotency_key text NOT NULL UNIQUE,
		appointment_id uuid NOT NULL,
		due_at timestamptz NOT NULL,
		template_data jsonb NOT NULL DEFAULT '{}',
		status text NOT NULL DEFAULT 'pending',
		attempts int NOT NULL DEFAULT 0,
		max_attempts int NOT NULL DEFAULT 5,
		next_run_at timestamptz NOT NULL,
		last_error text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS review_jobs_due ON review_request_jobs (next_run_at) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id bigserial PRIMARY KEY,
		event_id text NOT NULL,
		kind text NOT NULL,
		recipient_chat_id bigint NOT NULL,
		body text NOT NULL,
		delivered boolean NOT NULL,
		provider_id text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
}

func Migrate(ctx context.Context, pool *db.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
