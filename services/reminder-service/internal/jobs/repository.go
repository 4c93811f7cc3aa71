package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// Job is a deferred review request: created when an appointment auto-
// completes, due ten minutes later. The table decouples the request from the
// sweep cycle; a restart re-fetches anything undone.
type Job struct {
	ID             int64
	IdempotencyKey string
	AppointmentID  string
	DueAt          time.Time
	TemplateData   map[string]any
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
}

// IdempotencyKey makes a second insert for the same appointment a no-op.
func IdempotencyKey(appointmentID string) string {
	return "review|" + appointmentID
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) error {
	payload, err := json.Marshal(job.TemplateData)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO review_request_jobs (idempotency_key, appointment_id, due_at, template_data, next_run_at)
		VALUES ($1, $2, $3, $4, $3)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, job.IdempotencyKey, job.AppointmentID, job.DueAt, payload)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, idempotency_key, appointment_id, due_at, template_data, attempts, max_attempts, next_run_at
		FROM review_request_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var raw []byte
		if err := rows.Scan(&j.ID, &j.IdempotencyKey, &j.AppointmentID, &j.DueAt, &raw, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &j.TemplateData); err != nil {
				return nil, err
			}
		} else {
			j.TemplateData = map[string]any{}
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE review_request_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := "pending"
	if attempts >= maxAttempts {
		status = "failed"
	}
	_, err := tx.Exec(ctx, `
		UPDATE review_request_jobs
		SET status = $2, attempts = $3, next_run_at = $4, last_error = $5, updated_at = now()
		WHERE id = $1
	`, id, status, attempts, nextRunAt, lastError)
	return err
}
