package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DueAppointment is an appointment row joined with everything a reminder
// message needs, so the notification side never has to query back.
type DueAppointment struct {
	ID           string
	ClientChatID int64
	ClientName   string
	ServiceName  string
	ProviderName string
	ScheduledAt  time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const dueSelect = `
	SELECT a.id, c.chat_id, c.name, s.name, p.name, a.scheduled_at
	FROM appointments a
	JOIN clients c ON c.id = a.client_id
	JOIN services s ON s.id = a.service_id
	JOIN providers p ON p.id = a.provider_id
`

// FetchPastDueActive locks active rows whose time has already passed. They
// are completed by the same transaction.
func (r *Repository) FetchPastDueActive(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]DueAppointment, error) {
	rows, err := tx.Query(ctx, dueSelect+`
		WHERE a.status = 'active' AND a.scheduled_at < $1
		ORDER BY a.scheduled_at
		LIMIT $2
		FOR UPDATE OF a SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *Repository) MarkCompleted(ctx context.Context, tx pgx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'completed', updated_at = now()
		WHERE id = ANY($1) AND status = 'active'
	`, ids)
	return err
}

func flagColumn(kind string) (string, error) {
	switch kind {
	case "day":
		return "reminder_day_sent", nil
	case "hour":
		return "reminder_hour_sent", nil
	case "admin":
		return "reminder_admin_sent", nil
	}
	return "", fmt.Errorf("unknown reminder kind %q", kind)
}

// FetchDueReminders locks active rows inside [from, to) whose flag for the
// given kind is still unset.
func (r *Repository) FetchDueReminders(ctx context.Context, tx pgx.Tx, kind string, from, to time.Time, limit int) ([]DueAppointment, error) {
	col, err := flagColumn(kind)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, dueSelect+`
		WHERE a.status = 'active'
		  AND a.scheduled_at >= $1 AND a.scheduled_at < $2
		  AND a.`+col+` = false
		ORDER BY a.scheduled_at
		LIMIT $3
		FOR UPDATE OF a SKIP LOCKED
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// MarkReminded sets the kind's flag. Flags are monotonic: the set happens in
// the same transaction that enqueues the reminder event, so each kind fires
// at most once per appointment.
func (r *Repository) MarkReminded(ctx context.Context, tx pgx.Tx, kind string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := flagColumn(kind)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET `+col+` = true, updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func collect(rows pgx.Rows) ([]DueAppointment, error) {
	defer rows.Close()
	var out []DueAppointment
	for rows.Next() {
		var d DueAppointment
		if err := rows.Scan(&d.ID, &d.ClientChatID, &d.ClientName, &d.ServiceName, &d.ProviderName, &d.ScheduledAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
