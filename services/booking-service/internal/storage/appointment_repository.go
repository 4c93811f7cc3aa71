package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/avelinov/salonbook/libs/db"
	"github.com/avelinov/salonbook/services/booking-service/internal/model"
	"github.com/avelinov/salonbook/services/booking-service/internal/outbox"
)

type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

// ActiveSlotTimes returns start times of active appointments for a provider
// in [from, to). Feeds the availability checker.
func (r *AppointmentRepository) ActiveSlotTimes(ctx context.Context, providerID string, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE provider_id = $1
			AND status = 'active'
			AND scheduled_at >= $2
			AND scheduled_at < $3
		ORDER BY scheduled_at
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func (r *AppointmentRepository) ActiveExists(ctx context.Context, providerID string, at time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1 AND scheduled_at = $2 AND status = 'active'
		)
	`, providerID, at).Scan(&exists)
	return exists, err
}

// Create inserts the appointment and its events in one transaction. The
// partial unique index on active (provider_id, scheduled_at) is the final
// race guard; callers translate the unique violation.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment, evts []outbox.Event) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt.ID = uuid.NewString()
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (id, client_id, service_id, provider_id, scheduled_at, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING status, created_at, updated_at
	`, appt.ID, appt.ClientID, appt.ServiceID, appt.ProviderID, appt.ScheduledAt).Scan(
		&appt.Status, &appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}

	for _, evt := range evts {
		if evt.AggregateID == "" {
			evt.AggregateID = appt.ID
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Appointment{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	var a model.Appointment
	err := r.pool.QueryRow(ctx, `
		SELECT id, client_id, service_id, provider_id, scheduled_at, status,
			created_at, updated_at, reminder_day_sent, reminder_hour_sent, reminder_admin_sent
		FROM appointments
		WHERE id = $1
	`, id).Scan(
		&a.ID, &a.ClientID, &a.ServiceID, &a.ProviderID, &a.ScheduledAt, &a.Status,
		&a.CreatedAt, &a.UpdatedAt, &a.ReminderDaySent, &a.ReminderHourSent, &a.ReminderAdminSent,
	)
	return a, err
}

// Details is the joined view event payloads are built from.
type Details struct {
	Appointment  model.Appointment
	ClientChatID int64
	ClientName   string
	ServiceName  string
	ProviderName string
}

func (r *AppointmentRepository) GetDetails(ctx context.Context, id string) (Details, error) {
	var d Details
	var chatID *int64
	err := r.pool.QueryRow(ctx, `
		SELECT a.id, a.client_id, a.service_id, a.provider_id, a.scheduled_at, a.status,
			a.created_at, a.updated_at, a.reminder_day_sent, a.reminder_hour_sent, a.reminder_admin_sent,
			c.chat_id, c.name, s.name, p.name
		FROM appointments a
		JOIN clients c ON c.id = a.client_id
		JOIN services s ON s.id = a.service_id
		JOIN providers p ON p.id = a.provider_id
		WHERE a.id = $1
	`, id).Scan(
		&d.Appointment.ID, &d.Appointment.ClientID, &d.Appointment.ServiceID, &d.Appointment.ProviderID,
		&d.Appointment.ScheduledAt, &d.Appointment.Status,
		&d.Appointment.CreatedAt, &d.Appointment.UpdatedAt,
		&d.Appointment.ReminderDaySent, &d.Appointment.ReminderHourSent, &d.Appointment.ReminderAdminSent,
		&chatID, &d.ClientName, &d.ServiceName, &d.ProviderName,
	)
	if err != nil {
		return Details{}, err
	}
	if chatID != nil {
		d.ClientChatID = *chatID
	}
	return d, nil
}

// TransitionStatus is a compare-and-swap on status. It returns false when no
// row matched (id, from), which means the row is already past that state.
// Events are only written when the transition happened.
func (r *AppointmentRepository) TransitionStatus(ctx context.Context, id, from, to string, evts []outbox.Event) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, evt := range evts {
		if evt.AggregateID == "" {
			evt.AggregateID = id
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return false, err
		}
	}
	return true, tx.Commit(ctx)
}

// ClearTerminalHistory deletes a client's completed and cancelled rows (and
// their reviews). Active rows are never touched.
func (r *AppointmentRepository) ClearTerminalHistory(ctx context.Context, clientID string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM reviews
		WHERE appointment_id IN (
			SELECT id FROM appointments
			WHERE client_id = $1 AND status IN ('completed', 'cancelled')
		)
	`, clientID); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM appointments
		WHERE client_id = $1 AND status IN ('completed', 'cancelled')
	`, clientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), tx.Commit(ctx)
}

// ListFilter narrows the appointment listing. Zero values mean "no filter".
type ListFilter struct {
	ClientID string
	Status   string
	From     time.Time
	To       time.Time
	Limit    int
}

func (r *AppointmentRepository) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	q := `
		SELECT id, client_id, service_id, provider_id, scheduled_at, status,
			created_at, updated_at, reminder_day_sent, reminder_hour_sent, reminder_admin_sent
		FROM appointments
		WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.ClientID != "" {
		q += ` AND client_id = ` + arg(f.ClientID)
	}
	if f.Status != "" {
		q += ` AND status = ` + arg(f.Status)
	}
	if !f.From.IsZero() {
		q += ` AND scheduled_at >= ` + arg(f.From)
	}
	if !f.To.IsZero() {
		q += ` AND scheduled_at < ` + arg(f.To)
	}
	q += ` ORDER BY scheduled_at`
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q += ` LIMIT ` + arg(limit)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(
			&a.ID, &a.ClientID, &a.ServiceID, &a.ProviderID, &a.ScheduledAt, &a.Status,
			&a.CreatedAt, &a.UpdatedAt, &a.ReminderDaySent, &a.ReminderHourSent, &a.ReminderAdminSent,
		); err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (r *AppointmentRepository) GetClient(ctx context.Context, id string) (model.Client, error) {
	var c model.Client
	var chatID *int64
	err := r.pool.QueryRow(ctx, `
		SELECT id, chat_id, username, name, created_at
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &chatID, &c.Username, &c.Name, &c.CreatedAt)
	if err != nil {
		return model.Client{}, err
	}
	if chatID != nil {
		c.ChatID = *chatID
	}
	return c, nil
}

// UpsertClient registers a client by chat id, refreshing the profile fields
// the messenger reports on each contact.
func (r *AppointmentRepository) UpsertClient(ctx context.Context, chatID int64, username, name string) (model.Client, error) {
	var c model.Client
	var storedChat *int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (chat_id, username, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE SET username = EXCLUDED.username, name = EXCLUDED.name
		RETURNING id, chat_id, username, name, created_at
	`, chatID, username, name).Scan(&c.ID, &storedChat, &c.Username, &c.Name, &c.CreatedAt)
	if err != nil {
		return model.Client{}, err
	}
	if storedChat != nil {
		c.ChatID = *storedChat
	}
	return c, nil
}
