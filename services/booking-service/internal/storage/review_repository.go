package storage

import (
	"context"

	"github.com/avelinov/salonbook/libs/db"
	"github.com/avelinov/salonbook/services/booking-service/internal/model"
	"github.com/avelinov/salonbook/services/booking-service/internal/outbox"
)

type ReviewRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewReviewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *ReviewRepository {
	return &ReviewRepository{pool: pool, outbox: outboxRepo}
}

// Create inserts the review and its events in one transaction. The unique
// index on appointment_id enforces at most one review per appointment.
func (r *ReviewRepository) Create(ctx context.Context, rev model.Review, evts []outbox.Event) (model.Review, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Review{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO reviews (appointment_id, client_id, provider_id, service_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, rev.AppointmentID, rev.ClientID, rev.ProviderID, rev.ServiceID, rev.Rating, rev.Comment).
		Scan(&rev.ID, &rev.CreatedAt)
	if err != nil {
		return model.Review{}, err
	}

	for _, evt := range evts {
		if evt.AggregateID == "" {
			evt.AggregateID = rev.ID
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Review{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Review{}, err
	}
	return rev, nil
}

func (r *ReviewRepository) GetByAppointment(ctx context.Context, appointmentID string) (model.Review, error) {
	var rev model.Review
	err := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, client_id, provider_id, service_id, rating, comment, created_at
		FROM reviews
		WHERE appointment_id = $1
	`, appointmentID).Scan(
		&rev.ID, &rev.AppointmentID, &rev.ClientID, &rev.ProviderID, &rev.ServiceID,
		&rev.Rating, &rev.Comment, &rev.CreatedAt,
	)
	return rev, err
}
