// Package booking is the reservation engine: the status state machine and the
// race-safe creation path. Availability checks elsewhere are advisory; the
// re-check here plus the storage-level unique constraint are authoritative.
package booking

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/avelinov/salonbook/libs/metrics"
	"github.com/avelinov/salonbook/services/booking-service/internal/model"
	"github.com/avelinov/salonbook/services/booking-service/internal/outbox"
	"github.com/avelinov/salonbook/services/booking-service/internal/storage"
)

// Actor records who initiated a cancellation; it is carried into the
// cancellation notification.
type Actor string

const (
	ActorClient Actor = "client"
	ActorAdmin  Actor = "admin"
)

type CatalogStore interface {
	GetService(ctx context.Context, id string) (model.Service, error)
	GetProvider(ctx context.Context, id string) (model.Provider, error)
}

type AppointmentStore interface {
	ActiveExists(ctx context.Context, providerID string, at time.Time) (bool, error)
	Create(ctx context.Context, appt model.Appointment, evts []outbox.Event) (model.Appointment, error)
	GetDetails(ctx context.Context, id string) (storage.Details, error)
	TransitionStatus(ctx context.Context, id, from, to string, evts []outbox.Event) (bool, error)
	ClearTerminalHistory(ctx context.Context, clientID string) (int64, error)
	List(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error)
	GetClient(ctx context.Context, id string) (model.Client, error)
}

type ReviewStore interface {
	Create(ctx context.Context, rev model.Review, evts []outbox.Event) (model.Review, error)
	GetByAppointment(ctx context.Context, appointmentID string) (model.Review, error)
}

type Engine struct {
	catalog  CatalogStore
	appts    AppointmentStore
	reviews  ReviewStore
	counters *metrics.Counters
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(catalog CatalogStore, appts AppointmentStore, reviews ReviewStore, counters *metrics.Counters, logger *slog.Logger) *Engine {
	return &Engine{
		catalog:  catalog,
		appts:    appts,
		reviews:  reviews,
		counters: counters,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the engine clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// IsSlotAvailable reports whether no active appointment holds exactly
// (at, providerID).
func (e *Engine) IsSlotAvailable(ctx context.Context, at time.Time, providerID string) (bool, error) {
	exists, err := e.appts.ActiveExists(ctx, providerID, at)
	return !exists, err
}

// Create books a slot. The availability re-check narrows the race window; the
// unique constraint on active (provider, time) closes it: under concurrent
// calls for one slot exactly one insert succeeds and the others surface
// ErrSlotTaken.
func (e *Engine) Create(ctx context.Context, clientID, serviceID, providerID string, at time.Time) (model.Appointment, error) {
	client, err := e.appts.GetClient(ctx, clientID)
	if err != nil {
		return model.Appointment{}, translateLookup(err)
	}
	svc, err := e.catalog.GetService(ctx, serviceID)
	if err != nil {
		return model.Appointment{}, translateLookup(err)
	}
	prov, err := e.catalog.GetProvider(ctx, providerID)
	if err != nil {
		return model.Appointment{}, translateLookup(err)
	}
	if !prov.Active {
		return model.Appointment{}, ErrProviderInactive
	}

	free, err := e.IsSlotAvailable(ctx, at, providerID)
	if err != nil {
		return model.Appointment{}, err
	}
	if !free {
		return model.Appointment{}, ErrSlotTaken
	}

	payload, err := json.Marshal(map[string]any{
		"client_chat_id":   client.ChatID,
		"client_name":      client.Name,
		"service_name":     svc.Name,
		"provider_name":    prov.Name,
		"scheduled_at":     at.UTC().Format(time.RFC3339),
		"duration_minutes": svc.DurationMinutes,
		"price":            svc.Price,
	})
	if err != nil {
		return model.Appointment{}, err
	}

	appt, err := e.appts.Create(ctx, model.Appointment{
		ClientID:    clientID,
		ServiceID:   serviceID,
		ProviderID:  providerID,
		ScheduledAt: at,
	}, []outbox.Event{{
		AggregateType: "appointment",
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}})
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return model.Appointment{}, ErrSlotTaken
		}
		return model.Appointment{}, err
	}

	e.counters.Incr(ctx, e.now(), metrics.CounterBookings)
	e.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", providerID,
		"scheduled_at", at.UTC().Format(time.RFC3339),
	)
	return appt, nil
}

// Cancel transitions active to cancelled and emits the cancellation
// notification with the actor's role. The row is kept.
func (e *Engine) Cancel(ctx context.Context, id string, actor Actor) error {
	d, err := e.appts.GetDetails(ctx, id)
	if err != nil {
		return translateLookup(err)
	}
	if d.Appointment.Terminal() {
		return ErrAlreadyTerminal
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"client_chat_id": d.ClientChatID,
		"client_name":    d.ClientName,
		"service_name":   d.ServiceName,
		"provider_name":  d.ProviderName,
		"scheduled_at":   d.Appointment.ScheduledAt.UTC().Format(time.RFC3339),
		"cancelled_by":   string(actor),
	})
	if err != nil {
		return err
	}

	ok, err := e.appts.TransitionStatus(ctx, id, model.StatusActive, model.StatusCancelled, []outbox.Event{{
		AggregateType: "appointment",
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}})
	if err != nil {
		return err
	}
	if !ok {
		// Lost a race with another transition; the row is terminal now.
		return ErrAlreadyTerminal
	}

	e.counters.Incr(ctx, e.now(), metrics.CounterCancellations)
	e.logger.Info("appointment cancelled", "appointment_id", id, "cancelled_by", string(actor))
	return nil
}

// Complete transitions active to completed. Used by the admin action; the
// reminder sweep runs its own bulk variant of the same transition.
func (e *Engine) Complete(ctx context.Context, id string) error {
	d, err := e.appts.GetDetails(ctx, id)
	if err != nil {
		return translateLookup(err)
	}
	if d.Appointment.Terminal() {
		return ErrAlreadyTerminal
	}

	ok, err := e.appts.TransitionStatus(ctx, id, model.StatusActive, model.StatusCompleted, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyTerminal
	}

	e.counters.Incr(ctx, e.now(), metrics.CounterCompletions)
	e.logger.Info("appointment completed", "appointment_id", id)
	return nil
}

// ClearHistory removes the client's terminal rows and reports how many went.
func (e *Engine) ClearHistory(ctx context.Context, clientID string) (int64, error) {
	if _, err := e.appts.GetClient(ctx, clientID); err != nil {
		return 0, translateLookup(err)
	}
	n, err := e.appts.ClearTerminalHistory(ctx, clientID)
	if err != nil {
		return 0, err
	}
	e.logger.Info("history cleared", "client_id", clientID, "deleted", n)
	return n, nil
}

func (e *Engine) List(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error) {
	return e.appts.List(ctx, f)
}

const maxReviewCommentLen = 500

// SubmitReview attaches a rating to a completed appointment, once.
func (e *Engine) SubmitReview(ctx context.Context, appointmentID string, rating int, comment string) (model.Review, error) {
	if rating < 1 || rating > 5 {
		return model.Review{}, ErrInvalidReview
	}
	if len([]rune(comment)) > maxReviewCommentLen {
		return model.Review{}, ErrInvalidReview
	}

	d, err := e.appts.GetDetails(ctx, appointmentID)
	if err != nil {
		return model.Review{}, translateLookup(err)
	}
	if d.Appointment.Status != model.StatusCompleted {
		return model.Review{}, ErrNotCompleted
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appointmentID,
		"client_name":    d.ClientName,
		"service_name":   d.ServiceName,
		"provider_name":  d.ProviderName,
		"rating":         rating,
		"comment":        comment,
	})
	if err != nil {
		return model.Review{}, err
	}

	rev, err := e.reviews.Create(ctx, model.Review{
		AppointmentID: appointmentID,
		ClientID:      d.Appointment.ClientID,
		ProviderID:    d.Appointment.ProviderID,
		ServiceID:     d.Appointment.ServiceID,
		Rating:        rating,
		Comment:       comment,
	}, []outbox.Event{{
		AggregateType: "review",
		EventType:     outbox.EventReviewCreated,
		Payload:       payload,
	}})
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return model.Review{}, ErrReviewExists
		}
		return model.Review{}, err
	}

	e.counters.Incr(ctx, e.now(), metrics.CounterReviews)
	return rev, nil
}

// GetReview returns the review left for an appointment, or ErrNotFound.
func (e *Engine) GetReview(ctx context.Context, appointmentID string) (model.Review, error) {
	rev, err := e.reviews.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return model.Review{}, translateLookup(err)
	}
	return rev, nil
}

func translateLookup(err error) error {
	if storage.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}
