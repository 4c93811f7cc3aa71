package sweep

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avelinov/salonbook/libs/metrics"
	"github.com/avelinov/salonbook/services/reminder-service/internal/jobs"
	"github.com/avelinov/salonbook/services/reminder-service/internal/outbox"
	"github.com/avelinov/salonbook/services/reminder-service/internal/storage"
)

const reviewRequestDelay = 10 * time.Minute

// TxBeginner opens the transaction each sweep step runs in.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AppointmentStore is the slice of the appointment repository the sweep needs.
type AppointmentStore interface {
	FetchPastDueActive(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]storage.DueAppointment, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, ids []string) error
	FetchDueReminders(ctx context.Context, tx pgx.Tx, kind string, from, to time.Time, limit int) ([]storage.DueAppointment, error)
	MarkReminded(ctx context.Context, tx pgx.Tx, kind string, ids []string) error
}

type JobStore interface {
	Insert(ctx context.Context, tx pgx.Tx, job jobs.Job) error
	FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]jobs.Job, error)
	MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts, maxAttempts int, nextRunAt time.Time, lastError string) error
}

type EventStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type Config struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration

	EnableDay   bool
	EnableHour  bool
	EnableAdmin bool

	ReportHour   int
	ReportMinute int
}

// Sweeper is the single reminder loop. Each cycle runs the steps in order,
// each step in its own transaction; a failing step is logged and the cycle
// moves on, so a bad batch never starves the other reminder kinds.
type Sweeper struct {
	pool     TxBeginner
	store    AppointmentStore
	jobs     JobStore
	outbox   EventStore
	counters *metrics.Counters
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func New(pool TxBeginner, store AppointmentStore, jobRepo JobStore, outboxRepo EventStore, counters *metrics.Counters, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	return &Sweeper{
		pool:     pool,
		store:    store,
		jobs:     jobRepo,
		outbox:   outboxRepo,
		counters: counters,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock overrides the sweep clock. Tests only.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

type step struct {
	name string
	run  func(context.Context, time.Time) error
}

func (s *Sweeper) cycle(ctx context.Context) {
	now := s.now()
	steps := []step{
		{"auto_complete", s.autoComplete},
		{"review_jobs", s.processReviewJobs},
		{"daily_report", s.dailyReport},
		{"counter_reset", s.counterReset},
	}
	if s.cfg.EnableDay {
		steps = append(steps, step{"remind_day", s.remindStep(KindDay)})
	}
	if s.cfg.EnableHour {
		steps = append(steps, step{"remind_hour", s.remindStep(KindHour)})
	}
	if s.cfg.EnableAdmin {
		steps = append(steps, step{"remind_admin", s.remindStep(KindAdmin)})
	}

	for _, st := range steps {
		if err := st.run(ctx, now); err != nil {
			s.logger.Error("sweep step failed", "step", st.name, "err", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// autoComplete moves past-due active rows to completed and queues a deferred
// review request for each.
func (s *Sweeper) autoComplete(ctx context.Context, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := s.store.FetchPastDueActive(ctx, tx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return tx.Commit(ctx)
	}

	ids := make([]string, 0, len(due))
	for _, d := range due {
		ids = append(ids, d.ID)
		if err := s.jobs.Insert(ctx, tx, jobs.Job{
			IdempotencyKey: jobs.IdempotencyKey(d.ID),
			AppointmentID:  d.ID,
			DueAt:          now.Add(reviewRequestDelay),
			TemplateData: map[string]any{
				"client_chat_id": d.ClientChatID,
				"client_name":    d.ClientName,
				"service_name":   d.ServiceName,
			},
		}); err != nil {
			return err
		}
	}
	if err := s.store.MarkCompleted(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for range due {
		s.counters.Incr(ctx, now, metrics.CounterCompletions)
	}
	s.logger.Info("auto-completed past appointments", "count", len(due))
	return nil
}

func (s *Sweeper) remindStep(kind Kind) func(context.Context, time.Time) error {
	return func(ctx context.Context, now time.Time) error {
		return s.remind(ctx, now, kind)
	}
}

// remind enqueues reminder events for one kind and sets its flag in the same
// transaction. A row reminded here never comes back for this kind.
func (s *Sweeper) remind(ctx context.Context, now time.Time, kind Kind) error {
	w := WindowFor(kind, now)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := s.store.FetchDueReminders(ctx, tx, string(kind), w.From, w.To, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return tx.Commit(ctx)
	}

	ids := make([]string, 0, len(due))
	for _, d := range due {
		payload, err := json.Marshal(map[string]any{
			"kind":           string(kind),
			"appointment_id": d.ID,
			"client_chat_id": d.ClientChatID,
			"client_name":    d.ClientName,
			"service_name":   d.ServiceName,
			"provider_name":  d.ProviderName,
			"scheduled_at":   d.ScheduledAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   d.ID,
			EventType:     outbox.EventReminderDue,
			Payload:       payload,
		}); err != nil {
			return err
		}
		ids = append(ids, d.ID)
	}
	if err := s.store.MarkReminded(ctx, tx, string(kind), ids); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for range due {
		s.counters.Incr(ctx, now, metrics.CounterReminders)
	}
	s.logger.Info("reminders enqueued", "kind", string(kind), "count", len(due))
	return nil
}

// processReviewJobs turns due review-request jobs into events. A job whose
// enqueue fails is retried with backoff until max_attempts.
func (s *Sweeper) processReviewJobs(ctx context.Context, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch, err := s.jobs.FetchDue(ctx, tx, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return tx.Commit(ctx)
	}

	var done []int64
	for _, job := range batch {
		payload, err := json.Marshal(map[string]any{
			"appointment_id": job.AppointmentID,
			"client_chat_id": job.TemplateData["client_chat_id"],
			"client_name":    job.TemplateData["client_name"],
			"service_name":   job.TemplateData["service_name"],
		})
		if err == nil {
			err = s.outbox.Insert(ctx, tx, outbox.Event{
				AggregateType: "appointment",
				AggregateID:   job.AppointmentID,
				EventType:     outbox.EventReviewRequested,
				Payload:       payload,
			})
		}
		if err != nil {
			if ferr := s.jobs.MarkFailed(ctx, tx, job.ID, job.Attempts+1, job.MaxAttempts, now.Add(s.cfg.Backoff), err.Error()); ferr != nil {
				return ferr
			}
			continue
		}
		done = append(done, job.ID)
	}
	if err := s.jobs.MarkProcessed(ctx, tx, done); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if len(done) > 0 {
		s.logger.Info("review requests enqueued", "count", len(done))
	}
	return nil
}

// dailyReport sends the day's counters to admins once per day, at or after
// the configured time.
func (s *Sweeper) dailyReport(ctx context.Context, now time.Time) error {
	if !s.counters.Enabled() {
		return nil
	}
	reportAt := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.ReportHour, s.cfg.ReportMinute, 0, 0, now.Location())
	if now.Before(reportAt) {
		return nil
	}
	if !s.counters.Once(ctx, now, "daily_report") {
		return nil
	}

	snap, err := s.counters.Snapshot(ctx, now)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{
		"date":          now.Format("2006-01-02"),
		"bookings":      snap[metrics.CounterBookings],
		"cancellations": snap[metrics.CounterCancellations],
		"completions":   snap[metrics.CounterCompletions],
		"reminders":     snap[metrics.CounterReminders],
		"reviews":       snap[metrics.CounterReviews],
	})
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "metrics",
		AggregateID:   now.Format("2006-01-02"),
		EventType:     outbox.EventDailyReport,
		Payload:       payload,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("daily report enqueued", "date", now.Format("2006-01-02"))
	return nil
}

// counterReset drops yesterday's counters on the first cycle of a new day.
// Keys carry a TTL as well, so a missed reset still cannot leak state.
func (s *Sweeper) counterReset(ctx context.Context, now time.Time) error {
	if !s.counters.Enabled() {
		return nil
	}
	if !s.counters.Once(ctx, now, "counter_reset") {
		return nil
	}
	return s.counters.Reset(ctx, now.AddDate(0, 0, -1))
}
