package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avelinov/salonbook/services/reminder-service/internal/jobs"
	"github.com/avelinov/salonbook/services/reminder-service/internal/outbox"
	"github.com/avelinov/salonbook/services/reminder-service/internal/storage"
)

// fakeTx embeds pgx.Tx for the method set; only Commit and Rollback are
// called, everything else goes through the fake stores.
type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeBeginner struct{ last *fakeTx }

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	b.last = &fakeTx{}
	return b.last, nil
}

type fakeAppt struct {
	id          string
	clientChat  int64
	clientName  string
	serviceName string
	provName    string
	scheduledAt time.Time
	status      string
	reminded    map[string]bool
}

type fakeAppointments struct {
	rows []*fakeAppt
}

func (f *fakeAppointments) due(a *fakeAppt) storage.DueAppointment {
	return storage.DueAppointment{
		ID:           a.id,
		ClientChatID: a.clientChat,
		ClientName:   a.clientName,
		ServiceName:  a.serviceName,
		ProviderName: a.provName,
		ScheduledAt:  a.scheduledAt,
	}
}

func (f *fakeAppointments) FetchPastDueActive(_ context.Context, _ pgx.Tx, now time.Time, limit int) ([]storage.DueAppointment, error) {
	var out []storage.DueAppointment
	for _, a := range f.rows {
		if a.status == "active" && a.scheduledAt.Before(now) && len(out) < limit {
			out = append(out, f.due(a))
		}
	}
	return out, nil
}

func (f *fakeAppointments) MarkCompleted(_ context.Context, _ pgx.Tx, ids []string) error {
	for _, a := range f.rows {
		for _, id := range ids {
			if a.id == id && a.status == "active" {
				a.status = "completed"
			}
		}
	}
	return nil
}

func (f *fakeAppointments) FetchDueReminders(_ context.Context, _ pgx.Tx, kind string, from, to time.Time, limit int) ([]storage.DueAppointment, error) {
	var out []storage.DueAppointment
	for _, a := range f.rows {
		if a.status != "active" || a.reminded[kind] {
			continue
		}
		if !a.scheduledAt.Before(from) && a.scheduledAt.Before(to) && len(out) < limit {
			out = append(out, f.due(a))
		}
	}
	return out, nil
}

func (f *fakeAppointments) MarkReminded(_ context.Context, _ pgx.Tx, kind string, ids []string) error {
	for _, a := range f.rows {
		for _, id := range ids {
			if a.id == id {
				if a.reminded == nil {
					a.reminded = map[string]bool{}
				}
				a.reminded[kind] = true
			}
		}
	}
	return nil
}

type fakeJobs struct {
	now       time.Time
	nextID    int64
	byKey     map[string]*jobs.Job
	failedIDs []int64
}

func (f *fakeJobs) Insert(_ context.Context, _ pgx.Tx, job jobs.Job) error {
	if f.byKey == nil {
		f.byKey = map[string]*jobs.Job{}
	}
	if _, ok := f.byKey[job.IdempotencyKey]; ok {
		return nil
	}
	f.nextID++
	job.ID = f.nextID
	job.MaxAttempts = 3
	job.NextRunAt = job.DueAt
	f.byKey[job.IdempotencyKey] = &job
	return nil
}

func (f *fakeJobs) FetchDue(_ context.Context, _ pgx.Tx, limit int) ([]jobs.Job, error) {
	var out []jobs.Job
	for _, j := range f.byKey {
		if !j.NextRunAt.After(f.now) && len(out) < limit {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f *fakeJobs) MarkProcessed(_ context.Context, _ pgx.Tx, ids []int64) error {
	for _, id := range ids {
		for key, j := range f.byKey {
			if j.ID == id {
				delete(f.byKey, key)
			}
		}
	}
	return nil
}

func (f *fakeJobs) MarkFailed(_ context.Context, _ pgx.Tx, id int64, attempts, maxAttempts int, nextRunAt time.Time, _ string) error {
	f.failedIDs = append(f.failedIDs, id)
	for _, j := range f.byKey {
		if j.ID == id {
			j.Attempts = attempts
			j.NextRunAt = nextRunAt
		}
	}
	return nil
}

type fakeOutbox struct {
	events  []outbox.Event
	failAll bool
}

func (f *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	if f.failAll {
		return errors.New("outbox unavailable")
	}
	f.events = append(f.events, evt)
	return nil
}

func newSweeper(appts *fakeAppointments, jobStore *fakeJobs, events *fakeOutbox, now time.Time) *Sweeper {
	jobStore.now = now
	s := New(&fakeBeginner{}, appts, jobStore, events, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		EnableDay:   true,
		EnableHour:  true,
		EnableAdmin: true,
		ReportHour:  20,
	})
	return s.WithClock(func() time.Time { return now })
}

func TestCycle_AutoCompletesPastDue(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	appt := &fakeAppt{
		id: "a-1", clientChat: 100, clientName: "Vera",
		serviceName: "Classic massage", provName: "Alex",
		scheduledAt: now.Add(-2 * time.Hour), status: "active",
	}
	appts := &fakeAppointments{rows: []*fakeAppt{appt}}
	jobStore := &fakeJobs{}
	events := &fakeOutbox{}

	newSweeper(appts, jobStore, events, now).cycle(context.Background())

	if appt.status != "completed" {
		t.Fatalf("past-due active row not completed, status %q", appt.status)
	}
	job, ok := jobStore.byKey[jobs.IdempotencyKey("a-1")]
	if !ok {
		t.Fatal("no review request job queued for the completed row")
	}
	if !job.DueAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("review request due at %s, want completion+10m", job.DueAt)
	}
}

func TestCycle_AutoCompleteIsIdempotent(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	appt := &fakeAppt{
		id: "a-1", clientChat: 100, clientName: "Vera",
		serviceName: "Classic massage", provName: "Alex",
		scheduledAt: now.Add(-time.Hour), status: "active",
	}
	appts := &fakeAppointments{rows: []*fakeAppt{appt}}
	jobStore := &fakeJobs{}
	events := &fakeOutbox{}
	s := newSweeper(appts, jobStore, events, now)

	s.cycle(context.Background())
	s.cycle(context.Background())

	if len(jobStore.byKey) != 1 {
		t.Fatalf("expected one review job after two cycles, got %d", len(jobStore.byKey))
	}
}

func TestCycle_SecondSweepDoesNotResendDayReminder(t *testing.T) {
	now := time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)
	appt := &fakeAppt{
		id: "a-1", clientChat: 100, clientName: "Vera",
		serviceName: "Classic massage", provName: "Alex",
		scheduledAt: time.Date(2024, 6, 11, 14, 30, 0, 0, time.UTC), status: "active",
	}
	appts := &fakeAppointments{rows: []*fakeAppt{appt}}
	events := &fakeOutbox{}
	s := newSweeper(appts, &fakeJobs{}, events, now)

	s.cycle(context.Background())
	if len(events.events) != 1 {
		t.Fatalf("expected one day reminder, got %d events", len(events.events))
	}
	evt := events.events[0]
	if evt.EventType != outbox.EventReminderDue || evt.AggregateID != "a-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if !appt.reminded["day"] {
		t.Fatal("day flag not set with the enqueue")
	}

	s.cycle(context.Background())
	if len(events.events) != 1 {
		t.Fatalf("second sweep resent the day reminder, %d events", len(events.events))
	}
}

func TestCycle_ReminderKindsFireIndependently(t *testing.T) {
	// 23:30: tomorrow 00:15 sits in both the day-before and hour-before windows.
	now := time.Date(2024, 6, 10, 23, 30, 0, 0, time.UTC)
	appt := &fakeAppt{
		id: "a-1", clientChat: 100, clientName: "Vera",
		serviceName: "Classic massage", provName: "Alex",
		scheduledAt: time.Date(2024, 6, 11, 0, 15, 0, 0, time.UTC), status: "active",
	}
	appts := &fakeAppointments{rows: []*fakeAppt{appt}}
	events := &fakeOutbox{}

	newSweeper(appts, &fakeJobs{}, events, now).cycle(context.Background())

	if len(events.events) != 2 {
		t.Fatalf("expected a day and an hour reminder, got %d events", len(events.events))
	}
	if !appt.reminded["day"] || !appt.reminded["hour"] {
		t.Fatalf("expected both flags set, got %+v", appt.reminded)
	}
	if appt.reminded["admin"] {
		t.Fatal("admin window does not cover this slot")
	}
}

func TestCycle_ReviewJobEmitsEventWhenDue(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	jobStore := &fakeJobs{}
	tx := &fakeTx{}
	if err := jobStore.Insert(context.Background(), tx, jobs.Job{
		IdempotencyKey: jobs.IdempotencyKey("a-1"),
		AppointmentID:  "a-1",
		DueAt:          now.Add(-time.Minute),
		TemplateData:   map[string]any{"client_chat_id": int64(100), "service_name": "Classic massage"},
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	events := &fakeOutbox{}
	s := newSweeper(&fakeAppointments{}, jobStore, events, now)

	s.cycle(context.Background())

	if len(events.events) != 1 || events.events[0].EventType != outbox.EventReviewRequested {
		t.Fatalf("expected one review.requested event, got %+v", events.events)
	}
	if len(jobStore.byKey) != 0 {
		t.Fatal("processed job still pending")
	}
}

func TestCycle_ReviewJobFailureBacksOff(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	jobStore := &fakeJobs{}
	if err := jobStore.Insert(context.Background(), &fakeTx{}, jobs.Job{
		IdempotencyKey: jobs.IdempotencyKey("a-1"),
		AppointmentID:  "a-1",
		DueAt:          now.Add(-time.Minute),
		TemplateData:   map[string]any{},
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	events := &fakeOutbox{failAll: true}
	s := newSweeper(&fakeAppointments{}, jobStore, events, now)

	s.cycle(context.Background())

	if len(jobStore.failedIDs) != 1 {
		t.Fatalf("expected the job to be marked failed once, got %v", jobStore.failedIDs)
	}
	job := jobStore.byKey[jobs.IdempotencyKey("a-1")]
	if job == nil || job.Attempts != 1 {
		t.Fatalf("expected attempts bumped to 1, got %+v", job)
	}
}
