package model

import "time"

// Appointment statuses. Active is the only non-terminal status; a row never
// leaves completed or cancelled.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Service is immutable catalog data: what can be booked and for how long.
type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	Price           int
}

// Provider is a bookable resource. Inactive providers keep their history but
// are excluded from slot and availability queries.
type Provider struct {
	ID     string
	Name   string
	Active bool
}

type Client struct {
	ID        string
	ChatID    int64
	Username  string
	Name      string
	CreatedAt time.Time
}

type Appointment struct {
	ID          string
	ClientID    string
	ServiceID   string
	ProviderID  string
	ScheduledAt time.Time
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Reminder flags are monotonic: set once when the corresponding reminder
	// send is attempted, never cleared.
	ReminderDaySent   bool
	ReminderHourSent  bool
	ReminderAdminSent bool
}

func (a Appointment) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled
}

// Review attaches at most once to a completed appointment.
type Review struct {
	ID            string
	AppointmentID string
	ClientID      string
	ProviderID    string
	ServiceID     string
	Rating        int
	Comment       string
	CreatedAt     time.Time
}
