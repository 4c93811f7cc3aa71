// Package render turns bus events into message text. Every producer embeds
// the names and times a message needs, so rendering never queries anything.
package render

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics this service consumes.
const (
	TopicAppointmentBooked    = "booking.appointment.booked.v1"
	TopicAppointmentCancelled = "booking.appointment.cancelled.v1"
	TopicReviewCreated        = "booking.review.created.v1"
	TopicReminderDue          = "reminder.due.v1"
	TopicReviewRequested      = "reminder.review.requested.v1"
	TopicDailyReport          = "reminder.daily.report.v1"
)

// Payload is the union of fields the producers emit. Each event type fills
// its own subset.
type Payload struct {
	Kind            string `json:"kind"`
	AppointmentID   string `json:"appointment_id"`
	ClientChatID    int64  `json:"client_chat_id"`
	ClientName      string `json:"client_name"`
	ServiceName     string `json:"service_name"`
	ProviderName    string `json:"provider_name"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int    `json:"price"`
	CancelledBy     string `json:"cancelled_by"`
	Rating          int    `json:"rating"`
	Comment         string `json:"comment"`

	Date          string `json:"date"`
	Bookings      int64  `json:"bookings"`
	Cancellations int64  `json:"cancellations"`
	Completions   int64  `json:"completions"`
	Reminders     int64  `json:"reminders"`
	Reviews       int64  `json:"reviews"`
}

func Decode(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func (p Payload) when() string {
	t, err := time.Parse(time.RFC3339, p.ScheduledAt)
	if err != nil {
		return p.ScheduledAt
	}
	return t.Format("Mon 2 Jan, 15:04")
}

// AdminText renders the admin-facing message for an event type.
func AdminText(eventType string, p Payload) (string, error) {
	switch eventType {
	case TopicAppointmentBooked:
		return fmt.Sprintf("New booking: %s with %s for %s at %s",
			p.ServiceName, p.ProviderName, p.ClientName, p.when()), nil
	case TopicAppointmentCancelled:
		return fmt.Sprintf("Booking cancelled by %s: %s with %s for %s at %s",
			p.CancelledBy, p.ServiceName, p.ProviderName, p.ClientName, p.when()), nil
	case TopicReviewCreated:
		msg := fmt.Sprintf("New review (%d/5) for %s with %s from %s",
			p.Rating, p.ServiceName, p.ProviderName, p.ClientName)
		if p.Comment != "" {
			msg += ": " + p.Comment
		}
		return msg, nil
	case TopicReminderDue:
		return fmt.Sprintf("Upcoming in 10 minutes: %s with %s for %s at %s",
			p.ServiceName, p.ProviderName, p.ClientName, p.when()), nil
	case TopicDailyReport:
		return fmt.Sprintf("Report for %s: %d bookings, %d cancellations, %d completions, %d reminders, %d reviews",
			p.Date, p.Bookings, p.Cancellations, p.Completions, p.Reminders, p.Reviews), nil
	}
	return "", fmt.Errorf("no admin message for event type %q", eventType)
}

// ClientText renders the client-facing message for an event type.
func ClientText(eventType string, p Payload) (string, error) {
	switch eventType {
	case TopicAppointmentBooked:
		return fmt.Sprintf("You're booked: %s with %s at %s. See you there!",
			p.ServiceName, p.ProviderName, p.when()), nil
	case TopicAppointmentCancelled:
		return fmt.Sprintf("Your %s appointment with %s at %s has been cancelled.",
			p.ServiceName, p.ProviderName, p.when()), nil
	case TopicReminderDue:
		switch p.Kind {
		case "day":
			return fmt.Sprintf("Reminder: you have %s with %s tomorrow at %s.",
				p.ServiceName, p.ProviderName, p.when()), nil
		case "hour":
			return fmt.Sprintf("Reminder: your %s with %s starts at %s, in about an hour.",
				p.ServiceName, p.ProviderName, p.when()), nil
		}
		return "", fmt.Errorf("reminder kind %q has no client message", p.Kind)
	case TopicReviewRequested:
		return fmt.Sprintf("Thanks for visiting! How was your %s? Reply with a rating from 1 to 5.",
			p.ServiceName), nil
	}
	return "", fmt.Errorf("no client message for event type %q", eventType)
}
