package render

import (
	"strings"
	"testing"
)

var base = Payload{
	AppointmentID: "appt-1",
	ClientChatID:  100,
	ClientName:    "Vera",
	ServiceName:   "Classic massage",
	ProviderName:  "Alex",
	ScheduledAt:   "2024-06-11T14:30:00Z",
}

func TestDecode(t *testing.T) {
	raw := []byte(`{"kind":"hour","appointment_id":"appt-1","client_chat_id":100,"scheduled_at":"2024-06-11T14:30:00Z"}`)
	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if p.Kind != "hour" || p.ClientChatID != 100 {
		t.Fatalf("unexpected payload: %+v", p)
	}

	if _, err := Decode([]byte("{")); err == nil {
		t.Fatal("expected error for truncated json")
	}
}

func TestAdminText_Booked(t *testing.T) {
	text, err := AdminText(TopicAppointmentBooked, base)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	for _, want := range []string{"Classic massage", "Alex", "Vera", "Tue 11 Jun, 14:30"} {
		if !strings.Contains(text, want) {
			t.Fatalf("admin text missing %q: %s", want, text)
		}
	}
}

func TestAdminText_CancelledCarriesActor(t *testing.T) {
	p := base
	p.CancelledBy = "client"
	text, err := AdminText(TopicAppointmentCancelled, p)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(text, "cancelled by client") {
		t.Fatalf("expected actor in text: %s", text)
	}
}

func TestAdminText_Review(t *testing.T) {
	p := base
	p.Rating = 4
	p.Comment = "very relaxing"
	text, err := AdminText(TopicReviewCreated, p)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(text, "(4/5)") || !strings.Contains(text, "very relaxing") {
		t.Fatalf("unexpected review text: %s", text)
	}

	p.Comment = ""
	text, err = AdminText(TopicReviewCreated, p)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.HasSuffix(text, ": ") {
		t.Fatalf("empty comment must not leave a dangling separator: %s", text)
	}
}

func TestAdminText_DailyReport(t *testing.T) {
	p := Payload{Date: "2024-06-10", Bookings: 7, Cancellations: 1, Completions: 5, Reminders: 12, Reviews: 3}
	text, err := AdminText(TopicDailyReport, p)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	for _, want := range []string{"2024-06-10", "7 bookings", "1 cancellations", "5 completions", "12 reminders", "3 reviews"} {
		if !strings.Contains(text, want) {
			t.Fatalf("report missing %q: %s", want, text)
		}
	}
}

func TestClientText_ReminderKinds(t *testing.T) {
	p := base
	p.Kind = "day"
	text, err := ClientText(TopicReminderDue, p)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(text, "tomorrow") {
		t.Fatalf("day reminder must mention tomorrow: %s", text)
	}

	p.Kind = "hour"
	text, err = ClientText(TopicReminderDue, p)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(text, "hour") {
		t.Fatalf("hour reminder must mention the hour: %s", text)
	}

	// The admin-imminent kind is never sent to clients.
	p.Kind = "admin"
	if _, err := ClientText(TopicReminderDue, p); err == nil {
		t.Fatal("admin kind must not render a client message")
	}
}

func TestClientText_BookedConfirmation(t *testing.T) {
	text, err := ClientText(TopicAppointmentBooked, base)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	for _, want := range []string{"booked", "Classic massage", "Alex", "Tue 11 Jun, 14:30"} {
		if !strings.Contains(text, want) {
			t.Fatalf("confirmation missing %q: %s", want, text)
		}
	}
}

func TestClientText_ReviewRequest(t *testing.T) {
	text, err := ClientText(TopicReviewRequested, base)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(text, "1 to 5") {
		t.Fatalf("review request must explain the rating scale: %s", text)
	}
}

func TestUnknownEventTypeIsError(t *testing.T) {
	if _, err := AdminText("billing.invoice.v1", base); err == nil {
		t.Fatal("expected error for unknown admin event type")
	}
	if _, err := ClientText(TopicDailyReport, base); err == nil {
		t.Fatal("daily report has no client message; expected error")
	}
}
