package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avelinov/salonbook/services/booking-service/internal/booking"
	"github.com/avelinov/salonbook/services/booking-service/internal/model"
	"github.com/avelinov/salonbook/services/booking-service/internal/storage"
)

type stubEngine struct {
	createErr error
	cancelErr error
	reviewErr error

	gotActor booking.Actor
}

func (s *stubEngine) Create(_ context.Context, clientID, serviceID, providerID string, at time.Time) (model.Appointment, error) {
	if s.createErr != nil {
		return model.Appointment{}, s.createErr
	}
	return model.Appointment{
		ID:          "appt-1",
		ClientID:    clientID,
		ServiceID:   serviceID,
		ProviderID:  providerID,
		ScheduledAt: at,
		Status:      model.StatusActive,
		CreatedAt:   at,
	}, nil
}

func (s *stubEngine) Cancel(_ context.Context, _ string, actor booking.Actor) error {
	s.gotActor = actor
	return s.cancelErr
}

func (s *stubEngine) Complete(context.Context, string) error { return nil }

func (s *stubEngine) ClearHistory(context.Context, string) (int64, error) { return 3, nil }

func (s *stubEngine) List(context.Context, storage.ListFilter) ([]model.Appointment, error) {
	return nil, nil
}

func (s *stubEngine) SubmitReview(context.Context, string, int, string) (model.Review, error) {
	if s.reviewErr != nil {
		return model.Review{}, s.reviewErr
	}
	return model.Review{ID: "rev-1", AppointmentID: "appt-1", Rating: 5}, nil
}

func (s *stubEngine) GetReview(_ context.Context, appointmentID string) (model.Review, error) {
	if s.reviewErr != nil {
		return model.Review{}, s.reviewErr
	}
	return model.Review{ID: "rev-1", AppointmentID: appointmentID, Rating: 5, Comment: "great"}, nil
}

type stubAvail struct{ slots []time.Time }

func (s stubAvail) AvailableSlots(context.Context, time.Time, string) ([]time.Time, error) {
	return s.slots, nil
}

type stubCatalog struct{}

func (stubCatalog) ListServices(context.Context) ([]model.Service, error) {
	return []model.Service{{ID: "svc-1", Name: "Classic massage", DurationMinutes: 60, Price: 1000}}, nil
}

func (stubCatalog) ListProviders(context.Context, bool) ([]model.Provider, error) {
	return []model.Provider{{ID: "prov-1", Name: "Alex", Active: true}}, nil
}

type stubClients struct{}

func (stubClients) UpsertClient(_ context.Context, chatID int64, _, name string) (model.Client, error) {
	return model.Client{ID: "cli-1", ChatID: chatID, Name: name}, nil
}

func newTestServer(e *stubEngine, slots []time.Time) *httptest.Server {
	h := New(e, stubAvail{slots: slots}, stubCatalog{}, stubClients{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	h.Register(mux)
	return httptest.NewServer(mux)
}

func TestCreateAppointment_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"created", nil, http.StatusCreated},
		{"slot taken", booking.ErrSlotTaken, http.StatusConflict},
		{"unknown reference", booking.ErrNotFound, http.StatusNotFound},
		{"inactive provider", booking.ErrProviderInactive, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&stubEngine{createErr: tc.err}, nil)
			defer srv.Close()

			body := `{"client_id":"cli-1","service_id":"svc-1","provider_id":"prov-1","scheduled_at":"2024-06-10T14:00:00Z"}`
			resp, err := http.Post(srv.URL+"/api/v1/appointments", "application/json", strings.NewReader(body))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	srv := newTestServer(&stubEngine{}, nil)
	defer srv.Close()

	for _, body := range []string{
		`not json`,
		`{"client_id":"","service_id":"svc-1","provider_id":"prov-1","scheduled_at":"2024-06-10T14:00:00Z"}`,
		`{"client_id":"cli-1","service_id":"svc-1","provider_id":"prov-1","scheduled_at":"tomorrow"}`,
	} {
		resp, err := http.Post(srv.URL+"/api/v1/appointments", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestCancel_ActorAndTerminalConflict(t *testing.T) {
	e := &stubEngine{}
	srv := newTestServer(e, nil)
	defer srv.Close()

	body := `{"appointment_id":"appt-1","actor":"admin"}`
	resp, err := http.Post(srv.URL+"/api/v1/appointments/cancel", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if e.gotActor != booking.ActorAdmin {
		t.Fatalf("expected admin actor, got %q", e.gotActor)
	}

	e.cancelErr = booking.ErrAlreadyTerminal
	resp, err = http.Post(srv.URL+"/api/v1/appointments/cancel", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for terminal appointment, got %d", resp.StatusCode)
	}
}

func TestSlots_FormatsRFC3339(t *testing.T) {
	at := time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC)
	srv := newTestServer(&stubEngine{}, []time.Time{at})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/slots?provider_id=prov-1&date=2024-06-10")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out struct {
		Slots []string `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(out.Slots) != 1 || out.Slots[0] != "2024-06-10T14:30:00Z" {
		t.Fatalf("unexpected slots: %v", out.Slots)
	}
}

func TestSlots_RequiresParams(t *testing.T) {
	srv := newTestServer(&stubEngine{}, nil)
	defer srv.Close()

	for _, q := range []string{"", "?provider_id=prov-1", "?provider_id=prov-1&date=junk"} {
		resp, err := http.Get(srv.URL + "/api/v1/slots" + q)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("query %q: expected 400, got %d", q, resp.StatusCode)
		}
	}
}

func TestReview_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusCreated},
		{booking.ErrNotCompleted, http.StatusConflict},
		{booking.ErrReviewExists, http.StatusConflict},
		{booking.ErrInvalidReview, http.StatusBadRequest},
	}
	for _, tc := range cases {
		srv := newTestServer(&stubEngine{reviewErr: tc.err}, nil)
		body := `{"appointment_id":"appt-1","rating":5,"comment":"great"}`
		resp, err := http.Post(srv.URL+"/api/v1/reviews", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		srv.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("err %v: expected %d, got %d", tc.err, tc.want, resp.StatusCode)
		}
	}
}

func TestReviewLookup(t *testing.T) {
	srv := newTestServer(&stubEngine{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/reviews?appointment_id=appt-1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var rev struct {
		AppointmentID string `json:"appointment_id"`
		Rating        int    `json:"rating"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rev); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || rev.AppointmentID != "appt-1" || rev.Rating != 5 {
		t.Fatalf("unexpected response %d %+v", resp.StatusCode, rev)
	}

	resp, err = http.Get(srv.URL + "/api/v1/reviews")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without appointment_id, got %d", resp.StatusCode)
	}

	missing := newTestServer(&stubEngine{reviewErr: booking.ErrNotFound}, nil)
	defer missing.Close()
	resp, err = http.Get(missing.URL + "/api/v1/reviews?appointment_id=appt-2")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unreviewed appointment, got %d", resp.StatusCode)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	srv := newTestServer(&stubEngine{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/services")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var services struct {
		Services []struct {
			Name string `json:"name"`
		} `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()
	if len(services.Services) != 1 || services.Services[0].Name != "Classic massage" {
		t.Fatalf("unexpected services: %+v", services)
	}

	resp, err = http.Get(srv.URL + "/api/v1/providers")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var providers struct {
		Providers []struct {
			ID string `json:"id"`
		} `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&providers); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()
	if len(providers.Providers) != 1 || providers.Providers[0].ID != "prov-1" {
		t.Fatalf("unexpected providers: %+v", providers)
	}
}
