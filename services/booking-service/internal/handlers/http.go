package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avelinov/salonbook/services/booking-service/internal/booking"
	"github.com/avelinov/salonbook/services/booking-service/internal/model"
	"github.com/avelinov/salonbook/services/booking-service/internal/storage"
)

// Engine is the slice of the booking engine the HTTP layer needs.
type Engine interface {
	Create(ctx context.Context, clientID, serviceID, providerID string, at time.Time) (model.Appointment, error)
	Cancel(ctx context.Context, id string, actor booking.Actor) error
	Complete(ctx context.Context, id string) error
	ClearHistory(ctx context.Context, clientID string) (int64, error)
	List(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error)
	SubmitReview(ctx context.Context, appointmentID string, rating int, comment string) (model.Review, error)
	GetReview(ctx context.Context, appointmentID string) (model.Review, error)
}

type Catalog interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]model.Provider, error)
}

type ClientStore interface {
	UpsertClient(ctx context.Context, chatID int64, username, name string) (model.Client, error)
}

type Availability interface {
	AvailableSlots(ctx context.Context, date time.Time, providerID string) ([]time.Time, error)
}

type Handler struct {
	engine  Engine
	avail   Availability
	catalog Catalog
	clients ClientStore
	logger  *slog.Logger
}

func New(engine Engine, avail Availability, catalog Catalog, clients ClientStore, logger *slog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		avail:   avail,
		catalog: catalog,
		clients: clients,
		logger:  logger,
	}
}

// Register wires every route onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/slots", h.Slots)
	mux.HandleFunc("/api/v1/appointments", h.Appointments)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/complete", h.Complete)
	mux.HandleFunc("/api/v1/history/clear", h.ClearHistory)
	mux.HandleFunc("/api/v1/reviews", h.Reviews)
	mux.HandleFunc("/api/v1/services", h.Services)
	mux.HandleFunc("/api/v1/providers", h.Providers)
	mux.HandleFunc("/api/v1/clients", h.UpsertClient)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		http.Error(w, "slot already taken", http.StatusConflict)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrAlreadyTerminal):
		http.Error(w, "appointment already completed or cancelled", http.StatusConflict)
	case errors.Is(err, booking.ErrProviderInactive):
		http.Error(w, "provider is not accepting bookings", http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrReviewExists):
		http.Error(w, "review already submitted", http.StatusConflict)
	case errors.Is(err, booking.ErrInvalidReview):
		http.Error(w, "invalid review", http.StatusBadRequest)
	case errors.Is(err, booking.ErrNotCompleted):
		http.Error(w, "appointment is not completed", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if providerID == "" || dateStr == "" {
		http.Error(w, "provider_id and date are required", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	times, err := h.avail.AvailableSlots(r.Context(), date, providerID)
	if err != nil {
		h.logger.Error("slot lookup failed", "error", err, "provider_id", providerID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slots := make([]string, 0, len(times))
	for _, t := range times {
		slots = append(slots, t.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider_id": providerID,
		"date":        dateStr,
		"slots":       slots,
	})
}

type createAppointmentRequest struct {
	ClientID    string `json:"client_id"`
	ServiceID   string `json:"service_id"`
	ProviderID  string `json:"provider_id"`
	ScheduledAt string `json:"scheduled_at"`
}

type appointmentItem struct {
	ID          string `json:"id"`
	ClientID    string `json:"client_id"`
	ServiceID   string `json:"service_id"`
	ProviderID  string `json:"provider_id"`
	ScheduledAt string `json:"scheduled_at"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

func toItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		ID:          a.ID,
		ClientID:    a.ClientID,
		ServiceID:   a.ServiceID,
		ProviderID:  a.ProviderID,
		ScheduledAt: a.ScheduledAt.UTC().Format(time.RFC3339),
		Status:      a.Status,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Appointments serves POST (book) and GET (list with filters).
func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createAppointment(w, r)
	case http.MethodGet:
		h.listAppointments(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ClientID == "" || req.ServiceID == "" || req.ProviderID == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Create(r.Context(), req.ClientID, req.ServiceID, req.ProviderID, at)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItem(appt))
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.ListFilter{
		ClientID: strings.TrimSpace(q.Get("client_id")),
		Status:   strings.TrimSpace(q.Get("status")),
	}
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		f.From = t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		f.To = t
	}

	appts, err := h.engine.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

type statusChangeRequest struct {
	AppointmentID string `json:"appointment_id"`
	Actor         string `json:"actor"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	actor := booking.ActorClient
	if req.Actor == string(booking.ActorAdmin) {
		actor = booking.ActorAdmin
	}

	if err := h.engine.Cancel(r.Context(), req.AppointmentID, actor); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"appointment_id": req.AppointmentID,
		"status":         model.StatusCancelled,
	})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	if err := h.engine.Complete(r.Context(), req.AppointmentID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"appointment_id": req.AppointmentID,
		"status":         model.StatusCompleted,
	})
}

func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ClientID) == "" {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}

	n, err := h.engine.ClearHistory(r.Context(), req.ClientID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) Reviews(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getReview(w, r)
	case http.MethodPost:
		h.createReview(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getReview(w http.ResponseWriter, r *http.Request) {
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if appointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	rev, err := h.engine.GetReview(r.Context(), appointmentID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             rev.ID,
		"appointment_id": rev.AppointmentID,
		"rating":         rev.Rating,
		"comment":        rev.Comment,
		"created_at":     rev.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppointmentID string `json:"appointment_id"`
		Rating        int    `json:"rating"`
		Comment       string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	rev, err := h.engine.SubmitReview(r.Context(), req.AppointmentID, req.Rating, req.Comment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":             rev.ID,
		"appointment_id": rev.AppointmentID,
		"rating":         rev.Rating,
	})
}

func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	services, err := h.catalog.ListServices(r.Context())
	if err != nil {
		h.logger.Error("service catalog lookup failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	type item struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		DurationMinutes int    `json:"duration_minutes"`
		Price           int    `json:"price"`
	}
	items := make([]item, 0, len(services))
	for _, s := range services {
		items = append(items, item{ID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes, Price: s.Price})
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": items})
}

func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providers, err := h.catalog.ListProviders(r.Context(), true)
	if err != nil {
		h.logger.Error("provider catalog lookup failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	type item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	items := make([]item, 0, len(providers))
	for _, p := range providers {
		items = append(items, item{ID: p.ID, Name: p.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": items})
}

func (h *Handler) UpsertClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ChatID   int64  `json:"chat_id"`
		Username string `json:"username"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ChatID == 0 {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}

	c, err := h.clients.UpsertClient(r.Context(), req.ChatID, strings.TrimSpace(req.Username), strings.TrimSpace(req.Name))
	if err != nil {
		h.logger.Error("client upsert failed", "error", err, "chat_id", req.ChatID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      c.ID,
		"chat_id": c.ChatID,
		"name":    c.Name,
	})
}
