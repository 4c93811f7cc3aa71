package dispatch

import (
	"context"
	"log/slog"

	"github.com/avelinov/salonbook/services/notification-service/internal/render"
	"github.com/avelinov/salonbook/services/notification-service/internal/storage"
	"github.com/avelinov/salonbook/services/notification-service/internal/telegram"
)

type Store interface {
	Insert(ctx context.Context, n storage.Notification) error
	AdminChatIDs(ctx context.Context) ([]int64, error)
}

// Dispatcher routes one decoded event to its recipients. Delivery failures
// are logged and recorded but never returned: the event counts as handled
// either way, so the bus is never asked to redeliver a rendered message.
type Dispatcher struct {
	sender telegram.Sender
	store  Store
	logger *slog.Logger
}

func New(sender telegram.Sender, store Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, store: store, logger: logger}
}

func (d *Dispatcher) Handle(ctx context.Context, eventType, eventID string, raw []byte) error {
	p, err := render.Decode(raw)
	if err != nil {
		d.logger.Error("undecodable event payload", "err", err, "event_type", eventType, "event_id", eventID)
		return nil
	}

	if d.notifiesAdmins(eventType, p) {
		text, err := render.AdminText(eventType, p)
		if err != nil {
			d.logger.Error("admin render failed", "err", err, "event_type", eventType)
		} else {
			d.sendToAdmins(ctx, eventType, eventID, text)
		}
	}

	if chatID, ok := d.clientRecipient(eventType, p); ok {
		text, err := render.ClientText(eventType, p)
		if err != nil {
			d.logger.Error("client render failed", "err", err, "event_type", eventType)
		} else {
			d.send(ctx, eventType, eventID, chatID, text)
		}
	}

	return nil
}

func (d *Dispatcher) notifiesAdmins(eventType string, p render.Payload) bool {
	switch eventType {
	case render.TopicAppointmentBooked, render.TopicAppointmentCancelled,
		render.TopicReviewCreated, render.TopicDailyReport:
		return true
	case render.TopicReminderDue:
		return p.Kind == "admin"
	}
	return false
}

// clientRecipient reports whether the event carries a client-facing message,
// and for whom. A cancellation goes back to the client only when an admin
// made it; a client cancelling does not get an echo.
func (d *Dispatcher) clientRecipient(eventType string, p render.Payload) (int64, bool) {
	switch eventType {
	case render.TopicAppointmentBooked:
		return p.ClientChatID, true
	case render.TopicAppointmentCancelled:
		return p.ClientChatID, p.CancelledBy == "admin"
	case render.TopicReminderDue:
		return p.ClientChatID, p.Kind == "day" || p.Kind == "hour"
	case render.TopicReviewRequested:
		return p.ClientChatID, true
	}
	return 0, false
}

func (d *Dispatcher) sendToAdmins(ctx context.Context, eventType, eventID, text string) {
	admins, err := d.store.AdminChatIDs(ctx)
	if err != nil {
		d.logger.Error("admin lookup failed", "err", err)
		return
	}
	if len(admins) == 0 {
		d.logger.Warn("no admins configured, dropping admin notification", "event_type", eventType)
		return
	}
	for _, chatID := range admins {
		d.send(ctx, eventType, eventID, chatID, text)
	}
}

func (d *Dispatcher) send(ctx context.Context, eventType, eventID string, chatID int64, text string) {
	err := d.sender.Send(ctx, chatID, text)
	if err != nil {
		d.logger.Error("delivery failed", "err", err, "chat_id", chatID, "event_type", eventType)
	}
	if logErr := d.store.Insert(ctx, storage.Notification{
		EventID:         eventID,
		Kind:            eventType,
		RecipientChatID: chatID,
		Body:            text,
		Delivered:       err == nil,
		ProviderID:      d.sender.ProviderID(),
	}); logErr != nil {
		d.logger.Error("notification log insert failed", "err", logErr)
	}
}
