package outbox

// Event is the transactional outbox payload. The Kafka topic is the
// EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Topics published by the reminder sweep. reminder.due.v1 carries a "kind"
// field: day, hour or admin.
const (
	EventReminderDue     = "reminder.due.v1"
	EventReviewRequested = "reminder.review.requested.v1"
	EventDailyReport     = "reminder.daily.report.v1"
)
