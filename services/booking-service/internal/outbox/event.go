package outbox

// Event is the domain event envelope written to the outbox table inside the
// same transaction as the state change it describes. The Kafka topic equals
// EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types produced by the booking service.
const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventReviewCreated        = "booking.review.created.v1"
)
