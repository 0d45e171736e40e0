package outbox

// Event is the envelope written to outbox_events. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventReminderDelivered = "reminder.delivered.v1"
	EventReminderDead      = "reminder.dead.v1"
)
