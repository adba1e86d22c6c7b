package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "TRIP_ASSIGNED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Logistics event codes. They double as NotificationType codes.
const (
	TripAssigned     = "TRIP_ASSIGNED"
	TripCompleted    = "TRIP_COMPLETED"
	ExpenseSubmitted = "EXPENSE_SUBMITTED"
	ExpenseApproved  = "EXPENSE_APPROVED"
	PricingUpdated   = "PRICING_UPDATED"
	DriverRegistered = "DRIVER_REGISTERED"
	SystemBroadcast  = "SYSTEM_BROADCAST"
)

// BaseEvent is the generic Event used on the bus.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// String returns payload[key] when it is a non-empty string.
func String(e Event, key string) (string, bool) {
	v, ok := e.Payload()[key].(string)
	return v, ok && v != ""
}
