package enums

import "fmt"

// EventType identifies an audit entry in the event log.
type EventType string

const (
	EventReservationCreated EventType = "reservation_created"
	EventPurchaseCreated    EventType = "purchase_created"
	EventPaymentConfirmed   EventType = "payment_confirmed"
	EventPaymentCancelled   EventType = "payment_cancelled"
	EventPaymentRefunded    EventType = "payment_refunded"
	EventReservationExpired EventType = "reservation_expired"
)

var validEventTypes = []EventType{
	EventReservationCreated,
	EventPurchaseCreated,
	EventPaymentConfirmed,
	EventPaymentCancelled,
	EventPaymentRefunded,
	EventReservationExpired,
}

// IsValid reports whether the value is a known EventType.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into an EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// AggregateType names the entity an event log row refers to.
type AggregateType string

const (
	AggregateReservation AggregateType = "reservation"
	AggregatePurchase    AggregateType = "purchase"
)

// IsValid reports whether the value is a known AggregateType.
func (a AggregateType) IsValid() bool {
	return a == AggregateReservation || a == AggregatePurchase
}
