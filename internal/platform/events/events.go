// Package events provides the in-process event bus for the platform.
// Domain services publish events after state changes; subscribers such as
// the notification consumer react to them asynchronously. Every delivery
// attempt is recorded so operators can inspect what fired and what failed.
package events

import (
	"encoding/json"
	"strings"
	"time"
)

// Event types emitted by the domain services.
const (
	BookingCreated           = "booking.created"
	AppointmentStatusChanged = "appointment.status_changed"
	CaseAdmitted             = "case.admitted"
	CaseStatusChanged        = "case.status_changed"
	InvoiceCreated           = "invoice.created"
	InvoiceCancelled         = "invoice.cancelled"
	PaymentRecorded          = "payment.recorded"
)

// Event is a record of something that happened in the system.
type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	TenantID    string          `json:"tenant_id"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Delivery records one attempt to hand an event to a subscriber.
type Delivery struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Subscriber string    `json:"subscriber"`
	Attempt    int       `json:"attempt"`
	Status     string    `json:"status"` // "success" or "failed"
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Subscriber handles events matching its subscription patterns.
type Subscriber interface {
	Name() string
	Handle(event Event) error
}

// eventMatches returns true if the event type matches a subscription pattern.
// Patterns can be exact ("booking.created") or wildcard ("booking.*", "*.created").
func eventMatches(pattern, eventType string) bool {
	if pattern == eventType || pattern == "*" {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(eventType, pattern[1:])
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}
