package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/careops/careops/internal/platform/events"
)

// Consumer turns domain events into patient notifications. It is registered
// on the event dispatcher at startup. The recipient comes from the event
// payload when present, otherwise it is resolved through the contact
// directory from the payload's patient_id. A notification that cannot be
// built or sent is logged and dropped; notification failures never affect
// the operation that raised the event.
type Consumer struct {
	manager  *Manager
	contacts ContactDirectory
	logger   zerolog.Logger
}

func NewConsumer(manager *Manager, contacts ContactDirectory, logger zerolog.Logger) *Consumer {
	return &Consumer{manager: manager, contacts: contacts, logger: logger}
}

func (c *Consumer) Name() string { return "notification" }

// Patterns returns the event patterns the consumer subscribes to.
func (c *Consumer) Patterns() []string {
	return []string{
		events.BookingCreated,
		events.AppointmentStatusChanged,
		events.PaymentRecorded,
		events.CaseAdmitted,
	}
}

func (c *Consumer) Handle(event events.Event) error {
	templateID := templateForEvent(event.Type)
	if templateID == "" {
		return nil
	}

	data := flatten(event.Payload)
	recipient := data["recipient"]
	if recipient == "" {
		recipient = c.resolveRecipient(templateID, data["patient_id"])
	}
	if recipient == "" {
		c.logger.Debug().
			Str("event_type", event.Type).
			Str("aggregate_id", event.AggregateID).
			Msg("no recipient and no contact on file, skipping notification")
		return nil
	}

	if _, err := c.manager.SendFromTemplate(context.Background(), templateID, data, recipient); err != nil {
		c.logger.Warn().
			Err(err).
			Str("event_type", event.Type).
			Str("template_id", templateID).
			Msg("notification send failed")
	}
	return nil
}

// resolveRecipient looks up the patient's contact for the template's
// channel. Returns "" when there is no directory, no patient, or no
// contact on file.
func (c *Consumer) resolveRecipient(templateID, patientID string) string {
	if c.contacts == nil || patientID == "" {
		return ""
	}
	channel := ChannelEmail
	if tpl, ok := c.manager.templates.Get(templateID); ok {
		channel = tpl.Channel
	}
	contact, err := c.contacts.ContactFor(context.Background(), patientID, channel)
	if err != nil {
		c.logger.Warn().Err(err).Str("patient_id", patientID).Msg("contact lookup failed")
		return ""
	}
	return contact
}

func templateForEvent(eventType string) string {
	switch eventType {
	case events.BookingCreated:
		return "booking-confirmed"
	case events.AppointmentStatusChanged:
		return "appointment-status"
	case events.PaymentRecorded:
		return "payment-receipt"
	case events.CaseAdmitted:
		return "triage-admitted"
	default:
		return ""
	}
}

// flatten decodes an event payload into template data. Non-string values
// are rendered with their default formatting.
func flatten(payload json.RawMessage) map[string]string {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return map[string]string{}
	}
	data := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			data[k] = val
		case float64:
			data[k] = formatNumber(val)
		case bool:
			data[k] = fmt.Sprintf("%t", val)
		case nil:
			continue
		default:
			data[k] = fmt.Sprintf("%v", val)
		}
	}
	return data
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
