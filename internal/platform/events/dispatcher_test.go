package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type captureSubscriber struct {
	mu       sync.Mutex
	name     string
	events   []Event
	failures int // fail this many times before succeeding
}

func (s *captureSubscriber) Name() string { return s.name }

func (s *captureSubscriber) Handle(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("transient failure")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSubscriber) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(zerolog.Nop(), WithRetryDelay(time.Millisecond))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.Close(ctx)
	})
	return d
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDispatcher_DeliversMatchingEvent(t *testing.T) {
	d := newTestDispatcher(t)
	sub := &captureSubscriber{name: "bookings"}
	d.Subscribe(sub, BookingCreated)

	d.Publish(Event{Type: BookingCreated, TenantID: "t1", AggregateID: "appt-1"})
	d.Publish(Event{Type: PaymentRecorded, TenantID: "t1", AggregateID: "inv-1"})
	drain(t, d)

	got := sub.received()
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Type != BookingCreated {
		t.Errorf("event type = %s", got[0].Type)
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Error("expected ID and Timestamp to be assigned")
	}
}

func TestDispatcher_WildcardSubscription(t *testing.T) {
	d := newTestDispatcher(t)
	sub := &captureSubscriber{name: "all-billing"}
	d.Subscribe(sub, "invoice.*", PaymentRecorded)

	d.Publish(Event{Type: InvoiceCreated})
	d.Publish(Event{Type: InvoiceCancelled})
	d.Publish(Event{Type: PaymentRecorded})
	d.Publish(Event{Type: BookingCreated})
	drain(t, d)

	if got := len(sub.received()); got != 3 {
		t.Fatalf("got %d events, want 3", got)
	}
}

func TestDispatcher_RetriesFailedDelivery(t *testing.T) {
	d := newTestDispatcher(t)
	sub := &captureSubscriber{name: "flaky", failures: 2}
	d.Subscribe(sub, CaseAdmitted)

	d.Publish(Event{Type: CaseAdmitted})
	drain(t, d)

	if got := len(sub.received()); got != 1 {
		t.Fatalf("got %d events after retries, want 1", got)
	}

	deliveries, total := d.Deliveries(10, 0)
	if total != 3 {
		t.Fatalf("delivery log total = %d, want 3", total)
	}
	// Newest first: final success then two failures.
	if deliveries[0].Status != "success" {
		t.Errorf("latest delivery status = %s, want success", deliveries[0].Status)
	}
	if deliveries[1].Status != "failed" || deliveries[2].Status != "failed" {
		t.Error("expected two failed attempts in the log")
	}
}

func TestDispatcher_GivesUpAfterMaxRetries(t *testing.T) {
	d := NewDispatcher(zerolog.Nop(), WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	sub := &captureSubscriber{name: "broken", failures: 100}
	d.Subscribe(sub, CaseAdmitted)

	d.Publish(Event{Type: CaseAdmitted})
	drain(t, d)

	if got := len(sub.received()); got != 0 {
		t.Fatalf("got %d events, want 0", got)
	}
	_, total := d.Deliveries(10, 0)
	if total != 2 {
		t.Fatalf("delivery log total = %d, want 2", total)
	}
}

func TestDispatcher_SubscriberPanicIsContained(t *testing.T) {
	d := newTestDispatcher(t)
	d.Subscribe(panickySubscriber{}, "*")
	healthy := &captureSubscriber{name: "healthy"}
	d.Subscribe(healthy, "*")

	d.Publish(Event{Type: CaseStatusChanged})
	drain(t, d)

	if got := len(healthy.received()); got != 1 {
		t.Fatalf("healthy subscriber got %d events, want 1", got)
	}
}

type panickySubscriber struct{}

func (panickySubscriber) Name() string            { return "panicky" }
func (panickySubscriber) Handle(event Event) error { panic("boom") }

func TestDispatcher_DeliveriesPagination(t *testing.T) {
	d := newTestDispatcher(t)
	sub := &captureSubscriber{name: "sink"}
	d.Subscribe(sub, "*")

	for i := 0; i < 5; i++ {
		d.Publish(Event{Type: BookingCreated})
	}
	drain(t, d)

	page, total := d.Deliveries(2, 0)
	if total != 5 || len(page) != 2 {
		t.Fatalf("page len %d total %d, want 2/5", len(page), total)
	}
	page, _ = d.Deliveries(2, 4)
	if len(page) != 1 {
		t.Fatalf("last page len %d, want 1", len(page))
	}
	page, _ = d.Deliveries(2, 10)
	if len(page) != 0 {
		t.Fatalf("out of range page len %d, want 0", len(page))
	}
}

func TestEventMatches(t *testing.T) {
	cases := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{BookingCreated, BookingCreated, true},
		{"*", PaymentRecorded, true},
		{"invoice.*", InvoiceCreated, true},
		{"invoice.*", PaymentRecorded, false},
		{"*.created", BookingCreated, true},
		{"*.created", CaseStatusChanged, false},
		{BookingCreated, AppointmentStatusChanged, false},
	}
	for _, tc := range cases {
		if got := eventMatches(tc.pattern, tc.eventType); got != tc.want {
			t.Errorf("eventMatches(%q, %q) = %v, want %v", tc.pattern, tc.eventType, got, tc.want)
		}
	}
}
