package scheduling

import (
	"testing"
	"time"
)

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name                   string
		aStart, aEnd, bStart, bEnd string
		want                   bool
	}{
		{"identical", "09:00", "09:30", "09:00", "09:30", true},
		{"contained", "09:00", "10:00", "09:15", "09:45", true},
		{"partial", "09:00", "09:30", "09:15", "09:45", true},
		{"adjacent before", "09:00", "09:30", "09:30", "10:00", false},
		{"adjacent after", "09:30", "10:00", "09:00", "09:30", false},
		{"disjoint", "09:00", "09:30", "11:00", "11:30", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
				t.Errorf("Overlaps(%s-%s, %s-%s) = %v, want %v",
					tc.aStart, tc.aEnd, tc.bStart, tc.bEnd, got, tc.want)
			}
			// Overlap is symmetric.
			if got := Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd); got != tc.want {
				t.Errorf("Overlaps is not symmetric for %s", tc.name)
			}
		})
	}
}

func TestSlotEnd(t *testing.T) {
	end, err := SlotEnd("09:00", 30)
	if err != nil {
		t.Fatalf("SlotEnd: %v", err)
	}
	if end != "09:30" {
		t.Errorf("end = %s, want 09:30", end)
	}

	// Ending exactly at midnight is the last representable slot.
	end, err = SlotEnd("23:30", 30)
	if err != nil {
		t.Fatalf("SlotEnd: %v", err)
	}
	if end != "24:00" {
		t.Errorf("end = %s, want 24:00", end)
	}

	if _, err := SlotEnd("23:45", 30); err == nil {
		t.Error("expected error for slot running past midnight")
	}
	if _, err := SlotEnd("9am", 30); err == nil {
		t.Error("expected error for malformed time")
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() || StatusConfirmed.Terminal() {
		t.Error("pending/confirmed must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Error("completed/cancelled must be terminal")
	}
}

func TestCoversWeekday(t *testing.T) {
	av := &DoctorAvailability{AvailableDays: []string{"monday", "Wednesday", "friday"}}
	if !av.CoversWeekday(time.Monday) || !av.CoversWeekday(time.Wednesday) {
		t.Error("expected monday and wednesday covered")
	}
	if av.CoversWeekday(time.Sunday) {
		t.Error("sunday should not be covered")
	}
}
