package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusPending: true, StatusConfirmed: true,
	StatusCompleted: true, StatusCancelled: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// Terminal statuses reject all further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var transitions = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusCompleted: true, StatusCancelled: true},
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// Appointment maps to the appointment table. Date is an ISO date string
// (YYYY-MM-DD) and times are zero-padded HH:MM, so interval comparisons
// are plain string comparisons.
type Appointment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Date      string    `db:"date" json:"date"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Type      *string   `db:"type" json:"type,omitempty"`
	Status    Status    `db:"status" json:"status"`
	Symptoms  *string   `db:"symptoms" json:"symptoms,omitempty"`
	Diagnosis *string   `db:"diagnosis" json:"diagnosis,omitempty"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Active reports whether the appointment still occupies its slot.
func (a *Appointment) Active() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Times must be zero-padded HH:MM strings.
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	return aStart < bEnd && bStart < aEnd
}

// DoctorAvailability is the doctor's configured weekly slot template.
// Owned by profile management; the slot allocator treats it as read-only.
type DoctorAvailability struct {
	DoctorID      uuid.UUID `db:"doctor_id" json:"doctor_id"`
	AvailableDays []string  `db:"available_days" json:"available_days"`
	SlotDuration  int       `db:"slot_duration" json:"slot_duration"`
	DailySlots    []string  `db:"daily_slots" json:"daily_slots"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CoversWeekday reports whether the doctor works on the given weekday.
func (av *DoctorAvailability) CoversWeekday(d time.Weekday) bool {
	name := strings.ToLower(d.String())
	for _, day := range av.AvailableDays {
		if strings.ToLower(day) == name {
			return true
		}
	}
	return false
}

// HasSlot reports whether start is one of the configured slot start times.
func (av *DoctorAvailability) HasSlot(start string) bool {
	for _, s := range av.DailySlots {
		if s == start {
			return true
		}
	}
	return false
}

// Slot is one bookable interval on a doctor's calendar.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SlotEnd returns the HH:MM end time for a slot starting at start with the
// given duration in minutes. A slot may end exactly at midnight, rendered
// as "24:00" so end times keep sorting after start times; a slot that would
// run past midnight is an error, since a wrapped end time would break the
// interval comparison.
func SlotEnd(start string, durationMinutes int) (string, error) {
	t, err := time.Parse("15:04", start)
	if err != nil {
		return "", fmt.Errorf("invalid slot time %q: %w", start, err)
	}
	end := t.Hour()*60 + t.Minute() + durationMinutes
	switch {
	case end > 24*60:
		return "", fmt.Errorf("slot %s with %d minutes runs past midnight", start, durationMinutes)
	case end == 24*60:
		return "24:00", nil
	default:
		return fmt.Sprintf("%02d:%02d", end/60, end%60), nil
	}
}

// ParseDate validates an ISO date string and returns the day it names.
func ParseDate(date string) (time.Time, error) {
	return time.Parse("2006-01-02", date)
}
