package scheduling

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/careops/careops/internal/platform/apperr"
	"github.com/careops/careops/internal/platform/auth"
	"github.com/careops/careops/internal/platform/clock"
	"github.com/careops/careops/internal/platform/db"
	"github.com/careops/careops/internal/platform/events"
	"github.com/careops/careops/internal/platform/keylock"
)

// EventPublisher is the slice of the event dispatcher the service uses.
type EventPublisher interface {
	Publish(event events.Event)
}

type Service struct {
	appointments AppointmentRepository
	availability AvailabilityRepository
	locks        *keylock.KeyedMutex
	publisher    EventPublisher
	clock        clock.Clock
}

func NewService(appts AppointmentRepository, avail AvailabilityRepository, publisher EventPublisher, clk clock.Clock) *Service {
	return &Service{
		appointments: appts,
		availability: avail,
		locks:        keylock.New(),
		publisher:    publisher,
		clock:        clk,
	}
}

// bookingKey is the serialization scope for bookings: one doctor's calendar
// for one day.
func bookingKey(doctorID uuid.UUID, date string) string {
	return doctorID.String() + "|" + date
}

// ListFreeSlots computes the doctor's configured slots for the date and
// removes any that overlap a pending or confirmed appointment. The result
// is recomputed on every call; a returned slot may be taken by the time the
// caller books it, which is why Book re-validates.
func (s *Service) ListFreeSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "invalid date %q, expected YYYY-MM-DD", date)
	}
	if s.inPast(date) {
		return nil, apperr.New(apperr.Validation, "date is in the past")
	}

	avail, err := s.availability.GetByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !avail.CoversWeekday(day.Weekday()) {
		return nil, apperr.New(apperr.NotFound, "doctor is not available on %s", day.Weekday())
	}

	existing, err := s.appointments.ListActiveByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	return freeSlots(avail, existing)
}

func freeSlots(avail *DoctorAvailability, existing []*Appointment) ([]Slot, error) {
	slots := make([]Slot, 0, len(avail.DailySlots))
	for _, start := range avail.DailySlots {
		end, err := SlotEnd(start, avail.SlotDuration)
		if err != nil {
			return nil, err
		}
		taken := false
		for _, a := range existing {
			if Overlaps(start, end, a.StartTime, a.EndTime) {
				taken = true
				break
			}
		}
		if !taken {
			slots = append(slots, Slot{Start: start, End: end})
		}
	}
	return slots, nil
}

// BookRequest is the input to Book.
type BookRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"date"`
	Start     string    `json:"start"`
	Type      *string   `json:"type,omitempty"`
	Symptoms  *string   `json:"symptoms,omitempty"`
}

// Book reserves a slot for the patient. The overlap check and the insert
// run under an exclusive lock on (doctor, date) so that of N concurrent
// attempts on the same slot exactly one succeeds; the rest get Conflict.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.DoctorID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "doctor_id is required")
	}
	if req.PatientID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "patient_id is required")
	}
	day, err := ParseDate(req.Date)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "invalid date %q, expected YYYY-MM-DD", req.Date)
	}
	if s.inPast(req.Date) {
		return nil, apperr.New(apperr.Validation, "date is in the past")
	}

	avail, err := s.availability.GetByDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !avail.CoversWeekday(day.Weekday()) {
		return nil, apperr.New(apperr.NotFound, "doctor is not available on %s", day.Weekday())
	}
	if !avail.HasSlot(req.Start) {
		return nil, apperr.New(apperr.Validation, "slot %s is not in the doctor's schedule", req.Start)
	}
	end, err := SlotEnd(req.Start, avail.SlotDuration)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "invalid slot time %q", req.Start)
	}

	key := bookingKey(req.DoctorID, req.Date)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// Re-validate at commit time. A free-list fetched earlier may be stale.
	existing, err := s.appointments.ListActiveByDoctorDate(ctx, req.DoctorID, req.Date)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		if Overlaps(req.Start, end, a.StartTime, a.EndTime) {
			return nil, apperr.New(apperr.Conflict, "slot no longer available")
		}
	}

	appt := &Appointment{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      req.Date,
		StartTime: req.Start,
		EndTime:   end,
		Type:      req.Type,
		Status:    StatusPending,
		Symptoms:  req.Symptoms,
	}
	if err := s.appointments.Create(ctx, appt); err != nil {
		return nil, err
	}

	s.emit(ctx, events.BookingCreated, appt.ID.String(), map[string]interface{}{
		"appointment_id": appt.ID.String(),
		"doctor_id":      appt.DoctorID.String(),
		"patient_id":     appt.PatientID.String(),
		"date":           appt.Date,
		"time":           appt.StartTime,
	})
	return appt, nil
}

// TransitionRequest carries the optional fields attached during a status
// change.
type TransitionRequest struct {
	Status    Status  `json:"status"`
	Diagnosis *string `json:"diagnosis,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// Transition moves an appointment through its lifecycle. Completion is
// restricted to the assigned doctor; admins may perform any legal
// transition.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, req TransitionRequest) (*Appointment, error) {
	if !req.Status.Valid() {
		return nil, apperr.New(apperr.Validation, "invalid status %q", req.Status)
	}

	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status.Terminal() {
		return nil, apperr.New(apperr.InvalidTransition, "appointment is %s and cannot change", appt.Status)
	}
	if !appt.Status.CanTransitionTo(req.Status) {
		return nil, apperr.New(apperr.InvalidTransition, "cannot move appointment from %s to %s", appt.Status, req.Status)
	}
	if req.Status == StatusCompleted {
		actor := auth.UserIDFromContext(ctx)
		if !auth.HasRole(ctx, auth.RoleAdmin) && actor != appt.DoctorID.String() {
			return nil, apperr.New(apperr.InvalidTransition, "only the assigned doctor can complete an appointment")
		}
		if req.Diagnosis != nil {
			appt.Diagnosis = req.Diagnosis
		}
		if req.Notes != nil {
			appt.Notes = req.Notes
		}
	}

	previous := appt.Status
	appt.Status = req.Status
	if err := s.appointments.Update(ctx, appt); err != nil {
		return nil, err
	}

	s.emit(ctx, events.AppointmentStatusChanged, appt.ID.String(), map[string]interface{}{
		"appointment_id": appt.ID.String(),
		"patient_id":     appt.PatientID.String(),
		"date":           appt.Date,
		"from":           string(previous),
		"status":         string(appt.Status),
	})
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByDoctor(ctx, doctorID, limit, offset)
}

func (s *Service) SearchAppointments(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.Search(ctx, params, limit, offset)
}

// SetAvailability replaces a doctor's weekly slot template.
func (s *Service) SetAvailability(ctx context.Context, av *DoctorAvailability) error {
	if av.DoctorID == uuid.Nil {
		return apperr.New(apperr.Validation, "doctor_id is required")
	}
	if av.SlotDuration <= 0 {
		return apperr.New(apperr.Validation, "slot_duration must be positive")
	}
	if len(av.DailySlots) == 0 {
		return apperr.New(apperr.Validation, "daily_slots is required")
	}
	for _, start := range av.DailySlots {
		if _, err := SlotEnd(start, av.SlotDuration); err != nil {
			return apperr.Wrap(apperr.Validation, err, "invalid slot")
		}
	}
	return s.availability.Upsert(ctx, av)
}

func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID) (*DoctorAvailability, error) {
	return s.availability.GetByDoctor(ctx, doctorID)
}

func (s *Service) ListAvailability(ctx context.Context, limit, offset int) ([]*DoctorAvailability, int, error) {
	return s.availability.List(ctx, limit, offset)
}

func (s *Service) inPast(date string) bool {
	return date < s.clock.Now().Format("2006-01-02")
}

func (s *Service) emit(ctx context.Context, eventType, aggregateID string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	body, _ := json.Marshal(payload)
	s.publisher.Publish(events.Event{
		Type:        eventType,
		TenantID:    db.TenantFromContext(ctx),
		AggregateID: aggregateID,
		Payload:     body,
	})
}
