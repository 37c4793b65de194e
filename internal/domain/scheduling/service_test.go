package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careops/careops/internal/platform/apperr"
	"github.com/careops/careops/internal/platform/auth"
	"github.com/careops/careops/internal/platform/clock"
	"github.com/careops/careops/internal/platform/events"
)

// ---- mocks ----

type mockAppointmentRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Appointment
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{items: map[uuid.UUID]*Appointment{}}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "appointment not found")
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ID]; !ok {
		return apperr.New(apperr.NotFound, "appointment not found")
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) ListActiveByDoctorDate(_ context.Context, doctorID uuid.UUID, date string) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.items {
		if a.DoctorID == doctorID && a.Date == date && a.Active() {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.items {
		if a.PatientID == patientID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockAppointmentRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.items {
		if a.DoctorID == doctorID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockAppointmentRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.items {
		if s, ok := params["status"]; ok && string(a.Status) != s {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type mockAvailabilityRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*DoctorAvailability
}

func newMockAvailabilityRepo() *mockAvailabilityRepo {
	return &mockAvailabilityRepo{items: map[uuid.UUID]*DoctorAvailability{}}
}

func (m *mockAvailabilityRepo) Upsert(_ context.Context, av *DoctorAvailability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *av
	m.items[av.DoctorID] = &cp
	return nil
}

func (m *mockAvailabilityRepo) GetByDoctor(_ context.Context, doctorID uuid.UUID) (*DoctorAvailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	av, ok := m.items[doctorID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "no availability configured for doctor")
	}
	cp := *av
	return &cp, nil
}

func (m *mockAvailabilityRepo) List(_ context.Context, limit, offset int) ([]*DoctorAvailability, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DoctorAvailability
	for _, av := range m.items {
		cp := *av
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *capturePublisher) byType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ---- fixtures ----

// testDay is a Monday.
const testDay = "2026-06-01"

func newTestService() (*Service, *mockAppointmentRepo, *mockAvailabilityRepo, *capturePublisher) {
	appts := newMockAppointmentRepo()
	avail := newMockAvailabilityRepo()
	pub := &capturePublisher{}
	clk := clock.NewFixed(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	return NewService(appts, avail, pub, clk), appts, avail, pub
}

func configureDoctor(t *testing.T, svc *Service) uuid.UUID {
	t.Helper()
	doctorID := uuid.New()
	err := svc.SetAvailability(context.Background(), &DoctorAvailability{
		DoctorID:      doctorID,
		AvailableDays: []string{"monday", "tuesday", "wednesday"},
		SlotDuration:  30,
		DailySlots:    []string{"09:00", "09:30", "10:00"},
	})
	if err != nil {
		t.Fatalf("set availability: %v", err)
	}
	return doctorID
}

func doctorContext(doctorID uuid.UUID) context.Context {
	ctx := context.WithValue(context.Background(), auth.UserIDKey, doctorID.String())
	return context.WithValue(ctx, auth.UserRolesKey, []string{auth.RoleDoctor})
}

// ---- tests ----

func TestListFreeSlots_AllFree(t *testing.T) {
	svc, _, _, _ := newTestService()
	doctorID := configureDoctor(t, svc)

	slots, err := svc.ListFreeSlots(context.Background(), doctorID, testDay)
	if err != nil {
		t.Fatalf("list free slots: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("got %d slots, want 3", len(slots))
	}
	if slots[0].Start != "09:00" || slots[0].End != "09:30" {
		t.Errorf("first slot = %+v", slots[0])
	}
}

func TestListFreeSlots_RemovesBooked(t *testing.T) {
	svc, _, _, _ := newTestService()
	doctorID := configureDoctor(t, svc)

	_, err := svc.Book(context.Background(), BookRequest{
		DoctorID: doctorID, PatientID: uuid.New(), Date: testDay, Start: "09:30",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	slots, err := svc.ListFreeSlots(context.Background(), doctorID, testDay)
	if err != nil {
		t.Fatalf("list free slots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2", len(slots))
	}
	for _, s := range slots {
		if s.Start == "09:30" {
			t.Error("booked slot still listed as free")
		}
	}
}

func TestListFreeSlots_PastDate(t *testing.T) {
	svc, _, _, _ := newTestService()
	doctorID := configureDoctor(t, svc)

	_, err := svc.ListFreeSlots(context.Background(), doctorID, "2026-04-30")
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestListFreeSlots_UnknownDoctor(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.ListFreeSlots(context.Background(), uuid.New(), testDay)
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestListFreeSlots_OffDay(t *testing.T) {
	svc, _, _, _ := newTestService()
	doctorID := configureDoctor(t, svc)

	// 2026-06-07 is a Sunday.
	_, err := svc.ListFreeSlots(context.Background(), doctorID, "2026-06-07")
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestBook_Success(t *testing.T) {
	svc, _, _, pub := newTestService()
	doctorID := configureDoctor(t, svc)
	patientID := uuid.New()

	appt, err := svc.Book(context.Background(), BookRequest{
		DoctorID: doctorID, PatientID: patientID, Date: testDay, Start: "09:00",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.Status != StatusPending {
		t.Errorf("status = %s, want pending", appt.Status)
	}
	if appt.EndTime != "09:30" {
		t.Errorf("end time = %s, want 09:30", appt.EndTime)
	}
	if got := pub.byType(events.BookingCreated); len(got) != 1 {
		t.Errorf("booking.created events = %d, want 1", len(got))
	}
}

func TestBook_SlotNotInSchedule(t *testing.T) {
	svc, _, _, _ := newTestService()
	doctorID := configureDoctor(t, svc)

	_, err := svc.Book(context.Background(), BookRequest{
		DoctorID: doctorID, PatientID: uuid.New(), Date: testDay, Start: "11:00",
	})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestBook_Conflict(t *testing.T) {
	svc, _, _, _ := newTestService()
	doctorID := configureDoctor(t, svc)

	if _, err := svc.Book(context.Background(), BookRequest{
		DoctorID: doctorID, PatientID: uuid.New(), Date: testDay, Start: "09:00",
	}); err != nil {
		t.Fatalf("first book: %v", err)
	}

	_, err := svc.Book(context.Background(), BookRequest{
		DoctorID: doctorID, PatientID: uuid.New(), Date: testDay, Start: "09:00",
	})
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	svc, _, _, _ := newTestService()
	doctorID := configureDoctor(t, svc)

	const n = 25
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Book(context.Background(), BookRequest{
				DoctorID: doctorID, PatientID: uuid.New(), Date: testDay, Start: "10:00",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case apperr.IsKind(err, apperr.Conflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != n-1 {
		t.Fatalf("successes = %d, conflicts = %d, want 1 and %d", successes, conflicts, n-1)
	}
}

func TestBook_NoOverlapInvariant(t *testing.T) {
	svc, appts, _, _ := newTestService()
	doctorID := configureDoctor(t, svc)

	// Book all three slots, cancel one, rebook it.
	var first *Appointment
	for _, start := range []string{"09:00", "09:30", "10:00"} {
		a, err := svc.Book(context.Background(), BookRequest{
			DoctorID: doctorID, PatientID: uuid.New(), Date: testDay, Start: start,
		})
		if err != nil {
			t.Fatalf("book %s: %v", start, err)
		}
		if first == nil {
			first = a
		}
	}
	if _, err := svc.Transition(context.Background(), first.ID, TransitionRequest{Status: StatusCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Book(context.Background(), BookRequest{
		DoctorID: doctorID, PatientID: uuid.New(), Date: testDay, Start: "09:00",
	}); err != nil {
		t.Fatalf("rebook: %v", err)
	}

	active, err := appts.ListActiveByDoctorDate(context.Background(), doctorID, testDay)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			if Overlaps(active[i].StartTime, active[i].EndTime, active[j].StartTime, active[j].EndTime) {
				t.Fatalf("active appointments overlap: %+v and %+v", active[i], active[j])
			}
		}
	}
}

func TestTransition_FullLifecycle(t *testing.T) {
	svc, _, _, pub := newTestService()
	doctorID := configureDoctor(t, svc)

	appt, err := svc.Book(context.Background(), BookRequest{
		DoctorID: doctorID, PatientID: uuid.New(), Date: testDay, Start: "09:00",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	appt, err = svc.Transition(context.Background(), appt.ID, TransitionRequest{Status: StatusConfirmed})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if appt.Status != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", appt.Status)
	}

	diagnosis := "flu"
	appt, err = svc.Transition(doctorContext(doctorID), appt.ID, TransitionRequest{
		Status: StatusCompleted, Diagnosis: &diagnosis,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if appt.Status != StatusCompleted || appt.Diagnosis == nil || *appt.Diagnosis != "flu" {
		t.Fatalf("after completion: %+v", appt)
	}

	_, err = svc.Transition(doctorContext(doctorID), appt.ID, TransitionRequest{Status: StatusCancelled})
	if !apperr.IsKind(err, apperr.InvalidTransition) {
		t.Fatalf("expected InvalidTransition on terminal appointment, got %v", err)
	}

	if got := pub.byType(events.AppointmentStatusChanged); len(got) != 2 {
		t.Errorf("status change events = %d, want 2", len(got))
	}
}

func TestTransition_CompleteRequiresAssignedDoctor(t *testing.T) {
	svc, _, _, _ := newTestService()
	doctorID := configureDoctor(t, svc)

	appt, err := svc.Book(context.Background(), BookRequest{
		DoctorID: doctorID, PatientID: uuid.New(), Date: testDay, Start: "09:00",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Transition(context.Background(), appt.ID, TransitionRequest{Status: StatusConfirmed}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	_, err = svc.Transition(doctorContext(uuid.New()), appt.ID, TransitionRequest{Status: StatusCompleted})
	if !apperr.IsKind(err, apperr.InvalidTransition) {
		t.Fatalf("expected InvalidTransition for other doctor, got %v", err)
	}
}

func TestTransition_PendingCannotComplete(t *testing.T) {
	svc, _, _, _ := newTestService()
	doctorID := configureDoctor(t, svc)

	appt, err := svc.Book(context.Background(), BookRequest{
		DoctorID: doctorID, PatientID: uuid.New(), Date: testDay, Start: "09:00",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	_, err = svc.Transition(doctorContext(doctorID), appt.ID, TransitionRequest{Status: StatusCompleted})
	if !apperr.IsKind(err, apperr.InvalidTransition) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestSetAvailability_Validation(t *testing.T) {
	svc, _, _, _ := newTestService()

	err := svc.SetAvailability(context.Background(), &DoctorAvailability{
		DoctorID: uuid.New(), SlotDuration: 0, DailySlots: []string{"09:00"},
	})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected Validation for zero duration, got %v", err)
	}

	err = svc.SetAvailability(context.Background(), &DoctorAvailability{
		DoctorID: uuid.New(), SlotDuration: 30,
	})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected Validation for empty slots, got %v", err)
	}

	err = svc.SetAvailability(context.Background(), &DoctorAvailability{
		DoctorID: uuid.New(), SlotDuration: 30, DailySlots: []string{"nine"},
	})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected Validation for malformed slot, got %v", err)
	}

	err = svc.SetAvailability(context.Background(), &DoctorAvailability{
		DoctorID: uuid.New(), SlotDuration: 60, DailySlots: []string{"23:30"},
	})
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected Validation for slot running past midnight, got %v", err)
	}
}
