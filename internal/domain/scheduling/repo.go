package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// AppointmentRepository is the persistence interface for appointments.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// ListActiveByDoctorDate returns pending and confirmed appointments for
	// the doctor on the given date, ordered by start time.
	ListActiveByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error)
}

// AvailabilityRepository is the persistence interface for doctor
// availability templates.
type AvailabilityRepository interface {
	Upsert(ctx context.Context, av *DoctorAvailability) error
	GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*DoctorAvailability, error)
	List(ctx context.Context, limit, offset int) ([]*DoctorAvailability, int, error)
}
