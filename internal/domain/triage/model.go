package triage

import (
	"time"

	"github.com/google/uuid"
)

// Level is the 1-5 urgency classification; 1 is most urgent.
type Level string

const (
	LevelImmediate  Level = "1-immediate"
	LevelEmergency  Level = "2-emergency"
	LevelUrgent     Level = "3-urgent"
	LevelSemiUrgent Level = "4-semi_urgent"
	LevelNonUrgent  Level = "5-non_urgent"
)

var levelRanks = map[Level]int{
	LevelImmediate: 1, LevelEmergency: 2, LevelUrgent: 3,
	LevelSemiUrgent: 4, LevelNonUrgent: 5,
}

func (l Level) Valid() bool { return levelRanks[l] != 0 }

// Rank returns the numeric urgency, 1 (highest) to 5.
func (l Level) Rank() int { return levelRanks[l] }

// Status is the lifecycle state of an emergency case.
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusInTreatment Status = "in_treatment"
	StatusAdmitted    Status = "admitted"
	StatusDischarged  Status = "discharged"
	StatusTransferred Status = "transferred"
)

var validStatuses = map[Status]bool{
	StatusWaiting: true, StatusInTreatment: true, StatusAdmitted: true,
	StatusDischarged: true, StatusTransferred: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// Terminal statuses end the case. Admitted is not terminal; an admitted
// patient still moves on to discharged or transferred.
func (s Status) Terminal() bool {
	return s == StatusDischarged || s == StatusTransferred
}

var transitions = map[Status]map[Status]bool{
	StatusWaiting: {
		StatusInTreatment: true,
		// Patients may leave before treatment starts.
		StatusDischarged:  true,
		StatusTransferred: true,
	},
	StatusInTreatment: {
		StatusAdmitted:    true,
		StatusDischarged:  true,
		StatusTransferred: true,
	},
	StatusAdmitted: {
		StatusDischarged:  true,
		StatusTransferred: true,
	},
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// EmergencyCase maps to the emergency_case table. VersionID guards
// concurrent updates: a write must carry the version it read, and loses if
// the stored version has moved on.
type EmergencyCase struct {
	ID                 uuid.UUID         `db:"id" json:"id"`
	PatientID          *uuid.UUID        `db:"patient_id" json:"patient_id,omitempty"`
	PatientName        string            `db:"patient_name" json:"patient_name"`
	TriageLevel        Level             `db:"triage_level" json:"triage_level"`
	ChiefComplaint     string            `db:"chief_complaint" json:"chief_complaint"`
	VitalSigns         map[string]string `db:"vital_signs" json:"vital_signs,omitempty"`
	Status             Status            `db:"status" json:"status"`
	ArrivalTime        time.Time         `db:"arrival_time" json:"arrival_time"`
	TreatmentStartTime *time.Time        `db:"treatment_start_time" json:"treatment_start_time,omitempty"`
	DischargeTime      *time.Time        `db:"discharge_time" json:"discharge_time,omitempty"`
	AssignedDoctorID   *uuid.UUID        `db:"assigned_doctor_id" json:"assigned_doctor_id,omitempty"`
	Notes              *string           `db:"notes" json:"notes,omitempty"`
	VersionID          int               `db:"version_id" json:"version_id"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`

	// WaitMinutes is derived on read, never stored.
	WaitMinutes int `db:"-" json:"wait_minutes"`
}

// ComputeWaitMinutes returns the minutes the patient waited before
// treatment. While waiting it grows with the clock; once treatment starts
// it freezes at treatmentStartTime - arrivalTime. A patient who left
// without treatment freezes at dischargeTime - arrivalTime.
func (c *EmergencyCase) ComputeWaitMinutes(now time.Time) int {
	var until time.Time
	switch {
	case c.TreatmentStartTime != nil:
		until = *c.TreatmentStartTime
	case c.Status == StatusWaiting:
		until = now
	case c.DischargeTime != nil:
		until = *c.DischargeTime
	default:
		until = now
	}
	minutes := int(until.Sub(c.ArrivalTime).Minutes())
	if minutes < 0 {
		return 0
	}
	return minutes
}
