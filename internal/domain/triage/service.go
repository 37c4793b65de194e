package triage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/careops/careops/internal/platform/apperr"
	"github.com/careops/careops/internal/platform/clock"
	"github.com/careops/careops/internal/platform/db"
	"github.com/careops/careops/internal/platform/events"
)

// EventPublisher is the slice of the event dispatcher the service uses.
type EventPublisher interface {
	Publish(event events.Event)
}

type Service struct {
	cases     Repository
	publisher EventPublisher
	clock     clock.Clock
}

func NewService(cases Repository, publisher EventPublisher, clk clock.Clock) *Service {
	return &Service{cases: cases, publisher: publisher, clock: clk}
}

// AdmitRequest is the input to Admit.
type AdmitRequest struct {
	PatientID      *uuid.UUID        `json:"patient_id,omitempty"`
	PatientName    string            `json:"patient_name"`
	TriageLevel    Level             `json:"triage_level"`
	ChiefComplaint string            `json:"chief_complaint"`
	VitalSigns     map[string]string `json:"vital_signs,omitempty"`
	Notes          *string           `json:"notes,omitempty"`
}

// Admit registers a new emergency case as waiting, stamped with the
// arrival time.
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (*EmergencyCase, error) {
	if strings.TrimSpace(req.PatientName) == "" {
		return nil, apperr.New(apperr.Validation, "patient_name is required")
	}
	if strings.TrimSpace(req.ChiefComplaint) == "" {
		return nil, apperr.New(apperr.Validation, "chief_complaint is required")
	}
	if !req.TriageLevel.Valid() {
		return nil, apperr.New(apperr.Validation, "invalid triage level %q", req.TriageLevel)
	}

	c := &EmergencyCase{
		PatientID:      req.PatientID,
		PatientName:    req.PatientName,
		TriageLevel:    req.TriageLevel,
		ChiefComplaint: req.ChiefComplaint,
		VitalSigns:     req.VitalSigns,
		Status:         StatusWaiting,
		ArrivalTime:    s.clock.Now(),
		Notes:          req.Notes,
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, err
	}

	c.WaitMinutes = c.ComputeWaitMinutes(s.clock.Now())
	payload := map[string]interface{}{
		"case_id":      c.ID.String(),
		"patient_name": c.PatientName,
		"triage_level": c.TriageLevel.Rank(),
		"status":       string(c.Status),
	}
	if c.PatientID != nil {
		payload["patient_id"] = c.PatientID.String()
	}
	s.emit(ctx, events.CaseAdmitted, c.ID.String(), payload)
	return c, nil
}

// List returns cases ordered by urgency then arrival, with wait times
// computed against the current clock. The ordering is recomputed on every
// call.
func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]*EmergencyCase, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperr.New(apperr.Validation, "invalid status %q", filter.Status)
	}
	if filter.TriageLevel != "" && !filter.TriageLevel.Valid() {
		return nil, 0, apperr.New(apperr.Validation, "invalid triage level %q", filter.TriageLevel)
	}

	items, total, err := s.cases.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].TriageLevel.Rank() != items[j].TriageLevel.Rank() {
			return items[i].TriageLevel.Rank() < items[j].TriageLevel.Rank()
		}
		return items[i].ArrivalTime.Before(items[j].ArrivalTime)
	})

	now := s.clock.Now()
	for _, c := range items {
		c.WaitMinutes = c.ComputeWaitMinutes(now)
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*EmergencyCase, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.WaitMinutes = c.ComputeWaitMinutes(s.clock.Now())
	return c, nil
}

// UpdateRequest carries a status change, a re-triage, or both. Version
// must be the version the caller read; a mismatch means another update
// landed in between.
type UpdateRequest struct {
	Status           *Status    `json:"status,omitempty"`
	TriageLevel      *Level     `json:"triage_level,omitempty"`
	AssignedDoctorID *uuid.UUID `json:"assigned_doctor_id,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	Version          int        `json:"version"`
}

// UpdateStatus applies a transition and/or re-triage under an optimistic
// version check.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req UpdateRequest) (*EmergencyCase, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Version != c.VersionID {
		return nil, apperr.New(apperr.StaleWrite, "case was modified concurrently, re-read and retry")
	}

	previous := c.Status

	if req.TriageLevel != nil {
		if !req.TriageLevel.Valid() {
			return nil, apperr.New(apperr.Validation, "invalid triage level %q", *req.TriageLevel)
		}
		if c.Status.Terminal() {
			return nil, apperr.New(apperr.InvalidTransition, "cannot re-triage a %s case", c.Status)
		}
		c.TriageLevel = *req.TriageLevel
	}

	if req.Status != nil && *req.Status != c.Status {
		next := *req.Status
		if !next.Valid() {
			return nil, apperr.New(apperr.Validation, "invalid status %q", next)
		}
		if c.Status.Terminal() {
			return nil, apperr.New(apperr.InvalidTransition, "case is %s and cannot change", c.Status)
		}
		if !c.Status.CanTransitionTo(next) {
			return nil, apperr.New(apperr.InvalidTransition, "cannot move case from %s to %s", c.Status, next)
		}

		now := s.clock.Now()
		if c.Status == StatusWaiting && next == StatusInTreatment {
			c.TreatmentStartTime = &now
		}
		if next.Terminal() && c.DischargeTime == nil {
			c.DischargeTime = &now
		}
		c.Status = next
	}

	if req.AssignedDoctorID != nil {
		c.AssignedDoctorID = req.AssignedDoctorID
	}
	if req.Notes != nil {
		c.Notes = req.Notes
	}

	if err := s.cases.Update(ctx, c, req.Version); err != nil {
		return nil, err
	}

	c.WaitMinutes = c.ComputeWaitMinutes(s.clock.Now())
	if c.Status != previous {
		s.emit(ctx, events.CaseStatusChanged, c.ID.String(), map[string]interface{}{
			"case_id":      c.ID.String(),
			"patient_name": c.PatientName,
			"from":         string(previous),
			"status":       string(c.Status),
		})
	}
	return c, nil
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
