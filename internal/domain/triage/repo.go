package triage

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows List results.
type Filter struct {
	Status      Status
	TriageLevel Level
}

// Repository is the persistence interface for emergency cases.
type Repository interface {
	Create(ctx context.Context, c *EmergencyCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmergencyCase, error)
	// Update persists c only if the stored version still equals
	// expectedVersion, bumping the version on success. Returns StaleWrite
	// when another writer got there first.
	Update(ctx context.Context, c *EmergencyCase, expectedVersion int) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]*EmergencyCase, int, error)
}
