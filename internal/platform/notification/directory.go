package notification

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careops/careops/internal/platform/db"
)

// ContactDirectory resolves a patient's contact address for a channel.
// An empty address with a nil error means the patient has no contact on
// file for that channel.
type ContactDirectory interface {
	ContactFor(ctx context.Context, patientID string, channel Channel) (string, error)
}

// contactDirectoryPG reads the patient_contact table in the tenant schema.
// The table is maintained by the patient registration system; this side
// only ever reads it.
type contactDirectoryPG struct {
	pool *pgxpool.Pool
}

func NewContactDirectoryPG(pool *pgxpool.Pool) ContactDirectory {
	return &contactDirectoryPG{pool: pool}
}

func (d *contactDirectoryPG) ContactFor(ctx context.Context, patientID string, channel Channel) (string, error) {
	var email, phone *string
	row := d.conn(ctx).QueryRow(ctx,
		`SELECT email, phone FROM patient_contact WHERE patient_id = $1`, patientID)
	if err := row.Scan(&email, &phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}

	switch channel {
	case ChannelSMS:
		if phone != nil {
			return *phone, nil
		}
	default:
		if email != nil {
			return *email, nil
		}
	}
	return "", nil
}

func (d *contactDirectoryPG) conn(ctx context.Context) interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
} {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return d.pool
}

// StaticContactDirectory is a fixed in-memory directory, used in tests and
// single-hospital deployments without a registration feed.
type StaticContactDirectory struct {
	Email map[string]string
	Phone map[string]string
}

func (d *StaticContactDirectory) ContactFor(_ context.Context, patientID string, channel Channel) (string, error) {
	if channel == ChannelSMS {
		return d.Phone[patientID], nil
	}
	return d.Email[patientID], nil
}
