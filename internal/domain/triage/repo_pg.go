package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careops/careops/internal/platform/apperr"
	"github.com/careops/careops/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const caseCols = `id, patient_id, patient_name, triage_level, chief_complaint, vital_signs,
	status, arrival_time, treatment_start_time, discharge_time, assigned_doctor_id, notes,
	version_id, created_at, updated_at`

func (r *repoPG) scanCase(row pgx.Row) (*EmergencyCase, error) {
	var c EmergencyCase
	err := row.Scan(&c.ID, &c.PatientID, &c.PatientName, &c.TriageLevel, &c.ChiefComplaint,
		&c.VitalSigns, &c.Status, &c.ArrivalTime, &c.TreatmentStartTime, &c.DischargeTime,
		&c.AssignedDoctorID, &c.Notes, &c.VersionID, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *EmergencyCase) error {
	c.ID = uuid.New()
	c.VersionID = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergency_case (id, patient_id, patient_name, triage_level, chief_complaint,
			vital_signs, status, arrival_time, assigned_doctor_id, notes, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.PatientID, c.PatientName, c.TriageLevel, c.ChiefComplaint,
		c.VitalSigns, c.Status, c.ArrivalTime, c.AssignedDoctorID, c.Notes, c.VersionID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*EmergencyCase, error) {
	c, err := r.scanCase(r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseCols+` FROM emergency_case WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "emergency case not found")
	}
	return c, err
}

func (r *repoPG) Update(ctx context.Context, c *EmergencyCase, expectedVersion int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_case SET triage_level=$2, status=$3, treatment_start_time=$4,
			discharge_time=$5, assigned_doctor_id=$6, notes=$7,
			version_id = version_id + 1, updated_at=NOW()
		WHERE id = $1 AND version_id = $8`,
		c.ID, c.TriageLevel, c.Status, c.TreatmentStartTime,
		c.DischargeTime, c.AssignedDoctorID, c.Notes, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the case is gone or another writer bumped the version.
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM emergency_case WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperr.New(apperr.NotFound, "emergency case not found")
		}
		return apperr.New(apperr.StaleWrite, "case was modified concurrently, re-read and retry")
	}
	c.VersionID = expectedVersion + 1
	return nil
}

func (r *repoPG) List(ctx context.Context, filter Filter, limit, offset int) ([]*EmergencyCase, int, error) {
	query := `SELECT ` + caseCols + ` FROM emergency_case WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM emergency_case WHERE 1=1`
	var args []interface{}
	idx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.TriageLevel != "" {
		query += fmt.Sprintf(` AND triage_level = $%d`, idx)
		countQuery += fmt.Sprintf(` AND triage_level = $%d`, idx)
		args = append(args, filter.TriageLevel)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Levels are "N-name" strings, so lexical order matches urgency order.
	query += fmt.Sprintf(` ORDER BY triage_level, arrival_time LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*EmergencyCase
	for rows.Next() {
		c, err := r.scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
