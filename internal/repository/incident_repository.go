package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
)

// IncidentRepository handles incident data access
type IncidentRepository struct {
	db *pgxpool.Pool
}

const incidentColumns = `id, source_type, source_id, phone, incident_summary, incident_type,
       confidence, status, detection_context, created_at, updated_at`

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	inc := &domain.Incident{}
	err := row.Scan(
		&inc.ID, &inc.Source.Type, &inc.Source.ID, &inc.Phone, &inc.Summary, &inc.Type,
		&inc.Confidence, &inc.Status, &inc.DetectionContext, &inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inc, nil
}

func (r *IncidentRepository) Create(ctx context.Context, inc *domain.Incident) error {
	if inc.DetectionContext == nil {
		inc.DetectionContext = map[string]interface{}{}
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO incidents (source_type, source_id, phone, incident_summary, incident_type, confidence, detection_context)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, status, created_at, updated_at
	`, inc.Source.Type, inc.Source.ID, inc.Phone, inc.Summary, inc.Type, inc.Confidence, inc.DetectionContext,
	).Scan(&inc.ID, &inc.Status, &inc.CreatedAt, &inc.UpdatedAt)
}

func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	inc, err := scanIncident(r.db.QueryRow(ctx, `
		SELECT `+incidentColumns+` FROM incidents WHERE id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inc, err
}

// ListOpenByPhone returns open incidents for a phone number, the candidate
// set for the detector's similarity check.
func (r *IncidentRepository) ListOpenByPhone(ctx context.Context, phone string) ([]*domain.Incident, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE phone = $1 AND status = 'open'
		ORDER BY created_at ASC
	`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []*domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}

// MergeContext folds a repeat detection into an existing incident instead of
// opening a duplicate. The original summary and status are kept.
func (r *IncidentRepository) MergeContext(ctx context.Context, id uuid.UUID, context map[string]interface{}) error {
	_, err := r.db.Exec(ctx, `
		UPDATE incidents SET
			detection_context = detection_context || $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, context)
	return err
}

// UpdateStatus mutates incident status; only staff actions call this.
func (r *IncidentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.db.Exec(ctx, `UPDATE incidents SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

func (r *IncidentRepository) List(ctx context.Context, filter domain.IncidentFilter) ([]*domain.Incident, int, error) {
	baseQuery := ` FROM incidents WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.Status != "" {
		baseQuery += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}
	if filter.Type != "" {
		baseQuery += fmt.Sprintf(" AND incident_type = $%d", argNum)
		args = append(args, filter.Type)
		argNum++
	}
	if filter.Phone != "" {
		baseQuery += fmt.Sprintf(" AND phone = $%d", argNum)
		args = append(args, filter.Phone)
		argNum++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	selectQuery := `SELECT ` + incidentColumns + baseQuery + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		selectQuery += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			selectQuery += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var incidents []*domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, 0, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, total, nil
}
