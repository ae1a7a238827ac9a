package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
)

// CallRepository handles voice call data access
type CallRepository struct {
	db *pgxpool.Pool
}

const callColumns = `id, contact_id, elevenlabs_call_id, phone, status, category,
       transcript, summary, metadata, is_transferred, transferred_to, transfer_type,
       transfer_detected_at, started_at, ended_at, created_at, updated_at`

func scanCall(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	err := row.Scan(
		&call.ID, &call.ContactID, &call.ElevenLabsCallID, &call.Phone, &call.Status, &call.Category,
		&call.Transcript, &call.Summary, &call.Metadata, &call.IsTransferred, &call.TransferredTo,
		&call.TransferType, &call.TransferDetectedAt, &call.StartedAt, &call.EndedAt,
		&call.CreatedAt, &call.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return call, nil
}

// Create inserts a call keyed by the provider call id. Returns false without
// error on replay of an already-known id.
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) (bool, error) {
	if call.Metadata == nil {
		call.Metadata = map[string]interface{}{}
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO calls (contact_id, elevenlabs_call_id, phone, status, category, metadata, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (elevenlabs_call_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`, call.ContactID, call.ElevenLabsCallID, call.Phone, call.Status, call.Category,
		call.Metadata, call.StartedAt,
	).Scan(&call.ID, &call.CreatedAt, &call.UpdatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *CallRepository) GetByProviderID(ctx context.Context, callID string) (*domain.Call, error) {
	call, err := scanCall(r.db.QueryRow(ctx, `
		SELECT `+callColumns+` FROM calls WHERE elevenlabs_call_id = $1
	`, callID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return call, err
}

func (r *CallRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Call, error) {
	call, err := scanCall(r.db.QueryRow(ctx, `
		SELECT `+callColumns+` FROM calls WHERE id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return call, err
}

// AdvanceStatus moves the call status forward per
// pending < in_progress < {completed, failed}; terminal states never change.
// Returns true when the row actually advanced.
func (r *CallRepository) AdvanceStatus(ctx context.Context, callID, status string, endedAt *time.Time) (bool, error) {
	rank := domain.CallStatusRank(status)
	tag, err := r.db.Exec(ctx, `
		UPDATE calls SET
			status = $2,
			ended_at = COALESCE($3, ended_at),
			updated_at = NOW()
		WHERE elevenlabs_call_id = $1
		  AND (
			CASE status
				WHEN 'pending' THEN 0
				WHEN 'in_progress' THEN 1
				ELSE 99
			END < $4
		  )
	`, callID, status, endedAt, rank)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetTranscript records transcript and summary once available. The text is
// source material for classification, so later events may refresh it.
func (r *CallRepository) SetTranscript(ctx context.Context, callID string, transcript, summary *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE calls SET
			transcript = COALESCE($2, transcript),
			summary = COALESCE($3, summary),
			updated_at = NOW()
		WHERE elevenlabs_call_id = $1
	`, callID, transcript, summary)
	return err
}

// SetCategory applies the best-effort classification exactly once.
func (r *CallRepository) SetCategory(ctx context.Context, callID, category string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE calls SET category = $2, updated_at = NOW()
		WHERE elevenlabs_call_id = $1 AND category = 'desconocido'
	`, callID, category)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkTransferred records transfer details, first write wins. A call can only
// be transferred once, so later transfer data is dropped.
func (r *CallRepository) MarkTransferred(ctx context.Context, callID, transferredTo, transferType string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE calls SET
			is_transferred = TRUE,
			transferred_to = $2,
			transfer_type = $3,
			transfer_detected_at = NOW(),
			updated_at = NOW()
		WHERE elevenlabs_call_id = $1 AND is_transferred = FALSE
	`, callID, transferredTo, transferType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CallRepository) List(ctx context.Context, filter domain.CallFilter) ([]*domain.Call, int, error) {
	baseQuery := ` FROM calls WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filter.Status != "" {
		baseQuery += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}
	if filter.Category != "" {
		baseQuery += fmt.Sprintf(" AND category = $%d", argNum)
		args = append(args, filter.Category)
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

	selectQuery := `SELECT ` + callColumns + baseQuery + " ORDER BY created_at DESC"
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

	var calls []*domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		calls = append(calls, call)
	}
	return calls, total, nil
}
