package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
)

// ContactRepository handles contact data access
type ContactRepository struct {
	db *pgxpool.Pool
}

// Upsert resolves a contact by wa_id, creating it on first sight. Profile
// fields are refreshed opportunistically but never blanked. The single
// INSERT ... ON CONFLICT keeps concurrent first-sight resolutions from
// producing duplicate contacts.
func (r *ContactRepository) Upsert(ctx context.Context, waID, phone string, name *string, profile map[string]interface{}) (*domain.Contact, error) {
	if profile == nil {
		profile = map[string]interface{}{}
	}
	contact := &domain.Contact{}
	err := r.db.QueryRow(ctx, `
		INSERT INTO contacts (wa_id, phone, name, profile_data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wa_id) DO UPDATE SET
			phone = CASE WHEN EXCLUDED.phone != '' THEN EXCLUDED.phone ELSE contacts.phone END,
			name = COALESCE(NULLIF(EXCLUDED.name, ''), contacts.name),
			profile_data = contacts.profile_data || EXCLUDED.profile_data,
			updated_at = NOW()
		RETURNING id, wa_id, phone, name, profile_data, is_blocked, created_at, updated_at
	`, waID, phone, name, profile).Scan(
		&contact.ID, &contact.WaID, &contact.Phone, &contact.Name,
		&contact.ProfileData, &contact.IsBlocked, &contact.CreatedAt, &contact.UpdatedAt,
	)
	return contact, err
}

func (r *ContactRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	contact := &domain.Contact{}
	err := r.db.QueryRow(ctx, `
		SELECT id, wa_id, phone, name, profile_data, is_blocked, created_at, updated_at
		FROM contacts WHERE id = $1
	`, id).Scan(
		&contact.ID, &contact.WaID, &contact.Phone, &contact.Name,
		&contact.ProfileData, &contact.IsBlocked, &contact.CreatedAt, &contact.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return contact, err
}

func (r *ContactRepository) GetByWaID(ctx context.Context, waID string) (*domain.Contact, error) {
	contact := &domain.Contact{}
	err := r.db.QueryRow(ctx, `
		SELECT id, wa_id, phone, name, profile_data, is_blocked, created_at, updated_at
		FROM contacts WHERE wa_id = $1
	`, waID).Scan(
		&contact.ID, &contact.WaID, &contact.Phone, &contact.Name,
		&contact.ProfileData, &contact.IsBlocked, &contact.CreatedAt, &contact.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return contact, err
}

func (r *ContactRepository) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	_, err := r.db.Exec(ctx, `UPDATE contacts SET is_blocked = $2, updated_at = NOW() WHERE id = $1`, id, blocked)
	return err
}

// ConversationRepository handles conversation data access
type ConversationRepository struct {
	db *pgxpool.Pool
}

const conversationColumns = `c.id, c.contact_id, c.status, c.assigned_to, c.last_message_at,
       c.unread_count, c.conversation_state, c.created_at, c.updated_at`

const conversationReturning = `id, contact_id, status, assigned_to, last_message_at,
       unread_count, conversation_state, created_at, updated_at`

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	err := row.Scan(
		&conv.ID, &conv.ContactID, &conv.Status, &conv.AssignedTo, &conv.LastMessageAt,
		&conv.UnreadCount, &conv.State, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetActiveByContact returns the contact's open conversation, falling back to
// the most recent closed one. Archived conversations are never reused.
func (r *ConversationRepository) GetActiveByContact(ctx context.Context, contactID uuid.UUID) (*domain.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.contact_id = $1 AND c.status != 'archived'
		ORDER BY (c.status = 'open') DESC, c.last_message_at DESC NULLS LAST, c.created_at DESC
		LIMIT 1
	`, contactID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return conv, err
}

// Create inserts a new open conversation. A concurrent create for the same
// contact loses on the partial unique index; callers retry via GetActiveByContact.
func (r *ConversationRepository) Create(ctx context.Context, contactID uuid.UUID) (*domain.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx, `
		INSERT INTO conversations (contact_id) VALUES ($1)
		ON CONFLICT (contact_id) WHERE status = 'open' DO NOTHING
		RETURNING `+conversationReturning+`
	`, contactID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return conv, err
}

func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return conv, err
}

// ApplyInbound folds an accepted inbound message into the conversation in one
// atomic statement: bump unread, advance last_message_at monotonically, and
// reopen a closed conversation. Read-modify-write at the application layer
// would lose increments under concurrent deliveries.
func (r *ConversationRepository) ApplyInbound(ctx context.Context, id uuid.UUID, ts time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations SET
			unread_count = unread_count + 1,
			last_message_at = GREATEST(COALESCE(last_message_at, 'epoch'::timestamptz), $2),
			status = CASE WHEN status = 'closed' THEN 'open' ELSE status END,
			updated_at = NOW()
		WHERE id = $1
	`, id, ts)
	return err
}

// ApplyOutbound advances last_message_at without touching the unread counter.
func (r *ConversationRepository) ApplyOutbound(ctx context.Context, id uuid.UUID, ts time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations SET
			last_message_at = GREATEST(COALESCE(last_message_at, 'epoch'::timestamptz), $2),
			updated_at = NOW()
		WHERE id = $1
	`, id, ts)
	return err
}

func (r *ConversationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE conversations SET unread_count = 0, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *ConversationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.db.Exec(ctx, `UPDATE conversations SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

func (r *ConversationRepository) Assign(ctx context.Context, id uuid.UUID, userID *uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE conversations SET assigned_to = $2, updated_at = NOW() WHERE id = $1`, id, userID)
	return err
}

// SetStateKey patches a single key in the opaque conversation_state map.
func (r *ConversationRepository) SetStateKey(ctx context.Context, id uuid.UUID, key string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		UPDATE conversations SET
			conversation_state = jsonb_set(COALESCE(conversation_state, '{}'::jsonb), ARRAY[$2], $3::jsonb),
			updated_at = NOW()
		WHERE id = $1
	`, id, key, string(encoded))
	return err
}

// GetWithRelations loads the conversation plus its contact and assigned staff
// member, the shape broadcast as conversation.updated.
func (r *ConversationRepository) GetWithRelations(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	conv := &domain.Conversation{Contact: &domain.Contact{}}
	// The user columns come through a LEFT JOIN and are NULL for unassigned
	// conversations, so they must scan into pointer targets.
	var assignedID *uuid.UUID
	var username, displayName, role *string
	err := r.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`,
		       ct.id, ct.wa_id, ct.phone, ct.name, ct.profile_data, ct.is_blocked, ct.created_at, ct.updated_at,
		       u.id, u.username, u.display_name, u.role
		FROM conversations c
		JOIN contacts ct ON ct.id = c.contact_id
		LEFT JOIN users u ON u.id = c.assigned_to
		WHERE c.id = $1
	`, id).Scan(
		&conv.ID, &conv.ContactID, &conv.Status, &conv.AssignedTo, &conv.LastMessageAt,
		&conv.UnreadCount, &conv.State, &conv.CreatedAt, &conv.UpdatedAt,
		&conv.Contact.ID, &conv.Contact.WaID, &conv.Contact.Phone, &conv.Contact.Name,
		&conv.Contact.ProfileData, &conv.Contact.IsBlocked, &conv.Contact.CreatedAt, &conv.Contact.UpdatedAt,
		&assignedID, &username, &displayName, &role,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if assignedID != nil {
		assignedUser := &domain.User{ID: *assignedID}
		if username != nil {
			assignedUser.Username = *username
		}
		if displayName != nil {
			assignedUser.DisplayName = *displayName
		}
		if role != nil {
			assignedUser.Role = *role
		}
		conv.AssignedUser = assignedUser
	}
	return conv, nil
}

func (r *ConversationRepository) List(ctx context.Context, filter domain.ConversationFilter) ([]*domain.Conversation, int, error) {
	baseQuery := `
		FROM conversations c
		JOIN contacts ct ON ct.id = c.contact_id
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.Status != "" {
		baseQuery += fmt.Sprintf(" AND c.status = $%d", argNum)
		args = append(args, filter.Status)
		argNum++
	}
	if filter.AssignedTo != nil {
		baseQuery += fmt.Sprintf(" AND c.assigned_to = $%d", argNum)
		args = append(args, *filter.AssignedTo)
		argNum++
	}
	if filter.UnreadOnly {
		baseQuery += " AND c.unread_count > 0"
	}
	if filter.Search != "" {
		baseQuery += fmt.Sprintf(" AND (ct.name ILIKE $%d OR ct.phone ILIKE $%d OR ct.wa_id ILIKE $%d)", argNum, argNum, argNum)
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	selectQuery := `
		SELECT ` + conversationColumns + `,
		       ct.id, ct.wa_id, ct.phone, ct.name, ct.profile_data, ct.is_blocked, ct.created_at, ct.updated_at
	` + baseQuery + " ORDER BY c.last_message_at DESC NULLS LAST"

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

	var conversations []*domain.Conversation
	for rows.Next() {
		conv := &domain.Conversation{Contact: &domain.Contact{}}
		if err := rows.Scan(
			&conv.ID, &conv.ContactID, &conv.Status, &conv.AssignedTo, &conv.LastMessageAt,
			&conv.UnreadCount, &conv.State, &conv.CreatedAt, &conv.UpdatedAt,
			&conv.Contact.ID, &conv.Contact.WaID, &conv.Contact.Phone, &conv.Contact.Name,
			&conv.Contact.ProfileData, &conv.Contact.IsBlocked, &conv.Contact.CreatedAt, &conv.Contact.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, total, nil
}

// ListRecentlyActive returns conversations with inbound traffic in the window,
// used by the periodic incident sweep.
func (r *ConversationRepository) ListRecentlyActive(ctx context.Context, since time.Time, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.status = 'open' AND c.last_message_at >= $1
		ORDER BY c.last_message_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv, err := scanConversationRows(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func scanConversationRows(rows pgx.Rows) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	err := rows.Scan(
		&conv.ID, &conv.ContactID, &conv.Status, &conv.AssignedTo, &conv.LastMessageAt,
		&conv.UnreadCount, &conv.State, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// MessageRepository handles message data access
type MessageRepository struct {
	db *pgxpool.Pool
}

// Create inserts a message keyed by the provider message id. Returns false
// without error when the id was already stored (webhook replay).
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) (bool, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, wa_message_id, direction, type, body,
		                      media_url, media_mimetype, status, wa_timestamp, sent_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (wa_message_id) DO NOTHING
		RETURNING id, created_at
	`, msg.ConversationID, msg.WaMessageID, msg.Direction, msg.Type, msg.Body,
		msg.MediaURL, msg.MediaMimetype, msg.Status, msg.WaTimestamp, msg.SentBy,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *MessageRepository) GetByWaMessageID(ctx context.Context, waMessageID string) (*domain.Message, error) {
	msg := &domain.Message{}
	err := r.db.QueryRow(ctx, `
		SELECT id, conversation_id, wa_message_id, direction, type, body,
		       media_url, media_mimetype, status, wa_timestamp, sent_by, created_at
		FROM messages WHERE wa_message_id = $1
	`, waMessageID).Scan(
		&msg.ID, &msg.ConversationID, &msg.WaMessageID, &msg.Direction, &msg.Type, &msg.Body,
		&msg.MediaURL, &msg.MediaMimetype, &msg.Status, &msg.WaTimestamp, &msg.SentBy, &msg.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return msg, err
}

// AdvanceStatus applies a status transition only when it moves forward in the
// sending < sent < delivered < read order, or lands on the terminal failed.
// The guard lives in the WHERE clause so concurrent status callbacks cannot
// interleave a regression. Returns true when a row actually changed.
func (r *MessageRepository) AdvanceStatus(ctx context.Context, waMessageID, status string) (bool, error) {
	rank := domain.MessageStatusRank(status)
	tag, err := r.db.Exec(ctx, `
		UPDATE messages SET status = $2
		WHERE wa_message_id = $1
		  AND (
			($2 = 'failed' AND status != 'failed')
			OR (
				CASE status
					WHEN 'sending' THEN 0
					WHEN 'sent' THEN 1
					WHEN 'delivered' THEN 2
					WHEN 'read' THEN 3
					ELSE 99
				END < $3
			)
		  )
	`, waMessageID, status, rank)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *MessageRepository) GetByConversationID(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, wa_message_id, direction, type, body,
		       media_url, media_mimetype, status, wa_timestamp, sent_by, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY wa_timestamp DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg := &domain.Message{}
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.WaMessageID, &msg.Direction, &msg.Type, &msg.Body,
			&msg.MediaURL, &msg.MediaMimetype, &msg.Status, &msg.WaTimestamp, &msg.SentBy, &msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// RecentInboundBodies returns the latest inbound text in chronological order,
// the raw material for incident detection on a conversation.
func (r *MessageRepository) RecentInboundBodies(ctx context.Context, conversationID uuid.UUID, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx, `
		SELECT body FROM (
			SELECT body, wa_timestamp FROM messages
			WHERE conversation_id = $1 AND direction = 'inbound' AND body IS NOT NULL AND body != ''
			ORDER BY wa_timestamp DESC
			LIMIT $2
		) recent ORDER BY wa_timestamp ASC
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}
	return bodies, nil
}
