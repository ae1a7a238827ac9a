package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
)

type Repositories struct {
	db           *pgxpool.Pool
	User         *UserRepository
	Contact      *ContactRepository
	Conversation *ConversationRepository
	Message      *MessageRepository
	Call         *CallRepository
	Incident     *IncidentRepository
	WebhookEvent *WebhookEventRepository
	Idempotency  *IdempotencyRepository
	Setting      *SettingRepository
}

func NewRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		db:           db,
		User:         &UserRepository{db: db},
		Contact:      &ContactRepository{db: db},
		Conversation: &ConversationRepository{db: db},
		Message:      &MessageRepository{db: db},
		Call:         &CallRepository{db: db},
		Incident:     &IncidentRepository{db: db},
		WebhookEvent: &WebhookEventRepository{db: db},
		Idempotency:  &IdempotencyRepository{db: db},
		Setting:      &SettingRepository{db: db},
	}
}

// DB returns the underlying database pool.
func (r *Repositories) DB() *pgxpool.Pool {
	return r.db
}

// UserRepository handles staff user data access
type UserRepository struct {
	db *pgxpool.Pool
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, username, email, password_hash, display_name, role, is_active, created_at, updated_at
		FROM users WHERE username = $1 AND is_active = TRUE
	`, username).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.DisplayName, &user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, username, email, password_hash, display_name, role, is_active, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.DisplayName, &user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return user, err
}

// IdempotencyRepository claims external event keys exactly once
type IdempotencyRepository struct {
	db *pgxpool.Pool
}

// Claim atomically records an external key. It returns true only for the
// first caller; concurrent duplicates lose on the primary key and get false.
func (r *IdempotencyRepository) Claim(ctx context.Context, kind, externalKey string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO processed_keys (kind, external_key)
		VALUES ($1, $2)
		ON CONFLICT (kind, external_key) DO NOTHING
	`, kind, externalKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Release undoes a claim whose follow-up work failed to commit, so a replay
// of the recorded webhook event can take the key again.
func (r *IdempotencyRepository) Release(ctx context.Context, kind, externalKey string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM processed_keys WHERE kind = $1 AND external_key = $2
	`, kind, externalKey)
	return err
}

// SettingRepository handles DB-backed settings
type SettingRepository struct {
	db *pgxpool.Pool
}

func (r *SettingRepository) Get(ctx context.Context, key string) (*domain.Setting, error) {
	s := &domain.Setting{}
	err := r.db.QueryRow(ctx, `
		SELECT key, value, updated_at FROM settings WHERE key = $1
	`, key).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	return err
}

func (r *SettingRepository) GetAll(ctx context.Context) ([]*domain.Setting, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []*domain.Setting
	for rows.Next() {
		s := &domain.Setting{}
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, nil
}

// WebhookEventRepository is the append-only store of raw provider callbacks
type WebhookEventRepository struct {
	db *pgxpool.Pool
}

// Record writes the raw payload before any interpretation so every callback
// is auditable even when downstream processing fails.
func (r *WebhookEventRepository) Record(ctx context.Context, eventType string, payload map[string]interface{}) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		INSERT INTO webhook_events (event_type, payload) VALUES ($1, $2)
		RETURNING id
	`, eventType, payload).Scan(&id)
	return id, err
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE webhook_events SET processed = TRUE, error_message = NULL WHERE id = $1`, id)
	return err
}

func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.Exec(ctx, `UPDATE webhook_events SET processed = FALSE, error_message = $2 WHERE id = $1`, id, reason)
	return err
}

func (r *WebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	e := &domain.WebhookEvent{}
	err := r.db.QueryRow(ctx, `
		SELECT id, event_type, payload, processed, error_message, created_at
		FROM webhook_events WHERE id = $1
	`, id).Scan(&e.ID, &e.EventType, &e.Payload, &e.Processed, &e.ErrorMessage, &e.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (r *WebhookEventRepository) ListFailed(ctx context.Context, since time.Time, limit int) ([]*domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, event_type, payload, processed, error_message, created_at
		FROM webhook_events
		WHERE processed = FALSE AND error_message IS NOT NULL AND created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.WebhookEvent
	for rows.Next() {
		e := &domain.WebhookEvent{}
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Processed, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
