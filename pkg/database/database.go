package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/crmhawkins/comurban-sub001/pkg/config"
)

func Connect(databaseURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func Migrate(db *pgxpool.Pool) error {
	ctx := context.Background()

	migrations := []string{
		// Staff users
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username VARCHAR(255) UNIQUE NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			display_name VARCHAR(255),
			role VARCHAR(50) DEFAULT 'agent',
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,

		// Contacts, keyed by the provider wa_id
		`CREATE TABLE IF NOT EXISTS contacts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			wa_id VARCHAR(64) NOT NULL UNIQUE,
			phone VARCHAR(50) NOT NULL DEFAULT '',
			name VARCHAR(255),
			profile_data JSONB DEFAULT '{}'::jsonb,
			is_blocked BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_phone ON contacts(phone)`,

		// Conversations: one open-or-most-recent per contact
		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			contact_id UUID NOT NULL REFERENCES contacts(id),
			status VARCHAR(20) NOT NULL DEFAULT 'open',
			assigned_to UUID REFERENCES users(id) ON DELETE SET NULL,
			last_message_at TIMESTAMPTZ,
			unread_count INT NOT NULL DEFAULT 0,
			conversation_state JSONB DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_contact ON conversations(contact_id, status)`,
		// At most one open conversation per contact; concurrent first-sight
		// creations collide here instead of duplicating threads
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_conversations_contact_open
			ON conversations(contact_id) WHERE status = 'open'`,

		// Messages, idempotent on the provider message id
		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			wa_message_id VARCHAR(255) NOT NULL UNIQUE,
			direction VARCHAR(10) NOT NULL,
			type VARCHAR(20) NOT NULL DEFAULT 'text',
			body TEXT,
			media_url TEXT,
			media_mimetype VARCHAR(255),
			status VARCHAR(20) NOT NULL DEFAULT 'sending',
			wa_timestamp TIMESTAMPTZ NOT NULL,
			sent_by UUID REFERENCES users(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, wa_timestamp)`,

		// Voice calls, idempotent on the provider call id
		`CREATE TABLE IF NOT EXISTS calls (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			contact_id UUID REFERENCES contacts(id),
			elevenlabs_call_id VARCHAR(255) NOT NULL UNIQUE,
			phone VARCHAR(50) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			category VARCHAR(20) NOT NULL DEFAULT 'desconocido',
			transcript TEXT,
			summary TEXT,
			metadata JSONB DEFAULT '{}'::jsonb,
			is_transferred BOOLEAN NOT NULL DEFAULT FALSE,
			transferred_to VARCHAR(255),
			transfer_type VARCHAR(50),
			transfer_detected_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calls_status ON calls(status)`,
		`CREATE INDEX IF NOT EXISTS idx_calls_phone ON calls(phone)`,

		// Incidents: tagged source (conversation XOR call)
		`CREATE TABLE IF NOT EXISTS incidents (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			source_type VARCHAR(10) NOT NULL,
			source_id UUID NOT NULL,
			phone VARCHAR(50) NOT NULL DEFAULT '',
			incident_summary TEXT NOT NULL,
			incident_type VARCHAR(100),
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'open',
			detection_context JSONB DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_phone_status ON incidents(phone, status)`,

		// Append-only webhook event log
		`CREATE TABLE IF NOT EXISTS webhook_events (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			event_type VARCHAR(50) NOT NULL,
			payload JSONB NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			error_message TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_processed ON webhook_events(processed, created_at)`,

		// Idempotency claims for callbacks without their own table constraint
		`CREATE TABLE IF NOT EXISTS processed_keys (
			kind VARCHAR(50) NOT NULL,
			external_key VARCHAR(255) NOT NULL,
			claimed_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (kind, external_key)
		)`,

		// DB-backed settings overriding env defaults
		`CREATE TABLE IF NOT EXISTS settings (
			key VARCHAR(255) PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// SeedAdmin creates the initial admin user if no users exist yet
func SeedAdmin(db *pgxpool.Pool, cfg *config.Config) error {
	ctx := context.Background()

	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO users (username, email, password_hash, display_name, role)
		VALUES ($1, $2, $3, 'Administrator', 'admin')
	`, cfg.AdminUser, cfg.AdminEmail, string(hash))
	if err != nil {
		return fmt.Errorf("failed to seed admin: %w", err)
	}
	return nil
}
