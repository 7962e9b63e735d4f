package repository

import (
	"database/sql"
	"fmt"
)

// InitMigration initializes the database. In production, this would use a proper migration
// library like go-migrate
func InitMigration(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS recurring_transfers (
			id UUID PRIMARY KEY,
			owner VARCHAR(128) NOT NULL,
			custody_wallet VARCHAR(42) NOT NULL,
			recipient VARCHAR(42) NOT NULL,
			amount TEXT NOT NULL,
			cadence VARCHAR(16) NOT NULL,
			destination_chain VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'paused')),
			next_due_at TIMESTAMPTZ NOT NULL,
			last_executed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recurring_transfers_due ON recurring_transfers (status, next_due_at)`,
		`CREATE INDEX IF NOT EXISTS idx_recurring_transfers_owner ON recurring_transfers (owner)`,
		`CREATE TABLE IF NOT EXISTS transfer_executions (
			id UUID PRIMARY KEY,
			owner VARCHAR(128) NOT NULL,
			recurring_transfer_id UUID,
			recipient VARCHAR(42) NOT NULL,
			amount TEXT NOT NULL,
			fee TEXT,
			source_chain VARCHAR(32),
			destination_chain VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL CHECK (status IN ('pending', 'success', 'failed')),
			release_tx_hash VARCHAR(66),
			burn_tx_hash VARCHAR(66),
			mint_tx_hash VARCHAR(66),
			tx_hash VARCHAR(66),
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`ALTER TABLE transfer_executions ADD COLUMN IF NOT EXISTS release_tx_hash VARCHAR(66)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_executions_owner_date ON transfer_executions (owner, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_executions_recurring_date ON transfer_executions (recurring_transfer_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_executions_pending ON transfer_executions (created_at) WHERE status = 'pending'`,
		`CREATE TABLE IF NOT EXISTS execution_outbox (
			id BIGSERIAL PRIMARY KEY,
			execution_id UUID NOT NULL,
			owner VARCHAR(128) NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			execution_status VARCHAR(16) NOT NULL,
			event_blob JSONB NOT NULL,
			publish_status VARCHAR(20) NOT NULL DEFAULT 'unsent',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_outbox_unsent ON execution_outbox (created_at, id) WHERE publish_status = 'unsent'`,
		`CREATE TABLE IF NOT EXISTS scheduler_state (
			id INTEGER PRIMARY KEY DEFAULT 1,
			last_tick_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT single_row CHECK (id = 1)
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	// Initialize scheduler state if not exists
	_, err := db.Exec(`
		INSERT INTO scheduler_state (id)
		VALUES (1)
		ON CONFLICT (id) DO NOTHING
	`)

	return err
}
