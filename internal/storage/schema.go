package storage

import (
	"database/sql"
	"fmt"
)

// CreateTables creates the full schema if it does not exist. Used by local
// development and the integration tests; production deployments run the
// same DDL through migrations.
func CreateTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS service_types (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			form_schema JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			service_type_id TEXT NOT NULL REFERENCES service_types(id),
			zip_code TEXT NOT NULL,
			form_data JSONB NOT NULL DEFAULT '{}',
			compliance JSONB NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'PENDING',
			winning_buyer_id TEXT,
			winning_bid NUMERIC(12,4),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status)`,
		`CREATE TABLE IF NOT EXISTS buyers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_base_url TEXT NOT NULL,
			auth_config JSONB NOT NULL DEFAULT '{}',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS buyer_service_configs (
			id TEXT PRIMARY KEY,
			buyer_id TEXT NOT NULL REFERENCES buyers(id),
			service_type_id TEXT NOT NULL REFERENCES service_types(id),
			ping_path TEXT NOT NULL DEFAULT '/ping',
			post_path TEXT NOT NULL DEFAULT '/post',
			mapping_config JSONB NOT NULL DEFAULT '{}',
			response_config JSONB NOT NULL DEFAULT '{}',
			timeout_ms INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT true,
			ping_template JSONB,
			post_template JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS buyer_service_zipcodes (
			id TEXT PRIMARY KEY,
			config_id TEXT NOT NULL REFERENCES buyer_service_configs(id),
			zip_pattern TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 100,
			max_leads_per_day INTEGER NOT NULL DEFAULT 0,
			min_bid NUMERIC(12,4) NOT NULL DEFAULT 0,
			max_bid NUMERIC(12,4) NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE INDEX IF NOT EXISTS idx_zipcodes_config ON buyer_service_zipcodes(config_id)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			lead_id TEXT NOT NULL,
			buyer_id TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			request_payload JSONB,
			response_body JSONB,
			status_code INTEGER NOT NULL DEFAULT 0,
			bid_amount NUMERIC(12,4),
			success BOOLEAN NOT NULL DEFAULT false,
			is_winner BOOLEAN NOT NULL DEFAULT false,
			error_detail TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_lead ON transactions(lead_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_buyer_day ON transactions(buyer_id, zone_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS lead_status_history (
			id TEXT PRIMARY KEY,
			lead_id TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'SYSTEM',
			detail JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_history_lead ON lead_status_history(lead_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
