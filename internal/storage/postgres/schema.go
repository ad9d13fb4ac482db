package postgres

import "context"

// schemaStatements bootstrap the warehouse tables idempotently. Fact
// tables are keyed by event_id; dimension tables by their natural key.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS fact_transactions (
		event_id TEXT PRIMARY KEY,
		slot BIGINT NOT NULL,
		block_time TIMESTAMPTZ NOT NULL,
		tx_signature TEXT NOT NULL,
		program_id TEXT,
		instruction_index INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		raw_payload JSONB,
		payload_hash TEXT NOT NULL,
		wallet TEXT,
		wallet_secondary TEXT,
		token_mint TEXT,
		lamports BIGINT,
		token_amount DOUBLE PRECISION,
		fee_payer TEXT,
		transaction_fee BIGINT,
		success BOOLEAN,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_transactions_slot ON fact_transactions(slot)`,
	`CREATE TABLE IF NOT EXISTS fact_program_events (
		event_id TEXT PRIMARY KEY,
		slot BIGINT NOT NULL,
		block_time TIMESTAMPTZ NOT NULL,
		tx_signature TEXT NOT NULL,
		program_id TEXT,
		instruction_index INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		raw_payload JSONB,
		payload_hash TEXT NOT NULL,
		instruction_type TEXT,
		accounts TEXT[],
		data_hex TEXT,
		log_messages TEXT[],
		log_pattern_match TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_program_events_slot ON fact_program_events(slot)`,
	`CREATE TABLE IF NOT EXISTS fact_token_transfers (
		event_id TEXT PRIMARY KEY,
		slot BIGINT NOT NULL,
		block_time TIMESTAMPTZ NOT NULL,
		tx_signature TEXT NOT NULL,
		program_id TEXT,
		instruction_index INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		raw_payload JSONB,
		payload_hash TEXT NOT NULL,
		token_mint TEXT,
		from_wallet TEXT,
		to_wallet TEXT,
		token_amount DOUBLE PRECISION,
		decimals SMALLINT,
		raw_amount TEXT,
		authority TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fact_token_transfers_slot ON fact_token_transfers(slot)`,
	`CREATE TABLE IF NOT EXISTS fact_telemetry (
		event_id TEXT PRIMARY KEY,
		slot BIGINT NOT NULL,
		block_time TIMESTAMPTZ NOT NULL,
		tx_signature TEXT NOT NULL,
		program_id TEXT,
		instruction_index INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		raw_payload JSONB,
		payload_hash TEXT NOT NULL,
		user_id TEXT,
		api_endpoint TEXT,
		feature_name TEXT,
		request_id TEXT,
		response_code INTEGER,
		latency_ms BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS dim_wallets (
		wallet TEXT PRIMARY KEY,
		first_seen_slot BIGINT NOT NULL,
		last_seen_slot BIGINT NOT NULL,
		total_transactions BIGINT NOT NULL DEFAULT 0,
		total_sol_sent BIGINT NOT NULL DEFAULT 0,
		total_sol_received BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS dim_programs (
		program_id TEXT PRIMARY KEY,
		first_seen_slot BIGINT NOT NULL,
		last_seen_slot BIGINT NOT NULL,
		total_invocations BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS dim_tokens (
		token_mint TEXT PRIMARY KEY,
		decimals SMALLINT,
		first_seen_slot BIGINT NOT NULL,
		last_seen_slot BIGINT NOT NULL,
		total_transfers BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS etl_checkpoints (
		checkpoint_id TEXT PRIMARY KEY,
		start_slot BIGINT NOT NULL,
		end_slot BIGINT NOT NULL,
		last_processed_slot BIGINT NOT NULL,
		status TEXT NOT NULL,
		claimed_by TEXT,
		failure_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_etl_checkpoints_status ON etl_checkpoints(status)`,
	`CREATE TABLE IF NOT EXISTS etl_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS etl_errors (
		error_id TEXT PRIMARY KEY,
		slot BIGINT,
		tx_signature TEXT,
		error_type TEXT NOT NULL,
		error_message TEXT NOT NULL,
		error_context JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
