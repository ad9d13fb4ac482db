package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solanaetl/internal/mapper"
	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

// ApplyBatch persists a slot batch. Every event is applied as a single
// all-or-nothing unit inside one transaction: the fact insert plus its
// dimension merges. Replayed events refresh updated_at only and contribute
// no dimension increments; content mismatches are rejected and reported
// as identity_conflict without touching the stored row.
func (s *Store) ApplyBatch(ctx context.Context, batch mapper.Batch) (storage.ApplyResult, error) {
	var result storage.ApplyResult
	if len(batch.Events) == 0 {
		return result, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, event := range batch.Events {
		inserted, conflict, err := applyEvent(ctx, tx, event)
		if err != nil {
			return storage.ApplyResult{}, fmt.Errorf("apply event %s: %w", event.Event.EventID, err)
		}
		switch {
		case conflict != nil:
			result.Conflicts = append(result.Conflicts, *conflict)
		case inserted:
			result.Inserted++
		default:
			result.Replayed++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.ApplyResult{}, fmt.Errorf("commit batch: %w", err)
	}
	return result, nil
}

func applyEvent(ctx context.Context, tx pgx.Tx, event mapper.MappedEvent) (bool, *model.ErrorRecord, error) {
	table, sql, args, err := factInsert(event)
	if err != nil {
		return false, nil, err
	}

	hash := model.PayloadHash(event.Event.RawPayload)
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return false, nil, err
	}

	if tag.RowsAffected() == 0 {
		var existingHash string
		row := tx.QueryRow(ctx, `SELECT payload_hash FROM `+table+` WHERE event_id=$1`, event.Event.EventID)
		if err := row.Scan(&existingHash); err != nil {
			return false, nil, fmt.Errorf("read existing row: %w", err)
		}
		if existingHash != hash {
			diagCtx, _ := json.Marshal(map[string]string{
				"table":         table,
				"existing_hash": existingHash,
				"incoming_hash": hash,
			})
			rec := model.NewErrorRecord(model.ErrorTypeIdentityConflict,
				fmt.Sprintf("event %s re-delivered with different content", event.Event.EventID)).
				WithSlot(event.Event.Slot).
				WithSignature(event.Event.TxSignature).
				WithContext(diagCtx)
			return false, &rec, nil
		}

		// Clean replay: only the touch timestamp moves.
		if _, err := tx.Exec(ctx, `UPDATE `+table+` SET updated_at=now() WHERE event_id=$1`, event.Event.EventID); err != nil {
			return false, nil, fmt.Errorf("refresh row: %w", err)
		}
		return false, nil, nil
	}

	if err := applyDimensions(ctx, tx, event); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}

// factInsert builds the insert for the fact table matching the event's
// category. Inserts are insert-if-absent so replay detection runs on the
// caller's side of the row count.
func factInsert(event mapper.MappedEvent) (string, string, []any, error) {
	base := event.Event
	hash := model.PayloadHash(base.RawPayload)

	switch {
	case event.Transaction != nil:
		f := event.Transaction
		return "fact_transactions", `
			INSERT INTO fact_transactions (
				event_id, slot, block_time, tx_signature, program_id, instruction_index,
				event_type, raw_payload, payload_hash,
				wallet, wallet_secondary, token_mint, lamports, token_amount,
				fee_payer, transaction_fee, success, error_message,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
			ON CONFLICT (event_id) DO NOTHING
		`, []any{
			base.EventID, int64(base.Slot), base.BlockTime, base.TxSignature, nullable(base.ProgramID),
			base.InstructionIndex, string(base.EventType), string(base.RawPayload), hash,
			nullable(f.Wallet), nullable(f.WalletSecondary), nullable(f.TokenMint), f.Lamports, f.TokenAmount,
			nullable(f.FeePayer), f.TransactionFee, f.Success, nullable(f.ErrorMessage),
		}, nil

	case event.ProgramEvent != nil:
		f := event.ProgramEvent
		return "fact_program_events", `
			INSERT INTO fact_program_events (
				event_id, slot, block_time, tx_signature, program_id, instruction_index,
				event_type, raw_payload, payload_hash,
				instruction_type, accounts, data_hex, log_messages, log_pattern_match,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
			ON CONFLICT (event_id) DO NOTHING
		`, []any{
			base.EventID, int64(base.Slot), base.BlockTime, base.TxSignature, nullable(base.ProgramID),
			base.InstructionIndex, string(base.EventType), string(base.RawPayload), hash,
			nullable(f.InstructionType), f.Accounts, nullable(f.DataHex), f.LogMessages, nullable(f.LogPatternMatch),
		}, nil

	case event.TokenTransfer != nil:
		f := event.TokenTransfer
		return "fact_token_transfers", `
			INSERT INTO fact_token_transfers (
				event_id, slot, block_time, tx_signature, program_id, instruction_index,
				event_type, raw_payload, payload_hash,
				token_mint, from_wallet, to_wallet, token_amount, decimals, raw_amount, authority,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
			ON CONFLICT (event_id) DO NOTHING
		`, []any{
			base.EventID, int64(base.Slot), base.BlockTime, base.TxSignature, nullable(base.ProgramID),
			base.InstructionIndex, string(base.EventType), string(base.RawPayload), hash,
			nullable(f.TokenMint), nullable(f.FromWallet), nullable(f.ToWallet), f.TokenAmount, f.Decimals,
			nullable(f.RawAmount), nullable(f.Authority),
		}, nil

	case event.Telemetry != nil:
		f := event.Telemetry
		return "fact_telemetry", `
			INSERT INTO fact_telemetry (
				event_id, slot, block_time, tx_signature, program_id, instruction_index,
				event_type, raw_payload, payload_hash,
				user_id, api_endpoint, feature_name, request_id, response_code, latency_ms,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now(),now())
			ON CONFLICT (event_id) DO NOTHING
		`, []any{
			base.EventID, int64(base.Slot), base.BlockTime, base.TxSignature, nullable(base.ProgramID),
			base.InstructionIndex, string(base.EventType), string(base.RawPayload), hash,
			nullable(f.UserID), nullable(f.APIEndpoint), nullable(f.FeatureName), nullable(f.RequestID),
			f.ResponseCode, f.LatencyMs,
		}, nil
	}

	return "", "", nil, fmt.Errorf("event %s has no fact row", base.EventID)
}

// applyDimensions merges the event's dimension contributions as one pgx
// batch inside the event's transaction. The SQL mirrors model.MergeWallet
// and friends: LEAST/GREATEST on seen slots, additive counters, decimals
// kept once known.
func applyDimensions(ctx context.Context, tx pgx.Tx, event mapper.MappedEvent) error {
	if len(event.Wallets)+len(event.Programs)+len(event.Tokens) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, w := range event.Wallets {
		batch.Queue(`
			INSERT INTO dim_wallets (
				wallet, first_seen_slot, last_seen_slot,
				total_transactions, total_sol_sent, total_sol_received, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,now(),now())
			ON CONFLICT (wallet) DO UPDATE SET
				first_seen_slot = LEAST(dim_wallets.first_seen_slot, EXCLUDED.first_seen_slot),
				last_seen_slot = GREATEST(dim_wallets.last_seen_slot, EXCLUDED.last_seen_slot),
				total_transactions = dim_wallets.total_transactions + EXCLUDED.total_transactions,
				total_sol_sent = dim_wallets.total_sol_sent + EXCLUDED.total_sol_sent,
				total_sol_received = dim_wallets.total_sol_received + EXCLUDED.total_sol_received,
				updated_at = now()
		`, w.Wallet, int64(w.FirstSeenSlot), int64(w.LastSeenSlot),
			int64(w.TotalTransactions), int64(w.TotalSolSent), int64(w.TotalSolReceived))
	}

	for _, p := range event.Programs {
		batch.Queue(`
			INSERT INTO dim_programs (
				program_id, first_seen_slot, last_seen_slot, total_invocations, created_at, updated_at
			) VALUES ($1,$2,$3,$4,now(),now())
			ON CONFLICT (program_id) DO UPDATE SET
				first_seen_slot = LEAST(dim_programs.first_seen_slot, EXCLUDED.first_seen_slot),
				last_seen_slot = GREATEST(dim_programs.last_seen_slot, EXCLUDED.last_seen_slot),
				total_invocations = dim_programs.total_invocations + EXCLUDED.total_invocations,
				updated_at = now()
		`, p.ProgramID, int64(p.FirstSeenSlot), int64(p.LastSeenSlot), int64(p.TotalInvocations))
	}

	for _, t := range event.Tokens {
		batch.Queue(`
			INSERT INTO dim_tokens (
				token_mint, decimals, first_seen_slot, last_seen_slot, total_transfers, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,now(),now())
			ON CONFLICT (token_mint) DO UPDATE SET
				decimals = COALESCE(dim_tokens.decimals, EXCLUDED.decimals),
				first_seen_slot = LEAST(dim_tokens.first_seen_slot, EXCLUDED.first_seen_slot),
				last_seen_slot = GREATEST(dim_tokens.last_seen_slot, EXCLUDED.last_seen_slot),
				total_transfers = dim_tokens.total_transfers + EXCLUDED.total_transfers,
				updated_at = now()
		`, t.TokenMint, t.Decimals, int64(t.FirstSeenSlot), int64(t.LastSeenSlot), int64(t.TotalTransfers))
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("merge dimensions for event %s: %w", event.Event.EventID, err)
		}
	}
	return results.Close()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
