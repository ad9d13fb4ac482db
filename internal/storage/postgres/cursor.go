package postgres

import (
	"context"
	"fmt"
	"strconv"

	"solanaetl/internal/model"
)

// LoadCursor reads the pipeline cursor rows. Missing keys read as zero.
func (s *Store) LoadCursor(ctx context.Context) (model.Cursor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM etl_metadata WHERE key = ANY($1)`,
		[]string{model.CursorLastConfirmedSlot, model.CursorLastBackfillSlot, model.CursorChainTipSlot})
	if err != nil {
		return model.Cursor{}, fmt.Errorf("load cursor: %w", err)
	}
	defer rows.Close()

	var cursor model.Cursor
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return model.Cursor{}, fmt.Errorf("scan cursor row: %w", err)
		}
		slot, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return model.Cursor{}, fmt.Errorf("cursor %s has non-numeric value %q", key, value)
		}
		switch key {
		case model.CursorLastConfirmedSlot:
			cursor.LastConfirmedSlot = slot
		case model.CursorLastBackfillSlot:
			cursor.LastBackfillSlot = slot
		case model.CursorChainTipSlot:
			cursor.ChainTipSlot = slot
		}
	}
	return cursor, rows.Err()
}

// AdvanceCursor moves a cursor key forward. The compare-and-set guard
// keeps the stored slot monotone under concurrent writers; a false return
// means another writer already advanced at least as far.
func (s *Store) AdvanceCursor(ctx context.Context, key string, slot uint64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO etl_metadata (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()
		WHERE etl_metadata.value::bigint < EXCLUDED.value::bigint
	`, key, strconv.FormatUint(slot, 10))
	if err != nil {
		return false, fmt.Errorf("advance cursor %s: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}
