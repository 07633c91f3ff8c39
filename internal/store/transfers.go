package store

import (
	"context"
	"fmt"
)

// Transfer is an uploaded transfer archive awaiting cleanup.
type Transfer struct {
	Key        string
	CDN        uint32
	UploadedAt int64
}

func (db *DB) RecordTransfer(ctx context.Context, t Transfer) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transfers (key, cdn, uploaded_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING`, t.Key, t.CDN, t.UploadedAt)
	if err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}
	return nil
}

// ExpiredTransfers returns undeleted transfers uploaded before the cutoff,
// oldest first.
func (db *DB) ExpiredTransfers(ctx context.Context, before int64, limit int) ([]Transfer, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT key, cdn, uploaded_at FROM transfers
		WHERE deleted_at IS NULL AND uploaded_at < ?
		ORDER BY uploaded_at LIMIT ?`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.Key, &t.CDN, &t.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (db *DB) MarkTransferDeleted(ctx context.Context, key string, at int64) error {
	_, err := db.ExecContext(ctx, `UPDATE transfers SET deleted_at = ? WHERE key = ?`, at, key)
	if err != nil {
		return fmt.Errorf("mark transfer deleted: %w", err)
	}
	return nil
}
