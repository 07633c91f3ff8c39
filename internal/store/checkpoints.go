package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Checkpoint keys recorded by the backup manager.
const (
	CheckpointLastExport = "backup.last_export"
	CheckpointLastImport = "backup.last_import"
)

// GetCheckpoint returns a stored value, or "" if the key is not set.
func (db *DB) GetCheckpoint(ctx context.Context, key string) (string, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM checkpoints WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get checkpoint %s: %w", key, err)
	}
	return v, nil
}

// SetCheckpoint stores value under key.
func (db *DB) SetCheckpoint(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO checkpoints (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w", key, err)
	}
	return nil
}
