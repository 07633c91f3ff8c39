package store

import (
	"context"
	"fmt"
)

// JournalEntry records one finished backup or link session.
type JournalEntry struct {
	ID        int64
	Kind      string
	Role      string
	SessionID string
	Outcome   string
	Detail    string
	CreatedAt int64
}

func (db *DB) InsertJournalEntry(ctx context.Context, e *JournalEntry) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO journal (kind, role, session_id, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Kind, e.Role, e.SessionID, e.Outcome, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// RecentJournal returns up to limit entries, newest first.
func (db *DB) RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, role, session_id, outcome, detail, created_at
		FROM journal ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Role, &e.SessionID, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
