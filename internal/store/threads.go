package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const threadColumns = `id, unique_id, kind, contact_aci, group_id`

func scanThread(row interface{ Scan(...any) error }) (*Thread, error) {
	var t Thread
	if err := row.Scan(&t.RowID, &t.UniqueID, &t.Kind, &t.ContactACI, &t.GroupID); err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertThread inserts t and sets its RowID.
func (t *Tx) InsertThread(ctx context.Context, th *Thread) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO threads (unique_id, kind, contact_aci, group_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		th.UniqueID, th.Kind, th.ContactACI, th.GroupID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert thread %q: %w", th.UniqueID, err)
	}
	th.RowID, err = res.LastInsertId()
	return err
}

// ThreadByUniqueID returns the thread, or nil if it does not exist.
func (t *Tx) ThreadByUniqueID(ctx context.Context, uniqueID string) (*Thread, error) {
	th, err := scanThread(t.tx.QueryRowContext(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE unique_id = ?`, uniqueID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %q: %w", uniqueID, err)
	}
	return th, nil
}

// EnumerateThreads calls fn for every thread in row order. A non-nil error
// from fn stops enumeration and is returned unchanged.
func (t *Tx) EnumerateThreads(ctx context.Context, fn func(*Thread) error) error {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+threadColumns+` FROM threads ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("query threads: %w", err)
	}
	var threads []*Thread
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, th)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, th := range threads {
		if err := fn(th); err != nil {
			return err
		}
	}
	return nil
}

// ListThreads returns all threads.
func (db *DB) ListThreads(ctx context.Context) ([]Thread, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+threadColumns+` FROM threads ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var threads []Thread
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, *th)
	}
	return threads, rows.Err()
}
