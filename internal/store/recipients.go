package store

import (
	"context"
	"fmt"
	"time"
)

const recipientColumns = `id, kind, aci, e164, group_id, profile_name`

func scanRecipient(row interface{ Scan(...any) error }) (*Recipient, error) {
	var r Recipient
	if err := row.Scan(&r.RowID, &r.Kind, &r.ACI, &r.E164, &r.GroupID, &r.ProfileName); err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertRecipient inserts r, or updates the existing row with the same ACI
// or group id, and sets r.RowID.
func (t *Tx) InsertRecipient(ctx context.Context, r *Recipient) error {
	now := time.Now().UnixMilli()
	var conflict string
	switch {
	case r.ACI != "":
		conflict = `ON CONFLICT(aci) WHERE aci != '' DO UPDATE SET
			e164 = CASE WHEN excluded.e164 != '' THEN excluded.e164 ELSE recipients.e164 END,
			profile_name = CASE WHEN excluded.profile_name != '' THEN excluded.profile_name ELSE recipients.profile_name END`
	case r.GroupID != "":
		conflict = `ON CONFLICT(group_id) WHERE group_id != '' DO UPDATE SET
			profile_name = CASE WHEN excluded.profile_name != '' THEN excluded.profile_name ELSE recipients.profile_name END`
	}
	row := t.tx.QueryRowContext(ctx, `
		INSERT INTO recipients (kind, aci, e164, group_id, profile_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?) `+conflict+`
		RETURNING id`,
		r.Kind, r.ACI, r.E164, r.GroupID, r.ProfileName, now)
	if err := row.Scan(&r.RowID); err != nil {
		return fmt.Errorf("insert recipient: %w", err)
	}
	return nil
}

// EnumerateRecipients calls fn for every recipient in row order.
func (t *Tx) EnumerateRecipients(ctx context.Context, fn func(*Recipient) error) error {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+recipientColumns+` FROM recipients ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("query recipients: %w", err)
	}
	var recipients []*Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, r := range recipients {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// ListRecipients returns all recipients.
func (db *DB) ListRecipients(ctx context.Context) ([]Recipient, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+recipientColumns+` FROM recipients ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
