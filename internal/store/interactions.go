package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// enumeratePageSize bounds how many interactions are held in memory at once
// while enumerating. Callers may issue nested queries from the callback.
const enumeratePageSize = 500

const interactionColumns = `id, unique_id, thread_unique_id, kind, timestamp, received_at,
	server_timestamp, author_aci, body, content, remote_deleted, expire_started_at,
	expires_in_ms, is_sms, read, edit_state, edit_target_unique_id, update_kind`

// content is the JSON shape of the interactions.content column.
type content struct {
	Quote      *Quote        `json:"quote,omitempty"`
	Contacts   []ContactCard `json:"contacts,omitempty"`
	Sticker    *Sticker      `json:"sticker,omitempty"`
	Payment    *Payment      `json:"payment,omitempty"`
	GiftBadge  *GiftBadge    `json:"gift_badge,omitempty"`
	Update     *UpdateInfo   `json:"update,omitempty"`
	Call       *CallInfo     `json:"call,omitempty"`
	SendStates []SendState   `json:"send_states,omitempty"`
}

func encodeContent(i *Interaction) (string, error) {
	b, err := json.Marshal(content{
		Quote:      i.Quote,
		Contacts:   i.Contacts,
		Sticker:    i.Sticker,
		Payment:    i.Payment,
		GiftBadge:  i.GiftBadge,
		Update:     i.Update,
		Call:       i.Call,
		SendStates: i.SendStates,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func scanInteraction(row interface{ Scan(...any) error }) (*Interaction, error) {
	var (
		i   Interaction
		raw string
	)
	err := row.Scan(&i.RowID, &i.UniqueID, &i.ThreadUniqueID, &i.Kind, &i.Timestamp,
		&i.ReceivedAt, &i.ServerTimestamp, &i.AuthorACI, &i.Body, &raw, &i.RemoteDeleted,
		&i.ExpireStartedAt, &i.ExpiresInMs, &i.IsSMS, &i.Read, &i.EditState,
		&i.EditTargetUniqueID, &i.UpdateKind)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		var c content
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			i.ContentErr = fmt.Errorf("decode content of %s: %w", i.UniqueID, err)
			return &i, nil
		}
		i.Quote = c.Quote
		i.Contacts = c.Contacts
		i.Sticker = c.Sticker
		i.Payment = c.Payment
		i.GiftBadge = c.GiftBadge
		i.Update = c.Update
		i.Call = c.Call
		i.SendStates = c.SendStates
	}
	return &i, nil
}

// InsertInteraction inserts i and sets its RowID.
func (t *Tx) InsertInteraction(ctx context.Context, i *Interaction) error {
	raw, err := encodeContent(i)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO interactions (unique_id, thread_unique_id, kind, timestamp, received_at,
			server_timestamp, author_aci, body, content, remote_deleted, expire_started_at,
			expires_in_ms, is_sms, read, edit_state, edit_target_unique_id, update_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.UniqueID, i.ThreadUniqueID, i.Kind, i.Timestamp, i.ReceivedAt,
		i.ServerTimestamp, i.AuthorACI, i.Body, raw, i.RemoteDeleted, i.ExpireStartedAt,
		i.ExpiresInMs, i.IsSMS, i.Read, i.EditState, i.EditTargetUniqueID, i.UpdateKind,
		time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert interaction %q: %w", i.UniqueID, err)
	}
	i.RowID, err = res.LastInsertId()
	return err
}

// EnumerateInteractions calls fn for every interaction in row order. Rows are
// loaded a page at a time so fn may run queries on the same transaction.
// Past edit revisions are included; callers decide what to do with them.
func (t *Tx) EnumerateInteractions(ctx context.Context, fn func(*Interaction) error) error {
	var after int64
	for {
		page, err := t.interactionPage(ctx, after)
		if err != nil {
			return err
		}
		for _, i := range page {
			if err := fn(i); err != nil {
				return err
			}
		}
		if len(page) < enumeratePageSize {
			return nil
		}
		after = page[len(page)-1].RowID
	}
}

func (t *Tx) interactionPage(ctx context.Context, after int64) ([]*Interaction, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+interactionColumns+` FROM interactions
		WHERE id > ? ORDER BY id ASC LIMIT ?`, after, enumeratePageSize)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectInteractions(rows)
}

// PastRevisions returns the superseded revisions of an edited message,
// oldest first.
func (t *Tx) PastRevisions(ctx context.Context, latest *Interaction) ([]*Interaction, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+interactionColumns+` FROM interactions
		WHERE edit_target_unique_id = ? AND edit_state = ?
		ORDER BY timestamp ASC, id ASC`, latest.UniqueID, EditPast)
	if err != nil {
		return nil, fmt.Errorf("query revisions of %s: %w", latest.UniqueID, err)
	}
	defer func() { _ = rows.Close() }()
	return collectInteractions(rows)
}

func collectInteractions(rows *sql.Rows) ([]*Interaction, error) {
	var out []*Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// ListInteractions returns the interactions of a thread ordered by timestamp.
func (db *DB) ListInteractions(ctx context.Context, threadUniqueID string, limit int) ([]*Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+interactionColumns+` FROM interactions
		WHERE thread_unique_id = ? ORDER BY timestamp ASC, id ASC LIMIT ?`, threadUniqueID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectInteractions(rows)
}

// CountInteractions returns the number of stored interactions.
func (db *DB) CountInteractions(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n)
	return n, err
}
