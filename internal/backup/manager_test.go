package backup

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wpplink/internal/backup/archive"
	"github.com/matheus3301/wpplink/internal/backup/frame"
	"github.com/matheus3301/wpplink/internal/bus"
	"github.com/matheus3301/wpplink/internal/cryptox"
	"github.com/matheus3301/wpplink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T, name string) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *store.Tx) error {
		recipients := []*store.Recipient{
			{Kind: store.RecipientSelf, ACI: "aci-self"},
			{Kind: store.RecipientContact, ACI: "aci-ana", ProfileName: "Ana"},
			{Kind: store.RecipientGroup, GroupID: "g-2", ProfileName: "Crew"},
		}
		for _, r := range recipients {
			if err := tx.InsertRecipient(ctx, r); err != nil {
				return err
			}
		}
		threads := []*store.Thread{
			{UniqueID: "t-ana", Kind: store.ThreadContact, ContactACI: "aci-ana"},
			{UniqueID: "t-crew", Kind: store.ThreadGroupV2, GroupID: "g-2"},
			{UniqueID: "t-old", Kind: store.ThreadGroupV1, GroupID: "g-1"},
		}
		for _, th := range threads {
			if err := tx.InsertThread(ctx, th); err != nil {
				return err
			}
		}
		interactions := []*store.Interaction{
			{UniqueID: "m1", ThreadUniqueID: "t-ana", Kind: store.KindIncomingMessage, AuthorACI: "aci-ana", Timestamp: 1000, Body: "hi"},
			{UniqueID: "m2", ThreadUniqueID: "t-ana", Kind: store.KindOutgoingMessage, Timestamp: 1100, Body: "hello",
				SendStates: []store.SendState{{RecipientACI: "aci-ana", Status: "read", Timestamp: 1200}}},
			{UniqueID: "m3", ThreadUniqueID: "t-crew", Kind: store.KindInfoMessage, Timestamp: 1300,
				UpdateKind: store.UpdateExpirationTimer, Update: &store.UpdateInfo{ExpiresInMs: 86_400_000}},
			{UniqueID: "m4", ThreadUniqueID: "t-old", Kind: store.KindIncomingMessage, AuthorACI: "aci-ana", Timestamp: 1400, Body: "legacy"},
			{UniqueID: "m5", ThreadUniqueID: "t-missing", Kind: store.KindIncomingMessage, AuthorACI: "aci-ana", Timestamp: 1500, Body: "orphan"},
		}
		for _, i := range interactions {
			if err := tx.InsertInteraction(ctx, i); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := testDB(t, "src.db")
	seed(t, src)

	b := bus.New()
	events, unsub := b.Subscribe(4, "backup.")
	defer unsub()

	var buf bytes.Buffer
	res, err := NewManager(src, 0, nil, nil, b).Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, archive.PartialSuccess, res.Outcome)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], archive.ErrReferencedThreadMissing)
	// self, ana, group + 2 chats + 3 chat items
	assert.Equal(t, 8, res.Frames)

	evt := <-events
	assert.Equal(t, bus.KindBackupExported, evt.Kind)
	assert.Equal(t, Result{Outcome: "partial_success", Frames: 8, Errors: 1}, evt.Payload)

	last, err := src.GetCheckpoint(ctx, store.CheckpointLastExport)
	require.NoError(t, err)
	assert.NotEmpty(t, last)

	dst := testDB(t, "dst.db")
	summary, err := NewManager(dst, 0, nil, nil, b).Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Recipients)
	assert.Equal(t, 2, summary.Chats)
	assert.Equal(t, 3, summary.ChatItems)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, archive.Success, summary.Outcome())

	evt = <-events
	assert.Equal(t, bus.KindBackupImported, evt.Kind)

	threads, err := dst.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)

	var ana store.Thread
	for _, th := range threads {
		if th.ContactACI == "aci-ana" {
			ana = th
		}
	}
	msgs, err := dst.ListInteractions(ctx, ana.UniqueID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Body)
	assert.Equal(t, store.KindIncomingMessage, msgs[0].Kind)
	assert.Equal(t, "hello", msgs[1].Body)
	require.Len(t, msgs[1].SendStates, 1)
	assert.Equal(t, "read", msgs[1].SendStates[0].Status)
}

func TestEncryptedRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := testDB(t, "src.db")
	seed(t, src)
	key, err := cryptox.GenerateKey()
	require.NoError(t, err)

	payload, err := NewManager(src, time.Hour, nil, nil, nil).ExportEncrypted(ctx, key)
	require.NoError(t, err)

	dst := testDB(t, "dst.db")
	summary, err := NewManager(dst, 0, nil, nil, nil).ImportEncrypted(ctx, payload, key)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ChatItems)

	other, _ := cryptox.GenerateKey()
	_, err = NewManager(testDB(t, "x.db"), 0, nil, nil, nil).ImportEncrypted(ctx, payload, other)
	assert.Error(t, err)
}

func stream(t *testing.T, info *frame.BackupInfo, items ...frame.Item) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := frame.NewStreamWriter(&buf)
	require.NoError(t, w.WriteHeader(info))
	for _, it := range items {
		require.NoError(t, w.WriteFrame(it))
	}
	return &buf
}

func TestImportRejectsFutureVersion(t *testing.T) {
	db := testDB(t, "dst.db")
	_, err := NewManager(db, 0, nil, nil, nil).Import(context.Background(), stream(t, &frame.BackupInfo{Version: frame.Version + 1}))
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestImportRejectsOutOfOrderFramesAndRollsBack(t *testing.T) {
	ctx := context.Background()
	db := testDB(t, "dst.db")
	buf := stream(t, &frame.BackupInfo{Version: frame.Version},
		&frame.Recipient{ID: 1, Destination: &frame.Self{}},
		&frame.Recipient{ID: 2, Destination: &frame.Contact{ACI: "aci-ana"}},
		&frame.Chat{ID: 1, RecipientID: 2},
		&frame.Recipient{ID: 3, Destination: &frame.Contact{ACI: "aci-bob"}},
	)

	_, err := NewManager(db, 0, nil, nil, nil).Import(ctx, buf)
	require.ErrorIs(t, err, ErrFrameOrder)

	threads, err := db.ListThreads(ctx)
	require.NoError(t, err)
	assert.Empty(t, threads)
	recipients, err := db.ListRecipients(ctx)
	require.NoError(t, err)
	assert.Empty(t, recipients)
}

func TestImportCollectsPerItemFailures(t *testing.T) {
	ctx := context.Background()
	db := testDB(t, "dst.db")
	buf := stream(t, &frame.BackupInfo{Version: frame.Version},
		&frame.Recipient{ID: 1, Destination: &frame.Self{}},
		&frame.Recipient{ID: 2, Destination: &frame.Contact{ACI: "aci-ana"}},
		&frame.Chat{ID: 1, RecipientID: 2},
		&frame.ChatItem{ChatID: 1, AuthorID: 2, DateSent: 1, Payload: &frame.StandardMessage{Text: "no direction"}},
		&frame.ChatItem{ChatID: 9, AuthorID: 2, DateSent: 2, Directional: &frame.Incoming{}, Payload: &frame.StandardMessage{Text: "no chat"}},
		&frame.ChatItem{ChatID: 1, AuthorID: 2, DateSent: 3, Directional: &frame.Incoming{}, Payload: &frame.StandardMessage{Text: "fine"}},
	)

	summary, err := NewManager(db, 0, nil, nil, nil).Import(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ChatItems)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, archive.PartialSuccess, summary.Outcome())

	n, err := db.CountInteractions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImportEmptyStream(t *testing.T) {
	db := testDB(t, "dst.db")
	_, err := NewManager(db, 0, nil, nil, nil).Import(context.Background(), bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestExportSkipsUndecodableInteraction(t *testing.T) {
	ctx := context.Background()
	src := testDB(t, "src.db")
	seed(t, src)
	_, err := src.ExecContext(ctx, `UPDATE interactions SET content = 'not json' WHERE unique_id = 'm2'`)
	require.NoError(t, err)

	var buf bytes.Buffer
	res, err := NewManager(src, 0, nil, nil, nil).Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, archive.PartialSuccess, res.Outcome)
	require.Len(t, res.Errors, 2)
	assert.ErrorIs(t, res.Errors[0], archive.ErrInvalidProtoData)
	assert.Equal(t, "m2", res.Errors[0].ID)
	assert.ErrorIs(t, res.Errors[1], archive.ErrReferencedThreadMissing)
	// self, ana, group + 2 chats + m1 and m3
	assert.Equal(t, 7, res.Frames)

	summary, err := NewManager(testDB(t, "dst.db"), 0, nil, nil, nil).Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ChatItems)
}

func TestSelfReferencesSurviveRestore(t *testing.T) {
	ctx := context.Background()
	src := testDB(t, "src.db")
	seed(t, src)
	err := src.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertInteraction(ctx, &store.Interaction{
			UniqueID: "m6", ThreadUniqueID: "t-ana", Kind: store.KindIncomingMessage, AuthorACI: "aci-ana",
			Timestamp: 1600, Body: "agreed",
			Quote: &store.Quote{AuthorACI: "aci-self", TargetTimestamp: 1100, Text: "hello"},
		}); err != nil {
			return err
		}
		return tx.InsertInteraction(ctx, &store.Interaction{
			UniqueID: "m7", ThreadUniqueID: "t-crew", Kind: store.KindGroupCall, Timestamp: 1700,
			Call: &store.CallInfo{CallID: 4, State: "joined", StartedByACI: "aci-self", StartedAt: 1700, EndedAt: 1800},
		})
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = NewManager(src, 0, nil, nil, nil).Export(ctx, &buf)
	require.NoError(t, err)

	dst := testDB(t, "dst.db")
	summary, err := NewManager(dst, 0, nil, nil, nil).WithSelfACI("aci-self").Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, archive.Success, summary.Outcome())

	threads, err := dst.ListThreads(ctx)
	require.NoError(t, err)
	var quote *store.Quote
	var call *store.CallInfo
	for _, th := range threads {
		msgs, err := dst.ListInteractions(ctx, th.UniqueID, 0)
		require.NoError(t, err)
		for _, m := range msgs {
			if m.Quote != nil {
				quote = m.Quote
			}
			if m.Call != nil {
				call = m.Call
			}
		}
	}
	require.NotNil(t, quote)
	assert.Equal(t, "aci-self", quote.AuthorACI)
	require.NotNil(t, call)
	assert.Equal(t, "aci-self", call.StartedByACI)

	// A second hop keeps both references.
	var again bytes.Buffer
	res, err := NewManager(dst, 0, nil, nil, nil).Export(ctx, &again)
	require.NoError(t, err)
	assert.Equal(t, archive.Success, res.Outcome, "errors: %v", res.Errors)
}
