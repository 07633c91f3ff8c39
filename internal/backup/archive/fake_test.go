package archive

import (
	"context"
	"errors"
	"sort"

	"github.com/matheus3301/wpplink/internal/backup/frame"
	"github.com/matheus3301/wpplink/internal/store"
)

// fakeStore is an in-memory ReadTx and WriteTx.
type fakeStore struct {
	recipients   []*store.Recipient
	threads      []*store.Thread
	interactions []*store.Interaction

	enumErr   error
	revErr    error
	insertErr error
}

func (s *fakeStore) EnumerateRecipients(_ context.Context, fn func(*store.Recipient) error) error {
	for _, r := range s.recipients {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) EnumerateThreads(_ context.Context, fn func(*store.Thread) error) error {
	for _, t := range s.threads {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) EnumerateInteractions(_ context.Context, fn func(*store.Interaction) error) error {
	if s.enumErr != nil {
		return s.enumErr
	}
	for _, i := range s.interactions {
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) PastRevisions(_ context.Context, latest *store.Interaction) ([]*store.Interaction, error) {
	if s.revErr != nil {
		return nil, s.revErr
	}
	var out []*store.Interaction
	for _, i := range s.interactions {
		if i.EditState == store.EditPast && i.EditTargetUniqueID == latest.UniqueID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Timestamp < out[b].Timestamp })
	return out, nil
}

func (s *fakeStore) ThreadByUniqueID(_ context.Context, uid string) (*store.Thread, error) {
	for _, t := range s.threads {
		if t.UniqueID == uid {
			return t, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertRecipient(_ context.Context, r *store.Recipient) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	r.RowID = int64(len(s.recipients) + 1)
	s.recipients = append(s.recipients, r)
	return nil
}

func (s *fakeStore) InsertThread(_ context.Context, t *store.Thread) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	t.RowID = int64(len(s.threads) + 1)
	s.threads = append(s.threads, t)
	return nil
}

func (s *fakeStore) InsertInteraction(_ context.Context, i *store.Interaction) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	i.RowID = int64(len(s.interactions) + 1)
	s.interactions = append(s.interactions, i)
	return nil
}

// recorder is a frame.Writer that keeps what it was given.
type recorder struct {
	items  []frame.Item
	failOn func(frame.Item) bool
}

var errWrite = errors.New("disk full")

func (r *recorder) WriteFrame(it frame.Item) error {
	if r.failOn != nil && r.failOn(it) {
		return errWrite
	}
	r.items = append(r.items, it)
	return nil
}

func (r *recorder) chatItems() []*frame.ChatItem {
	var out []*frame.ChatItem
	for _, it := range r.items {
		if ci, ok := it.(*frame.ChatItem); ok {
			out = append(out, ci)
		}
	}
	return out
}

const (
	selfACI = "aci-self"
	anaACI  = "aci-ana"
	bobACI  = "aci-bob"
)

// baseStore has the local account, two contacts, a 1:1 thread with Ana, a
// group thread and a legacy group thread.
func baseStore() *fakeStore {
	return &fakeStore{
		recipients: []*store.Recipient{
			{RowID: 1, Kind: store.RecipientSelf, ACI: selfACI},
			{RowID: 2, Kind: store.RecipientContact, ACI: anaACI, E164: "+15550001", ProfileName: "Ana"},
			{RowID: 3, Kind: store.RecipientContact, ACI: bobACI, ProfileName: "Bob"},
			{RowID: 4, Kind: store.RecipientGroup, GroupID: "g-2", ProfileName: "Crew"},
			{RowID: 5, Kind: store.RecipientReleaseNotes},
		},
		threads: []*store.Thread{
			{RowID: 1, UniqueID: "t-ana", Kind: store.ThreadContact, ContactACI: anaACI},
			{RowID: 2, UniqueID: "t-crew", Kind: store.ThreadGroupV2, GroupID: "g-2"},
			{RowID: 3, UniqueID: "t-old", Kind: store.ThreadGroupV1, GroupID: "g-1"},
		},
	}
}

// exportContexts runs the recipient and chat archivers, as a backup would.
func exportContexts(s *fakeStore, w frame.Writer) *ChatArchivingContext {
	ctx := context.Background()
	rctx := NewRecipientArchivingContext()
	RecipientArchiver{}.Archive(ctx, w, rctx, s)
	actx := NewChatArchivingContext(rctx)
	ChatArchiver{}.Archive(ctx, w, actx, s)
	return actx
}

// restoreContexts replays recipient and chat frames into s.
func restoreContexts(items []frame.Item, s *fakeStore) *ChatRestoringContext {
	ctx := context.Background()
	rctx := NewRecipientRestoringContext(selfACI)
	cctx := NewChatRestoringContext(rctx)
	for _, it := range items {
		switch v := it.(type) {
		case *frame.Recipient:
			RecipientArchiver{}.Restore(ctx, v, rctx, s)
		case *frame.Chat:
			ChatArchiver{}.Restore(ctx, v, cctx, s)
		}
	}
	return cctx
}
