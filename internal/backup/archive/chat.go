package archive

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/wpplink/internal/backup/frame"
	"github.com/matheus3301/wpplink/internal/store"
)

// ChatArchiver exports and restores chat frames.
type ChatArchiver struct{}

// Archive writes one frame per thread and fills actx. Legacy group threads
// are left out of backups.
func (ChatArchiver) Archive(ctx context.Context, w frame.Writer, actx *ChatArchivingContext, tx ReadTx) MultiFrameResult {
	var (
		errs   []*FrameError
		frames int
		rows   []*store.Thread
	)
	err := tx.EnumerateThreads(ctx, func(t *store.Thread) error {
		rows = append(rows, t)
		return nil
	})
	if err != nil {
		return completeFailure(frameErr("chats", ErrEnumeration, "%v", err))
	}

	recipients := actx.Recipients()
	for _, t := range rows {
		var (
			recipientID uint64
			ok          bool
		)
		switch t.Kind {
		case store.ThreadGroupV1:
			continue
		case store.ThreadContact:
			if t.ContactACI == "" {
				recipientID, ok = recipients.SelfID(), recipients.SelfID() != 0
			} else {
				recipientID, ok = recipients.IDForACI(t.ContactACI)
			}
		case store.ThreadGroupV2:
			recipientID, ok = recipients.IDForGroup(t.GroupID)
		default:
			errs = append(errs, frameErr(t.UniqueID, ErrInvalidProtoData, "unknown thread kind %q", t.Kind))
			continue
		}
		if !ok {
			errs = append(errs, frameErr(t.UniqueID, ErrReferencedRecipientMissing, ""))
			continue
		}

		chatID := actx.next + 1
		if err := w.WriteFrame(&frame.Chat{ID: chatID, RecipientID: recipientID}); err != nil {
			errs = append(errs, frameErr(t.UniqueID, ErrFrameWrite, "%v", err))
			continue
		}
		actx.assign(t.UniqueID)
		frames++
	}
	return collected(frames, errs)
}

// Restore creates a thread for the chat and records it in rctx.
func (ChatArchiver) Restore(ctx context.Context, c *frame.Chat, rctx *ChatRestoringContext, tx WriteTx) RestoreResult {
	label := fmt.Sprintf("chat:%d", c.ID)
	if c.ID == 0 {
		return restoreFailed(frameErr(label, ErrInvalidProtoData, "missing id"))
	}
	r, ok := rctx.Recipients().Recipient(c.RecipientID)
	if !ok {
		return restoreFailed(frameErr(label, ErrRecipientIDNotFound, "recipient %d", c.RecipientID))
	}

	t := &store.Thread{UniqueID: uuid.NewString()}
	switch r.Kind {
	case store.RecipientSelf, store.RecipientContact:
		t.Kind = store.ThreadContact
		t.ContactACI = r.ACI
	case store.RecipientGroup:
		t.Kind = store.ThreadGroupV2
		t.GroupID = r.GroupID
	case store.RecipientReleaseNotes:
		// Release notes items are dropped on restore, so the chat is too.
		return restored()
	default:
		return restoreFailed(frameErr(label, ErrDeveloper, "unhandled recipient kind %q", r.Kind))
	}

	if err := tx.InsertThread(ctx, t); err != nil {
		return restoreFailed(frameErr(label, ErrDatabase, "%v", err))
	}
	rctx.add(c.ID, t.UniqueID)
	return restored()
}
