package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/wpplink/internal/backup/frame"
	"github.com/matheus3301/wpplink/internal/store"
	"go.uber.org/zap"
)

// DefaultMinExpireThreshold is how long a disappearing message must still
// have to live for it to be exported.
const DefaultMinExpireThreshold = 24 * time.Hour

// Details is the per-kind part of a chat item frame.
type Details struct {
	AuthorID        uint64
	DateSent        uint64
	ExpireStartDate uint64
	ExpiresInMs     uint64
	SMS             bool
	Directional     frame.Directional
	Payload         frame.Payload
	Revisions       []*frame.ChatItem
}

func (d *Details) chatItem(chatID uint64) *frame.ChatItem {
	ci := &frame.ChatItem{
		ChatID:          chatID,
		AuthorID:        d.AuthorID,
		DateSent:        d.DateSent,
		ExpireStartDate: d.ExpireStartDate,
		ExpiresInMs:     d.ExpiresInMs,
		SMS:             d.SMS,
		Directional:     d.Directional,
		Payload:         d.Payload,
	}
	for _, rev := range d.Revisions {
		rev.ChatID = chatID
		ci.Revisions = append(ci.Revisions, rev)
	}
	return ci
}

// expiresBefore reports whether the item disappears before cutoff (ms).
func (d *Details) expiresBefore(cutoff uint64) bool {
	if d.ExpiresInMs == 0 || d.ExpireStartDate == 0 {
		return false
	}
	return d.ExpireStartDate+d.ExpiresInMs < cutoff
}

// ChatItemArchiver exports all interactions as chat item frames and restores
// them one frame at a time.
type ChatItemArchiver struct {
	messages           MessageArchiver
	updates            UpdateArchiver
	minExpireThreshold time.Duration
	now                func() time.Time
	logger             *zap.Logger
}

type Option func(*ChatItemArchiver)

func WithMinExpireThreshold(d time.Duration) Option {
	return func(a *ChatItemArchiver) { a.minExpireThreshold = d }
}

func WithClock(now func() time.Time) Option {
	return func(a *ChatItemArchiver) { a.now = now }
}

func NewChatItemArchiver(logger *zap.Logger, opts ...Option) *ChatItemArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &ChatItemArchiver{
		minExpireThreshold: DefaultMinExpireThreshold,
		now:                time.Now,
		logger:             logger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

var errAbort = errors.New("abort")

// ArchiveInteractions writes a frame for every exportable interaction.
// Problems with a single interaction are collected and never stop the walk;
// only a failing enumeration or a complete failure from a per-kind archiver
// does.
func (a *ChatItemArchiver) ArchiveInteractions(ctx context.Context, w frame.Writer, actx *ChatArchivingContext, tx ReadTx) MultiFrameResult {
	var (
		errs    []*FrameError
		fatal   *FrameError
		frames  int
		threads = make(map[string]*store.Thread)
		cutoff  = uint64(a.now().Add(a.minExpireThreshold).UnixMilli())
	)

	err := tx.EnumerateInteractions(ctx, func(in *store.Interaction) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		thread, ok := threads[in.ThreadUniqueID]
		if !ok {
			t, err := tx.ThreadByUniqueID(ctx, in.ThreadUniqueID)
			if err != nil {
				errs = append(errs, frameErr(in.UniqueID, ErrDatabase, "load thread: %v", err))
				return nil
			}
			thread = t
			threads[in.ThreadUniqueID] = t
		}
		if thread == nil {
			errs = append(errs, frameErr(in.UniqueID, ErrReferencedThreadMissing, "thread %s", in.ThreadUniqueID))
			return nil
		}
		if thread.Kind == store.ThreadGroupV1 {
			return nil
		}
		chatID, ok := actx.ChatID(thread.UniqueID)
		if !ok {
			errs = append(errs, frameErr(in.UniqueID, ErrReferencedChatMissing, "thread %s", thread.UniqueID))
			return nil
		}

		var res ItemResult
		switch in.Kind {
		case store.KindIncomingMessage, store.KindOutgoingMessage:
			res = a.messages.Archive(ctx, in, actx.Recipients(), tx)
		case store.KindInfoMessage, store.KindErrorMessage, store.KindIndividualCall, store.KindGroupCall:
			res = a.updates.Archive(in, actx.Recipients())
		default:
			a.logger.Debug("skipping interaction of unknown kind",
				zap.String("id", in.UniqueID), zap.String("kind", string(in.Kind)))
			return nil
		}

		switch res.Outcome {
		case ItemSuccess:
		case ItemPastRevision, ItemSkippableUpdate, ItemNotYetImplemented:
			return nil
		case ItemMessageFailure:
			errs = append(errs, res.Errors...)
			return nil
		case ItemPartialFailure:
			errs = append(errs, res.Errors...)
		case ItemCompleteFailure:
			if len(res.Errors) > 0 {
				fatal = res.Errors[0]
			} else {
				fatal = frameErr(in.UniqueID, ErrDeveloper, "complete failure without error")
			}
			return errAbort
		default:
			fatal = frameErr(in.UniqueID, ErrDeveloper, "unhandled item outcome %d", res.Outcome)
			return errAbort
		}

		if res.Details.expiresBefore(cutoff) {
			return nil
		}
		if err := w.WriteFrame(res.Details.chatItem(chatID)); err != nil {
			errs = append(errs, frameErr(in.UniqueID, ErrFrameWrite, "%v", err))
			return nil
		}
		frames++
		return nil
	})

	if fatal != nil {
		return completeFailure(fatal)
	}
	if err != nil {
		return completeFailure(frameErr("", ErrEnumeration, "%v", err))
	}
	return collected(frames, errs)
}

// Restore inserts one chat item. Items authored by the release notes sender
// are dropped: restoring them is not supported.
func (a *ChatItemArchiver) Restore(ctx context.Context, item *frame.ChatItem, rctx *ChatRestoringContext, tx WriteTx) RestoreResult {
	label := fmt.Sprintf("chat_item:%d/%d", item.ChatID, item.DateSent)
	recipients := rctx.Recipients()

	if recipients.IsReleaseNotes(item.AuthorID) {
		return restored()
	}

	threadUID, ok := rctx.ThreadUniqueID(item.ChatID)
	if !ok {
		return restoreFailed(frameErr(label, ErrChatIDNotFound, "chat %d", item.ChatID))
	}
	thread, err := tx.ThreadByUniqueID(ctx, threadUID)
	if err != nil {
		return restoreFailed(frameErr(label, ErrDatabase, "load thread: %v", err))
	}
	if thread == nil || thread.RowID == 0 {
		return restoreFailed(frameErr(label, ErrReferencedChatThreadNotFound, "thread %s", threadUID))
	}

	switch thread.Kind {
	case store.ThreadContact, store.ThreadGroupV2:
	default:
		return restoreFailed(frameErr(label, ErrDeveloper, "chat item in %q thread", thread.Kind))
	}

	switch item.Directional.(type) {
	case nil:
		return restoreFailed(frameErr(label, ErrInvalidProtoData, "missing directional details"))
	case *frame.Incoming, *frame.Outgoing:
		if _, isUpdate := item.Payload.(*frame.UpdateMessage); isUpdate {
			return restoreFailed(frameErr(label, ErrInvalidCombination, "update message with direction"))
		}
		return a.messages.Restore(ctx, item, thread, label, recipients, tx)
	case *frame.Directionless:
		if _, isUpdate := item.Payload.(*frame.UpdateMessage); !isUpdate {
			return restoreFailed(frameErr(label, ErrInvalidCombination, "directionless %T", item.Payload))
		}
		return a.updates.Restore(ctx, item, thread, label, recipients, tx)
	default:
		return restoreFailed(frameErr(label, ErrDeveloper, "unhandled directional %T", item.Directional))
	}
}
