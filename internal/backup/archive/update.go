package archive

import (
	"context"

	"github.com/google/uuid"
	"github.com/matheus3301/wpplink/internal/backup/frame"
	"github.com/matheus3301/wpplink/internal/store"
)

// UpdateArchiver handles info, error and call records. They are always
// directionless.
type UpdateArchiver struct{}

func (UpdateArchiver) Archive(in *store.Interaction, recipients *RecipientArchivingContext) ItemResult {
	if in.ContentErr != nil {
		return itemMessageFailure(frameErr(in.UniqueID, ErrInvalidProtoData, "%v", in.ContentErr))
	}
	var errs []*FrameError

	authorID := recipients.SelfID()
	if in.AuthorACI != "" {
		id, ok := recipients.IDForACI(in.AuthorACI)
		if !ok {
			return itemMessageFailure(frameErr(in.UniqueID, ErrReferencedRecipientMissing, "author %s", in.AuthorACI))
		}
		authorID = id
	}
	if authorID == 0 {
		return itemMessageFailure(frameErr(in.UniqueID, ErrReferencedRecipientMissing, "self"))
	}

	var update frame.Update
	switch in.Kind {
	case store.KindIndividualCall:
		c := in.Call
		if c == nil {
			return itemMessageFailure(frameErr(in.UniqueID, ErrInvalidProtoData, "call without details"))
		}
		state, ok := callStates[c.State]
		if !ok {
			return itemMessageFailure(frameErr(in.UniqueID, ErrInvalidProtoData, "call state %q", c.State))
		}
		u := &frame.IndividualCallUpdate{
			CallID:    c.CallID,
			Type:      frame.CallAudio,
			Direction: frame.CallIncoming,
			State:     state,
			StartedAt: c.StartedAt,
		}
		if c.Video {
			u.Type = frame.CallVideo
		}
		if c.Outgoing {
			u.Direction = frame.CallOutgoing
		}
		update = u
	case store.KindGroupCall:
		c := in.Call
		if c == nil {
			return itemMessageFailure(frameErr(in.UniqueID, ErrInvalidProtoData, "call without details"))
		}
		state, ok := callStates[c.State]
		if !ok {
			return itemMessageFailure(frameErr(in.UniqueID, ErrInvalidProtoData, "call state %q", c.State))
		}
		u := &frame.GroupCallUpdate{CallID: c.CallID, State: state, StartedAt: c.StartedAt, EndedAt: c.EndedAt}
		if c.StartedByACI != "" {
			if id, ok := recipients.IDForACI(c.StartedByACI); ok {
				u.StartedByRecipientID = id
			} else {
				errs = append(errs, frameErr(in.UniqueID, ErrReferencedRecipientMissing, "call starter %s", c.StartedByACI))
			}
		}
		update = u
	case store.KindInfoMessage, store.KindErrorMessage:
		switch in.UpdateKind {
		case store.UpdateTypingIndicators, store.UpdateUnknownProtocolVersion:
			return ItemResult{Outcome: ItemSkippableUpdate}
		case store.UpdateGroupChange:
			return ItemResult{Outcome: ItemNotYetImplemented}
		case store.UpdateExpirationTimer:
			if in.Update == nil {
				return itemMessageFailure(frameErr(in.UniqueID, ErrInvalidProtoData, "timer update without details"))
			}
			update = &frame.ExpirationTimerUpdate{ExpiresInMs: in.Update.ExpiresInMs}
		case store.UpdateProfileChange:
			if in.Update == nil || in.Update.NewName == "" {
				return itemMessageFailure(frameErr(in.UniqueID, ErrInvalidProtoData, "profile change without names"))
			}
			update = &frame.ProfileChangeUpdate{PreviousName: in.Update.PreviousName, NewName: in.Update.NewName}
		default:
			t, ok := simpleUpdates[in.UpdateKind]
			if !ok {
				return itemMessageFailure(frameErr(in.UniqueID, ErrInvalidProtoData, "update kind %q", in.UpdateKind))
			}
			update = &frame.SimpleUpdate{Type: t}
		}
	default:
		return itemMessageFailure(frameErr(in.UniqueID, ErrDeveloper, "not an update: %s", in.Kind))
	}

	return itemWithErrors(&Details{
		AuthorID:        authorID,
		DateSent:        in.Timestamp,
		ExpireStartDate: in.ExpireStartedAt,
		ExpiresInMs:     in.ExpiresInMs,
		SMS:             in.IsSMS,
		Directional:     &frame.Directionless{},
		Payload:         &frame.UpdateMessage{Update: update},
	}, errs)
}

func (UpdateArchiver) Restore(ctx context.Context, item *frame.ChatItem, thread *store.Thread, label string, recipients *RecipientRestoringContext, tx WriteTx) RestoreResult {
	var errs []*FrameError

	msg, ok := item.Payload.(*frame.UpdateMessage)
	if !ok {
		return restoreFailed(frameErr(label, ErrInvalidCombination, "directionless %T", item.Payload))
	}
	author, ok := recipients.Recipient(item.AuthorID)
	if !ok {
		return restoreFailed(frameErr(label, ErrRecipientIDNotFound, "author %d", item.AuthorID))
	}

	in := &store.Interaction{
		UniqueID:        uuid.NewString(),
		ThreadUniqueID:  thread.UniqueID,
		Timestamp:       item.DateSent,
		ExpireStartedAt: item.ExpireStartDate,
		ExpiresInMs:     item.ExpiresInMs,
		IsSMS:           item.SMS,
		Read:            true,
	}
	if author.Kind == store.RecipientContact {
		in.AuthorACI = author.ACI
	}

	switch u := msg.Update.(type) {
	case *frame.SimpleUpdate:
		kind, ok := simpleUpdateKind[u.Type]
		if !ok {
			return restoreFailed(frameErr(label, ErrInvalidProtoData, "simple update type %d", u.Type))
		}
		in.Kind = store.KindInfoMessage
		if errorUpdates[kind] {
			in.Kind = store.KindErrorMessage
		}
		in.UpdateKind = kind
	case *frame.ExpirationTimerUpdate:
		in.Kind = store.KindInfoMessage
		in.UpdateKind = store.UpdateExpirationTimer
		in.Update = &store.UpdateInfo{ExpiresInMs: u.ExpiresInMs}
	case *frame.ProfileChangeUpdate:
		if u.NewName == "" {
			return restoreFailed(frameErr(label, ErrInvalidProtoData, "profile change without new name"))
		}
		in.Kind = store.KindInfoMessage
		in.UpdateKind = store.UpdateProfileChange
		in.Update = &store.UpdateInfo{PreviousName: u.PreviousName, NewName: u.NewName}
	case *frame.IndividualCallUpdate:
		state, ok := callStateNames[u.State]
		if !ok {
			return restoreFailed(frameErr(label, ErrInvalidProtoData, "call state %d", u.State))
		}
		in.Kind = store.KindIndividualCall
		in.Call = &store.CallInfo{
			CallID:    u.CallID,
			Video:     u.Type == frame.CallVideo,
			Outgoing:  u.Direction == frame.CallOutgoing,
			State:     state,
			StartedAt: u.StartedAt,
		}
	case *frame.GroupCallUpdate:
		if thread.Kind != store.ThreadGroupV2 {
			return restoreFailed(frameErr(label, ErrInvalidCombination, "group call in %s thread", thread.Kind))
		}
		state, ok := callStateNames[u.State]
		if !ok {
			return restoreFailed(frameErr(label, ErrInvalidProtoData, "call state %d", u.State))
		}
		in.Kind = store.KindGroupCall
		in.Call = &store.CallInfo{CallID: u.CallID, State: state, StartedAt: u.StartedAt, EndedAt: u.EndedAt}
		if u.StartedByRecipientID != 0 {
			if r, ok := recipients.Recipient(u.StartedByRecipientID); ok {
				in.Call.StartedByACI = r.ACI
			} else {
				errs = append(errs, frameErr(label, ErrRecipientIDNotFound, "call starter %d", u.StartedByRecipientID))
			}
		}
	case nil:
		return restoreFailed(frameErr(label, ErrInvalidProtoData, "update message without update"))
	default:
		return restoreFailed(frameErr(label, ErrDeveloper, "unhandled update %T", u))
	}

	if err := tx.InsertInteraction(ctx, in); err != nil {
		return restoreFailed(frameErr(label, ErrDatabase, "%v", err))
	}
	return restoredWithErrors(errs)
}
