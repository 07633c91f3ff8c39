package archive

import (
	"context"

	"github.com/google/uuid"
	"github.com/matheus3301/wpplink/internal/backup/frame"
	"github.com/matheus3301/wpplink/internal/store"
)

// MessageArchiver handles incoming and outgoing messages, including their
// edit history.
type MessageArchiver struct{}

// Archive converts a message. Past revisions report ItemPastRevision; they
// are exported inside the latest revision instead.
func (a MessageArchiver) Archive(ctx context.Context, in *store.Interaction, recipients *RecipientArchivingContext, tx ReadTx) ItemResult {
	if in.EditState == store.EditPast {
		return ItemResult{Outcome: ItemPastRevision}
	}

	d, errs, failure := a.details(in, recipients)
	if failure != nil {
		return itemMessageFailure(failure)
	}

	if in.EditState == store.EditLatest {
		revs, err := tx.PastRevisions(ctx, in)
		if err != nil {
			return ItemResult{Outcome: ItemCompleteFailure, Errors: []*FrameError{
				frameErr(in.UniqueID, ErrDatabase, "past revisions: %v", err),
			}}
		}
		for _, rev := range revs {
			rd, rerrs, rfail := a.details(rev, recipients)
			errs = append(errs, rerrs...)
			if rfail != nil {
				errs = append(errs, rfail)
				continue
			}
			d.Revisions = append(d.Revisions, rd.chatItem(0))
		}
	}
	return itemWithErrors(d, errs)
}

// details builds the frame details of one revision. A non-nil failure means
// nothing usable was produced.
func (MessageArchiver) details(in *store.Interaction, recipients *RecipientArchivingContext) (*Details, []*FrameError, *FrameError) {
	if in.ContentErr != nil {
		return nil, nil, frameErr(in.UniqueID, ErrInvalidProtoData, "%v", in.ContentErr)
	}
	var errs []*FrameError
	d := &Details{
		DateSent:        in.Timestamp,
		ExpireStartDate: in.ExpireStartedAt,
		ExpiresInMs:     in.ExpiresInMs,
		SMS:             in.IsSMS,
	}

	switch in.Kind {
	case store.KindIncomingMessage:
		id, ok := recipients.IDForACI(in.AuthorACI)
		if !ok {
			return nil, nil, frameErr(in.UniqueID, ErrReferencedRecipientMissing, "author %s", in.AuthorACI)
		}
		d.AuthorID = id
		d.Directional = &frame.Incoming{
			DateReceived:   in.ReceivedAt,
			DateServerSent: in.ServerTimestamp,
			Read:           in.Read,
		}
	case store.KindOutgoingMessage:
		if recipients.SelfID() == 0 {
			return nil, nil, frameErr(in.UniqueID, ErrReferencedRecipientMissing, "self")
		}
		d.AuthorID = recipients.SelfID()
		out := &frame.Outgoing{}
		for _, s := range in.SendStates {
			id, ok := recipients.IDForACI(s.RecipientACI)
			if !ok {
				errs = append(errs, frameErr(in.UniqueID, ErrReferencedRecipientMissing, "send state recipient %s", s.RecipientACI))
				continue
			}
			status, ok := sendStatuses[s.Status]
			if !ok {
				errs = append(errs, frameErr(in.UniqueID, ErrInvalidProtoData, "send status %q", s.Status))
				continue
			}
			out.SendStatus = append(out.SendStatus, frame.SendStatus{RecipientID: id, Timestamp: s.Timestamp, Status: status})
		}
		d.Directional = out
	default:
		return nil, nil, frameErr(in.UniqueID, ErrDeveloper, "not a message: %s", in.Kind)
	}

	switch {
	case in.RemoteDeleted:
		d.Payload = &frame.RemoteDeletedMessage{}
	case len(in.Contacts) > 0:
		p := &frame.ContactMessage{}
		for _, c := range in.Contacts {
			p.Contacts = append(p.Contacts, frame.ContactAttachment{Name: c.Name, Phone: c.Phone})
		}
		d.Payload = p
	case in.Sticker != nil:
		d.Payload = &frame.StickerMessage{PackID: in.Sticker.PackID, StickerID: in.Sticker.StickerID, Emoji: in.Sticker.Emoji}
	case in.Payment != nil:
		d.Payload = &frame.PaymentNotification{Amount: in.Payment.Amount, Note: in.Payment.Note}
	case in.GiftBadge != nil:
		state, ok := giftStates[in.GiftBadge.State]
		if !ok {
			return nil, nil, frameErr(in.UniqueID, ErrInvalidProtoData, "gift badge state %q", in.GiftBadge.State)
		}
		d.Payload = &frame.GiftBadge{State: state}
	default:
		if in.Body == "" && in.Quote == nil {
			return nil, nil, frameErr(in.UniqueID, ErrInvalidProtoData, "empty message")
		}
		p := &frame.StandardMessage{Text: in.Body}
		if q := in.Quote; q != nil {
			if id, ok := recipients.IDForACI(q.AuthorACI); ok {
				p.Quote = &frame.Quote{TargetSentTimestamp: q.TargetTimestamp, AuthorID: id, Text: q.Text}
			} else {
				errs = append(errs, frameErr(in.UniqueID, ErrReferencedRecipientMissing, "quote author %s", q.AuthorACI))
			}
		}
		d.Payload = p
	}
	return d, errs, nil
}

// Restore inserts the message and its past revisions into thread.
func (a MessageArchiver) Restore(ctx context.Context, item *frame.ChatItem, thread *store.Thread, label string, recipients *RecipientRestoringContext, tx WriteTx) RestoreResult {
	latest, errs, failure := a.interaction(item, thread, label, recipients)
	if failure != nil {
		return restoreFailed(failure)
	}

	var revisions []*store.Interaction
	for _, rev := range item.Revisions {
		ri, rerrs, rfail := a.interaction(rev, thread, label, recipients)
		errs = append(errs, rerrs...)
		if rfail != nil {
			errs = append(errs, rfail)
			continue
		}
		ri.EditState = store.EditPast
		ri.EditTargetUniqueID = latest.UniqueID
		revisions = append(revisions, ri)
	}
	if len(item.Revisions) > 0 {
		latest.EditState = store.EditLatest
	}

	if err := tx.InsertInteraction(ctx, latest); err != nil {
		return restoreFailed(frameErr(label, ErrDatabase, "%v", err))
	}
	for _, ri := range revisions {
		if err := tx.InsertInteraction(ctx, ri); err != nil {
			errs = append(errs, frameErr(label, ErrDatabase, "revision: %v", err))
		}
	}
	return restoredWithErrors(errs)
}

func (MessageArchiver) interaction(item *frame.ChatItem, thread *store.Thread, label string, recipients *RecipientRestoringContext) (*store.Interaction, []*FrameError, *FrameError) {
	var errs []*FrameError
	in := &store.Interaction{
		UniqueID:        uuid.NewString(),
		ThreadUniqueID:  thread.UniqueID,
		Timestamp:       item.DateSent,
		ExpireStartedAt: item.ExpireStartDate,
		ExpiresInMs:     item.ExpiresInMs,
		IsSMS:           item.SMS,
	}

	switch d := item.Directional.(type) {
	case *frame.Incoming:
		author, ok := recipients.Recipient(item.AuthorID)
		if !ok {
			return nil, nil, frameErr(label, ErrRecipientIDNotFound, "author %d", item.AuthorID)
		}
		if author.Kind != store.RecipientContact {
			return nil, nil, frameErr(label, ErrInvalidProtoData, "incoming author is %s", author.Kind)
		}
		in.Kind = store.KindIncomingMessage
		in.AuthorACI = author.ACI
		in.ReceivedAt = d.DateReceived
		in.ServerTimestamp = d.DateServerSent
		in.Read = d.Read
	case *frame.Outgoing:
		in.Kind = store.KindOutgoingMessage
		in.Read = true
		for _, s := range d.SendStatus {
			r, ok := recipients.Recipient(s.RecipientID)
			if !ok {
				errs = append(errs, frameErr(label, ErrRecipientIDNotFound, "send status recipient %d", s.RecipientID))
				continue
			}
			name, ok := sendStatusNames[s.Status]
			if !ok {
				errs = append(errs, frameErr(label, ErrInvalidProtoData, "send status %d", s.Status))
				continue
			}
			in.SendStates = append(in.SendStates, store.SendState{RecipientACI: r.ACI, Status: name, Timestamp: s.Timestamp})
		}
	default:
		return nil, nil, frameErr(label, ErrDeveloper, "message with %T", item.Directional)
	}

	switch p := item.Payload.(type) {
	case *frame.StandardMessage:
		in.Body = p.Text
		if q := p.Quote; q != nil {
			if r, ok := recipients.Recipient(q.AuthorID); ok {
				in.Quote = &store.Quote{AuthorACI: r.ACI, TargetTimestamp: q.TargetSentTimestamp, Text: q.Text}
			} else {
				errs = append(errs, frameErr(label, ErrRecipientIDNotFound, "quote author %d", q.AuthorID))
			}
		}
	case *frame.ContactMessage:
		for _, c := range p.Contacts {
			in.Contacts = append(in.Contacts, store.ContactCard{Name: c.Name, Phone: c.Phone})
		}
	case *frame.StickerMessage:
		in.Sticker = &store.Sticker{PackID: p.PackID, StickerID: p.StickerID, Emoji: p.Emoji}
	case *frame.PaymentNotification:
		in.Payment = &store.Payment{Amount: p.Amount, Note: p.Note}
	case *frame.GiftBadge:
		name, ok := giftStateNames[p.State]
		if !ok {
			return nil, nil, frameErr(label, ErrInvalidProtoData, "gift badge state %d", p.State)
		}
		in.GiftBadge = &store.GiftBadge{State: name}
	case *frame.RemoteDeletedMessage:
		in.RemoteDeleted = true
	case nil:
		return nil, nil, frameErr(label, ErrInvalidProtoData, "missing payload")
	default:
		return nil, nil, frameErr(label, ErrInvalidCombination, "message with %T payload", p)
	}
	return in, errs, nil
}
