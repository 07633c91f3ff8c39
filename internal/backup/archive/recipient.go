package archive

import (
	"context"
	"fmt"

	"github.com/matheus3301/wpplink/internal/backup/frame"
	"github.com/matheus3301/wpplink/internal/store"
)

// RecipientArchiver exports and restores recipient frames.
type RecipientArchiver struct{}

// Archive writes one frame per recipient and fills rctx. The local account
// always gets a frame, even when it has no stored row.
func (RecipientArchiver) Archive(ctx context.Context, w frame.Writer, rctx *RecipientArchivingContext, tx ReadTx) MultiFrameResult {
	var (
		errs   []*FrameError
		frames int
		self   *store.Recipient
	)
	var rows []*store.Recipient
	err := tx.EnumerateRecipients(ctx, func(r *store.Recipient) error {
		if r.Kind == store.RecipientSelf && self == nil {
			self = r
			return nil
		}
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return completeFailure(frameErr("recipients", ErrEnumeration, "%v", err))
	}

	selfID := rctx.assign()
	if err := w.WriteFrame(&frame.Recipient{ID: selfID, Destination: &frame.Self{}}); err != nil {
		return completeFailure(frameErr("recipient:self", ErrFrameWrite, "%v", err))
	}
	rctx.selfID = selfID
	if self != nil && self.ACI != "" {
		rctx.byACI[self.ACI] = selfID
	}
	frames++

	for _, r := range rows {
		label := fmt.Sprintf("recipient:%d", r.RowID)
		var dest frame.Destination
		switch r.Kind {
		case store.RecipientContact:
			if r.ACI == "" {
				errs = append(errs, frameErr(label, ErrInvalidProtoData, "contact without ACI"))
				continue
			}
			if _, dup := rctx.byACI[r.ACI]; dup {
				continue
			}
			dest = &frame.Contact{ACI: r.ACI, E164: r.E164, ProfileName: r.ProfileName}
		case store.RecipientGroup:
			if r.GroupID == "" {
				errs = append(errs, frameErr(label, ErrInvalidProtoData, "group without id"))
				continue
			}
			dest = &frame.Group{GroupID: r.GroupID, Name: r.ProfileName}
		case store.RecipientReleaseNotes:
			if rctx.releaseNotesID != 0 {
				continue
			}
			dest = &frame.ReleaseNotes{}
		case store.RecipientSelf:
			continue
		default:
			errs = append(errs, frameErr(label, ErrInvalidProtoData, "unknown recipient kind %q", r.Kind))
			continue
		}

		id := rctx.assign()
		if err := w.WriteFrame(&frame.Recipient{ID: id, Destination: dest}); err != nil {
			errs = append(errs, frameErr(label, ErrFrameWrite, "%v", err))
			continue
		}
		switch d := dest.(type) {
		case *frame.Contact:
			rctx.byACI[d.ACI] = id
		case *frame.Group:
			rctx.byGroup[d.GroupID] = id
		case *frame.ReleaseNotes:
			rctx.releaseNotesID = id
		}
		frames++
	}
	return collected(frames, errs)
}

// Restore stores the recipient and records its id in rctx. The local account
// is stored only when its ACI is known; the release notes sender is only
// registered.
func (RecipientArchiver) Restore(ctx context.Context, r *frame.Recipient, rctx *RecipientRestoringContext, tx WriteTx) RestoreResult {
	label := fmt.Sprintf("recipient:%d", r.ID)
	if r.ID == 0 {
		return restoreFailed(frameErr(label, ErrInvalidProtoData, "missing id"))
	}

	var row *store.Recipient
	switch d := r.Destination.(type) {
	case *frame.Self:
		row = &store.Recipient{Kind: store.RecipientSelf, ACI: rctx.selfACI}
		if row.ACI == "" {
			rctx.add(r.ID, row)
			return restored()
		}
	case *frame.ReleaseNotes:
		rctx.add(r.ID, &store.Recipient{Kind: store.RecipientReleaseNotes})
		return restored()
	case *frame.Contact:
		if d.ACI == "" {
			return restoreFailed(frameErr(label, ErrInvalidProtoData, "contact without ACI"))
		}
		row = &store.Recipient{Kind: store.RecipientContact, ACI: d.ACI, E164: d.E164, ProfileName: d.ProfileName}
	case *frame.Group:
		if d.GroupID == "" {
			return restoreFailed(frameErr(label, ErrInvalidProtoData, "group without id"))
		}
		row = &store.Recipient{Kind: store.RecipientGroup, GroupID: d.GroupID, ProfileName: d.Name}
	case nil:
		return restoreFailed(frameErr(label, ErrInvalidProtoData, "missing destination"))
	default:
		return restoreFailed(frameErr(label, ErrDeveloper, "unhandled destination %T", d))
	}

	if err := tx.InsertRecipient(ctx, row); err != nil {
		return restoreFailed(frameErr(label, ErrDatabase, "%v", err))
	}
	rctx.add(r.ID, row)
	return restored()
}
