package frame

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers. They are part of the wire contract and must not be reused.
const (
	fieldFrameRecipient protowire.Number = 1
	fieldFrameChat      protowire.Number = 2
	fieldFrameChatItem  protowire.Number = 3
)

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMessage always writes the field, so empty oneof members keep their
// presence on the wire.
func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func marshalInfo(info *BackupInfo) []byte {
	var b []byte
	b = appendVarint(b, 1, info.Version)
	b = appendVarint(b, 2, info.BackupTimeMs)
	return b
}

// MarshalItem encodes one frame.
func MarshalItem(item Item) ([]byte, error) {
	switch it := item.(type) {
	case *Recipient:
		body, err := marshalRecipient(it)
		if err != nil {
			return nil, err
		}
		return appendMessage(nil, fieldFrameRecipient, body), nil
	case *Chat:
		var body []byte
		body = appendVarint(body, 1, it.ID)
		body = appendVarint(body, 2, it.RecipientID)
		return appendMessage(nil, fieldFrameChat, body), nil
	case *ChatItem:
		body, err := marshalChatItem(it, true)
		if err != nil {
			return nil, err
		}
		return appendMessage(nil, fieldFrameChatItem, body), nil
	default:
		return nil, fmt.Errorf("marshal frame: unsupported item %T", item)
	}
}

func marshalRecipient(r *Recipient) ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, r.ID)
	switch d := r.Destination.(type) {
	case *Contact:
		var m []byte
		m = appendString(m, 1, d.ACI)
		m = appendString(m, 2, d.E164)
		m = appendString(m, 3, d.ProfileName)
		b = appendMessage(b, 2, m)
	case *Group:
		var m []byte
		m = appendString(m, 1, d.GroupID)
		m = appendString(m, 2, d.Name)
		b = appendMessage(b, 3, m)
	case *Self:
		b = appendMessage(b, 4, nil)
	case *ReleaseNotes:
		b = appendMessage(b, 5, nil)
	default:
		return nil, fmt.Errorf("marshal recipient %d: unsupported destination %T", r.ID, r.Destination)
	}
	return b, nil
}

func marshalChatItem(ci *ChatItem, top bool) ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, ci.ChatID)
	b = appendVarint(b, 2, ci.AuthorID)
	b = appendVarint(b, 3, ci.DateSent)
	b = appendVarint(b, 4, ci.ExpireStartDate)
	b = appendVarint(b, 5, ci.ExpiresInMs)
	if top {
		for _, rev := range ci.Revisions {
			m, err := marshalChatItem(rev, false)
			if err != nil {
				return nil, err
			}
			b = appendMessage(b, 6, m)
		}
	}
	b = appendBool(b, 7, ci.SMS)

	switch d := ci.Directional.(type) {
	case *Incoming:
		var m []byte
		m = appendVarint(m, 1, d.DateReceived)
		m = appendVarint(m, 2, d.DateServerSent)
		m = appendBool(m, 3, d.Read)
		m = appendBool(m, 4, d.SealedSender)
		b = appendMessage(b, 8, m)
	case *Outgoing:
		var m []byte
		for _, s := range d.SendStatus {
			var sm []byte
			sm = appendVarint(sm, 1, s.RecipientID)
			sm = appendVarint(sm, 2, s.Timestamp)
			sm = appendVarint(sm, 3, uint64(s.Status))
			m = appendMessage(m, 1, sm)
		}
		b = appendMessage(b, 9, m)
	case *Directionless:
		b = appendMessage(b, 10, nil)
	case nil:
	default:
		return nil, fmt.Errorf("marshal chat item: unsupported directional %T", ci.Directional)
	}

	switch p := ci.Payload.(type) {
	case *StandardMessage:
		var m []byte
		m = appendString(m, 1, p.Text)
		if p.Quote != nil {
			var q []byte
			q = appendVarint(q, 1, p.Quote.TargetSentTimestamp)
			q = appendVarint(q, 2, p.Quote.AuthorID)
			q = appendString(q, 3, p.Quote.Text)
			m = appendMessage(m, 2, q)
		}
		b = appendMessage(b, 11, m)
	case *ContactMessage:
		var m []byte
		for _, c := range p.Contacts {
			var cm []byte
			cm = appendString(cm, 1, c.Name)
			cm = appendString(cm, 2, c.Phone)
			m = appendMessage(m, 1, cm)
		}
		b = appendMessage(b, 12, m)
	case *StickerMessage:
		var m []byte
		m = appendString(m, 1, p.PackID)
		m = appendVarint(m, 2, uint64(p.StickerID))
		m = appendString(m, 3, p.Emoji)
		b = appendMessage(b, 13, m)
	case *RemoteDeletedMessage:
		b = appendMessage(b, 14, nil)
	case *UpdateMessage:
		m, err := marshalUpdate(p.Update)
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 15, m)
	case *PaymentNotification:
		var m []byte
		m = appendString(m, 1, p.Amount)
		m = appendString(m, 2, p.Note)
		b = appendMessage(b, 16, m)
	case *GiftBadge:
		b = appendMessage(b, 17, appendVarint(nil, 1, uint64(p.State)))
	case nil:
	default:
		return nil, fmt.Errorf("marshal chat item: unsupported payload %T", ci.Payload)
	}
	return b, nil
}

func marshalUpdate(u Update) ([]byte, error) {
	var b []byte
	switch v := u.(type) {
	case *SimpleUpdate:
		b = appendMessage(b, 1, appendVarint(nil, 1, uint64(v.Type)))
	case *ExpirationTimerUpdate:
		b = appendMessage(b, 2, appendVarint(nil, 1, v.ExpiresInMs))
	case *ProfileChangeUpdate:
		var m []byte
		m = appendString(m, 1, v.PreviousName)
		m = appendString(m, 2, v.NewName)
		b = appendMessage(b, 3, m)
	case *IndividualCallUpdate:
		var m []byte
		m = appendVarint(m, 1, v.CallID)
		m = appendVarint(m, 2, uint64(v.Type))
		m = appendVarint(m, 3, uint64(v.Direction))
		m = appendVarint(m, 4, uint64(v.State))
		m = appendVarint(m, 5, v.StartedAt)
		b = appendMessage(b, 4, m)
	case *GroupCallUpdate:
		var m []byte
		m = appendVarint(m, 1, v.CallID)
		m = appendVarint(m, 2, uint64(v.State))
		m = appendVarint(m, 3, v.StartedByRecipientID)
		m = appendVarint(m, 4, v.StartedAt)
		m = appendVarint(m, 5, v.EndedAt)
		b = appendMessage(b, 5, m)
	case nil:
	default:
		return nil, fmt.Errorf("marshal update: unsupported update %T", u)
	}
	return b, nil
}
