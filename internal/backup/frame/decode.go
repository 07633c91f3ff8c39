package frame

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrMalformed reports bytes that are not a valid frame encoding.
	ErrMalformed = errors.New("frame: malformed")
	// ErrUnknownFrame reports a well-formed frame holding no item this
	// version understands. Readers may skip it.
	ErrUnknownFrame = errors.New("frame: unknown item")
)

// field is one decoded key/value. Fields with an unexpected wire type decode
// as zero values.
type field struct {
	num    protowire.Number
	varint uint64
	bytes  []byte
}

func (f field) str() string { return string(f.bytes) }
func (f field) bool() bool  { return f.varint != 0 }

func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalInfo(b []byte) (*BackupInfo, error) {
	info := &BackupInfo{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			info.Version = f.varint
		case 2:
			info.BackupTimeMs = f.varint
		}
		return nil
	})
	return info, err
}

// UnmarshalItem decodes one frame.
func UnmarshalItem(b []byte) (Item, error) {
	var item Item
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case fieldFrameRecipient:
			item, err = unmarshalRecipient(f.bytes)
		case fieldFrameChat:
			c := &Chat{}
			err = walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					c.ID = f.varint
				case 2:
					c.RecipientID = f.varint
				}
				return nil
			})
			item = c
		case fieldFrameChatItem:
			item, err = unmarshalChatItem(f.bytes, true)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrUnknownFrame
	}
	return item, nil
}

func unmarshalRecipient(b []byte) (*Recipient, error) {
	r := &Recipient{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			r.ID = f.varint
		case 2:
			c := &Contact{}
			r.Destination = c
			return walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					c.ACI = f.str()
				case 2:
					c.E164 = f.str()
				case 3:
					c.ProfileName = f.str()
				}
				return nil
			})
		case 3:
			g := &Group{}
			r.Destination = g
			return walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					g.GroupID = f.str()
				case 2:
					g.Name = f.str()
				}
				return nil
			})
		case 4:
			r.Destination = &Self{}
		case 5:
			r.Destination = &ReleaseNotes{}
		}
		return nil
	})
	return r, err
}

func unmarshalChatItem(b []byte, top bool) (*ChatItem, error) {
	ci := &ChatItem{}
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			ci.ChatID = f.varint
		case 2:
			ci.AuthorID = f.varint
		case 3:
			ci.DateSent = f.varint
		case 4:
			ci.ExpireStartDate = f.varint
		case 5:
			ci.ExpiresInMs = f.varint
		case 6:
			if !top {
				return fmt.Errorf("%w: nested revisions", ErrMalformed)
			}
			rev, err := unmarshalChatItem(f.bytes, false)
			if err != nil {
				return err
			}
			ci.Revisions = append(ci.Revisions, rev)
		case 7:
			ci.SMS = f.bool()
		case 8:
			in := &Incoming{}
			ci.Directional = in
			return walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					in.DateReceived = f.varint
				case 2:
					in.DateServerSent = f.varint
				case 3:
					in.Read = f.bool()
				case 4:
					in.SealedSender = f.bool()
				}
				return nil
			})
		case 9:
			out := &Outgoing{}
			ci.Directional = out
			return walk(f.bytes, func(f field) error {
				if f.num != 1 {
					return nil
				}
				var s SendStatus
				err := walk(f.bytes, func(f field) error {
					switch f.num {
					case 1:
						s.RecipientID = f.varint
					case 2:
						s.Timestamp = f.varint
					case 3:
						s.Status = SendStatusKind(f.varint)
					}
					return nil
				})
				out.SendStatus = append(out.SendStatus, s)
				return err
			})
		case 10:
			ci.Directional = &Directionless{}
		case 11:
			p := &StandardMessage{}
			ci.Payload = p
			return walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					p.Text = f.str()
				case 2:
					q := &Quote{}
					p.Quote = q
					return walk(f.bytes, func(f field) error {
						switch f.num {
						case 1:
							q.TargetSentTimestamp = f.varint
						case 2:
							q.AuthorID = f.varint
						case 3:
							q.Text = f.str()
						}
						return nil
					})
				}
				return nil
			})
		case 12:
			p := &ContactMessage{}
			ci.Payload = p
			return walk(f.bytes, func(f field) error {
				if f.num != 1 {
					return nil
				}
				var c ContactAttachment
				err := walk(f.bytes, func(f field) error {
					switch f.num {
					case 1:
						c.Name = f.str()
					case 2:
						c.Phone = f.str()
					}
					return nil
				})
				p.Contacts = append(p.Contacts, c)
				return err
			})
		case 13:
			p := &StickerMessage{}
			ci.Payload = p
			return walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					p.PackID = f.str()
				case 2:
					p.StickerID = uint32(f.varint)
				case 3:
					p.Emoji = f.str()
				}
				return nil
			})
		case 14:
			ci.Payload = &RemoteDeletedMessage{}
		case 15:
			u, err := unmarshalUpdate(f.bytes)
			if err != nil {
				return err
			}
			ci.Payload = &UpdateMessage{Update: u}
		case 16:
			p := &PaymentNotification{}
			ci.Payload = p
			return walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					p.Amount = f.str()
				case 2:
					p.Note = f.str()
				}
				return nil
			})
		case 17:
			p := &GiftBadge{}
			ci.Payload = p
			return walk(f.bytes, func(f field) error {
				if f.num == 1 {
					p.State = GiftBadgeState(f.varint)
				}
				return nil
			})
		}
		return nil
	})
	return ci, err
}

func unmarshalUpdate(b []byte) (Update, error) {
	var u Update
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			s := &SimpleUpdate{}
			u = s
			return walk(f.bytes, func(f field) error {
				if f.num == 1 {
					s.Type = SimpleUpdateType(f.varint)
				}
				return nil
			})
		case 2:
			e := &ExpirationTimerUpdate{}
			u = e
			return walk(f.bytes, func(f field) error {
				if f.num == 1 {
					e.ExpiresInMs = f.varint
				}
				return nil
			})
		case 3:
			p := &ProfileChangeUpdate{}
			u = p
			return walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					p.PreviousName = f.str()
				case 2:
					p.NewName = f.str()
				}
				return nil
			})
		case 4:
			c := &IndividualCallUpdate{}
			u = c
			return walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					c.CallID = f.varint
				case 2:
					c.Type = CallType(f.varint)
				case 3:
					c.Direction = CallDirection(f.varint)
				case 4:
					c.State = CallState(f.varint)
				case 5:
					c.StartedAt = f.varint
				}
				return nil
			})
		case 5:
			g := &GroupCallUpdate{}
			u = g
			return walk(f.bytes, func(f field) error {
				switch f.num {
				case 1:
					g.CallID = f.varint
				case 2:
					g.State = CallState(f.varint)
				case 3:
					g.StartedByRecipientID = f.varint
				case 4:
					g.StartedAt = f.varint
				case 5:
					g.EndedAt = f.varint
				}
				return nil
			})
		}
		return nil
	})
	return u, err
}
