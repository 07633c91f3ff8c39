package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleItems() []Item {
	return []Item{
		&Recipient{ID: 1, Destination: &Self{}},
		&Recipient{ID: 2, Destination: &Contact{ACI: "aci-2", E164: "+15550002", ProfileName: "Bea"}},
		&Recipient{ID: 3, Destination: &Group{GroupID: "g-1", Name: "Climbing"}},
		&Recipient{ID: 4, Destination: &ReleaseNotes{}},
		&Chat{ID: 10, RecipientID: 2},
		&ChatItem{
			ChatID:          10,
			AuthorID:        2,
			DateSent:        1000,
			ExpireStartDate: 1100,
			ExpiresInMs:     86_400_000,
			Directional:     &Incoming{DateReceived: 1001, DateServerSent: 1000, Read: true, SealedSender: true},
			Payload: &StandardMessage{
				Text:  "edited",
				Quote: &Quote{TargetSentTimestamp: 900, AuthorID: 1, Text: "hi"},
			},
			Revisions: []*ChatItem{{
				ChatID:      10,
				AuthorID:    2,
				DateSent:    990,
				Directional: &Incoming{DateReceived: 991},
				Payload:     &StandardMessage{Text: "original"},
			}},
		},
		&ChatItem{
			ChatID:   10,
			AuthorID: 1,
			DateSent: 2000,
			SMS:      true,
			Directional: &Outgoing{SendStatus: []SendStatus{
				{RecipientID: 2, Timestamp: 2001, Status: StatusDelivered},
			}},
			Payload: &ContactMessage{Contacts: []ContactAttachment{{Name: "Cid", Phone: "+1555"}}},
		},
		&ChatItem{ChatID: 10, AuthorID: 2, Directional: &Incoming{}, Payload: &StickerMessage{PackID: "p", StickerID: 7, Emoji: "x"}},
		&ChatItem{ChatID: 10, AuthorID: 2, Directional: &Incoming{}, Payload: &PaymentNotification{Amount: "1.5", Note: "lunch"}},
		&ChatItem{ChatID: 10, AuthorID: 2, Directional: &Incoming{}, Payload: &GiftBadge{State: GiftRedeemed}},
		&ChatItem{ChatID: 10, AuthorID: 2, Directional: &Incoming{}, Payload: &RemoteDeletedMessage{}},
		&ChatItem{ChatID: 10, AuthorID: 1, Directional: &Directionless{}, Payload: &UpdateMessage{Update: &SimpleUpdate{Type: SimpleIdentityChanged}}},
		&ChatItem{ChatID: 10, AuthorID: 1, Directional: &Directionless{}, Payload: &UpdateMessage{Update: &ExpirationTimerUpdate{ExpiresInMs: 3600_000}}},
		&ChatItem{ChatID: 10, AuthorID: 2, Directional: &Directionless{}, Payload: &UpdateMessage{Update: &ProfileChangeUpdate{PreviousName: "B", NewName: "Bea"}}},
		&ChatItem{ChatID: 10, AuthorID: 2, Directional: &Directionless{}, Payload: &UpdateMessage{Update: &IndividualCallUpdate{
			CallID: 99, Type: CallVideo, Direction: CallIncoming, State: CallMissed, StartedAt: 5000,
		}}},
		&ChatItem{ChatID: 10, AuthorID: 2, Directional: &Directionless{}, Payload: &UpdateMessage{Update: &GroupCallUpdate{
			CallID: 100, State: CallJoined, StartedByRecipientID: 2, StartedAt: 6000, EndedAt: 7000,
		}}},
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	require.NoError(t, w.WriteHeader(&BackupInfo{Version: Version, BackupTimeMs: 42}))

	items := sampleItems()
	for _, it := range items {
		require.NoError(t, w.WriteFrame(it))
	}
	assert.Equal(t, len(items), w.Frames())

	r := NewStreamReader(&buf)
	info, err := r.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, &BackupInfo{Version: Version, BackupTimeMs: 42}, info)

	var got []Item
	for {
		it, err := r.ReadFrame()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, it)
	}
	assert.Equal(t, items, got)
}

func TestWriteFrameRequiresHeader(t *testing.T) {
	w := NewStreamWriter(io.Discard)
	assert.Error(t, w.WriteFrame(&Chat{ID: 1}))

	require.NoError(t, w.WriteHeader(&BackupInfo{Version: Version}))
	assert.Error(t, w.WriteHeader(&BackupInfo{Version: Version}))
}

func TestReadHeaderEmptyStream(t *testing.T) {
	_, err := NewStreamReader(bytes.NewReader(nil)).ReadHeader()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	require.NoError(t, w.WriteHeader(&BackupInfo{Version: Version}))
	require.NoError(t, w.WriteFrame(&Chat{ID: 1, RecipientID: 2}))

	data := buf.Bytes()[:buf.Len()-1]
	r := NewStreamReader(bytes.NewReader(data))
	_, err := r.ReadHeader()
	require.NoError(t, err)

	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameTooLarge(t *testing.T) {
	data := protowire.AppendVarint(nil, MaxFrameSize+1)
	_, err := NewStreamReader(bytes.NewReader(data)).ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestUnknownFrameIsSkippable(t *testing.T) {
	unknown := protowire.AppendTag(nil, 50, protowire.BytesType)
	unknown = protowire.AppendBytes(unknown, []byte("future"))

	var buf bytes.Buffer
	buf.Write(protowire.AppendVarint(nil, uint64(len(unknown))))
	buf.Write(unknown)
	w := NewStreamWriter(&buf)
	w.header = true
	require.NoError(t, w.WriteFrame(&Chat{ID: 3, RecipientID: 4}))

	r := NewStreamReader(&buf)
	_, err := r.ReadFrame()
	assert.True(t, errors.Is(err, ErrUnknownFrame))

	it, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, &Chat{ID: 3, RecipientID: 4}, it)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := UnmarshalItem([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNestedRevisionsRejected(t *testing.T) {
	inner := appendMessage(nil, 6, nil)
	rev := appendMessage(nil, 6, inner)
	frame := appendMessage(nil, fieldFrameChatItem, rev)

	_, err := UnmarshalItem(frame)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMissingDirectionalDecodesAsNil(t *testing.T) {
	b, err := MarshalItem(&ChatItem{ChatID: 1, Payload: &StandardMessage{Text: "x"}})
	require.NoError(t, err)

	it, err := UnmarshalItem(b)
	require.NoError(t, err)
	assert.Nil(t, it.(*ChatItem).Directional)
}
