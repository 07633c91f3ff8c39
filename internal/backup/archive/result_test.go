package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	e1 := &FrameError{ID: "a", Err: ErrFrameWrite}
	e2 := &FrameError{ID: "b", Err: ErrReferencedChatMissing}
	fatal := &FrameError{ID: "c", Err: ErrEnumeration}

	tests := []struct {
		name string
		in   []MultiFrameResult
		want MultiFrameResult
	}{
		{"empty", nil, MultiFrameResult{Outcome: Success}},
		{"all success", []MultiFrameResult{{Frames: 2}, {Frames: 3}}, MultiFrameResult{Outcome: Success, Frames: 5}},
		{
			"errors make partial",
			[]MultiFrameResult{{Frames: 1}, {Outcome: PartialSuccess, Frames: 1, Errors: []*FrameError{e1}}, {Outcome: PartialSuccess, Errors: []*FrameError{e2}}},
			MultiFrameResult{Outcome: PartialSuccess, Frames: 2, Errors: []*FrameError{e1, e2}},
		},
		{
			"complete failure dominates",
			[]MultiFrameResult{{Outcome: PartialSuccess, Errors: []*FrameError{e1}}, completeFailure(fatal), {Frames: 4}},
			completeFailure(fatal),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.in...))
		})
	}
}

func TestRestoreSummary(t *testing.T) {
	var s RestoreSummary
	s.Add(FrameRecipient, restored())
	s.Add(FrameChat, restored())
	s.Add(FrameChatItem, restoredWithErrors([]*FrameError{{ID: "x", Err: ErrRecipientIDNotFound}}))
	assert.Equal(t, Success, (&RestoreSummary{ChatItems: 1}).Outcome())

	s.Add(FrameChatItem, restoreFailed(&FrameError{ID: "y", Err: ErrChatIDNotFound}))

	assert.Equal(t, 1, s.Recipients)
	assert.Equal(t, 1, s.Chats)
	assert.Equal(t, 1, s.ChatItems)
	assert.Equal(t, 1, s.Partial)
	assert.Equal(t, 1, s.Failed)
	assert.Len(t, s.Errors, 2)
	assert.Equal(t, PartialSuccess, s.Outcome())
}

func TestFrameErrorMessage(t *testing.T) {
	err := frameErr("m1", ErrChatIDNotFound, "chat %d", 4)
	assert.Equal(t, "m1: chat id not found: chat 4", err.Error())
	assert.ErrorIs(t, err, ErrChatIDNotFound)
	assert.True(t, IsReferential(err))
	assert.False(t, IsReferential(&FrameError{Err: ErrFrameWrite}))
}
