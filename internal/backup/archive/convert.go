package archive

import (
	"github.com/matheus3301/wpplink/internal/backup/frame"
	"github.com/matheus3301/wpplink/internal/store"
)

var sendStatuses = map[string]frame.SendStatusKind{
	"pending":   frame.StatusPending,
	"sent":      frame.StatusSent,
	"delivered": frame.StatusDelivered,
	"read":      frame.StatusRead,
	"viewed":    frame.StatusViewed,
	"failed":    frame.StatusFailed,
	"skipped":   frame.StatusSkipped,
}

var giftStates = map[string]frame.GiftBadgeState{
	"unopened": frame.GiftUnopened,
	"opened":   frame.GiftOpened,
	"redeemed": frame.GiftRedeemed,
	"failed":   frame.GiftFailed,
}

var callStates = map[string]frame.CallState{
	"accepted":      frame.CallAccepted,
	"not_accepted":  frame.CallNotAccepted,
	"missed":        frame.CallMissed,
	"generic_group": frame.CallGenericGroup,
	"joined":        frame.CallJoined,
	"ringing":       frame.CallRinging,
	"declined":      frame.CallDeclined,
}

var simpleUpdates = map[store.UpdateKind]frame.SimpleUpdateType{
	store.UpdateIdentityVerified:   frame.SimpleIdentityVerified,
	store.UpdateIdentityDefault:    frame.SimpleIdentityDefault,
	store.UpdateIdentityChanged:    frame.SimpleIdentityChanged,
	store.UpdateDecryptionFailure:  frame.SimpleDecryptionFailure,
	store.UpdateSessionSwitchover:  frame.SimpleSessionSwitchover,
	store.UpdateChatSessionRefresh: frame.SimpleChatSessionRefresh,
	store.UpdateJoinRequest:        frame.SimpleJoinRequest,
}

func invert[K comparable, V comparable](m map[K]V) map[V]K {
	out := make(map[V]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

var (
	sendStatusNames  = invert(sendStatuses)
	giftStateNames   = invert(giftStates)
	callStateNames   = invert(callStates)
	simpleUpdateKind = invert(simpleUpdates)
)

// errorUpdates are stored as error interactions rather than info ones.
var errorUpdates = map[store.UpdateKind]bool{
	store.UpdateIdentityChanged:   true,
	store.UpdateDecryptionFailure: true,
}
