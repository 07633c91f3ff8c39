// Package frame defines the backup wire units and reads/writes them as a
// stream of length-delimited protobuf messages.
//
// The first message of a stream is always a BackupInfo header. Every message
// after it is a Frame holding exactly one Item: a Recipient, a Chat or a
// ChatItem. Recipients and chats must precede the chat items that reference
// them.
package frame

// Version is the backup format version written by this package.
const Version uint64 = 1

// BackupInfo is the stream header.
type BackupInfo struct {
	Version      uint64
	BackupTimeMs uint64
}

// Item is one entity carried by a frame. Implemented by *Recipient, *Chat
// and *ChatItem only.
type Item interface {
	isItem()
}

// Recipient assigns a synthetic id to a destination.
type Recipient struct {
	ID          uint64
	Destination Destination
}

// Destination is the kind-specific part of a recipient.
type Destination interface {
	isDestination()
}

type Self struct{}

type Contact struct {
	ACI         string
	E164        string
	ProfileName string
}

type Group struct {
	GroupID string
	Name    string
}

// ReleaseNotes is the reserved system sender of app announcements.
type ReleaseNotes struct{}

func (*Self) isDestination()         {}
func (*Contact) isDestination()      {}
func (*Group) isDestination()        {}
func (*ReleaseNotes) isDestination() {}

// Chat binds a synthetic chat id to the recipient it talks to.
type Chat struct {
	ID          uint64
	RecipientID uint64
}

// ChatItem is one conversation interaction.
type ChatItem struct {
	ChatID          uint64
	AuthorID        uint64
	DateSent        uint64
	ExpireStartDate uint64
	ExpiresInMs     uint64
	SMS             bool

	// Revisions holds earlier versions of an edited message, oldest first.
	// Revisions never carry revisions of their own.
	Revisions []*ChatItem

	Directional Directional
	Payload     Payload
}

func (*Recipient) isItem() {}
func (*Chat) isItem()      {}
func (*ChatItem) isItem()  {}

// Directional is one of *Incoming, *Outgoing or *Directionless.
type Directional interface {
	isDirectional()
}

type Incoming struct {
	DateReceived   uint64
	DateServerSent uint64
	Read           bool
	SealedSender   bool
}

type Outgoing struct {
	SendStatus []SendStatus
}

type Directionless struct{}

func (*Incoming) isDirectional()      {}
func (*Outgoing) isDirectional()      {}
func (*Directionless) isDirectional() {}

type SendStatusKind uint64

const (
	StatusPending SendStatusKind = iota + 1
	StatusSent
	StatusDelivered
	StatusRead
	StatusViewed
	StatusFailed
	StatusSkipped
)

type SendStatus struct {
	RecipientID uint64
	Timestamp   uint64
	Status      SendStatusKind
}

// Payload is the content of a chat item. Exactly one is set per item.
type Payload interface {
	isPayload()
}

type StandardMessage struct {
	Text  string
	Quote *Quote
}

type Quote struct {
	TargetSentTimestamp uint64
	AuthorID            uint64
	Text                string
}

type ContactMessage struct {
	Contacts []ContactAttachment
}

type ContactAttachment struct {
	Name  string
	Phone string
}

type StickerMessage struct {
	PackID    string
	StickerID uint32
	Emoji     string
}

type PaymentNotification struct {
	Amount string
	Note   string
}

type GiftBadgeState uint64

const (
	GiftUnopened GiftBadgeState = iota + 1
	GiftOpened
	GiftRedeemed
	GiftFailed
)

type GiftBadge struct {
	State GiftBadgeState
}

type RemoteDeletedMessage struct{}

type UpdateMessage struct {
	Update Update
}

func (*StandardMessage) isPayload()      {}
func (*ContactMessage) isPayload()       {}
func (*StickerMessage) isPayload()       {}
func (*PaymentNotification) isPayload()  {}
func (*GiftBadge) isPayload()            {}
func (*RemoteDeletedMessage) isPayload() {}
func (*UpdateMessage) isPayload()        {}

// Update is the content of an UpdateMessage.
type Update interface {
	isUpdate()
}

type SimpleUpdateType uint64

const (
	SimpleIdentityVerified SimpleUpdateType = iota + 1
	SimpleIdentityDefault
	SimpleIdentityChanged
	SimpleDecryptionFailure
	SimpleSessionSwitchover
	SimpleChatSessionRefresh
	SimpleJoinRequest
)

type SimpleUpdate struct {
	Type SimpleUpdateType
}

type ExpirationTimerUpdate struct {
	ExpiresInMs uint64
}

type ProfileChangeUpdate struct {
	PreviousName string
	NewName      string
}

type CallType uint64

const (
	CallAudio CallType = iota + 1
	CallVideo
)

type CallDirection uint64

const (
	CallIncoming CallDirection = iota + 1
	CallOutgoing
)

type CallState uint64

const (
	CallAccepted CallState = iota + 1
	CallNotAccepted
	CallMissed
	CallGenericGroup
	CallJoined
	CallRinging
	CallDeclined
)

type IndividualCallUpdate struct {
	CallID    uint64
	Type      CallType
	Direction CallDirection
	State     CallState
	StartedAt uint64
}

type GroupCallUpdate struct {
	CallID               uint64
	State                CallState
	StartedByRecipientID uint64
	StartedAt            uint64
	EndedAt              uint64
}

func (*SimpleUpdate) isUpdate()          {}
func (*ExpirationTimerUpdate) isUpdate() {}
func (*ProfileChangeUpdate) isUpdate()   {}
func (*IndividualCallUpdate) isUpdate()  {}
func (*GroupCallUpdate) isUpdate()       {}
