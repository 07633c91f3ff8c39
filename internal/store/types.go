package store

// ThreadKind classifies a conversation.
type ThreadKind string

const (
	ThreadContact ThreadKind = "contact"
	ThreadGroupV1 ThreadKind = "group_v1"
	ThreadGroupV2 ThreadKind = "group_v2"
)

// Thread is a conversation with a contact or a group.
type Thread struct {
	RowID      int64
	UniqueID   string
	Kind       ThreadKind
	ContactACI string
	GroupID    string
}

// RecipientKind classifies a recipient row.
type RecipientKind string

const (
	RecipientSelf         RecipientKind = "self"
	RecipientContact      RecipientKind = "contact"
	RecipientGroup        RecipientKind = "group"
	RecipientReleaseNotes RecipientKind = "release_notes"
)

// Recipient is anyone (or any group) a thread can point at.
type Recipient struct {
	RowID       int64
	Kind        RecipientKind
	ACI         string
	E164        string
	GroupID     string
	ProfileName string
}

// InteractionKind tags what produced an interaction. Values not listed here
// may exist in databases written by newer versions.
type InteractionKind string

const (
	KindIncomingMessage InteractionKind = "incoming_message"
	KindOutgoingMessage InteractionKind = "outgoing_message"
	KindInfoMessage     InteractionKind = "info_message"
	KindErrorMessage    InteractionKind = "error_message"
	KindIndividualCall  InteractionKind = "individual_call"
	KindGroupCall       InteractionKind = "group_call"
)

// EditState tracks message edit history.
type EditState int

const (
	EditNone EditState = iota
	// EditLatest is the current revision of an edited message.
	EditLatest
	// EditPast is a superseded revision; EditTargetUniqueID points at the latest one.
	EditPast
)

// UpdateKind describes info/error interactions.
type UpdateKind string

const (
	UpdateExpirationTimer        UpdateKind = "expiration_timer"
	UpdateProfileChange          UpdateKind = "profile_change"
	UpdateIdentityVerified       UpdateKind = "identity_verified"
	UpdateIdentityDefault        UpdateKind = "identity_default"
	UpdateIdentityChanged        UpdateKind = "identity_changed"
	UpdateDecryptionFailure      UpdateKind = "decryption_failure"
	UpdateSessionSwitchover      UpdateKind = "session_switchover"
	UpdateChatSessionRefresh     UpdateKind = "chat_session_refresh"
	UpdateJoinRequest            UpdateKind = "join_request"
	UpdateGroupChange            UpdateKind = "group_change"
	UpdateTypingIndicators       UpdateKind = "typing_indicators"
	UpdateUnknownProtocolVersion UpdateKind = "unknown_protocol_version"
)

// Interaction is one event in a conversation: a message, a call or an
// informational update.
type Interaction struct {
	RowID              int64
	UniqueID           string
	ThreadUniqueID     string
	Kind               InteractionKind
	Timestamp          uint64
	ReceivedAt         uint64
	ServerTimestamp    uint64
	AuthorACI          string
	Body               string
	RemoteDeleted      bool
	ExpireStartedAt    uint64
	ExpiresInMs        uint64
	IsSMS              bool
	Read               bool
	EditState          EditState
	EditTargetUniqueID string
	UpdateKind         UpdateKind

	// Optional structured content, persisted as one JSON column.
	Quote      *Quote
	Contacts   []ContactCard
	Sticker    *Sticker
	Payment    *Payment
	GiftBadge  *GiftBadge
	Update     *UpdateInfo
	Call       *CallInfo
	SendStates []SendState

	// ContentErr is set when the content column could not be decoded. The
	// structured fields above are then left empty.
	ContentErr error
}

// ExpiresAt returns the absolute expiry in ms, or 0 if the timer has not started.
func (i *Interaction) ExpiresAt() uint64 {
	if i.ExpiresInMs == 0 || i.ExpireStartedAt == 0 {
		return 0
	}
	return i.ExpireStartedAt + i.ExpiresInMs
}

// Quote references an earlier message.
type Quote struct {
	AuthorACI       string `json:"author_aci"`
	TargetTimestamp uint64 `json:"target_timestamp"`
	Text            string `json:"text,omitempty"`
}

type ContactCard struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type Sticker struct {
	PackID    string `json:"pack_id"`
	StickerID uint32 `json:"sticker_id"`
	Emoji     string `json:"emoji,omitempty"`
}

type Payment struct {
	Amount string `json:"amount"`
	Note   string `json:"note,omitempty"`
}

// GiftBadge state is one of unopened, opened, redeemed, failed.
type GiftBadge struct {
	State string `json:"state"`
}

// UpdateInfo carries the variable part of info/error interactions.
type UpdateInfo struct {
	ExpiresInMs  uint64 `json:"expires_in_ms,omitempty"`
	PreviousName string `json:"previous_name,omitempty"`
	NewName      string `json:"new_name,omitempty"`
}

// CallInfo describes an individual or group call record.
type CallInfo struct {
	CallID       uint64 `json:"call_id"`
	Video        bool   `json:"video,omitempty"`
	Outgoing     bool   `json:"outgoing,omitempty"`
	State        string `json:"state"`
	StartedByACI string `json:"started_by_aci,omitempty"`
	StartedAt    uint64 `json:"started_at,omitempty"`
	EndedAt      uint64 `json:"ended_at,omitempty"`
}

// SendState is the delivery state of an outgoing message for one recipient.
type SendState struct {
	RecipientACI string `json:"recipient_aci"`
	Status       string `json:"status"`
	Timestamp    uint64 `json:"timestamp,omitempty"`
}
