package archive

import "github.com/matheus3301/wpplink/internal/store"

// RecipientArchivingContext assigns synthetic recipient ids on export.
type RecipientArchivingContext struct {
	next           uint64
	selfID         uint64
	releaseNotesID uint64
	byACI          map[string]uint64
	byGroup        map[string]uint64
}

func NewRecipientArchivingContext() *RecipientArchivingContext {
	return &RecipientArchivingContext{
		byACI:   make(map[string]uint64),
		byGroup: make(map[string]uint64),
	}
}

func (c *RecipientArchivingContext) assign() uint64 {
	c.next++
	return c.next
}

// SelfID returns the id of the local account, or 0 before it is assigned.
func (c *RecipientArchivingContext) SelfID() uint64 { return c.selfID }

// IDForACI resolves a contact, or the local account by its own ACI.
func (c *RecipientArchivingContext) IDForACI(aci string) (uint64, bool) {
	id, ok := c.byACI[aci]
	return id, ok
}

func (c *RecipientArchivingContext) IDForGroup(groupID string) (uint64, bool) {
	id, ok := c.byGroup[groupID]
	return id, ok
}

// ChatArchivingContext maps thread unique ids to synthetic chat ids. It can
// only be built on top of a populated recipient context.
type ChatArchivingContext struct {
	recipients *RecipientArchivingContext
	next       uint64
	byThread   map[string]uint64
}

func NewChatArchivingContext(recipients *RecipientArchivingContext) *ChatArchivingContext {
	return &ChatArchivingContext{
		recipients: recipients,
		byThread:   make(map[string]uint64),
	}
}

func (c *ChatArchivingContext) Recipients() *RecipientArchivingContext { return c.recipients }

func (c *ChatArchivingContext) ChatID(threadUniqueID string) (uint64, bool) {
	id, ok := c.byThread[threadUniqueID]
	return id, ok
}

func (c *ChatArchivingContext) assign(threadUniqueID string) uint64 {
	c.next++
	c.byThread[threadUniqueID] = c.next
	return c.next
}

// RecipientRestoringContext maps frame recipient ids to stored recipients.
// The self frame carries no address, so the local account's ACI is supplied
// up front; references to self resolve to it.
type RecipientRestoringContext struct {
	selfACI string
	byID    map[uint64]*store.Recipient
}

func NewRecipientRestoringContext(selfACI string) *RecipientRestoringContext {
	return &RecipientRestoringContext{selfACI: selfACI, byID: make(map[uint64]*store.Recipient)}
}

func (c *RecipientRestoringContext) add(id uint64, r *store.Recipient) {
	c.byID[id] = r
}

func (c *RecipientRestoringContext) Recipient(id uint64) (*store.Recipient, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// IsReleaseNotes reports whether id is the reserved release notes sender.
func (c *RecipientRestoringContext) IsReleaseNotes(id uint64) bool {
	r, ok := c.byID[id]
	return ok && r.Kind == store.RecipientReleaseNotes
}

// ChatRestoringContext maps frame chat ids to restored thread unique ids.
type ChatRestoringContext struct {
	recipients *RecipientRestoringContext
	threads    map[uint64]string
}

func NewChatRestoringContext(recipients *RecipientRestoringContext) *ChatRestoringContext {
	return &ChatRestoringContext{
		recipients: recipients,
		threads:    make(map[uint64]string),
	}
}

func (c *ChatRestoringContext) Recipients() *RecipientRestoringContext { return c.recipients }

func (c *ChatRestoringContext) ThreadUniqueID(chatID uint64) (string, bool) {
	uid, ok := c.threads[chatID]
	return uid, ok
}

func (c *ChatRestoringContext) add(chatID uint64, threadUniqueID string) {
	c.threads[chatID] = threadUniqueID
}
