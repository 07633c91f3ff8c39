package archive

import (
	"context"

	"github.com/matheus3301/wpplink/internal/store"
)

// ReadTx is the read side of storage used on export. Enumerations visit rows
// in storage order and stop at the first error returned by fn.
type ReadTx interface {
	EnumerateRecipients(ctx context.Context, fn func(*store.Recipient) error) error
	EnumerateThreads(ctx context.Context, fn func(*store.Thread) error) error
	EnumerateInteractions(ctx context.Context, fn func(*store.Interaction) error) error
	PastRevisions(ctx context.Context, latest *store.Interaction) ([]*store.Interaction, error)
	ThreadByUniqueID(ctx context.Context, uniqueID string) (*store.Thread, error)
}

// WriteTx is the write side of storage used on restore.
type WriteTx interface {
	ThreadByUniqueID(ctx context.Context, uniqueID string) (*store.Thread, error)
	InsertRecipient(ctx context.Context, r *store.Recipient) error
	InsertThread(ctx context.Context, t *store.Thread) error
	InsertInteraction(ctx context.Context, i *store.Interaction) error
}

var (
	_ ReadTx  = (*store.Tx)(nil)
	_ WriteTx = (*store.Tx)(nil)
)
