// Package journal persists finished backups and link sessions so the
// daemon can report them after the fact.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/wpplink/internal/backup"
	"github.com/matheus3301/wpplink/internal/bus"
	"github.com/matheus3301/wpplink/internal/linksync"
	"github.com/matheus3301/wpplink/internal/store"
	"go.uber.org/zap"
)

// Sink stores journal entries.
type Sink interface {
	InsertJournalEntry(ctx context.Context, e *store.JournalEntry) error
}

// Recorder subscribes to backup and link events on the bus and writes one
// journal entry per finished operation.
type Recorder struct {
	sink   Sink
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRecorder(sink Sink, b *bus.Bus, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, bus: b, logger: logger, now: time.Now}
}

// Start subscribes before returning, so events published afterwards are
// not missed.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	events, unsub := r.bus.Subscribe(64, bus.KindLinkFinished, "backup.")

	go func() {
		defer close(r.done)
		defer unsub()
		for {
			select {
			case evt := <-events:
				r.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the subscription and waits for the loop to exit.
func (r *Recorder) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Recorder) handleEvent(ctx context.Context, evt bus.Event) {
	entry, ok := entryFor(evt)
	if !ok {
		return
	}
	entry.CreatedAt = r.now().UnixMilli()
	if !evt.Timestamp.IsZero() {
		entry.CreatedAt = evt.Timestamp.UnixMilli()
	}
	if err := r.sink.InsertJournalEntry(ctx, entry); err != nil {
		r.logger.Error("failed to record journal entry", zap.Error(err), zap.String("kind", evt.Kind))
	}
}

func entryFor(evt bus.Event) (*store.JournalEntry, bool) {
	switch p := evt.Payload.(type) {
	case linksync.SessionResult:
		outcome := "done"
		if p.Err != "" {
			outcome = "failed"
		}
		return &store.JournalEntry{
			Kind:      evt.Kind,
			Role:      string(p.Role),
			SessionID: p.SessionID,
			Outcome:   outcome,
			Detail:    p.Err,
		}, true
	case backup.Result:
		return &store.JournalEntry{
			Kind:    evt.Kind,
			Outcome: p.Outcome,
			Detail:  fmt.Sprintf("frames=%d errors=%d", p.Frames, p.Errors),
		}, true
	}
	return nil, false
}
