// Package backup produces and consumes complete backup streams: a header
// followed by recipient, chat and chat item frames, optionally sealed under
// an ephemeral key.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/matheus3301/wpplink/internal/backup/archive"
	"github.com/matheus3301/wpplink/internal/backup/frame"
	"github.com/matheus3301/wpplink/internal/bus"
	"github.com/matheus3301/wpplink/internal/cryptox"
	"github.com/matheus3301/wpplink/internal/metrics"
	"github.com/matheus3301/wpplink/internal/store"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported backup version")
	ErrFrameOrder         = errors.New("frame out of order")
)

// Result summarises a finished export or import for event subscribers.
type Result struct {
	Outcome string
	Frames  int
	Errors  int
}

// Manager runs exports and imports against the message store.
type Manager struct {
	db       *store.DB
	archiver *archive.ChatItemArchiver
	logger   *zap.Logger
	metrics  *metrics.Metrics
	bus      *bus.Bus
	selfACI  string
	now      func() time.Time
}

func NewManager(db *store.DB, minExpireThreshold time.Duration, logger *zap.Logger, m *metrics.Metrics, b *bus.Bus) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []archive.Option{}
	if minExpireThreshold > 0 {
		opts = append(opts, archive.WithMinExpireThreshold(minExpireThreshold))
	}
	return &Manager{
		db:       db,
		archiver: archive.NewChatItemArchiver(logger.Named("archive"), opts...),
		logger:   logger,
		metrics:  m,
		bus:      b,
		now:      time.Now,
	}
}

// WithSelfACI sets the local account's ACI. Import attaches it to the
// backup's self recipient so quotes and calls by the local account keep
// their author.
func (m *Manager) WithSelfACI(aci string) *Manager {
	m.selfACI = aci
	return m
}

// Export writes a complete backup stream to w inside one read transaction.
// Per-item problems yield a partial success; only a complete failure
// returns an error.
func (m *Manager) Export(ctx context.Context, w io.Writer) (archive.MultiFrameResult, error) {
	tx, err := m.db.BeginTx(ctx, true)
	if err != nil {
		return archive.MultiFrameResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	sw := frame.NewStreamWriter(w)
	if err := sw.WriteHeader(&frame.BackupInfo{Version: frame.Version, BackupTimeMs: uint64(m.now().UnixMilli())}); err != nil {
		return archive.MultiFrameResult{}, err
	}

	rctx := archive.NewRecipientArchivingContext()
	res := archive.RecipientArchiver{}.Archive(ctx, sw, rctx, tx)
	if res.Outcome != archive.CompleteFailure {
		actx := archive.NewChatArchivingContext(rctx)
		res = archive.Merge(res, archive.ChatArchiver{}.Archive(ctx, sw, actx, tx))
		if res.Outcome != archive.CompleteFailure {
			res = archive.Merge(res, m.archiver.ArchiveInteractions(ctx, sw, actx, tx))
		}
	}
	_ = tx.Rollback()

	m.metrics.ObserveBackup("export", res.Outcome.String(), res.Frames, len(res.Errors))
	if res.Outcome == archive.CompleteFailure {
		m.logger.Error("backup export failed", zap.Error(res.Err()))
		return res, fmt.Errorf("export: %w", res.Err())
	}

	for _, e := range res.Errors {
		m.logger.Warn("skipped item during export", zap.String("id", e.ID), zap.Error(e.Err))
	}
	m.logger.Info("backup exported",
		zap.Stringer("outcome", res.Outcome),
		zap.Int("frames", res.Frames),
		zap.Int("skipped", len(res.Errors)),
	)
	if err := m.db.SetCheckpoint(ctx, store.CheckpointLastExport, m.now().UTC().Format(time.RFC3339)); err != nil {
		m.logger.Warn("record export checkpoint", zap.Error(err))
	}
	m.bus.Publish(bus.Event{Kind: bus.KindBackupExported, Payload: Result{
		Outcome: res.Outcome.String(), Frames: res.Frames, Errors: len(res.Errors),
	}})
	return res, nil
}

// Import restores a backup stream inside one write transaction. Frames must
// arrive as recipients, then chats, then chat items. Anything that breaks
// that order, a malformed stream, or a developer error rolls back the whole
// import.
func (m *Manager) Import(ctx context.Context, r io.Reader) (archive.RestoreSummary, error) {
	var summary archive.RestoreSummary

	sr := frame.NewStreamReader(r)
	info, err := sr.ReadHeader()
	if err != nil {
		return summary, fmt.Errorf("read header: %w", err)
	}
	if info.Version == 0 || info.Version > frame.Version {
		return summary, fmt.Errorf("%w: %d", ErrUnsupportedVersion, info.Version)
	}

	err = m.db.WithTx(ctx, func(tx *store.Tx) error {
		rctx := archive.NewRecipientRestoringContext(m.selfACI)
		cctx := archive.NewChatRestoringContext(rctx)
		phase := archive.FrameRecipient

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := sr.ReadFrame()
			if err == io.EOF {
				return nil
			}
			if errors.Is(err, frame.ErrUnknownFrame) {
				summary.Skipped++
				continue
			}
			if err != nil {
				return fmt.Errorf("read frame: %w", err)
			}

			var (
				kind archive.FrameKind
				res  archive.RestoreResult
			)
			switch it := item.(type) {
			case *frame.Recipient:
				kind = archive.FrameRecipient
				if phase > kind {
					return fmt.Errorf("%w: recipient %d after chats", ErrFrameOrder, it.ID)
				}
				res = archive.RecipientArchiver{}.Restore(ctx, it, rctx, tx)
			case *frame.Chat:
				kind = archive.FrameChat
				if phase > kind {
					return fmt.Errorf("%w: chat %d after chat items", ErrFrameOrder, it.ID)
				}
				res = archive.ChatArchiver{}.Restore(ctx, it, cctx, tx)
			case *frame.ChatItem:
				kind = archive.FrameChatItem
				res = m.archiver.Restore(ctx, it, cctx, tx)
			}
			phase = kind

			if res.Fatal() {
				return res.Errors[0]
			}
			summary.Add(kind, res)
		}
	})

	outcome := summary.Outcome().String()
	if err != nil {
		outcome = archive.CompleteFailure.String()
	}
	m.metrics.ObserveBackup("import", outcome, summary.Recipients+summary.Chats+summary.ChatItems, len(summary.Errors))
	if err != nil {
		m.logger.Error("backup import failed", zap.Error(err))
		return summary, fmt.Errorf("import: %w", err)
	}

	for _, e := range summary.Errors {
		m.logger.Warn("skipped frame during import", zap.String("id", e.ID), zap.Error(e.Err))
	}
	m.logger.Info("backup imported",
		zap.Int("recipients", summary.Recipients),
		zap.Int("chats", summary.Chats),
		zap.Int("chat_items", summary.ChatItems),
		zap.Int("failed", summary.Failed),
		zap.Int("unknown", summary.Skipped),
	)
	if err := m.db.SetCheckpoint(ctx, store.CheckpointLastImport, m.now().UTC().Format(time.RFC3339)); err != nil {
		m.logger.Warn("record import checkpoint", zap.Error(err))
	}
	m.bus.Publish(bus.Event{Kind: bus.KindBackupImported, Payload: Result{
		Outcome: outcome, Frames: summary.Recipients + summary.Chats + summary.ChatItems, Errors: len(summary.Errors),
	}})
	return summary, nil
}

// ExportEncrypted returns a sealed backup for a link-and-sync transfer.
func (m *Manager) ExportEncrypted(ctx context.Context, key []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.Export(ctx, &buf); err != nil {
		return nil, err
	}
	sealed, err := cryptox.Seal(buf.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("seal backup: %w", err)
	}
	return sealed, nil
}

// ImportEncrypted opens a sealed backup and restores it.
func (m *Manager) ImportEncrypted(ctx context.Context, payload, key []byte) (archive.RestoreSummary, error) {
	plain, err := cryptox.Open(payload, key)
	if err != nil {
		return archive.RestoreSummary{}, fmt.Errorf("open backup: %w", err)
	}
	return m.Import(ctx, bytes.NewReader(plain))
}
