package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/matheus3301/wpplink/internal/backup"
	"github.com/matheus3301/wpplink/internal/backup/archive"
	"github.com/matheus3301/wpplink/internal/cryptox"
	"github.com/matheus3301/wpplink/internal/linksync"
	"github.com/matheus3301/wpplink/internal/status"
	"github.com/matheus3301/wpplink/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Backups is what LinkService needs from the backup manager.
type Backups interface {
	Export(ctx context.Context, w io.Writer) (archive.MultiFrameResult, error)
	Import(ctx context.Context, r io.Reader) (archive.RestoreSummary, error)
	ExportEncrypted(ctx context.Context, key []byte) ([]byte, error)
	ImportEncrypted(ctx context.Context, payload, key []byte) (archive.RestoreSummary, error)
}

// Linker is what LinkService needs from the link-and-sync manager.
type Linker interface {
	Start(role status.Role) (*linksync.Claim, error)
	RunPrimary(ctx context.Context, c *linksync.Claim, token string) error
	RunSecondary(ctx context.Context, c *linksync.Claim, key []byte) error
	Status(role status.Role) (status.Snapshot, bool)
}

// History reads checkpoints and the journal.
type History interface {
	GetCheckpoint(ctx context.Context, key string) (string, error)
	RecentJournal(ctx context.Context, limit int) ([]store.JournalEntry, error)
}

const historyLimit = 10

// LinkService implements LinkServer on top of the backup and link managers.
// Link sessions outlive the RPC that started them; they run on the
// service's own context, cancelled by Close.
type LinkService struct {
	sessionName string
	backupDir   string
	backups     Backups
	linker      Linker
	history     History
	logger      *zap.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

var _ LinkServer = (*LinkService)(nil)

func NewLinkService(sessionName, backupDir string, backups Backups, linker Linker, history History, logger *zap.Logger) *LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LinkService{
		sessionName: sessionName,
		backupDir:   backupDir,
		backups:     backups,
		linker:      linker,
		history:     history,
		logger:      logger,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Close cancels running link sessions.
func (s *LinkService) Close() {
	s.cancel()
}

func (s *LinkService) ExportBackup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := optionalKey(req)
	if err != nil {
		return nil, err
	}
	path := stringField(req, "path")
	if path == "" {
		path = filepath.Join(s.backupDir, fmt.Sprintf("backup-%s.bin", s.now().UTC().Format("20060102-150405")))
	}

	var buf bytes.Buffer
	res, err := s.backups.Export(ctx, &buf)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "export: %v", err)
	}
	data := buf.Bytes()
	if key != nil {
		if data, err = cryptox.Seal(data, key); err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "seal: %v", err)
		}
	}
	if err := writeFile(path, data); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "write %s: %v", path, err)
	}

	return structpb.NewStruct(map[string]any{
		"path":    path,
		"outcome": res.Outcome.String(),
		"frames":  res.Frames,
		"errors":  frameErrors(res.Errors),
	})
}

func (s *LinkService) ImportBackup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := optionalKey(req)
	if err != nil {
		return nil, err
	}
	path := stringField(req, "path")
	if path == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "read %s: %v", path, err)
	}

	var summary archive.RestoreSummary
	if key != nil {
		summary, err = s.backups.ImportEncrypted(ctx, data, key)
	} else {
		summary, err = s.backups.Import(ctx, bytes.NewReader(data))
	}
	if err != nil {
		code := codes.Internal
		if errors.Is(err, backup.ErrUnsupportedVersion) || errors.Is(err, backup.ErrFrameOrder) || errors.Is(err, cryptox.ErrPayloadTooShort) {
			code = codes.InvalidArgument
		}
		return nil, grpcstatus.Errorf(code, "import: %v", err)
	}

	return structpb.NewStruct(map[string]any{
		"outcome":    summary.Outcome().String(),
		"recipients": summary.Recipients,
		"chats":      summary.Chats,
		"chatItems":  summary.ChatItems,
		"partial":    summary.Partial,
		"failed":     summary.Failed,
		"skipped":    summary.Skipped,
		"errors":     frameErrors(summary.Errors),
	})
}

func (s *LinkService) StartPrimaryLink(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "token is required")
	}
	claim, err := s.linker.Start(status.Primary)
	if err != nil {
		return nil, linkError(err)
	}

	go func() {
		if err := s.linker.RunPrimary(s.ctx, claim, token); err != nil {
			s.logger.Warn("primary link session ended with error", zap.String("session", claim.SessionID), zap.Error(err))
		}
	}()

	return structpb.NewStruct(map[string]any{
		"key":       base64.StdEncoding.EncodeToString(claim.Key),
		"sessionId": claim.SessionID,
	})
}

func (s *LinkService) StartSecondaryRestore(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := optionalKey(req)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, "key is required")
	}
	claim, err := s.linker.Start(status.Secondary)
	if err != nil {
		return nil, linkError(err)
	}

	go func() {
		if err := s.linker.RunSecondary(s.ctx, claim, key); err != nil {
			s.logger.Warn("secondary restore session ended with error", zap.String("session", claim.SessionID), zap.Error(err))
		}
	}()

	return structpb.NewStruct(map[string]any{"sessionId": claim.SessionID})
}

func (s *LinkService) GetLinkStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	out := map[string]any{"session": s.sessionName}
	for _, role := range []status.Role{status.Primary, status.Secondary} {
		if snap, ok := s.linker.Status(role); ok {
			out[string(role)] = snapshotFields(snap)
		}
	}

	if s.history != nil {
		for field, key := range map[string]string{"lastExport": store.CheckpointLastExport, "lastImport": store.CheckpointLastImport} {
			if v, err := s.history.GetCheckpoint(ctx, key); err == nil && v != "" {
				out[field] = v
			}
		}
		entries, err := s.history.RecentJournal(ctx, historyLimit)
		if err != nil {
			s.logger.Warn("failed to read journal", zap.Error(err))
		}
		var history []any
		for _, e := range entries {
			history = append(history, map[string]any{
				"kind":      e.Kind,
				"role":      e.Role,
				"sessionId": e.SessionID,
				"outcome":   e.Outcome,
				"detail":    e.Detail,
				"at":        e.CreatedAt,
			})
		}
		if len(history) > 0 {
			out["history"] = history
		}
	}
	return structpb.NewStruct(out)
}

func snapshotFields(snap status.Snapshot) map[string]any {
	m := map[string]any{
		"sessionId": snap.SessionID,
		"state":     string(snap.State),
		"updatedAt": snap.UpdatedAt.UnixMilli(),
	}
	if snap.Failure != "" {
		m["failure"] = snap.Failure
	}
	return m
}

func linkError(err error) error {
	switch {
	case errors.Is(err, linksync.ErrUnavailable):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, linksync.ErrBusy):
		return grpcstatus.Error(codes.Aborted, err.Error())
	}
	return grpcstatus.Error(codes.Internal, err.Error())
}

func frameErrors(errs []*archive.FrameError) []any {
	out := make([]any, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

// optionalKey decodes a base64 "key" field, returning nil when absent.
func optionalKey(req *structpb.Struct) ([]byte, error) {
	raw := stringField(req, "key")
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(key) != cryptox.KeyLength {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "key must be %d bytes of base64", cryptox.KeyLength)
	}
	return key, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
