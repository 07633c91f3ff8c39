package linksync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wpplink/internal/bus"
	"github.com/matheus3301/wpplink/internal/cryptox"
	"github.com/matheus3301/wpplink/internal/metrics"
	"github.com/matheus3301/wpplink/internal/status"
	"go.uber.org/zap"
)

const (
	DefaultWaitTimeout  = 5 * time.Minute
	DefaultRequestSlack = 10 * time.Second
	// MaxWaitTimeout is the longest long-poll window the relay accepts.
	MaxWaitTimeout = 10 * time.Minute
)

type Config struct {
	Enabled      bool
	Primary      bool
	WaitTimeout  time.Duration
	RequestSlack time.Duration
}

// Manager drives link-and-sync sessions. At most one session per role runs
// at a time.
type Manager struct {
	cfg         Config
	exec        RequestExecutor
	backups     Backups
	attachments Attachments
	logger      *zap.Logger
	metrics     *metrics.Metrics
	bus         *bus.Bus

	mu       sync.Mutex
	sessions map[status.Role]*status.Machine
	running  map[status.Role]bool
}

func NewManager(cfg Config, exec RequestExecutor, backups Backups, attachments Attachments, logger *zap.Logger, m *metrics.Metrics, b *bus.Bus) *Manager {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.WaitTimeout > MaxWaitTimeout {
		cfg.WaitTimeout = MaxWaitTimeout
	}
	if cfg.RequestSlack <= 0 {
		cfg.RequestSlack = DefaultRequestSlack
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:         cfg,
		exec:        exec,
		backups:     backups,
		attachments: attachments,
		logger:      logger,
		metrics:     m,
		bus:         b,
		sessions:    make(map[status.Role]*status.Machine),
		running:     make(map[status.Role]bool),
	}
}

// SessionResult is published on the bus when a session ends.
type SessionResult struct {
	Role      status.Role
	SessionID string
	Err       string
}

// GenerateEphemeralBackupKey returns a fresh key for a new primary session,
// or false when this device cannot start one.
func (m *Manager) GenerateEphemeralBackupKey() ([]byte, bool) {
	if !m.cfg.Enabled || !m.cfg.Primary {
		return nil, false
	}
	key, err := cryptox.GenerateKey()
	if err != nil {
		m.logger.Error("generate ephemeral backup key", zap.Error(err))
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running[status.Primary] {
		sm := status.NewMachine(status.Primary, uuid.NewString(), m.bus)
		_ = sm.Transition(status.KeyGenerated)
		m.sessions[status.Primary] = sm
	}
	return key, true
}

// Status returns the latest session of role, if any.
func (m *Manager) Status(role status.Role) (status.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sm, ok := m.sessions[role]
	if !ok {
		return status.Snapshot{}, false
	}
	return sm.Snapshot(), true
}

// Ready reports whether a session of role could start now.
func (m *Manager) Ready(role status.Role) error {
	if !m.cfg.Enabled || m.cfg.Primary != (role == status.Primary) {
		return ErrUnavailable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[role] {
		return ErrBusy
	}
	return nil
}

// Claim is a link session that holds its role. No other session of the same
// role can start until the claim has been run.
type Claim struct {
	Role      status.Role
	SessionID string
	// Key is the ephemeral backup key of a primary claim.
	Key []byte

	sm *status.Machine
}

// Start claims role for a new session before returning, so a concurrent
// Start of the same role fails with ErrBusy. A primary claim carries a
// fresh ephemeral backup key. The claim must be passed to RunPrimary or
// RunSecondary.
func (m *Manager) Start(role status.Role) (*Claim, error) {
	if err := m.Ready(role); err != nil {
		return nil, err
	}
	var key []byte
	if role == status.Primary {
		k, err := cryptox.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral backup key: %w", err)
		}
		key = k
	}
	sm, err := m.begin(role)
	if err != nil {
		return nil, err
	}
	return &Claim{Role: role, SessionID: sm.Snapshot().SessionID, Key: key, sm: sm}, nil
}

// RunPrimary runs a claimed primary session for the device provisioned
// with token.
func (m *Manager) RunPrimary(ctx context.Context, c *Claim, token string) (err error) {
	if c.Role != status.Primary {
		return ErrUnavailable
	}
	defer func() { m.end(c.sm, status.Primary, err) }()
	return m.runPrimary(ctx, c.sm, c.Key, token)
}

// RunSecondary runs a claimed secondary session, restoring with key.
func (m *Manager) RunSecondary(ctx context.Context, c *Claim, key []byte) (err error) {
	if c.Role != status.Secondary {
		return ErrUnavailable
	}
	defer func() { m.end(c.sm, status.Secondary, err) }()
	return m.runSecondary(ctx, c.sm, key)
}

// begin claims the role and returns its machine, reusing a primary session
// that already generated its key.
func (m *Manager) begin(role status.Role) (*status.Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[role] {
		return nil, ErrBusy
	}
	sm, ok := m.sessions[role]
	if !ok || sm.Current() != status.KeyGenerated {
		sm = status.NewMachine(role, uuid.NewString(), m.bus)
		if role == status.Primary {
			_ = sm.Transition(status.KeyGenerated)
		}
		m.sessions[role] = sm
	}
	m.running[role] = true
	return sm, nil
}

func (m *Manager) end(sm *status.Machine, role status.Role, err error) {
	m.mu.Lock()
	m.running[role] = false
	m.mu.Unlock()

	snap := sm.Snapshot()
	result := "done"
	res := SessionResult{Role: role, SessionID: snap.SessionID}
	if err != nil {
		result = "failed"
		res.Err = err.Error()
		m.logger.Warn("link session failed", zap.String("role", string(role)), zap.String("session", snap.SessionID), zap.Error(err))
	} else {
		m.logger.Info("link session finished", zap.String("role", string(role)), zap.String("session", snap.SessionID))
	}
	m.metrics.ObserveLinkSession(string(role), result)
	m.bus.Publish(bus.Event{Kind: bus.KindLinkFinished, Payload: res})
}

// step moves sm to state and times the work done there. A failing fn moves
// the session to Failed with the error text.
func (m *Manager) step(sm *status.Machine, state status.State, fn func() error) error {
	if err := sm.Transition(state); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	m.metrics.ObserveLinkStep(string(sm.Snapshot().Role), string(state), time.Since(start))
	if err != nil {
		_ = sm.Fail(err.Error())
	}
	return err
}

// waitParams returns the server long-poll window in seconds and the client
// deadline for one wait request.
func (m *Manager) waitParams() (url.Values, time.Duration) {
	secs := int(m.cfg.WaitTimeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	return url.Values{"timeout": {strconv.Itoa(secs)}}, time.Duration(secs)*time.Second + m.cfg.RequestSlack
}

// WaitForLinkingAndUploadBackup runs the primary side of a session for the
// device provisioned with token. The key is only used for this session.
func (m *Manager) WaitForLinkingAndUploadBackup(ctx context.Context, key []byte, token string) (err error) {
	if !m.cfg.Enabled || !m.cfg.Primary {
		return ErrUnavailable
	}
	sm, err := m.begin(status.Primary)
	if err != nil {
		return err
	}
	defer func() { m.end(sm, status.Primary, err) }()
	return m.runPrimary(ctx, sm, key, token)
}

func (m *Manager) runPrimary(ctx context.Context, sm *status.Machine, key []byte, token string) (err error) {
	if len(key) != cryptox.KeyLength {
		err = primaryErr(ErrorGeneratingBackup, "ephemeral key must be %d bytes", cryptox.KeyLength)
		_ = sm.Fail(err.Error())
		return err
	}

	var device *LinkedDevice
	if err = m.step(sm, status.WaitingForLink, func() error {
		var werr *PrimaryError
		device, werr = m.waitForLinkedDevice(ctx, token)
		if werr != nil {
			return werr
		}
		return nil
	}); err != nil {
		return err
	}
	m.logger.Info("device linked", zap.Uint32("device_id", device.ID), zap.Uint64("created", device.Created))

	var payload []byte
	if err = m.step(sm, status.GeneratingBackup, func() error {
		var berr error
		payload, berr = m.backups.ExportEncrypted(ctx, key)
		if berr != nil {
			return primaryErr(ErrorGeneratingBackup, "%v", berr)
		}
		return nil
	}); err != nil {
		return err
	}

	var archive TransferArchive
	if err = m.step(sm, status.Uploading, func() error {
		var uerr error
		archive, uerr = m.attachments.Upload(ctx, payload)
		if uerr == nil {
			return nil
		}
		if isNetwork(uerr) {
			return primaryErr(PrimaryNetworkError, "upload: %v", uerr)
		}
		return primaryErr(ErrorUploadingBackup, "%v", uerr)
	}); err != nil {
		return err
	}

	if err = m.step(sm, status.MarkingUploaded, func() error {
		if merr := m.markUploaded(ctx, device, archive); merr != nil {
			return merr
		}
		return nil
	}); err != nil {
		return err
	}
	return sm.Transition(status.Done)
}

func (m *Manager) waitForLinkedDevice(ctx context.Context, token string) (*LinkedDevice, *PrimaryError) {
	query, timeout := m.waitParams()
	resp, err := m.exec.Execute(ctx, &Request{
		Method:  http.MethodGet,
		Path:    "/v1/devices/wait_for_linked_device/" + url.PathEscape(token),
		Query:   query,
		Timeout: timeout,
	})
	if err != nil {
		return nil, primaryErr(PrimaryNetworkError, "wait for linked device: %v", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		var d LinkedDevice
		if err := json.Unmarshal(resp.Body, &d); err != nil {
			return nil, primaryErr(ErrorWaitingForLinkedDevice, "malformed response: %v", err)
		}
		return &d, nil
	case http.StatusNoContent:
		return nil, &PrimaryError{Kind: TimedOutWaitingForLinkedDevice}
	default:
		return nil, primaryErr(ErrorWaitingForLinkedDevice, "status %d", resp.StatusCode)
	}
}

func (m *Manager) markUploaded(ctx context.Context, device *LinkedDevice, ta TransferArchive) *PrimaryError {
	body, err := json.Marshal(MarkUploadedRequest{
		DestinationDeviceID:      device.ID,
		DestinationDeviceCreated: device.Created,
		TransferArchive:          ta,
	})
	if err != nil {
		return primaryErr(ErrorUploadingBackup, "encode request: %v", err)
	}
	resp, err := m.exec.Execute(ctx, &Request{
		Method:  http.MethodPut,
		Path:    "/v1/devices/transfer_archive",
		Body:    body,
		Timeout: m.cfg.RequestSlack,
	})
	if err != nil {
		return primaryErr(PrimaryNetworkError, "mark uploaded: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		return primaryErr(ErrorUploadingBackup, "mark uploaded: status %d", resp.StatusCode)
	}
	return nil
}

// WaitForBackupAndRestore runs the secondary side: wait until the primary
// has marked its upload, download it and restore it with key.
func (m *Manager) WaitForBackupAndRestore(ctx context.Context, key []byte) (err error) {
	if !m.cfg.Enabled || m.cfg.Primary {
		return ErrUnavailable
	}
	sm, err := m.begin(status.Secondary)
	if err != nil {
		return err
	}
	defer func() { m.end(sm, status.Secondary, err) }()
	return m.runSecondary(ctx, sm, key)
}

func (m *Manager) runSecondary(ctx context.Context, sm *status.Machine, key []byte) (err error) {
	var ta *TransferArchive
	if err = m.step(sm, status.WaitingForBackup, func() error {
		var werr *SecondaryError
		ta, werr = m.waitForBackup(ctx)
		if werr != nil {
			return werr
		}
		return nil
	}); err != nil {
		return err
	}

	var payload []byte
	if err = m.step(sm, status.Downloading, func() error {
		var derr error
		payload, derr = m.attachments.Download(ctx, *ta)
		if derr == nil {
			return nil
		}
		if isNetwork(derr) {
			return secondaryErr(SecondaryNetworkError, "download: %v", derr)
		}
		return secondaryErr(ErrorDownloadingBackup, "%v", derr)
	}); err != nil {
		return err
	}

	if err = m.step(sm, status.Restoring, func() error {
		summary, rerr := m.backups.ImportEncrypted(ctx, payload, key)
		if rerr != nil {
			return secondaryErr(ErrorRestoringBackup, "%v", rerr)
		}
		m.logger.Info("backup restored",
			zap.Int("chat_items", summary.ChatItems),
			zap.Int("failed", summary.Failed),
		)
		return nil
	}); err != nil {
		return err
	}
	return sm.Transition(status.Done)
}

func (m *Manager) waitForBackup(ctx context.Context) (*TransferArchive, *SecondaryError) {
	query, timeout := m.waitParams()
	resp, err := m.exec.Execute(ctx, &Request{
		Method:  http.MethodGet,
		Path:    "/v1/devices/transfer_archive",
		Query:   query,
		Timeout: timeout,
	})
	if err != nil {
		return nil, secondaryErr(SecondaryNetworkError, "wait for backup: %v", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		var ta TransferArchive
		if err := json.Unmarshal(resp.Body, &ta); err != nil {
			return nil, secondaryErr(ErrorWaitingForBackup, "malformed response: %v", err)
		}
		if ta.Key == "" {
			return nil, secondaryErr(ErrorWaitingForBackup, "response without key")
		}
		return &ta, nil
	case http.StatusNoContent:
		return nil, &SecondaryError{Kind: TimedOutWaitingForBackup}
	default:
		return nil, secondaryErr(ErrorWaitingForBackup, "status %d", resp.StatusCode)
	}
}
