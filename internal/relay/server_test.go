package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/matheus3301/wpplink/internal/backup/archive"
	"github.com/matheus3301/wpplink/internal/linksync"
	"github.com/matheus3301/wpplink/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testACI      = "11111111-2222-3333-4444-555555555555"
	testPassword = "hunter2"
)

type fixture struct {
	srv *httptest.Server
	reg *prometheus.Registry
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reg := prometheus.NewRegistry()
	s := NewServer(rdb, cfg, nil, metrics.New(reg))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, reg: reg}
}

func (f *fixture) do(t *testing.T, method, path, user, pass string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *fixture) link(t *testing.T, token string) linksync.LinkedDevice {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/v1/devices/link", testACI+".1", testPassword, linkRequest{TokenID: token, Name: "ipad"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d linksync.LinkedDevice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	return d
}

func TestLinkThenWait(t *testing.T) {
	f := newFixture(t, Config{})

	d := f.link(t, "tok")
	assert.Equal(t, uint32(2), d.ID)
	assert.Equal(t, "ipad", d.Name)
	assert.NotZero(t, d.Created)

	resp := f.do(t, http.MethodGet, "/v1/devices/wait_for_linked_device/tok?timeout=5", testACI+".1", testPassword, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got linksync.LinkedDevice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, d, got)

	assert.Equal(t, uint32(3), f.link(t, "tok2").ID)
}

func TestWaitTimesOut(t *testing.T) {
	f := newFixture(t, Config{})
	resp := f.do(t, http.MethodGet, "/v1/devices/wait_for_linked_device/nobody?timeout=1", testACI+".1", testPassword, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWaitValidation(t *testing.T) {
	f := newFixture(t, Config{})
	for _, path := range []string{
		"/v1/devices/wait_for_linked_device/tok",
		"/v1/devices/wait_for_linked_device/tok?timeout=0",
		"/v1/devices/wait_for_linked_device/tok?timeout=601",
		"/v1/devices/wait_for_linked_device/tok?timeout=abc",
		"/v1/devices/wait_for_linked_device/bad%20token?timeout=5",
		"/v1/devices/transfer_archive?timeout=0",
	} {
		resp := f.do(t, http.MethodGet, path, testACI+".1", testPassword, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t, Config{})
	path := "/v1/devices/wait_for_linked_device/tok?timeout=0"

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, path, "", "", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, path, testACI, testPassword, nil).StatusCode)

	// First password wins.
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, path, testACI+".1", testPassword, nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, path, testACI+".1", "other", nil).StatusCode)

	// Unknown secondary device.
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, path, testACI+".7", testPassword, nil).StatusCode)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RequestsPerMinute: 3})

	path := "/v1/devices/wait_for_linked_device/tok?timeout=0"
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, path, testACI+".1", testPassword, nil).StatusCode)
	}
	resp := f.do(t, http.MethodGet, path, testACI+".1", testPassword, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	// Budgets are per account.
	other := "99999999-2222-3333-4444-555555555555.1"
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, path, other, testPassword, nil).StatusCode)

	n, err := testutil.GatherAndCount(f.reg, "wpplink_relay_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series for 4xx, one for 429")
}

func TestTransferArchive(t *testing.T) {
	f := newFixture(t, Config{})
	d := f.link(t, "tok")
	primary := testACI + ".1"
	secondary := testACI + ".2"

	mark := func(id uint32, created uint64, key string) int {
		return f.do(t, http.MethodPut, "/v1/devices/transfer_archive", primary, testPassword, linksync.MarkUploadedRequest{
			DestinationDeviceID:      id,
			DestinationDeviceCreated: created,
			TransferArchive:          linksync.TransferArchive{CDN: 3, Key: key},
		}).StatusCode
	}
	assert.Equal(t, http.StatusBadRequest, mark(d.ID, d.Created, ""))
	assert.Equal(t, http.StatusNotFound, mark(9, d.Created, "k"))
	assert.Equal(t, http.StatusNotFound, mark(d.ID, d.Created+1, "k"))
	assert.Equal(t, http.StatusNoContent, mark(d.ID, d.Created, "transfer/abc"))

	resp := f.do(t, http.MethodGet, "/v1/devices/transfer_archive?timeout=5", secondary, testPassword, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ta linksync.TransferArchive
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ta))
	assert.Equal(t, linksync.TransferArchive{CDN: 3, Key: "transfer/abc"}, ta)

	// Delivered once.
	resp = f.do(t, http.MethodGet, "/v1/devices/transfer_archive?timeout=1", secondary, testPassword, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTransferArchiveMalformed(t *testing.T) {
	f := newFixture(t, Config{})
	req, err := http.NewRequest(http.MethodPut, f.srv.URL+"/v1/devices/transfer_archive", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.SetBasicAuth(testACI+".1", testPassword)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type memBackups struct {
	mu       sync.Mutex
	restored []byte
}

func (b *memBackups) ExportEncrypted(_ context.Context, key []byte) ([]byte, error) {
	return append([]byte("backup:"), key[:4]...), nil
}

func (b *memBackups) ImportEncrypted(_ context.Context, payload, _ []byte) (archive.RestoreSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restored = payload
	return archive.RestoreSummary{}, nil
}

type memAttachments struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (a *memAttachments) Upload(_ context.Context, payload []byte) (linksync.TransferArchive, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects["transfer/1"] = payload
	return linksync.TransferArchive{CDN: 3, Key: "transfer/1"}, nil
}

func (a *memAttachments) Download(_ context.Context, ta linksync.TransferArchive) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.objects[ta.Key], nil
}

func TestLinkAndSyncThroughRelay(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	cfg := linksync.Config{Enabled: true, WaitTimeout: 5 * time.Second, RequestSlack: 2 * time.Second}
	attachments := &memAttachments{objects: map[string][]byte{}}

	primaryCfg := cfg
	primaryCfg.Primary = true
	primaryExec := linksync.NewHTTPExecutor(f.srv.URL, testACI, 1, testPassword, nil)
	primary := linksync.NewManager(primaryCfg, primaryExec, &memBackups{}, attachments, nil, nil, nil)

	key, ok := primary.GenerateEphemeralBackupKey()
	require.True(t, ok)

	done := make(chan error, 1)
	go func() { done <- primary.WaitForLinkingAndUploadBackup(ctx, key, "provision-1") }()

	body, err := json.Marshal(linkRequest{TokenID: "provision-1", Name: "laptop"})
	require.NoError(t, err)
	resp, err := primaryExec.Execute(ctx, &linksync.Request{Method: http.MethodPost, Path: "/v1/devices/link", Body: body})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var device linksync.LinkedDevice
	require.NoError(t, json.Unmarshal(resp.Body, &device))

	secondaryBackups := &memBackups{}
	secondary := linksync.NewManager(cfg,
		linksync.NewHTTPExecutor(f.srv.URL, testACI, device.ID, testPassword, nil),
		secondaryBackups, attachments, nil, nil, nil)

	require.NoError(t, secondary.WaitForBackupAndRestore(ctx, key))
	require.NoError(t, <-done)
	assert.Equal(t, append([]byte("backup:"), key[:4]...), secondaryBackups.restored)
}
