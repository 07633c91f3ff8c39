package daemon

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/wpplink/internal/api"
	"github.com/matheus3301/wpplink/internal/backup"
	"github.com/matheus3301/wpplink/internal/bus"
	"github.com/matheus3301/wpplink/internal/config"
	"github.com/matheus3301/wpplink/internal/journal"
	"github.com/matheus3301/wpplink/internal/linksync"
	"github.com/matheus3301/wpplink/internal/lock"
	"github.com/matheus3301/wpplink/internal/metrics"
	"github.com/matheus3301/wpplink/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func TestDaemonLifecycle(t *testing.T) {
	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "wpplink-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	sessionName := "test"
	sessionDir := filepath.Join(tmpDir, sessionName)
	socketPath := filepath.Join(sessionDir, "d.sock")

	lk, err := lock.Acquire(sessionDir, "linkd-test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(sessionDir, "messages.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	logger := zap.NewNop()
	b := bus.New()
	m := metrics.New(prometheus.NewRegistry())
	recorder := journal.NewRecorder(db, b, logger)
	recorder.Start(context.Background())
	defer recorder.Stop()

	backups := backup.NewManager(db, 0, logger, m, b)
	link := linksync.NewManager(linksync.Config{Enabled: true, Primary: true}, nil, backups, nil, logger, m, b)
	svc := api.NewLinkService(sessionName, filepath.Join(sessionDir, "backups"), backups, link, db, logger)

	srv, err := NewServer(Params{SessionName: sessionName, SocketPath: socketPath}, logger, svc)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())
	defer svc.Close()

	conn, err := api.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	client := api.NewClient(conn)
	ctx := context.Background()

	// Status before anything ran.
	st, err := client.GetLinkStatus(ctx)
	if err != nil {
		t.Fatalf("GetLinkStatus error = %v", err)
	}
	if st["session"] != sessionName {
		t.Errorf("session = %v, want %q", st["session"], sessionName)
	}
	if _, ok := st["primary"]; ok {
		t.Error("expected no primary session yet")
	}

	// Export an empty store.
	out, err := client.ExportBackup(ctx, "", nil)
	if err != nil {
		t.Fatalf("ExportBackup error = %v", err)
	}
	if out["outcome"] != "success" {
		t.Errorf("outcome = %v, want success", out["outcome"])
	}
	path, _ := out["path"].(string)
	if !strings.HasPrefix(path, filepath.Join(sessionDir, "backups")) {
		t.Errorf("path = %q, want under session backups", path)
	}

	// The export shows up in checkpoints and, once the journal catches up,
	// in the history.
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err = client.GetLinkStatus(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := st["history"]; ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("export never reached the journal")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st["lastExport"] == nil {
		t.Error("expected lastExport checkpoint")
	}

	// Importing the export into another store works end to end.
	res, err := client.ImportBackup(ctx, path, nil)
	if err != nil {
		t.Fatalf("ImportBackup error = %v", err)
	}
	if res["outcome"] != "success" {
		t.Errorf("import outcome = %v", res["outcome"])
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	cfg := config.Default()
	if err := fx.ValidateApp(Module(Params{SessionName: "fxtest", Config: cfg})); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}

func TestNewServerUsesSocketOverride(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "wpplink-fx-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	svc := api.NewLinkService("fxtest", tmpDir, nil, nil, nil, nil)
	defer svc.Close()
	srv, err := NewServer(Params{SessionName: "fxtest", SocketPath: socketPath}, zap.NewNop(), svc)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}

	info, statErr := os.Stat(socketPath)
	if statErr != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, statErr)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket mode = %o, want 0600", perm)
	}
	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket not removed on Stop")
	}
}

func TestMetricsServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	b := bus.New()
	reg, m := provideMetrics(b)
	m.ObserveLinkSession("primary", "done")
	_, unsub := b.Subscribe(0, "backup.")
	defer unsub()
	b.Publish(bus.Event{Kind: bus.KindBackupExported})

	cfg := config.Default()
	cfg.Metrics.Addr = addr
	ms := NewMetricsServer(cfg, reg, zap.NewNop())
	ms.Start()
	defer ms.Stop(context.Background())

	var body string
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err == nil {
			data, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			body = string(data)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics endpoint not reachable: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !strings.Contains(body, `wpplink_link_sessions_total{result="done",role="primary"} 1`) {
		t.Errorf("metrics body missing session counter:\n%s", body)
	}
	if !strings.Contains(body, "wpplink_bus_dropped_events_total 1") {
		t.Errorf("metrics body missing dropped events:\n%s", body)
	}
}

func TestMetricsServerDisabled(t *testing.T) {
	ms := NewMetricsServer(config.Default(), prometheus.NewRegistry(), zap.NewNop())
	ms.Start()
	ms.Stop(context.Background())
}
