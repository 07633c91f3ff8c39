package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/wpplink/internal/config"
	"github.com/matheus3301/wpplink/internal/status"
)

func TestProvisioningLinkRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0xfb}, 32)
	link := provisioningLink("tok_1", key)
	if !strings.HasPrefix(link, "wpplink://link?") {
		t.Fatalf("link = %q", link)
	}

	token, got, err := parseProvisioningLink(link)
	if err != nil {
		t.Fatal(err)
	}
	if token != "tok_1" || !bytes.Equal(got, key) {
		t.Errorf("parsed token=%q key=%x", token, got)
	}
}

func TestParseProvisioningLinkRejectsOtherSchemes(t *testing.T) {
	if _, _, err := parseProvisioningLink("https://link?token=a&key=AA"); err == nil {
		t.Error("expected error for https link")
	}
}

func TestRenderQR(t *testing.T) {
	qr, err := renderQR("wpplink://link?token=a")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(qr, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("got %d lines, want a full code", len(lines))
	}
	if !strings.ContainsRune(qr, '█') {
		t.Error("expected block characters")
	}
}

func TestRootHasCommands(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"export"}, {"import"}, {"link", "primary"}, {"link", "secondary"}, {"status"}, {"config", "init"}, {"config", "show"}} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found: %v", path, err)
		}
	}
}

func TestInitConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cmd := newConfigCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := initConfig(cmd, path, false); err != nil {
		t.Fatal(err)
	}
	if err := initConfig(cmd, path, false); err == nil {
		t.Error("second init without --force should fail")
	}
	if err := initConfig(cmd, path, true); err != nil {
		t.Errorf("init --force: %v", err)
	}
	if _, err := config.Load(path); err != nil {
		t.Errorf("written config does not load: %v", err)
	}
}

func TestSessionStateIgnoresOtherSessions(t *testing.T) {
	st := map[string]any{
		"secondary": map[string]any{"sessionId": "old", "state": string(status.Done)},
		"primary":   map[string]any{"sessionId": "new", "state": string(status.Failed), "failure": "link primary: network_error"},
	}

	if state, _ := sessionState(st, status.Secondary, "new"); state != "" {
		t.Fatalf("previous session leaked state %q", state)
	}
	if state, _ := sessionState(map[string]any{}, status.Secondary, "new"); state != "" {
		t.Fatalf("missing snapshot read as %q", state)
	}
	state, failure := sessionState(st, status.Primary, "new")
	if state != status.Failed || failure != "link primary: network_error" {
		t.Fatalf("got %q %v", state, failure)
	}
}
