package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndShow(t *testing.T) {
	home := t.TempDir()
	t.Setenv("QUESTFORGE_HOME", home)
	t.Cleanup(func() { configForce = false })

	out, err := runCmd(t, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	path := filepath.Join(home, "config.toml")
	if !strings.Contains(out, path) {
		t.Errorf("output = %q, want path %s", out, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	if _, err := runCmd(t, "config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := runCmd(t, "config", "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	out, err = runCmd(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "[api]") || !strings.Contains(out, "port = 8420") {
		t.Errorf("config show output:\n%s", out)
	}
}

func TestPurgeCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("QUESTFORGE_HOME", home)

	out, err := runCmd(t, "purge")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if strings.TrimSpace(out) != "Purged 0 rows" {
		t.Errorf("purge output = %q", out)
	}
}
