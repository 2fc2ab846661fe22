package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfig = `{
  "discord": { "token": "x" },
  "logging": { "level": "error" },
  "scheduler": { "enabled": true },
  "storage": { "driver": "file", "path": "%s" },
  "channels": { "logs": "123456789" },
  "sources": [
    { "id": "news", "kind": "rss", "url": "https://example.com/feed", "channels": ["logs"], "schedule": "@every 5m" },
    { "id": "old", "kind": "rss", "url": "https://example.com/old", "channels": ["logs"], "disabled": true }
  ]
}`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.json")
	body := strings.Replace(testConfig, "%s", filepath.Join(dir, "state.json"), 1)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != Version {
		t.Fatalf("version = %q, want %q", out, Version)
	}
}

func TestSourcesList(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "sources", "list", "--config", writeConfig(t))
	if err != nil {
		t.Fatalf("sources list: %v", err)
	}
	for _, want := range []string{"ID", "news", "rss", "item-set", "@every 5m", "old", "disabled"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStateShowAndResetEmpty(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t)
	out, err := execute(t, "state", "show", "news", "--config", cfg)
	if err != nil {
		t.Fatalf("state show: %v", err)
	}
	if !strings.Contains(out, `no stored state for "news"`) {
		t.Fatalf("state show = %q", out)
	}
	out, err = execute(t, "state", "reset", "news", "--config", cfg)
	if err != nil {
		t.Fatalf("state reset: %v", err)
	}
	if !strings.Contains(out, "news: 0 stored keys cleared") {
		t.Fatalf("state reset = %q", out)
	}
}

func TestCheckUnknownSource(t *testing.T) {
	t.Parallel()
	_, err := execute(t, "check", "nope", "--dry-run", "--config", writeConfig(t))
	if err == nil || !strings.Contains(err.Error(), `unknown source "nope"`) {
		t.Fatalf("check err = %v", err)
	}
}

func TestMissingConfig(t *testing.T) {
	t.Parallel()
	if _, err := execute(t, "sources", "list", "--config", filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatal("expected error for missing config")
	}
}
