package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "raidwatch/pkg/logx"
)

const feedXML = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>news</title>
<item><guid>a-1</guid><title>First post</title><link>https://example.com/1</link></item>
<item><guid>a-2</guid><title>Second post</title><link>https://example.com/2</link></item>
</channel></rss>`

func writeTestConfig(t *testing.T, feedURL string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`{
  "discord": { "token": "x" },
  "logging": { "level": "error" },
  "scheduler": { "enabled": true },
  "storage": { "driver": "file", "path": %q },
  "channels": { "logs": "123456789" },
  "sources": [
    { "id": "news", "kind": "rss", "url": %q, "channels": ["logs"], "schedule": "@every 5m" }
  ]
}`, filepath.Join(dir, "state.json"), feedURL)
	p := filepath.Join(dir, "config.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCheckDryRunAnnouncesOnce(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	defer srv.Close()

	cfg, err := LoadConfig(writeTestConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	var out bytes.Buffer
	opt := CheckOptions{DryRun: true, Out: &out, Log: logx.Nop()}
	res, err := Check(context.Background(), cfg, opt)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(res) != 1 || res[0].Announced != 2 {
		t.Fatalf("first run = %+v, want 2 announced", res)
	}
	if got := strings.Count(out.String(), "--- send #123456789"); got != 2 {
		t.Fatalf("sends = %d, want 2\n%s", got, out.String())
	}
	if !strings.Contains(out.String(), "First post") {
		t.Fatalf("output missing item title:\n%s", out.String())
	}

	out.Reset()
	res, err = Check(context.Background(), cfg, opt)
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if res[0].Announced != 0 || out.Len() != 0 {
		t.Fatalf("second run announced %d, output %q", res[0].Announced, out.String())
	}
}

func TestCheckUnknownSource(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(writeTestConfig(t, "https://example.com/feed"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	_, err = Check(context.Background(), cfg, CheckOptions{IDs: []string{"nope"}, DryRun: true, Out: &bytes.Buffer{}, Log: logx.Nop()})
	if err == nil || !strings.Contains(err.Error(), `unknown source "nope"`) {
		t.Fatalf("err = %v", err)
	}
}
