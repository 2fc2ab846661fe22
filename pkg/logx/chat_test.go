package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFormatChatLine(t *testing.T) {
	t.Parallel()

	got := formatChatLine([]byte(`{"level":"warn","message":"fetch failed","source":"wcl","err":"boom","time":"x"}`))
	want := "[WARN] fetch failed\n- err=boom\n- source=wcl"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}

	raw := formatChatLine([]byte("  not json  "))
	if raw != "not json" {
		t.Fatalf("formatChatLine(raw) = %q, want %q", raw, "not json")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	got := truncate(strings.Repeat("a", 50), 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q, want 20 chars ending in ...", got)
	}
}

type recordSender struct {
	mu    sync.Mutex
	lines []string
	chans []string
}

func (r *recordSender) SendLog(_ context.Context, channel, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chans = append(r.chans, channel)
	r.lines = append(r.lines, text)
	return nil
}

func (r *recordSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

func TestChatSinkFiltersByLevel(t *testing.T) {
	t.Parallel()

	rs := &recordSender{}
	svc, log := New(Config{
		Level: "debug",
		Chat:  ChatConfig{Enabled: true, Channel: "logs", MinLevel: "warn", RatePerSec: 100},
	}, rs)
	defer svc.Close()

	log.Info("ignored")
	log.Warn("delivered", String("k", "v"))

	deadline := time.Now().Add(2 * time.Second)
	for rs.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := rs.count(); n != 1 {
		t.Fatalf("delivered lines = %d, want 1", n)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.chans[0] != "logs" {
		t.Fatalf("channel = %q, want logs", rs.chans[0])
	}
	if !strings.Contains(rs.lines[0], "delivered") || !strings.Contains(rs.lines[0], "- k=v") {
		t.Fatalf("line = %q", rs.lines[0])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero Logger IsZero = false")
	}
	l.Info("nothing", Int("n", 1))
	l.With(String("a", "b")).Error("still nothing")
}
