package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "discord": {"token": "t", "owner_ids": ["1"]},
  "logging": {"level": "info", "console": true},
  "scheduler": {"enabled": true},
  "channels": {"logs": "1234"},
  "sources": [
    {"id": "wcl", "kind": "warcraftlogs", "url": "https://example.test/r", "channels": ["logs"]}
  ]
}`

func TestDecodeJSONStrict(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("c.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].ID != "wcl" {
		t.Fatalf("Sources = %+v", cfg.Sources)
	}

	if _, err := Decode("c.json", []byte(`{"discord":{},"bogus":1}`)); err == nil {
		t.Fatalf("Decode(unknown field) = nil error, want error")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatalf("Decode(trailing) = nil error, want error")
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()

	y := `
discord:
  token: t
scheduler:
  enabled: true
channels:
  logs: "1234"
sources:
  - id: feed
    kind: rss
    url: https://example.test/feed.xml
    channels: [logs]
`
	cfg, err := Decode("c.yaml", []byte(y))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := cfg.Sources[0].Kind; got != "rss" {
		t.Fatalf("kind = %q, want rss", got)
	}
	if got := cfg.Channels["logs"]; got != "1234" {
		t.Fatalf("channels.logs = %q, want 1234", got)
	}
}

func TestUpdateWritesAndPublishes(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := filepath.Join(dir, name)
			seed, err := Decode("x.json", []byte(sampleJSON))
			if err != nil {
				t.Fatal(err)
			}
			data, err := encodeForPath(path, seed)
			if err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				t.Fatal(err)
			}

			m := NewConfigManager(path)
			if _, err := m.Load(); err != nil {
				t.Fatalf("Load: %v", err)
			}
			sub := m.Subscribe(1)
			defer m.Unsubscribe(sub)

			_, err = m.Update(context.Background(), func(c *Config) error {
				c.Channels["raids"] = "999"
				return nil
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}

			select {
			case got := <-sub:
				if got.Channels["raids"] != "999" {
					t.Fatalf("published channels = %v", got.Channels)
				}
			case <-time.After(time.Second):
				t.Fatalf("no config published")
			}

			reread, err := m.Parse()
			if err != nil {
				t.Fatalf("Parse after Update: %v", err)
			}
			if reread.Channels["raids"] != "999" {
				t.Fatalf("file channels = %v", reread.Channels)
			}
		})
	}
}

func TestUpdateErrorLeavesFileUntouched(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	if _, err := m.Update(context.Background(), func(c *Config) error {
		c.Sources = nil
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Update err = %v, want boom", err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != sampleJSON {
		t.Fatalf("file modified after failed update")
	}
	if len(m.Get().Sources) != 1 {
		t.Fatalf("committed config modified after failed update")
	}
}

func TestDiffSources(t *testing.T) {
	t.Parallel()

	a := []SourceConfig{{ID: "a", Kind: "rss"}, {ID: "b", Kind: "rss"}, {ID: "c", Kind: "rss"}}
	b := []SourceConfig{{ID: "a", Kind: "rss"}, {ID: "c", Kind: "rss", Schedule: "5m"}, {ID: "d", Kind: "rss"}}

	d := DiffSources(a, b)
	want := SourceDiff{Added: []string{"d"}, Removed: []string{"b"}, Changed: []string{"c"}}
	if !reflect.DeepEqual(d, want) {
		t.Fatalf("DiffSources = %+v, want %+v", d, want)
	}
	if !DiffSources(a, a).Empty() {
		t.Fatalf("DiffSources(a, a) not empty")
	}
}

func TestSummarizeNeverLogsCredentialValues(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Credentials: map[string]string{"wcl": "secret-1"}}
	newCfg := &Config{Credentials: map[string]string{"wcl": "secret-2"}}
	changed, _, _ := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "credentials" {
		t.Fatalf("changed = %v, want [credentials]", changed)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"1500ms", 1500 * time.Millisecond, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDurationField("x", tc.raw)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("ParseDurationField(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
	if d, _ := ParseDurationOrDefault("x", "", 3*time.Second); d != 3*time.Second {
		t.Fatalf("ParseDurationOrDefault = %v, want 3s", d)
	}
}

func TestResolveCredential(t *testing.T) {
	t.Setenv("RAIDWATCH_TEST_TOKEN", "from-env")

	cfg := &Config{Credentials: map[string]string{
		"plain": "abc",
		"env":   "env:RAIDWATCH_TEST_TOKEN",
	}}
	if v, err := cfg.ResolveCredential("plain"); err != nil || v != "abc" {
		t.Fatalf("plain = %q, %v", v, err)
	}
	if v, err := cfg.ResolveCredential("env"); err != nil || v != "from-env" {
		t.Fatalf("env = %q, %v", v, err)
	}
	if _, err := cfg.ResolveCredential("missing"); err == nil {
		t.Fatalf("missing credential resolved")
	}
	if v, err := cfg.ResolveCredential(""); err != nil || v != "" {
		t.Fatalf("empty = %q, %v", v, err)
	}
}

func TestChannelID(t *testing.T) {
	t.Parallel()

	cfg := &Config{Channels: map[string]string{"raid-logs": "111"}}
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "raid-logs", want: "111", wantOK: true},
		{in: "222333", want: "222333", wantOK: true},
		{in: "general", wantOK: false},
		{in: "", wantOK: false},
	}
	for _, tc := range cases {
		got, ok := cfg.ChannelID(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("ChannelID(%q) = %q, %v, want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
