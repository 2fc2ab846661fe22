package card

import (
	"strings"
	"testing"
)

func TestBuilder(t *testing.T) {
	t.Parallel()

	e := New().
		Title("📋", "Sources").
		Color(0x00ff00).
		Section("wcl_main").
		KV("kind", "warcraftlogs").
		KV("channels", "").
		Bullets("a_b", " ").
		Field("x", "", true).
		Build()

	if e.Title != "📋 Sources" {
		t.Fatalf("Title = %q", e.Title)
	}
	want := "**wcl\\_main**\n**kind**: warcraftlogs\n**channels**: -\n• a\\_b"
	if e.Description != want {
		t.Fatalf("Description = %q, want %q", e.Description, want)
	}
	if len(e.Fields) != 1 || e.Fields[0].Value != "-" || !e.Fields[0].Inline {
		t.Fatalf("Fields = %+v", e.Fields)
	}
}

func TestFieldCapAndTruncation(t *testing.T) {
	t.Parallel()

	b := New()
	for range 30 {
		b.Field("n", strings.Repeat("é", 2000), false)
	}
	e := b.Build()
	if len(e.Fields) != MaxFields {
		t.Fatalf("len(Fields) = %d, want %d", len(e.Fields), MaxFields)
	}
	v := []rune(e.Fields[0].Value)
	if len(v) != MaxFieldValue || v[len(v)-1] != '…' {
		t.Fatalf("field value len = %d, last = %q", len(v), v[len(v)-1])
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "he…"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
