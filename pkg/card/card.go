// Package card provides a small builder for Discord embeds:
//   - Title/Section/Line/KV/Bullets compose the description (Discord
//     markdown, values escaped)
//   - Field adds embed fields, capped at Discord's limits
//   - Build returns a transport Embed ready to send or edit
package card

import (
	"strings"
	"unicode/utf8"

	kit "raidwatch/internal/transport"
)

// Discord embed limits.
const (
	MaxDescription = 4096
	MaxFields      = 25
	MaxFieldName   = 256
	MaxFieldValue  = 1024
)

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "~", `\~`, "`", "\\`", "|", `\|`, ">", `\>`,
)

// Esc escapes Discord markdown in s.
func Esc(s string) string { return mdEscaper.Replace(s) }

type Builder struct {
	embed kit.Embed
	lines []string
}

func New() *Builder { return &Builder{} }

// Title sets the embed title. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	e, t := strings.TrimSpace(emoji), strings.TrimSpace(title)
	if e != "" && t != "" {
		t = e + " " + t
	}
	b.embed.Title = t
	return b
}

func (b *Builder) URL(u string) *Builder    { b.embed.URL = u; return b }
func (b *Builder) Color(c int) *Builder     { b.embed.Color = c; return b }
func (b *Builder) Footer(s string) *Builder { b.embed.Footer = s; return b }

// Section adds a bold header line.
func (b *Builder) Section(title string) *Builder {
	if t := strings.TrimSpace(title); t != "" {
		b.lines = append(b.lines, "**"+Esc(t)+"**")
	}
	return b
}

// Line adds an escaped line. An empty s adds a blank line.
func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s))
	return b
}

// RawLine appends a line as-is (links, timestamps).
func (b *Builder) RawLine(s string) *Builder {
	b.lines = append(b.lines, s)
	return b
}

func (b *Builder) Blank() *Builder { return b.RawLine("") }

func (b *Builder) Bullets(items ...string) *Builder {
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			b.lines = append(b.lines, "• "+Esc(it))
		}
	}
	return b
}

// KV adds a "key: value" row with a bold key. An empty value renders "-".
func (b *Builder) KV(key, value string) *Builder {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key == "" {
		return b
	}
	if value == "" {
		value = "-"
	}
	b.lines = append(b.lines, "**"+Esc(key)+"**: "+Esc(value))
	return b
}

// Field adds an embed field. Fields past MaxFields are dropped.
func (b *Builder) Field(name, value string, inline bool) *Builder {
	if len(b.embed.Fields) >= MaxFields {
		return b
	}
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	b.embed.Fields = append(b.embed.Fields, kit.EmbedField{
		Name:   TruncRunes(name, MaxFieldName),
		Value:  TruncRunes(value, MaxFieldValue),
		Inline: inline,
	})
	return b
}

func (b *Builder) Build() kit.Embed {
	e := b.embed
	e.Description = TruncRunes(strings.Join(b.lines, "\n"), MaxDescription)
	e.Fields = append([]kit.EmbedField(nil), b.embed.Fields...)
	return e
}

// Message wraps the built embed in a message.
func (b *Builder) Message(ephemeral bool) kit.Message {
	return kit.Message{Embeds: []kit.Embed{b.Build()}, Ephemeral: ephemeral}
}

// TruncRunes returns s cut to at most n runes, the last one an ellipsis
// when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n-1]) + "…"
}
