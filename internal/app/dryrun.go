package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	kit "raidwatch/internal/transport"
)

// PrintMessenger writes messages to w instead of posting them. It backs
// check --dry-run.
type PrintMessenger struct {
	mu  sync.Mutex
	w   io.Writer
	seq int
}

func NewPrintMessenger(w io.Writer) *PrintMessenger { return &PrintMessenger{w: w} }

func (p *PrintMessenger) Send(_ context.Context, channelID string, msg kit.Message) (kit.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := fmt.Sprintf("dry-%d", p.seq)
	p.print("send", channelID, id, msg)
	return kit.MessageRef{ChannelID: channelID, MessageID: id}, nil
}

func (p *PrintMessenger) Edit(_ context.Context, ref kit.MessageRef, msg kit.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.print("edit", ref.ChannelID, ref.MessageID, msg)
	return nil
}

func (p *PrintMessenger) print(op, channelID, messageID string, msg kit.Message) {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s #%s (%s)\n", op, channelID, messageID)
	if msg.Content != "" {
		b.WriteString(msg.Content + "\n")
	}
	for _, e := range msg.Embeds {
		if e.Title != "" {
			b.WriteString("# " + e.Title + "\n")
		}
		if e.URL != "" {
			b.WriteString(e.URL + "\n")
		}
		if e.Description != "" {
			b.WriteString(e.Description + "\n")
		}
		for _, f := range e.Fields {
			fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
		}
		if e.Footer != "" {
			b.WriteString("(" + e.Footer + ")\n")
		}
	}
	_, _ = io.WriteString(p.w, b.String())
}
