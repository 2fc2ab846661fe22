// Package transporttest provides an in-memory Messenger for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	kit "raidwatch/internal/transport"
)

type Call struct {
	Op        string // send | edit
	ChannelID string
	MessageID string
	Msg       kit.Message
}

// Messenger records every call. Channels listed in Fail reject sends and
// edits; message ids listed in Gone make Edit return ErrUnknownMessage.
type Messenger struct {
	mu    sync.Mutex
	seq   int
	calls []Call
	Fail  map[string]error
	Gone  map[string]bool
}

func NewMessenger() *Messenger {
	return &Messenger{Fail: map[string]error{}, Gone: map[string]bool{}}
}

func (m *Messenger) Send(_ context.Context, channelID string, msg kit.Message) (kit.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[channelID]; err != nil {
		return kit.MessageRef{}, err
	}
	m.seq++
	id := fmt.Sprintf("m%d", m.seq)
	m.calls = append(m.calls, Call{Op: "send", ChannelID: channelID, MessageID: id, Msg: msg})
	return kit.MessageRef{ChannelID: channelID, MessageID: id}, nil
}

func (m *Messenger) Edit(_ context.Context, ref kit.MessageRef, msg kit.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[ref.ChannelID]; err != nil {
		return err
	}
	if m.Gone[ref.MessageID] {
		return kit.ErrUnknownMessage
	}
	m.calls = append(m.calls, Call{Op: "edit", ChannelID: ref.ChannelID, MessageID: ref.MessageID, Msg: msg})
	return nil
}

// SetFail makes channelID fail with err; nil clears it.
func (m *Messenger) SetFail(channelID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Fail, channelID)
		return
	}
	m.Fail[channelID] = err
}

func (m *Messenger) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Titles returns the first embed title of every recorded call.
func (m *Messenger) Titles() []string {
	var out []string
	for _, c := range m.Calls() {
		if len(c.Msg.Embeds) > 0 {
			out = append(out, c.Msg.Embeds[0].Title)
		} else {
			out = append(out, c.Msg.Content)
		}
	}
	return out
}

// Adapter is a Messenger that also records interaction replies.
type Adapter struct {
	*Messenger

	amu       sync.Mutex
	responses []kit.Message
	choices   [][]kit.Choice
	notify    chan struct{}
}

func NewAdapter() *Adapter {
	return &Adapter{Messenger: NewMessenger(), notify: make(chan struct{}, 64)}
}

func (a *Adapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *Adapter) Stop(context.Context) error                     { return nil }

func (a *Adapter) Respond(_ context.Context, _ *kit.Interaction, msg kit.Message) error {
	a.amu.Lock()
	a.responses = append(a.responses, msg)
	a.amu.Unlock()
	a.notify <- struct{}{}
	return nil
}

func (a *Adapter) Suggest(_ context.Context, _ *kit.Interaction, choices []kit.Choice) error {
	a.amu.Lock()
	a.choices = append(a.choices, choices)
	a.amu.Unlock()
	a.notify <- struct{}{}
	return nil
}

// Wait blocks until n replies (responses or suggestions) arrived or the
// deadline passes.
func (a *Adapter) Wait(n int, d time.Duration) bool {
	deadline := time.After(d)
	for i := 0; i < n; i++ {
		select {
		case <-a.notify:
		case <-deadline:
			return false
		}
	}
	return true
}

func (a *Adapter) Responses() []kit.Message {
	a.amu.Lock()
	defer a.amu.Unlock()
	return append([]kit.Message(nil), a.responses...)
}

func (a *Adapter) Choices() [][]kit.Choice {
	a.amu.Lock()
	defer a.amu.Unlock()
	return append([][]kit.Choice(nil), a.choices...)
}
