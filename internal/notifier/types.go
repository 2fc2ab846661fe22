package notifier

import (
	"context"
	"fmt"
	"time"

	"raidwatch/internal/source"
)

type Config struct {
	RatePerSec  int
	Burst       int
	SendTimeout time.Duration
}

// NotifyError reports a failed delivery to one channel.
type NotifyError struct {
	Source  string
	Channel string
	Op      string // resolve | send | edit | persist
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s -> %s: %s: %v", e.Source, e.Channel, e.Op, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// TrackedStore persists the message a ranked source edits per channel.
type TrackedStore interface {
	TrackedMessage(ctx context.Context, sourceID, channelID string) (source.TrackedMessage, bool, error)
	PutTrackedMessage(ctx context.Context, sourceID string, tm source.TrackedMessage) error
}

// ChannelResolver maps a configured channel name (or raw id) to a channel id.
type ChannelResolver func(name string) (string, bool)

type HistoryItem struct {
	At      time.Time
	Source  string
	Channel string
	Title   string
	Error   string
}

// NotificationEvent is published on the bus after every delivery attempt.
type NotificationEvent struct {
	Source    string    `json:"source"`
	Channel   string    `json:"channel"`
	MessageID string    `json:"message_id,omitempty"`
	Op        string    `json:"op"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
