package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"raidwatch/internal/detector"
	"raidwatch/internal/eventbus"
	"raidwatch/internal/source"
	kit "raidwatch/internal/transport"
	logx "raidwatch/pkg/logx"
)

const historySize = 200

// Service delivers rendered changes. Safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log      logx.Logger
	out      kit.Messenger
	bus      eventbus.Bus
	tracked  TrackedStore
	channels ChannelResolver
	now      func() time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, out kit.Messenger, tracked TrackedStore, channels ChannelResolver, log logx.Logger, bus eventbus.Bus) *Service {
	s := &Service{
		log:      log,
		out:      out,
		bus:      bus,
		tracked:  tracked,
		channels: channels,
		now:      time.Now,
	}
	s.Apply(cfg)
	return s
}

// Apply swaps pacing and timeout settings.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	s.mu.Unlock()
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// AnnounceItem posts it to every channel of src. The first failure stops
// delivery and is returned as a *NotifyError.
func (s *Service) AnnounceItem(ctx context.Context, src source.Source, it source.Item) error {
	embed := RenderItem(src, it, s.now())
	msg := kit.Message{Embeds: []kit.Embed{embed}}
	for _, name := range src.Channels {
		channelID, ok := s.channels(name)
		if !ok {
			return s.fail(src.ID, name, "resolve", embed.Title, fmt.Errorf("unknown channel %q", name))
		}
		ref, err := s.send(ctx, channelID, msg)
		if err != nil {
			return s.fail(src.ID, channelID, "send", embed.Title, err)
		}
		s.ok(src.ID, channelID, ref.MessageID, "send", embed.Title)
	}
	return nil
}

// PublishStandings sends or edits the ranking table in every channel of
// src. Channels are handled independently; the returned error joins every
// per-channel *NotifyError.
func (s *Service) PublishStandings(ctx context.Context, src source.Source, table []detector.Standing, at time.Time) error {
	embed := RenderStandings(src, table, at)
	msg := kit.Message{Embeds: []kit.Embed{embed}}

	var errs []error
	for _, name := range src.Channels {
		channelID, ok := s.channels(name)
		if !ok {
			errs = append(errs, s.fail(src.ID, name, "resolve", embed.Title, fmt.Errorf("unknown channel %q", name)))
			continue
		}
		if err := s.publishOne(ctx, src.ID, channelID, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) publishOne(ctx context.Context, sourceID, channelID string, msg kit.Message) error {
	title := msg.Embeds[0].Title
	tm, ok, err := s.tracked.TrackedMessage(ctx, sourceID, channelID)
	if err != nil {
		return s.fail(sourceID, channelID, "persist", title, err)
	}
	if ok {
		err := s.edit(ctx, kit.MessageRef{ChannelID: channelID, MessageID: tm.MessageID}, msg)
		if err == nil {
			s.ok(sourceID, channelID, tm.MessageID, "edit", title)
			return nil
		}
		if !errors.Is(err, kit.ErrUnknownMessage) {
			return s.fail(sourceID, channelID, "edit", title, err)
		}
		s.log.Info("tracked message gone; posting a new one",
			logx.String("source", sourceID), logx.String("channel", channelID), logx.String("message", tm.MessageID))
	}

	ref, err := s.send(ctx, channelID, msg)
	if err != nil {
		return s.fail(sourceID, channelID, "send", title, err)
	}
	if err := s.tracked.PutTrackedMessage(ctx, sourceID, source.TrackedMessage{ChannelID: channelID, MessageID: ref.MessageID}); err != nil {
		return s.fail(sourceID, channelID, "persist", title, err)
	}
	s.ok(sourceID, channelID, ref.MessageID, "send", title)
	return nil
}

func (s *Service) send(ctx context.Context, channelID string, msg kit.Message) (kit.MessageRef, error) {
	cfg, lim := s.snapshot()
	if err := lim.Wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	return s.out.Send(cctx, channelID, msg)
}

func (s *Service) edit(ctx context.Context, ref kit.MessageRef, msg kit.Message) error {
	cfg, lim := s.snapshot()
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	return s.out.Edit(cctx, ref, msg)
}

func (s *Service) ok(sourceID, channelID, messageID, op, title string) {
	s.record(HistoryItem{At: s.now(), Source: sourceID, Channel: channelID, Title: title})
	s.publish(NotificationEvent{Source: sourceID, Channel: channelID, MessageID: messageID, Op: op, At: s.now()})
	s.log.Debug("notification delivered",
		logx.String("source", sourceID), logx.String("channel", channelID), logx.String("op", op))
}

func (s *Service) fail(sourceID, channelID, op, title string, err error) *NotifyError {
	ne := &NotifyError{Source: sourceID, Channel: channelID, Op: op, Err: err}
	s.record(HistoryItem{At: s.now(), Source: sourceID, Channel: channelID, Title: title, Error: err.Error()})
	s.publish(NotificationEvent{Source: sourceID, Channel: channelID, Op: op, At: s.now(), Error: err.Error()})
	s.log.Warn("notification failed",
		logx.String("source", sourceID), logx.String("channel", channelID), logx.String("op", op), logx.Err(err))
	return ne
}

func (s *Service) publish(ev NotificationEvent) {
	if s.bus == nil {
		return
	}
	typ := eventbus.TypeNotifySent
	if ev.Error != "" {
		typ = eventbus.TypeNotifyFailed
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) record(h HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, h)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}
