// Package commands implements the slash commands: source and channel
// administration, status, and the lookup commands.
package commands

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"raidwatch/internal/config"
	"raidwatch/internal/lookup"
	"raidwatch/internal/registry"
	"raidwatch/internal/source"
	"raidwatch/internal/storage"
	"raidwatch/internal/task/engine"
	"raidwatch/internal/task/scheduler"
	kit "raidwatch/internal/transport"
	"raidwatch/internal/transport/router"
	logx "raidwatch/pkg/logx"
)

// Sources is the registry surface the admin commands drive.
type Sources interface {
	Add(ctx context.Context, def config.SourceConfig) (source.Source, error)
	Remove(ctx context.Context, id string, purge bool) error
	List() []source.Source
	Get(id string) (source.Source, bool)
	Disabled(id string) bool
	Reset(ctx context.Context, id string) (int, error)
	RunNow(ctx context.Context, id string) error
}

type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Deps struct {
	Sources Sources
	Config  registry.ConfigStore
	Audit   Auditor // optional
	Lookup  *lookup.Client
	// Messenger posts the outcome of /managelogs run after the reply.
	Messenger kit.Messenger

	Schedules func() []scheduler.ScheduleInfo
	Engine    func() engine.Snapshot

	Log  logx.Logger
	Now  func() time.Time
	Roll func() int
}

type Service struct {
	d Deps
}

func New(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Roll == nil {
		d.Roll = func() int { return rand.IntN(999) + 1 }
	}
	return &Service{d: d}
}

func (s *Service) Commands() []router.Command {
	var out []router.Command
	out = append(out, s.manageLogsCommands()...)
	out = append(out, s.manageChannelCommands()...)
	out = append(out, s.statusCommands()...)
	out = append(out, s.funCommands()...)
	out = append(out, s.lookupCommands()...)
	return out
}

// userError turns the errors an operator can fix into ephemeral replies.
func userError(err error, id string) error {
	if err == nil {
		return nil
	}
	var ve *source.ValidationError
	switch {
	case errors.As(err, &ve):
		return router.Userf("Invalid source: %s", ve.Error())
	case errors.Is(err, registry.ErrNotFound):
		return router.Userf("Log source '%s' not found.", id)
	case errors.Is(err, engine.ErrOverlapSkip):
		return router.Userf("Log source '%s' is already running, try again in a moment.", id)
	case errors.Is(err, engine.ErrQueueFull):
		return router.Userf("The task queue is full, try again in a moment.")
	}
	return err
}

func (s *Service) audit(ctx context.Context, req *router.Request, action, target string, start time.Time, err error) {
	if s.d.Audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:        s.d.Now().UTC(),
		ActorID:   req.Interaction.UserID,
		ActorName: req.Interaction.Username,
		ChannelID: req.Interaction.ChannelID,
		Action:    action,
		Target:    target,
		OK:        err == nil,
		TookMS:    time.Since(start).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := s.d.Audit.AppendAudit(context.WithoutCancel(ctx), e); aerr != nil {
		req.Logger.Warn("audit append failed", logx.String("action", action), logx.Err(aerr))
	}
}

// matchChoices offers up to 25 names containing the typed text,
// case-insensitively.
func matchChoices(names []string, typed string) []kit.Choice {
	typed = strings.ToLower(strings.TrimSpace(typed))
	out := make([]kit.Choice, 0, min(len(names), 25))
	for _, n := range names {
		if typed == "" || strings.Contains(strings.ToLower(n), typed) {
			out = append(out, kit.Choice{Name: n, Value: n})
			if len(out) == 25 {
				break
			}
		}
	}
	return out
}

func (s *Service) sourceIDs() []string {
	list := s.d.Sources.List()
	ids := make([]string, 0, len(list))
	for _, src := range list {
		ids = append(ids, src.ID)
	}
	return ids
}

func (s *Service) channelNames() []string {
	cfg := s.d.Config.Get()
	names := make([]string, 0, len(cfg.Channels))
	for n := range cfg.Channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
