package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"raidwatch/internal/config"
	"raidwatch/internal/source"
	kit "raidwatch/internal/transport"
	"raidwatch/internal/transport/router"
	"raidwatch/pkg/card"
	logx "raidwatch/pkg/logx"
)

const manageLogsGroup = "Add, remove and operate log sources"

func (s *Service) manageLogsCommands() []router.Command {
	idOpt := kit.CommandOption{Name: "id", Description: "Source id", Type: kit.OptionString, Required: true, Autocomplete: true}
	return []router.Command{
		{
			Route:       "managelogs add",
			Description: "Add a log source",
			Group:       manageLogsGroup,
			Access:      router.AccessOwnerOnly,
			Options: []kit.CommandOption{
				{Name: "id", Description: "Unique source id", Type: kit.OptionString, Required: true},
				{Name: "kind", Description: "warcraftlogs, raiderio, reddit, rss or json", Type: kit.OptionString, Required: true, Autocomplete: true},
				{Name: "channels", Description: "Channel names or ids, comma separated", Type: kit.OptionString, Required: true, Autocomplete: true},
				{Name: "url", Description: "Source URL", Type: kit.OptionString},
				{Name: "color", Description: "Embed color, e.g. #ff8000", Type: kit.OptionString},
				{Name: "name", Description: "Display name", Type: kit.OptionString},
				{Name: "schedule", Description: "Cron expression, minutes or duration", Type: kit.OptionString},
				{Name: "credential", Description: "Credential name for API keys", Type: kit.OptionString},
				{Name: "username", Description: "Reddit user", Type: kit.OptionString},
				{Name: "raid", Description: "Raid slug (raiderio)", Type: kit.OptionString},
				{Name: "guilds", Description: "region/realm/name;... (raiderio)", Type: kit.OptionString},
			},
			Handle:   s.cmdLogsAdd,
			Complete: s.completeLogsAdd,
		},
		{
			Route:       "managelogs remove",
			Description: "Remove a log source",
			Group:       manageLogsGroup,
			Access:      router.AccessOwnerOnly,
			Options: []kit.CommandOption{
				idOpt,
				{Name: "purge", Description: "Also delete its stored state", Type: kit.OptionBoolean},
			},
			Handle:   s.cmdLogsRemove,
			Complete: s.completeSourceID,
		},
		{
			Route:       "managelogs list",
			Description: "List log sources",
			Group:       manageLogsGroup,
			Access:      router.AccessOwnerOnly,
			Handle:      s.cmdLogsList,
		},
		{
			Route:       "managelogs reset",
			Description: "Forget what a source has announced",
			Group:       manageLogsGroup,
			Access:      router.AccessOwnerOnly,
			Options:     []kit.CommandOption{idOpt},
			Timeout:     time.Minute,
			Handle:      s.cmdLogsReset,
			Complete:    s.completeSourceID,
		},
		{
			Route:       "managelogs run",
			Description: "Run a source now",
			Group:       manageLogsGroup,
			Access:      router.AccessOwnerOnly,
			Options:     []kit.CommandOption{idOpt},
			Timeout:     3 * time.Minute,
			Handle:      s.cmdLogsRun,
			Complete:    s.completeSourceID,
		},
	}
}

func (s *Service) completeSourceID(_ context.Context, _ *router.Request, focused kit.Option) []kit.Choice {
	return matchChoices(s.sourceIDs(), focused.Value)
}

func (s *Service) completeLogsAdd(_ context.Context, _ *router.Request, focused kit.Option) []kit.Choice {
	switch focused.Name {
	case "kind":
		kinds := make([]string, 0, len(source.Kinds))
		for _, k := range source.Kinds {
			kinds = append(kinds, string(k))
		}
		return matchChoices(kinds, focused.Value)
	case "channels":
		// complete the last comma separated element
		head, last := "", focused.Value
		if i := strings.LastIndex(focused.Value, ","); i >= 0 {
			head, last = focused.Value[:i+1], focused.Value[i+1:]
		}
		choices := matchChoices(s.channelNames(), last)
		for i := range choices {
			choices[i].Value = head + choices[i].Value
			choices[i].Name = choices[i].Value
		}
		return choices
	}
	return nil
}

func (s *Service) cmdLogsAdd(ctx context.Context, req *router.Request) error {
	start := time.Now()
	def := config.SourceConfig{
		ID:         req.Arg("id"),
		Kind:       strings.ToLower(req.Arg("kind")),
		Name:       req.Arg("name"),
		URL:        req.Arg("url"),
		Credential: req.Arg("credential"),
		Color:      req.Arg("color"),
		Channels:   splitList(req.Arg("channels")),
		Schedule:   req.Arg("schedule"),
		Username:   req.Arg("username"),
		Raid:       req.Arg("raid"),
	}
	if raw := req.Arg("guilds"); raw != "" {
		guilds, err := source.ParseGuilds(raw)
		if err != nil {
			return router.Userf("Invalid guilds: %v", err)
		}
		def.Guilds = guilds
	}

	src, err := s.d.Sources.Add(ctx, def)
	s.audit(ctx, req, "source.add", def.ID, start, err)
	if err != nil {
		return userError(err, def.ID)
	}
	msg := fmt.Sprintf("Added log source '%s' (%s, schedule %s) posting to %s.",
		src.ID, src.Kind, src.Schedule, strings.Join(def.Channels, ", "))
	return req.ReplyText(ctx, msg)
}

func (s *Service) cmdLogsRemove(ctx context.Context, req *router.Request) error {
	start := time.Now()
	id := req.Arg("id")
	purge, _ := strconv.ParseBool(req.Arg("purge"))
	err := s.d.Sources.Remove(ctx, id, purge)
	s.audit(ctx, req, "source.remove", id, start, err)
	if err != nil {
		return userError(err, id)
	}
	msg := fmt.Sprintf("Removed log source '%s'.", id)
	if purge {
		msg = fmt.Sprintf("Removed log source '%s' and its stored state.", id)
	}
	return req.ReplyText(ctx, msg)
}

func (s *Service) cmdLogsList(ctx context.Context, req *router.Request) error {
	list := s.d.Sources.List()
	if len(list) == 0 {
		return req.ReplyText(ctx, "No log sources configured.")
	}
	b := card.New().Title("📋", fmt.Sprintf("Log sources (%d)", len(list)))
	for _, src := range list {
		var lines []string
		lines = append(lines, fmt.Sprintf("%s · %s", src.Kind, src.Schedule))
		if src.Name != "" {
			lines = append(lines, src.Name)
		}
		if src.URL != "" {
			lines = append(lines, src.URL)
		}
		if len(src.Guilds) > 0 {
			lines = append(lines, fmt.Sprintf("%d guilds", len(src.Guilds)))
		}
		lines = append(lines, "→ "+channelMentions(s.d.Config.Get(), src.Channels))
		name := src.ID
		if s.d.Sources.Disabled(src.ID) {
			name += " (disabled)"
		}
		b.Field(name, strings.Join(lines, "\n"), false)
	}
	return req.Reply(ctx, b.Message(true))
}

// channelMentions renders configured channel names as mentions. A name
// that does not resolve is shown as plain text.
func channelMentions(cfg *config.Config, names []string) string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if cfg != nil {
			if id, ok := cfg.ChannelID(name); ok {
				out = append(out, "<#"+id+">")
				continue
			}
		}
		out = append(out, "#"+name)
	}
	return strings.Join(out, " ")
}

func (s *Service) cmdLogsReset(ctx context.Context, req *router.Request) error {
	start := time.Now()
	id := req.Arg("id")
	n, err := s.d.Sources.Reset(ctx, id)
	s.audit(ctx, req, "source.reset", id, start, err)
	if err != nil {
		return userError(err, id)
	}
	return req.ReplyText(ctx, fmt.Sprintf("Reset log source '%s': %d stored keys cleared. The next run starts from scratch.", id, n))
}

// cmdLogsRun answers at once and posts the outcome to the invoking
// channel when the tick finishes.
func (s *Service) cmdLogsRun(ctx context.Context, req *router.Request) error {
	id := req.Arg("id")
	if _, ok := s.d.Sources.Get(id); !ok {
		return router.Userf("Log source '%s' not found.", id)
	}
	if s.d.Sources.Disabled(id) {
		return router.Userf("Log source '%s' is disabled.", id)
	}
	if err := req.ReplyText(ctx, fmt.Sprintf("Running log source '%s'...", id)); err != nil {
		return err
	}

	start := time.Now()
	err := s.d.Sources.RunNow(ctx, id)
	s.audit(ctx, req, "source.run", id, start, err)

	text := fmt.Sprintf("Log source '%s' ran in %s.", id, time.Since(start).Round(time.Millisecond))
	if err != nil {
		req.Logger.Warn("manual run failed", logx.String("source", id), logx.Err(err))
		text = fmt.Sprintf("Log source '%s' failed: %s", id, card.TruncRunes(userError(err, id).Error(), 300))
	}
	if s.d.Messenger == nil || req.Interaction.ChannelID == "" {
		return nil
	}
	_, serr := s.d.Messenger.Send(context.WithoutCancel(ctx), req.Interaction.ChannelID, kit.Message{Content: text})
	return serr
}
