package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"raidwatch/internal/config"
	kit "raidwatch/internal/transport"
	"raidwatch/internal/transport/router"
	"raidwatch/pkg/card"
)

const manageChannelGroup = "Map channel names to Discord channel ids"

func (s *Service) manageChannelCommands() []router.Command {
	return []router.Command{
		{
			Route:       "managechannel add",
			Description: "Add or update a channel name",
			Group:       manageChannelGroup,
			Access:      router.AccessOwnerOnly,
			Options: []kit.CommandOption{
				{Name: "name", Description: "Channel name used by sources", Type: kit.OptionString, Required: true},
				{Name: "channel_id", Description: "Discord channel id", Type: kit.OptionString, Required: true},
			},
			Handle: s.cmdChannelAdd,
		},
		{
			Route:       "managechannel remove",
			Description: "Remove a channel name",
			Group:       manageChannelGroup,
			Access:      router.AccessOwnerOnly,
			Options: []kit.CommandOption{
				{Name: "name", Description: "Channel name", Type: kit.OptionString, Required: true, Autocomplete: true},
			},
			Handle:   s.cmdChannelRemove,
			Complete: s.completeChannelName,
		},
		{
			Route:       "managechannel list",
			Description: "List channel names",
			Group:       manageChannelGroup,
			Access:      router.AccessOwnerOnly,
			Handle:      s.cmdChannelList,
		},
	}
}

func (s *Service) completeChannelName(_ context.Context, _ *router.Request, focused kit.Option) []kit.Choice {
	return matchChoices(s.channelNames(), focused.Value)
}

func validChannelName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if !(r == '-' || r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func validSnowflake(id string) bool {
	if len(id) < 5 || len(id) > 20 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Service) cmdChannelAdd(ctx context.Context, req *router.Request) error {
	start := time.Now()
	name, id := req.Arg("name"), strings.Trim(req.Arg("channel_id"), "<#>")
	if !validChannelName(name) {
		return router.Userf("Channel name %q may only contain letters, digits, '-' and '_'.", name)
	}
	if !validSnowflake(id) {
		return router.Userf("Channel id %q is not a Discord channel id.", id)
	}
	_, err := s.d.Config.Update(ctx, func(c *config.Config) error {
		if c.Channels == nil {
			c.Channels = map[string]string{}
		}
		c.Channels[name] = id
		return nil
	})
	s.audit(ctx, req, "channel.add", name, start, err)
	if err != nil {
		return err
	}
	return req.ReplyText(ctx, fmt.Sprintf("Added channel '%s' with ID %s.", name, id))
}

func (s *Service) cmdChannelRemove(ctx context.Context, req *router.Request) error {
	start := time.Now()
	name := req.Arg("name")
	if _, ok := s.d.Config.Get().Channels[name]; !ok {
		return router.Userf("Channel '%s' not found.", name)
	}
	_, err := s.d.Config.Update(ctx, func(c *config.Config) error {
		var users []string
		for _, src := range c.Sources {
			if slices.Contains(src.Channels, name) {
				users = append(users, src.ID)
			}
		}
		if len(users) > 0 {
			return router.Userf("Channel '%s' is used by %s; remove it from those sources first.", name, strings.Join(users, ", "))
		}
		delete(c.Channels, name)
		return nil
	})
	s.audit(ctx, req, "channel.remove", name, start, err)
	if err != nil {
		return err
	}
	return req.ReplyText(ctx, fmt.Sprintf("Removed channel '%s'.", name))
}

func (s *Service) cmdChannelList(ctx context.Context, req *router.Request) error {
	names := s.channelNames()
	if len(names) == 0 {
		return req.ReplyText(ctx, "No channels configured.")
	}
	channels := s.d.Config.Get().Channels
	b := card.New().Title("📺", "Channels")
	for _, n := range names {
		b.RawLine(fmt.Sprintf("**%s** → <#%s> (`%s`)", card.Esc(n), channels[n], channels[n]))
	}
	return req.Reply(ctx, b.Message(true))
}
