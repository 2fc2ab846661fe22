package discord

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	kit "raidwatch/internal/transport"
)

func toEmbed(e kit.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
	}
	if e.Thumbnail != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func toEmbeds(es []kit.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(es))
	for _, e := range es {
		out = append(out, toEmbed(e))
	}
	return out
}

// mapError turns Discord's unknown message error into kit.ErrUnknownMessage.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Message != nil && re.Message.Code == discordgo.ErrCodeUnknownMessage {
		return fmt.Errorf("%w: %v", kit.ErrUnknownMessage, err)
	}
	return err
}

func optionValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// fromInteraction flattens a slash command interaction into the command
// path and its leaf options.
func fromInteraction(i *discordgo.Interaction) *kit.Interaction {
	data := i.ApplicationCommandData()
	in := &kit.Interaction{
		ID:        i.ID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Path:      []string{data.Name},
		Raw:       i,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		in.UserID, in.Username = i.Member.User.ID, i.Member.User.Username
	case i.User != nil:
		in.UserID, in.Username = i.User.ID, i.User.Username
	}

	opts := data.Options
	for len(opts) == 1 && (opts[0].Type == discordgo.ApplicationCommandOptionSubCommand ||
		opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup) {
		in.Path = append(in.Path, opts[0].Name)
		opts = opts[0].Options
	}
	for _, o := range opts {
		in.Options = append(in.Options, kit.Option{Name: o.Name, Value: optionValue(o.Value), Focused: o.Focused})
	}
	return in
}

func toOption(o kit.CommandOption) *discordgo.ApplicationCommandOption {
	typ := discordgo.ApplicationCommandOptionString
	switch o.Type {
	case kit.OptionInteger:
		typ = discordgo.ApplicationCommandOptionInteger
	case kit.OptionBoolean:
		typ = discordgo.ApplicationCommandOptionBoolean
	}
	return &discordgo.ApplicationCommandOption{
		Type:         typ,
		Name:         o.Name,
		Description:  o.Description,
		Required:     o.Required,
		Autocomplete: o.Autocomplete,
	}
}

func toCommands(specs []kit.CommandSpec) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(specs))
	for _, s := range specs {
		cmd := &discordgo.ApplicationCommand{Name: s.Name, Description: s.Description}
		if len(s.Subcommands) == 0 {
			for _, o := range s.Options {
				cmd.Options = append(cmd.Options, toOption(o))
			}
		}
		for _, sub := range s.Subcommands {
			so := &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        sub.Name,
				Description: sub.Description,
			}
			for _, o := range sub.Options {
				so.Options = append(so.Options, toOption(o))
			}
			cmd.Options = append(cmd.Options, so)
		}
		out = append(out, cmd)
	}
	return out
}

func toChoices(cs []kit.Choice) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(cs))
	for _, c := range cs {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: c.Value})
	}
	return out
}
