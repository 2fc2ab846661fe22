package discord

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"

	kit "raidwatch/internal/transport"
)

func TestFromInteractionFlattensSubcommand(t *testing.T) {
	t.Parallel()

	i := &discordgo.Interaction{
		ID:        "i1",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "ana"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "managelogs",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name: "add",
				Type: discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "id", Type: discordgo.ApplicationCommandOptionString, Value: "wcl-1"},
					{Name: "max", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
				},
			}},
		},
	}

	in := fromInteraction(i)
	if got := fmt.Sprint(in.Path); got != "[managelogs add]" {
		t.Fatalf("Path = %s, want [managelogs add]", got)
	}
	if in.Option("id") != "wcl-1" || in.Option("max") != "3" {
		t.Fatalf("Options = %+v", in.Options)
	}
	if in.UserID != "u1" || in.Username != "ana" {
		t.Fatalf("user = %s/%s, want u1/ana", in.UserID, in.Username)
	}
	if in.Raw != any(i) {
		t.Fatalf("Raw does not carry the native interaction")
	}
}

func TestFromInteractionDirectMessageUser(t *testing.T) {
	t.Parallel()

	i := &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		User: &discordgo.User{ID: "u2", Username: "bo"},
		Data: discordgo.ApplicationCommandInteractionData{Name: "ping"},
	}
	in := fromInteraction(i)
	if in.UserID != "u2" || len(in.Path) != 1 || len(in.Options) != 0 {
		t.Fatalf("interaction = %+v", in)
	}
}

func TestToCommands(t *testing.T) {
	t.Parallel()

	cmds := toCommands([]kit.CommandSpec{
		{Name: "ping", Description: "Check latency"},
		{
			Name:        "managechannel",
			Description: "Manage channels",
			Options:     []kit.CommandOption{{Name: "ignored"}},
			Subcommands: []kit.SubcommandSpec{{
				Name:        "remove",
				Description: "Remove a channel",
				Options:     []kit.CommandOption{{Name: "name", Type: kit.OptionString, Required: true, Autocomplete: true}},
			}},
		},
	})
	if len(cmds) != 2 {
		t.Fatalf("len = %d, want 2", len(cmds))
	}
	mc := cmds[1]
	if len(mc.Options) != 1 || mc.Options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		t.Fatalf("subcommand options = %+v", mc.Options)
	}
	leaf := mc.Options[0].Options[0]
	if leaf.Name != "name" || !leaf.Required || !leaf.Autocomplete || leaf.Type != discordgo.ApplicationCommandOptionString {
		t.Fatalf("leaf = %+v", leaf)
	}
}

func TestToEmbed(t *testing.T) {
	t.Parallel()

	e := toEmbed(kit.Embed{
		Title:     "t",
		Color:     0x00ff00,
		Thumbnail: "https://x/y.png",
		Footer:    "f",
		Fields:    []kit.EmbedField{{Name: "a", Value: "b", Inline: true}},
	})
	if e.Thumbnail == nil || e.Thumbnail.URL != "https://x/y.png" {
		t.Fatalf("Thumbnail = %+v", e.Thumbnail)
	}
	if e.Footer == nil || e.Footer.Text != "f" {
		t.Fatalf("Footer = %+v", e.Footer)
	}
	if len(e.Fields) != 1 || !e.Fields[0].Inline {
		t.Fatalf("Fields = %+v", e.Fields)
	}
	if bare := toEmbed(kit.Embed{Title: "x"}); bare.Thumbnail != nil || bare.Footer != nil {
		t.Fatalf("empty thumbnail/footer should be omitted")
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	unknown := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage, Message: "Unknown Message"},
	}
	if err := mapError(unknown); !errors.Is(err, kit.ErrUnknownMessage) {
		t.Fatalf("mapError(10008) = %v, want ErrUnknownMessage", err)
	}
	other := &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingPermissions}}
	if err := mapError(other); errors.Is(err, kit.ErrUnknownMessage) {
		t.Fatalf("mapError(50013) mapped to ErrUnknownMessage")
	}
	if mapError(nil) != nil {
		t.Fatalf("mapError(nil) != nil")
	}
}
