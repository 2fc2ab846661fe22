package transport

import (
	"context"
	"errors"
)

// ErrUnknownMessage is returned by Edit when the target message no longer
// exists (deleted by a user or moderator).
var ErrUnknownMessage = errors.New("unknown message")

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a transport-neutral rich message.
type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Thumbnail   string
	Fields      []EmbedField
	Footer      string
}

type Message struct {
	Content string
	Embeds  []Embed
	// Ephemeral replies are visible only to the invoking user
	// (interaction responses only).
	Ephemeral bool
}

type MessageRef struct {
	ChannelID string
	MessageID string
}

type UpdateKind string

const (
	UpdateCommand      UpdateKind = "command"
	UpdateAutocomplete UpdateKind = "autocomplete"
)

// Option is one resolved slash command option.
type Option struct {
	Name    string
	Value   string
	Focused bool
}

// Interaction is a slash command invocation or an autocomplete request.
type Interaction struct {
	ID        string
	GuildID   string
	ChannelID string
	UserID    string
	Username  string
	// Path is the command name followed by subcommand names,
	// e.g. ["managelogs", "add"].
	Path    []string
	Options []Option
	// Raw is the adapter's native interaction, needed to respond.
	Raw any
}

// Option returns the value of the named option, or "".
func (i *Interaction) Option(name string) string {
	for _, o := range i.Options {
		if o.Name == name {
			return o.Value
		}
	}
	return ""
}

// Focused returns the option being autocompleted.
func (i *Interaction) Focused() (Option, bool) {
	for _, o := range i.Options {
		if o.Focused {
			return o, true
		}
	}
	return Option{}, false
}

type Update struct {
	Kind        UpdateKind
	Interaction *Interaction
}

type Choice struct {
	Name  string
	Value string
}

type OptionType int

const (
	OptionString OptionType = iota + 1
	OptionInteger
	OptionBoolean
)

// CommandOption describes one option of a slash command for registration.
type CommandOption struct {
	Name         string
	Description  string
	Type         OptionType
	Required     bool
	Autocomplete bool
}

// CommandSpec describes a top-level slash command. Subcommands, when
// present, carry the options and Options is ignored.
type CommandSpec struct {
	Name        string
	Description string
	Options     []CommandOption
	Subcommands []SubcommandSpec
}

type SubcommandSpec struct {
	Name        string
	Description string
	Options     []CommandOption
}

// Messenger posts and edits channel messages.
type Messenger interface {
	Send(ctx context.Context, channelID string, msg Message) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, msg Message) error
}

type Adapter interface {
	Messenger

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	Respond(ctx context.Context, in *Interaction, msg Message) error
	Suggest(ctx context.Context, in *Interaction, choices []Choice) error
}

// CommandRegistrar is implemented by adapters that publish a command list
// to the platform (Discord application commands).
type CommandRegistrar interface {
	RegisterCommands(ctx context.Context, specs []CommandSpec) error
}
