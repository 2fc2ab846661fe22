// Package discord implements the transport adapter on a discordgo
// session: channel posts and edits, slash command interactions and
// command registration.
package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	rtsup "raidwatch/internal/runtime/supervisor"
	kit "raidwatch/internal/transport"
	logx "raidwatch/pkg/logx"
)

type Config struct {
	Token   string
	GuildID string // register commands on one guild; empty registers globally
}

type Adapter struct {
	cfg Config
	log logx.Logger
	s   *discordgo.Session

	out     atomic.Pointer[chan<- kit.Update]
	dropped atomic.Uint64

	ready     chan struct{}
	readyOnce sync.Once
	appID     atomic.Value // string

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + strings.TrimPrefix(token, "Bot "))
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	a := &Adapter{cfg: cfg, log: log, s: s, ready: make(chan struct{})}
	a.appID.Store("")
	s.AddHandler(a.onReady)
	s.AddHandler(a.onInteraction)
	return a, nil
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		a.appID.Store(r.User.ID)
	}
	a.log.Info("gateway ready", logx.Int("guilds", len(r.Guilds)))
	a.readyOnce.Do(func() { close(a.ready) })
}

func (a *Adapter) onInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	var kind kit.UpdateKind
	switch ic.Type {
	case discordgo.InteractionApplicationCommand:
		kind = kit.UpdateCommand
	case discordgo.InteractionApplicationCommandAutocomplete:
		kind = kit.UpdateAutocomplete
	default:
		return
	}
	out := a.out.Load()
	if out == nil {
		return
	}
	select {
	case *out <- kit.Update{Kind: kind, Interaction: fromInteraction(ic.Interaction)}:
	default:
		a.dropped.Add(1)
	}
}

// Start opens the gateway and forwards interactions to out until ctx ends.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out.Store(&out)
	if err := a.s.Open(); err != nil {
		return err
	}
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	a.sup.Go("discord.drop_report", func(c context.Context) error {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return nil
			case <-t.C:
				if n := a.dropped.Swap(0); n > 0 {
					a.log.Warn("interactions dropped (dispatcher busy)", logx.Int64("count", int64(n)))
				}
			}
		}
	})
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.runMu.Unlock()
	a.out.Store(nil)
	if sup != nil {
		_ = sup.Stop(ctx)
	}
	return a.s.Close()
}

func (a *Adapter) Send(ctx context.Context, channelID string, msg kit.Message) (kit.MessageRef, error) {
	m, err := a.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: msg.Content,
		Embeds:  toEmbeds(msg.Embeds),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return kit.MessageRef{}, mapError(err)
	}
	return kit.MessageRef{ChannelID: channelID, MessageID: m.ID}, nil
}

func (a *Adapter) Edit(ctx context.Context, ref kit.MessageRef, msg kit.Message) error {
	_, err := a.s.ChannelMessageEditEmbeds(ref.ChannelID, ref.MessageID, toEmbeds(msg.Embeds), discordgo.WithContext(ctx))
	return mapError(err)
}

// SendLog posts plain log text; it backs the chat log sink.
func (a *Adapter) SendLog(ctx context.Context, channelID, text string) error {
	_, err := a.s.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

func rawInteraction(in *kit.Interaction) (*discordgo.Interaction, error) {
	i, ok := in.Raw.(*discordgo.Interaction)
	if !ok || i == nil {
		return nil, errors.New("interaction did not come from discord")
	}
	return i, nil
}

func (a *Adapter) Respond(ctx context.Context, in *kit.Interaction, msg kit.Message) error {
	i, err := rawInteraction(in)
	if err != nil {
		return err
	}
	data := &discordgo.InteractionResponseData{Content: msg.Content, Embeds: toEmbeds(msg.Embeds)}
	if msg.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return a.s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
}

func (a *Adapter) Suggest(ctx context.Context, in *kit.Interaction, choices []kit.Choice) error {
	i, err := rawInteraction(in)
	if err != nil {
		return err
	}
	return a.s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: toChoices(choices)},
	}, discordgo.WithContext(ctx))
}

// RegisterCommands overwrites the application's slash commands once the
// gateway is ready.
func (a *Adapter) RegisterCommands(ctx context.Context, specs []kit.CommandSpec) error {
	select {
	case <-a.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	appID, _ := a.appID.Load().(string)
	if appID == "" {
		return errors.New("application id unknown")
	}
	cmds, err := a.s.ApplicationCommandBulkOverwrite(appID, a.cfg.GuildID, toCommands(specs), discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	a.log.Info("slash commands registered", logx.Int("count", len(cmds)), logx.String("guild", a.cfg.GuildID))
	return nil
}

var (
	_ kit.Adapter          = (*Adapter)(nil)
	_ kit.CommandRegistrar = (*Adapter)(nil)
)
