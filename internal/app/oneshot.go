package app

import (
	"context"
	"fmt"
	"io"
	"slices"

	"raidwatch/internal/config"
	"raidwatch/internal/eventbus"
	"raidwatch/internal/registry"
	"raidwatch/internal/source"
	kit "raidwatch/internal/transport"
	"raidwatch/internal/transport/discord"
	"raidwatch/internal/watcher"
	logx "raidwatch/pkg/logx"
)

// LoadConfig reads and validates the config at path.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Sources compiles every configured source in list order.
func Sources(cfg *config.Config) ([]source.Source, error) {
	out := make([]source.Source, 0, len(cfg.Sources))
	for _, def := range cfg.Sources {
		src, err := registry.Compile(cfg, def)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

type CheckOptions struct {
	// IDs limits the run. Empty runs every enabled source.
	IDs []string
	// DryRun prints messages to Out instead of posting them. Stored
	// state is still updated.
	DryRun bool
	Out    io.Writer
	Log    logx.Logger
}

// Check runs one tick per selected source without the gateway or the
// scheduler. Sources run sequentially in config order.
func Check(ctx context.Context, cfg *config.Config, opt CheckOptions) ([]watcher.Result, error) {
	log := opt.Log
	if log.IsZero() {
		log = logx.NewConsole(cfg.Logging.Level)
	}
	var out kit.Messenger
	if opt.DryRun {
		out = NewPrintMessenger(opt.Out)
	} else {
		ad, err := discord.New(discord.Config{Token: cfg.Discord.Token, GuildID: cfg.Discord.GuildID},
			log.With(logx.String("comp", "discord")))
		if err != nil {
			return nil, err
		}
		out = ad
	}

	pipe, err := NewPipeline(func() *config.Config { return cfg }, out, log, eventbus.New())
	if err != nil {
		return nil, err
	}
	defer pipe.Close()

	for _, id := range opt.IDs {
		if !slices.ContainsFunc(cfg.Sources, func(d config.SourceConfig) bool { return d.ID == id }) {
			return nil, fmt.Errorf("unknown source %q", id)
		}
	}

	var results []watcher.Result
	var firstErr error
	for _, def := range cfg.Sources {
		if len(opt.IDs) > 0 {
			if !slices.Contains(opt.IDs, def.ID) {
				continue
			}
		} else if def.Disabled {
			continue
		}
		src, err := registry.Compile(cfg, def)
		if err != nil {
			return results, err
		}
		res, err := pipe.Watcher.Tick(ctx, src)
		results = append(results, res)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}
	return results, firstErr
}

// OpenState opens the configured store for offline inspection.
func OpenState(cfg *config.Config) (*Pipeline, error) {
	return NewPipeline(func() *config.Config { return cfg }, NewPrintMessenger(io.Discard), logx.Nop(), eventbus.New())
}
