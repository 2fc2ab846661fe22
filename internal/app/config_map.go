package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"raidwatch/internal/config"
	"raidwatch/internal/fetcher"
	"raidwatch/internal/lookup"
	"raidwatch/internal/notifier"
	"raidwatch/internal/observability/ops"
	"raidwatch/internal/registry"
	"raidwatch/internal/storage"
	"raidwatch/internal/task/engine"
	logx "raidwatch/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{Driver: "file", Path: storage.DefaultPath}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "file":
		if path == "" {
			path = storage.DefaultPath
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "memory":
		return storage.Config{Driver: "memory"}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	if te == nil {
		return engine.Config{}, nil
	}
	if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
		return engine.Config{}, fmt.Errorf("task_engine: workers, queue_size and history_size must be >= 0")
	}
	timeout, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	delay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: timeout,
		MaxQueueDelay:  delay,
		HistorySize:    te.HistorySize,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{}, nil
	}
	if nc.RatePerSec < 0 || nc.Burst < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: rate_per_sec and burst must be >= 0")
	}
	timeout, err := config.ParseDurationField("notifier.send_timeout", nc.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{RatePerSec: nc.RatePerSec, Burst: nc.Burst, SendTimeout: timeout}, nil
}

func mapFetchOptions(cfg *config.Config, creds fetcher.CredentialFunc) (fetcher.Options, error) {
	opt := fetcher.Options{Credentials: creds}
	if wc := cfg.Watcher; wc != nil {
		timeout, err := config.ParseDurationField("watcher.fetch_timeout", wc.FetchTimeout)
		if err != nil {
			return fetcher.Options{}, err
		}
		opt.Timeout = timeout
		opt.UserAgent = strings.TrimSpace(wc.UserAgent)
	}
	return opt, nil
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	if cfg.Ops == nil {
		return ops.Config{}
	}
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          cfg.Ops.Addr,
		Token:         cfg.Ops.Token,
		AllowInsecure: cfg.Ops.AllowInsecure,
	}
}

func newLookupClient(cfg *config.Config, userAgent string) *lookup.Client {
	base := ""
	if cfg.Lookups != nil {
		base = cfg.Lookups.LichessURL
	}
	return lookup.New(&http.Client{Timeout: 10 * time.Second}, userAgent, base)
}

// mapLogConfig maps the logging section. The chat channel is resolved
// through the channels section for the discord transport.
func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	out := logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    lc.Chat.Enabled,
			Channel:    lc.Chat.Channel,
			MinLevel:   lc.Chat.MinLevel,
			RatePerSec: lc.Chat.RatePerSec,
		},
	}
	if chatTransport(cfg) == "discord" {
		if id, ok := cfg.ChannelID(lc.Chat.Channel); ok {
			out.Chat.Channel = id
		}
	}
	if !lc.Chat.Enabled {
		out.Chat.Channel = ""
	}
	return out
}

func chatTransport(cfg *config.Config) string {
	t := strings.ToLower(strings.TrimSpace(cfg.Logging.Chat.Transport))
	if t == "" {
		return "discord"
	}
	return t
}

// validateConfig rejects a config before it is committed, both at
// startup and on hot reload.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required")
	}
	if cfg.Discord.CommandWorkers < 0 {
		return fmt.Errorf("discord.command_workers must be >= 0")
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	switch chatTransport(cfg) {
	case "discord":
	case "telegram":
		if cfg.Logging.Chat.Enabled && cfg.Telegram == nil {
			return fmt.Errorf("logging.chat.transport=telegram needs a telegram section")
		}
	default:
		return fmt.Errorf("logging.chat.transport: unknown %q", cfg.Logging.Chat.Transport)
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapFetchOptions(cfg, nil); err != nil {
		return err
	}
	if oc := mapOpsConfig(cfg); oc.Addr != "" {
		if _, _, err := net.SplitHostPort(oc.Addr); err != nil {
			return fmt.Errorf("ops.addr: %w", err)
		}
	}
	if cfg.Lookups != nil {
		if err := lookup.CompileTelemetry(cfg.Lookups.Telemetry); err != nil {
			return fmt.Errorf("lookups: %w", err)
		}
	}
	return registry.ValidateConfig(ctx, cfg)
}

// restartSections returns the changed settings that are read once at
// startup. The fetcher registry keeps the watcher timeout and user agent
// it was built with.
func restartSections(oldCfg, newCfg *config.Config, sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "watcher":
			out = append(out, s)
		case "discord":
			if oldCfg == nil || newCfg == nil {
				continue
			}
			if oldCfg.Discord.Token != newCfg.Discord.Token {
				out = append(out, "discord.token")
			}
			if oldCfg.Discord.GuildID != newCfg.Discord.GuildID {
				out = append(out, "discord.guild_id")
			}
		}
	}
	return out
}
