package config

import (
	"reflect"
	"sort"
	"strings"

	logx "raidwatch/pkg/logx"
)

// SourceDiff lists source ids by the kind of change between two configs.
type SourceDiff struct {
	Added   []string
	Removed []string
	Changed []string
}

func (d SourceDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// SummarizeConfigChange returns the changed section names, log fields safe
// to emit (no tokens or credential values), and the per-source diff.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, SourceDiff) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	od, nd := oldCfg.Discord, newCfg.Discord
	if od.Token != nd.Token || od.GuildID != nd.GuildID || od.CommandWorkers != nd.CommandWorkers ||
		!reflect.DeepEqual(od.OwnerIDs, nd.OwnerIDs) {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.token_changed", od.Token != nd.Token),
			logx.String("discord.guild_id", nd.GuildID),
			logx.Int("discord.owner_count", len(nd.OwnerIDs)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.enabled", newCfg.Telegram != nil))
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Scheduler.Enabled != newCfg.Scheduler.Enabled ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		oldCfg.Scheduler.CatchUpEnabled() != newCfg.Scheduler.CatchUpEnabled() {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}

	for _, sec := range []struct {
		name     string
		old, new any
	}{
		{"task_engine", oldCfg.TaskEngine, newCfg.TaskEngine},
		{"notifier", oldCfg.Notifier, newCfg.Notifier},
		{"watcher", oldCfg.Watcher, newCfg.Watcher},
		{"storage", oldCfg.Storage, newCfg.Storage},
		{"channels", oldCfg.Channels, newCfg.Channels},
		{"lookups", oldCfg.Lookups, newCfg.Lookups},
		{"ops", oldCfg.Ops, newCfg.Ops},
	} {
		if !reflect.DeepEqual(sec.old, sec.new) {
			changed = append(changed, sec.name)
		}
	}

	if !reflect.DeepEqual(oldCfg.Credentials, newCfg.Credentials) {
		changed = append(changed, "credentials")
		attrs = append(attrs, logx.Strings("credentials.names", sortedKeys(newCfg.Credentials)))
	}

	sd := DiffSources(oldCfg.Sources, newCfg.Sources)
	if !sd.Empty() {
		changed = append(changed, "sources")
		attrs = append(attrs,
			logx.Strings("sources.added", sd.Added),
			logx.Strings("sources.removed", sd.Removed),
			logx.Strings("sources.changed", sd.Changed),
		)
	}
	return changed, attrs, sd
}

// DiffSources compares two source lists by id. Output ids keep the order
// of the list they were found in.
func DiffSources(oldList, newList []SourceConfig) SourceDiff {
	oldByID := make(map[string]SourceConfig, len(oldList))
	for _, s := range oldList {
		oldByID[s.ID] = s
	}
	newIDs := make(map[string]struct{}, len(newList))

	var d SourceDiff
	for _, s := range newList {
		newIDs[s.ID] = struct{}{}
		prev, ok := oldByID[s.ID]
		switch {
		case !ok:
			d.Added = append(d.Added, s.ID)
		case !reflect.DeepEqual(prev, s):
			d.Changed = append(d.Changed, s.ID)
		}
	}
	for _, s := range oldList {
		if _, ok := newIDs[s.ID]; !ok {
			d.Removed = append(d.Removed, s.ID)
		}
	}
	return d
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
