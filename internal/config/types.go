package config

import "encoding/json"

type Config struct {
	Discord  DiscordConfig   `json:"discord"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Logging  LoggingConfig   `json:"logging"`

	// Scheduler controls the per-source triggers.
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls how ticks execute (worker pool, timeouts, history).
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Watcher  *WatcherConfig  `json:"watcher,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`

	// Credentials maps a credential name to its value. A value of the form
	// "env:NAME" is read from the environment at fetch time.
	Credentials map[string]string `json:"credentials,omitempty"`

	// Channels maps a channel name to a Discord channel id.
	Channels map[string]string `json:"channels,omitempty"`

	// Sources are registered with the scheduler in list order.
	Sources []SourceConfig `json:"sources"`

	Lookups *LookupsConfig `json:"lookups,omitempty"`
	Ops     *OpsConfig     `json:"ops,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`
	// GuildID scopes slash command registration. Empty registers globally.
	GuildID  string   `json:"guild_id,omitempty"`
	OwnerIDs []string `json:"owner_ids,omitempty"`
	// CommandWorkers is the size of the interaction worker pool (default 4).
	CommandWorkers int `json:"command_workers,omitempty"`
}

// TelegramConfig enables the Telegram log sink.
//
// Example:
//
//	"telegram": { "token": "123:abc", "chat_id": -100123, "thread_id": 7 }
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warnings and errors into chat.
//
// Transport is "discord" (Channel is a channel name or id) or "telegram"
// (uses the telegram section).
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	Transport  string `json:"transport,omitempty"`
	Channel    string `json:"channel,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Trigger timezone (IANA name). Empty uses the local zone.
	Timezone string `json:"timezone,omitempty"`
	// CatchUp runs every source once at startup before timers arm.
	// Omitted means true.
	CatchUp *bool `json:"catch_up,omitempty"`
}

// TaskEngineConfig controls tick execution.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - default_timeout: "2m"
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// NotifierConfig paces outbound Discord messages.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	Burst       int    `json:"burst,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

type WatcherConfig struct {
	// FetchTimeout bounds one fetch (default "20s").
	FetchTimeout string `json:"fetch_timeout,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
}

// StorageConfig selects the state store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./raidwatch.db", "busy_timeout": "2s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SourceConfig describes one watched source.
//
// Example:
//
//	{ "id": "wcl-main", "kind": "warcraftlogs", "name": "Main Raid",
//	  "url": "https://www.warcraftlogs.com/v1/reports/guild/x/y/eu",
//	  "credential": "warcraftlogs", "color": "#ff8000",
//	  "channels": ["logs"], "schedule": "*/5 * * * *" }
type SourceConfig struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Name       string   `json:"name,omitempty"`
	URL        string   `json:"url,omitempty"`
	Credential string   `json:"credential,omitempty"`
	Color      string   `json:"color,omitempty"`
	Channels   []string `json:"channels"`
	Schedule   string   `json:"schedule,omitempty"`
	Policy     string   `json:"policy,omitempty"`
	Retention  int      `json:"retention,omitempty"`
	MaxItems   int      `json:"max_items,omitempty"`
	Disabled   bool     `json:"disabled,omitempty"`

	// reddit
	Username string   `json:"username,omitempty"`
	Streams  []string `json:"streams,omitempty"`

	// raiderio
	Raid   string        `json:"raid,omitempty"`
	Guilds []GuildConfig `json:"guilds,omitempty"`

	// json
	Mapping *JSONMapping `json:"mapping,omitempty"`
}

type GuildConfig struct {
	Region string `json:"region"`
	Realm  string `json:"realm"`
	Name   string `json:"name"`
}

// JSONMapping selects items out of an arbitrary JSON document with JSONPath
// expressions. Field paths are evaluated relative to each item.
type JSONMapping struct {
	Items     string `json:"items"`
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Link      string `json:"link,omitempty"`
	Author    string `json:"author,omitempty"`
	Body      string `json:"body,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// OpsConfig enables the local health/status/pprof endpoint.
//
// Example:
//
//	"ops": { "enabled": true, "addr": "127.0.0.1:6060" }
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

type LookupsConfig struct {
	LichessURL string           `json:"lichess_url,omitempty"`
	ChessTV    []LinkConfig     `json:"chesstv,omitempty"`
	Telemetry  *TelemetryConfig `json:"telemetry,omitempty"`
}

type LinkConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TelemetryConfig reads the latest sensor reading from a JSON endpoint.
type TelemetryConfig struct {
	URL        string           `json:"url"`
	Credential string           `json:"credential,omitempty"`
	Title      string           `json:"title,omitempty"`
	Fields     []TelemetryField `json:"fields"`
	// Timestamp selects the reading time (unix seconds/ms or RFC 3339).
	Timestamp string `json:"timestamp,omitempty"`
}

type TelemetryField struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Unit string `json:"unit,omitempty"`
}

// Clone returns a deep copy via a JSON round trip.
func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return &Config{}, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var out Config
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Source returns the source with id, if present.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// CatchUpEnabled reports scheduler.catch_up, defaulting to true.
func (s SchedulerConfig) CatchUpEnabled() bool {
	return s.CatchUp == nil || *s.CatchUp
}
