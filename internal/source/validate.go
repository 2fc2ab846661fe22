package source

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"raidwatch/internal/config"
)

// ValidationError rejects a source definition before it reaches the
// scheduler.
type ValidationError struct {
	Source string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Source == "" && e.Field == "":
		return e.Reason
	case e.Source == "":
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	case e.Field == "":
		return fmt.Sprintf("source %q: %s", e.Source, e.Reason)
	default:
		return fmt.Sprintf("source %q: %s: %s", e.Source, e.Field, e.Reason)
	}
}

func invalid(id, field, format string, args ...any) *ValidationError {
	return &ValidationError{Source: id, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ParseColor accepts "#rrggbb", "rrggbb" or "0xrrggbb". Empty yields def.
func ParseColor(raw string, def int) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) != 6 {
		return 0, fmt.Errorf("color %q: want #rrggbb", raw)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("color %q: want #rrggbb", raw)
	}
	return int(v), nil
}

// FromConfig validates c and fills kind defaults. Schedule syntax and
// channel names are checked by the registry, which knows the scheduler and
// the channel map.
func FromConfig(c config.SourceConfig) (Source, error) {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return Source{}, invalid("", "id", "required")
	}
	if strings.ContainsAny(id, "/ \t\n") {
		return Source{}, invalid(id, "id", "must not contain spaces or '/'")
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(c.Kind)))
	def, ok := defaults[kind]
	if !ok {
		return Source{}, invalid(id, "kind", "unknown kind %q", c.Kind)
	}

	src := Source{
		ID:         id,
		Name:       strings.TrimSpace(c.Name),
		Kind:       kind,
		Policy:     def.policy,
		URL:        strings.TrimSpace(c.URL),
		Credential: strings.TrimSpace(c.Credential),
		Schedule:   strings.TrimSpace(c.Schedule),
		Retention:  def.retention,
		MaxItems:   def.maxItems,
		Username:   strings.TrimSpace(c.Username),
		Raid:       strings.TrimSpace(c.Raid),
	}
	if src.Schedule == "" {
		src.Schedule = def.schedule
	}
	if p := Policy(strings.TrimSpace(c.Policy)); p != "" && p != def.policy {
		return Source{}, invalid(id, "policy", "kind %s only supports %s", kind, def.policy)
	}
	if c.Retention < 0 {
		return Source{}, invalid(id, "retention", "must be >= 0")
	}
	if c.Retention > 0 {
		src.Retention = c.Retention
	}
	if c.MaxItems < 0 {
		return Source{}, invalid(id, "max_items", "must be >= 0")
	}
	if c.MaxItems > 0 {
		src.MaxItems = c.MaxItems
	}
	if src.Retention > 0 && src.MaxItems > src.Retention {
		return Source{}, invalid(id, "max_items", "must not exceed retention (%d)", src.Retention)
	}

	color, err := ParseColor(c.Color, def.color)
	if err != nil {
		return Source{}, invalid(id, "color", "%v", err)
	}
	src.Color = color

	for _, ch := range c.Channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			src.Channels = append(src.Channels, ch)
		}
	}
	if len(src.Channels) == 0 {
		return Source{}, invalid(id, "channels", "at least one channel is required")
	}

	switch kind {
	case KindWarcraftLogs, KindRSS:
		if err := requireURL(id, src.URL); err != nil {
			return Source{}, err
		}
	case KindJSON:
		if err := requireURL(id, src.URL); err != nil {
			return Source{}, err
		}
		m := c.Mapping
		if m == nil || strings.TrimSpace(m.Items) == "" || strings.TrimSpace(m.ID) == "" {
			return Source{}, invalid(id, "mapping", "items and id paths are required")
		}
		src.Mapping = &Mapping{
			Items: m.Items, ID: m.ID, Title: m.Title, Link: m.Link,
			Author: m.Author, Body: m.Body, Timestamp: m.Timestamp,
		}
	case KindReddit:
		if src.Username == "" {
			return Source{}, invalid(id, "username", "required")
		}
		streams, err := redditStreams(id, c.Streams)
		if err != nil {
			return Source{}, err
		}
		src.Streams = streams
	case KindRaiderIO:
		if src.Raid == "" {
			src.Raid = DefaultRaid
		}
		if len(c.Guilds) == 0 {
			return Source{}, invalid(id, "guilds", "at least one guild is required")
		}
		seen := map[string]struct{}{}
		for i, g := range c.Guilds {
			gg := Guild{
				Region: strings.TrimSpace(g.Region),
				Realm:  strings.TrimSpace(g.Realm),
				Name:   strings.TrimSpace(g.Name),
			}
			if gg.Region == "" || gg.Realm == "" || gg.Name == "" {
				return Source{}, invalid(id, fmt.Sprintf("guilds[%d]", i), "region, realm and name are required")
			}
			if _, dup := seen[gg.Key()]; dup {
				return Source{}, invalid(id, fmt.Sprintf("guilds[%d]", i), "duplicate guild %s", gg.Key())
			}
			seen[gg.Key()] = struct{}{}
			src.Guilds = append(src.Guilds, gg)
		}
	}
	return src, nil
}

func requireURL(id, raw string) error {
	if raw == "" {
		return invalid(id, "url", "required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(id, "url", "must be an absolute http(s) url")
	}
	return nil
}

func redditStreams(id string, raw []string) ([]string, error) {
	if len(raw) == 0 {
		return []string{"submitted", "comments"}, nil
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case "submitted", "comments":
			out = append(out, s)
		default:
			return nil, invalid(id, "streams", "unknown stream %q (want submitted or comments)", s)
		}
	}
	return out, nil
}

// ParseGuilds parses "region/realm/name;region/realm/name".
func ParseGuilds(raw string) ([]config.GuildConfig, error) {
	var out []config.GuildConfig
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f := strings.SplitN(part, "/", 3)
		if len(f) != 3 {
			return nil, fmt.Errorf("guild %q: want region/realm/name", part)
		}
		out = append(out, config.GuildConfig{
			Region: strings.TrimSpace(f[0]),
			Realm:  strings.TrimSpace(f[1]),
			Name:   strings.TrimSpace(f[2]),
		})
	}
	return out, nil
}
