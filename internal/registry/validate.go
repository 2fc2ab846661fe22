package registry

import (
	"context"
	"fmt"

	"raidwatch/internal/config"
	"raidwatch/internal/fetcher"
	"raidwatch/internal/source"
	"raidwatch/internal/task/scheduler"
)

// Compile validates one definition against cfg (channels, credentials)
// and returns the runtime source.
func Compile(cfg *config.Config, def config.SourceConfig) (source.Source, error) {
	src, err := source.FromConfig(def)
	if err != nil {
		return source.Source{}, err
	}
	if _, err := scheduler.ParseSchedule(src.Schedule); err != nil {
		return source.Source{}, &source.ValidationError{Source: src.ID, Field: "schedule", Reason: err.Error()}
	}
	for _, ch := range src.Channels {
		if _, ok := cfg.ChannelID(ch); !ok {
			return source.Source{}, &source.ValidationError{Source: src.ID, Field: "channels", Reason: fmt.Sprintf("unknown channel %q", ch)}
		}
	}
	if src.Credential != "" {
		if _, ok := cfg.Credentials[src.Credential]; !ok {
			return source.Source{}, &source.ValidationError{Source: src.ID, Field: "credential", Reason: fmt.Sprintf("credential %q not configured", src.Credential)}
		}
	}
	if src.Mapping != nil {
		if err := fetcher.CompileMapping(src.Mapping); err != nil {
			return source.Source{}, &source.ValidationError{Source: src.ID, Field: "mapping", Reason: err.Error()}
		}
	}
	return src, nil
}

// ValidateConfig rejects a config whose sources would not register. It is
// installed as the config manager validator so a bad edit is never written
// or applied.
func ValidateConfig(_ context.Context, cfg *config.Config) error {
	seen := map[string]bool{}
	for _, def := range cfg.Sources {
		src, err := Compile(cfg, def)
		if err != nil {
			return err
		}
		if seen[src.ID] {
			return &source.ValidationError{Source: src.ID, Field: "id", Reason: "duplicate source id"}
		}
		seen[src.ID] = true
	}
	return nil
}
