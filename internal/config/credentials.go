package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveCredential looks up name in the credentials section. Values of the
// form "env:VAR" are read from the environment. An empty name resolves to "".
func (c *Config) ResolveCredential(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	raw, ok := c.Credentials[name]
	if !ok {
		return "", fmt.Errorf("credential %q not configured", name)
	}
	if env, ok := strings.CutPrefix(raw, "env:"); ok {
		v := os.Getenv(env)
		if v == "" {
			return "", fmt.Errorf("credential %q: environment variable %s is empty", name, env)
		}
		return v, nil
	}
	return raw, nil
}

// ChannelID maps a channel name from the channels section to its id. A
// name made only of digits is taken as a raw channel id.
func (c *Config) ChannelID(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if id, ok := c.Channels[name]; ok && id != "" {
		return id, true
	}
	if name == "" {
		return "", false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return name, true
}
