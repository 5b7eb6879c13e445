package config

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	EnvConfigPath     = "TALLYCTL_CONFIG"
	DefaultAPIVersion = "tally.dev/v1"
)

// Config is the tallyctl configuration file structure.
type Config struct {
	APIVersion     string    `yaml:"apiVersion,omitempty"`
	CurrentContext string    `yaml:"current-context"`
	Contexts       []Context `yaml:"contexts"`
}

// Context defines one named tallyd target. Server is either an http(s) base
// URL or ssh://user@host, in which case Port is the tallyd port on the remote
// loopback interface.
type Context struct {
	Name   string `yaml:"name"`
	Server string `yaml:"server"`
	Port   int    `yaml:"port,omitempty"`
	Token  string `yaml:"token,omitempty"`
}

// ContextInfo is the resolved context used by command and transport layers.
type ContextInfo struct {
	Name       string
	Server     string
	RemotePort int
	Token      string
	// Source records how the context was selected: SourceFlag, SourceEnv or
	// SourceCurrentContext.
	Source string
}

func (c Config) hasTokens() bool {
	for _, ctx := range c.Contexts {
		if strings.TrimSpace(ctx.Token) != "" {
			return true
		}
	}
	return false
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.APIVersion) == "" {
		c.APIVersion = DefaultAPIVersion
	}
}

// Validate checks config invariants that must hold for the file to be usable.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Contexts))
	for i, ctx := range c.Contexts {
		name := strings.TrimSpace(ctx.Name)
		if name == "" {
			return fmt.Errorf("contexts[%d].name is required", i)
		}
		if _, exists := seen[name]; exists {
			return fmt.Errorf("duplicate context name %q", name)
		}
		seen[name] = struct{}{}

		server := strings.TrimSpace(ctx.Server)
		if server == "" {
			return fmt.Errorf("context %q: server is required", name)
		}
		u, err := url.Parse(server)
		if err != nil {
			return fmt.Errorf("context %q: parse server URL: %w", name, err)
		}
		switch u.Scheme {
		case "http", "https", "ssh":
		default:
			return fmt.Errorf("context %q: server scheme %q is not supported (expected http, https or ssh)", name, u.Scheme)
		}
		if ctx.Port < 0 || ctx.Port > 65535 {
			return fmt.Errorf("context %q: port must be in range 1..65535 (or 0 to use default)", name)
		}
	}

	return nil
}
