package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

const (
	// EnvToken overrides the token of whichever context is resolved.
	EnvToken = "TALLYCTL_TOKEN"
	// EnvContext selects a context when --context is not given.
	EnvContext = "TALLYCTL_CONTEXT"
)

// Where the resolved context name came from.
const (
	SourceFlag           = "flag"
	SourceEnv            = EnvContext
	SourceCurrentContext = "current-context"
)

// ResolveContext picks the context named explicitly, then by TALLYCTL_CONTEXT,
// then current-context, and applies the TALLYCTL_TOKEN override.
func ResolveContext(cfg Config, explicitName string) (ContextInfo, error) {
	name, source := selectContextName(cfg, explicitName)
	if name == "" {
		return ContextInfo{}, fmt.Errorf("no context selected: set current-context, %s or pass --context", EnvContext)
	}

	for _, ctx := range cfg.Contexts {
		if strings.TrimSpace(ctx.Name) != name {
			continue
		}
		info := ContextInfo{
			Name:       name,
			Server:     strings.TrimSpace(ctx.Server),
			RemotePort: ctx.Port,
			Token:      strings.TrimSpace(ctx.Token),
			Source:     source,
		}
		if token := strings.TrimSpace(os.Getenv(EnvToken)); token != "" {
			info.Token = token
		}
		return info, nil
	}

	available := availableContextNames(cfg.Contexts)
	if len(available) == 0 {
		return ContextInfo{}, fmt.Errorf("context %q (from %s) not found: config has no contexts", name, source)
	}
	return ContextInfo{}, fmt.Errorf("context %q (from %s) not found; available contexts: %s", name, source, strings.Join(available, ", "))
}

func selectContextName(cfg Config, explicitName string) (string, string) {
	if name := strings.TrimSpace(explicitName); name != "" {
		return name, SourceFlag
	}
	if name := strings.TrimSpace(os.Getenv(EnvContext)); name != "" {
		return name, SourceEnv
	}
	return strings.TrimSpace(cfg.CurrentContext), SourceCurrentContext
}

func availableContextNames(contexts []Context) []string {
	names := make([]string, 0, len(contexts))
	for _, ctx := range contexts {
		if name := strings.TrimSpace(ctx.Name); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
