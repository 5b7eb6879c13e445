package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benedict2310/tally/internal/config"
	"github.com/benedict2310/tally/internal/transport"
)

const (
	annotationRequiresConfig    = "tally/requires-config"
	annotationRequiresTransport = "tally/requires-transport"
)

type runtimeContextKey struct{}

// buildTransportForContext is swapped by tests for a scripted transport.
var buildTransportForContext = func(ctx context.Context, info config.ContextInfo, opts transport.Options) (transport.Transport, error) {
	return transport.NewFromContext(ctx, info, opts)
}

type commandRuntime struct {
	ConfigPath      string
	Config          config.Config
	ContextOverride string
	ResolvedContext config.ContextInfo
	Transport       transport.Transport
}

// Close releases the transport, if one was opened.
func (rt *commandRuntime) Close() error {
	if rt == nil || rt.Transport == nil {
		return nil
	}
	err := rt.Transport.Close()
	rt.Transport = nil
	return err
}

func markRequiresConfig(cmd *cobra.Command) {
	setAnnotation(cmd, annotationRequiresConfig)
}

func markRequiresTransport(cmd *cobra.Command) {
	setAnnotation(cmd, annotationRequiresConfig)
	setAnnotation(cmd, annotationRequiresTransport)
}

func setAnnotation(cmd *cobra.Command, key string) {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[key] = "true"
}

func hasAnnotation(cmd *cobra.Command, key string) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[key] == "true" {
			return true
		}
	}
	return false
}

// prepareRuntime loads the config for commands that need it and attaches the
// runtime to the command context.
func prepareRuntime(cmd *cobra.Command) error {
	if !hasAnnotation(cmd, annotationRequiresConfig) {
		return nil
	}
	configPath, _ := cmd.Flags().GetString("config")
	contextName, _ := cmd.Flags().GetString("context")

	cfg, path, err := config.Load(configPath)
	if err != nil {
		return err
	}
	rt := &commandRuntime{
		ConfigPath:      path,
		Config:          cfg,
		ContextOverride: strings.TrimSpace(contextName),
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, runtimeContextKey{}, rt))
	return nil
}

func runtimeFromCommand(cmd *cobra.Command) (*commandRuntime, error) {
	if ctx := cmd.Context(); ctx != nil {
		if rt, ok := ctx.Value(runtimeContextKey{}).(*commandRuntime); ok && rt != nil {
			return rt, nil
		}
	}
	return nil, fmt.Errorf("internal: command runtime is not initialized")
}

// connectRuntime resolves the active context and opens its transport.
func connectRuntime(cmd *cobra.Command) (*commandRuntime, error) {
	rt, err := runtimeFromCommand(cmd)
	if err != nil {
		return nil, err
	}
	if rt.Transport != nil {
		return rt, nil
	}
	info, err := config.ResolveContext(rt.Config, rt.ContextOverride)
	if err != nil {
		return nil, err
	}
	tr, err := buildTransportForContext(cmd.Context(), info, transport.Options{})
	if err != nil {
		return nil, fmt.Errorf("connect to context %q: %w", info.Name, err)
	}
	rt.ResolvedContext = info
	rt.Transport = tr
	return rt, nil
}

// prepareRuntimeForRemote loads the config for commands that only need a
// connection on some flag combinations.
// prepareRuntimeForRemote loads config for a command that only talks to
// tallyd under some flags, such as version --remote.
func prepareRuntimeForRemote(cmd *cobra.Command) error {
	return prepareRuntimeLate(cmd, markRequiresTransport)
}

// prepareRuntimeForConfig loads config for a command that only edits it under
// some flags, such as context token generate --set.
func prepareRuntimeForConfig(cmd *cobra.Command) error {
	return prepareRuntimeLate(cmd, markRequiresConfig)
}

func prepareRuntimeLate(cmd *cobra.Command, mark func(*cobra.Command)) error {
	if _, err := runtimeFromCommand(cmd); err == nil {
		return nil
	}
	mark(cmd)
	return prepareRuntime(cmd)
}
