package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/benedict2310/tally/internal/client"
	"github.com/benedict2310/tally/internal/names"
)

// runtimeAndClientFromCommand opens the transport for the active context.
// Callers own the returned runtime and must Close it.
func runtimeAndClientFromCommand(cmd *cobra.Command) (*commandRuntime, *client.APIClient, error) {
	rt, err := connectRuntime(cmd)
	if err != nil {
		return nil, nil, err
	}
	if rt.Transport == nil {
		return nil, nil, fmt.Errorf("internal: transport is not initialized")
	}
	return rt, client.NewWithAuth(rt.Transport, rt.ResolvedContext.Name, rt.ResolvedContext.Token), nil
}

func parseButtonArg(v string) (int, error) {
	id, err := names.ParseButtonID(v)
	if err != nil {
		return 0, usageError(err)
	}
	return id, nil
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
