package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexcodex/dwfcopilot/framework"
	runtimesvc "github.com/lexcodex/dwfcopilot/internal/dwfchat/runtime"
)

func (a *app) toolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Show the tool schema advertised to the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWithRuntime(cmd, func(ctx context.Context, rt *runtimesvc.Runtime) error {
				schema := rt.Tools.Schema()
				if !asJSON {
					fmt.Fprintln(cmd.OutOrStdout(), framework.RenderToolSchema(schema))
					return nil
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(schema)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the schema as sent on the wire")
	return cmd
}
