package main

import (
	"context"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/dwfcopilot/internal/dwfchat/runtime"
	"github.com/lexcodex/dwfcopilot/internal/dwfchat/tui"
)

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWithRuntime(cmd, func(ctx context.Context, rt *runtimesvc.Runtime) error {
				return tui.Run(ctx, rt)
			})
		},
	}
}
