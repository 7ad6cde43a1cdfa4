package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/dwfcopilot/server"
)

func (a *app) stubCmd() *cobra.Command {
	var (
		addr  string
		delay time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run the scripted agent stub for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.StubAddr = addr
			}
			stub := server.NewAgentStub(nil)
			stub.Delay = delay
			fmt.Fprintf(cmd.OutOrStdout(), "agent stub listening on %s%s\n", a.cfg.StubAddr, stub.Path)
			return stub.ServeContext(cmd.Context(), a.cfg.StubAddr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to stub.addr from config)")
	cmd.Flags().DurationVar(&delay, "delay", 50*time.Millisecond, "Pause between envelopes")
	return cmd
}
