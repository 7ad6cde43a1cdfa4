package main

import (
	"fmt"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/dwfcopilot/internal/dwfchat/runtime"
)

// configCmd registers subcommands that inspect or mutate config.yaml.
func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or modify config.yaml",
	}
	cmd.AddCommand(a.configGetCmd(), a.configSetCmd())
	return cmd
}

// configGetCmd prints the value referenced by a dotted key, or every key
// when none is given.
func (a *app) configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Read a config value by dotted key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := runtimesvc.ReadYAMLMap(a.cfg.ConfigPath)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				for _, key := range runtimesvc.DottedKeys(data, "") {
					value, _ := runtimesvc.GetDotted(data, key)
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, runtimesvc.PrettyValue(value))
				}
				return nil
			}
			value, ok := runtimesvc.GetDotted(data, args[0])
			if !ok {
				return fmt.Errorf("key %s not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), runtimesvc.PrettyValue(value))
			return nil
		},
	}
}

// configSetCmd updates a dotted key with the provided value. The result must
// still load as a config file.
func (a *app) configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Update a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := runtimesvc.ReadYAMLMap(a.cfg.ConfigPath)
			if err != nil {
				return err
			}
			if err := runtimesvc.SetDotted(data, args[0], runtimesvc.ParseValue(args[1])); err != nil {
				return err
			}
			if err := runtimesvc.WriteYAMLMap(a.cfg.ConfigPath, data); err != nil {
				return err
			}
			fc, err := runtimesvc.LoadFileConfig(a.cfg.ConfigPath)
			if err != nil {
				return err
			}
			check := runtimesvc.DefaultConfig()
			if err := check.ApplyFile(fc); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
			return nil
		},
	}
}
