package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/release-radar/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCommand(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(a))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool
	var toStdout bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if toStdout {
				return config.WriteDefaults(cmd.OutOrStdout())
			}

			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}

			if err := config.CreateDefault(target, overwrite); err != nil {
				if errors.Is(err, config.ErrExists) {
					return withCode(ExitConfig, err)
				}
				return fmt.Errorf("create default config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote default configuration to %s\n", target)
			fmt.Fprintln(out, "Export RSPOTIFY_CLIENT_ID and RSPOTIFY_CLIENT_SECRET (or put them in .env), then run `release-radar login`.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Print the defaults instead of writing a file")
	return cmd
}

func newConfigValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Loading already validated everything except credentials
			out := cmd.OutOrStdout()
			if err := a.cfg.RequireCredentials(); err != nil {
				fmt.Fprintf(out, "Configuration valid; credentials incomplete: %v\n", err)
				return nil
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
