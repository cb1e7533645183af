package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/release-radar/internal/config"
	"github.com/Sternrassler/release-radar/pkg/logging"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app is the state shared by all commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	dotenv  string
	cfg     *config.Config
	runID   string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":       "logging.level",
	"pretty":          "logging.pretty",
	"format":          "output.format",
	"categories":      "run.categories",
	"cutoff-mode":     "run.cutoff_mode",
	"window-days":     "run.window_days",
	"week-start":      "run.week_start",
	"date-policy":     "run.date_policy",
	"link-priority":   "run.link_priority",
	"max-concurrency": "run.max_concurrency",
	"market":          "catalog.market",
	"max-attempts":    "catalog.max_attempts",
	"cache":           "cache.enabled",
	"pushgateway":     "metrics.pushgateway_url",
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{
		v:      viper.New(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		printError(stderr, err, logging.IsTerminal(stderr))
	}
	return exitCode(err)
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "release-radar",
		Short: "List new releases from followed creators",
		Long: `release-radar lists the albums and singles released during the last week
by every artist the authenticated account follows.

Example usage:
  release-radar login                  # Authorize access once
  release-radar                        # Print last week's releases
  release-radar --format table         # Render as a table
  release-radar --cutoff-mode week_start --week-start fri
  release-radar config init            # Write a default config file`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./release-radar.toml or ~/.config/release-radar/release-radar.toml)")
	rootCmd.PersistentFlags().StringVar(&a.dotenv, "env-file", ".env", "dotenv file with credentials")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable logs")

	// The bare command runs the digest
	run := newRunCommand(a)
	rootCmd.RunE = run.RunE
	addRunFlags(rootCmd.Flags())

	rootCmd.AddCommand(run)
	rootCmd.AddCommand(newLoginCommand(a))
	rootCmd.AddCommand(newConfigCommand(a))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// init binds the invoked command's flags, loads configuration and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	if err := bindFlags(a.v, cmd.Flags()); err != nil {
		return withCode(ExitConfig, err)
	}

	if err := config.LoadDotEnv(a.dotenv); err != nil {
		return withCode(ExitConfig, err)
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return withCode(ExitConfig, fmt.Errorf("loading config: %w", err))
	}
	a.cfg = cfg

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	a.runID = uuid.NewString()
	logging.Setup(logging.Config{
		Level:  level,
		Pretty: cfg.Logging.Pretty,
		Output: a.stderr,
		RunID:  a.runID,
	})

	return nil
}

// bindFlags binds every known flag present on fs to its configuration key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
