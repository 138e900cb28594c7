// Package commands provides the CLI command implementations for dugout.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-dugout/cli/config"
	"github.com/AshkanYarmoradi/go-dugout/cli/styles"
	"github.com/AshkanYarmoradi/go-dugout/cli/ui"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	noColor    bool
	configPath string
	logLevel   string
}

// NewRootCommand creates the root command for the dugout CLI.
func NewRootCommand() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "dugout",
		Short: "Play-by-play scorebook for baseball and softball",
		Long: ui.Banner() + `

Dugout records a match one action at a time and can undo or redo any of
them. Matches are stored in sqlite, postgres or memory.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("dugout init") + `                        Create dugout.yaml
  ` + styles.Code.Render("dugout match start -f setup.yaml") + `   Start a match
  ` + styles.Code.Render("dugout match at-bat <id> single") + `    Record an at-bat
  ` + styles.Code.Render("dugout match undo <id>") + `             Undo the last action
  ` + styles.Code.Render("dugout serve") + `                       Serve the HTTP API`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				styles.DisableColors()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	pf.StringVarP(&flags.configPath, "config", "c", "", "Config file (default: dugout.yaml in this or a parent directory)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewMatchCommand(&flags))
	rootCmd.AddCommand(NewServeCommand(&flags))
	rootCmd.AddCommand(NewMigrateCommand(&flags))
	rootCmd.AddCommand(NewDiagnoseCommand(&flags))
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// loadConfig resolves the configuration for a command: an explicit
// --config file, or dugout.yaml found from the working directory, or the
// defaults. Environment overrides and --log-level are applied last.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
		if err == nil {
			err = config.ApplyEnv(cfg)
		}
	} else {
		var cwd string
		cwd, err = os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg, _, err = config.Resolve(cwd)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid config: %s", problems[0])
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.FormatError(err.Error()))
		return err
	}

	return nil
}
