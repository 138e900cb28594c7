package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-dugout/cli/config"
	"github.com/AshkanYarmoradi/go-dugout/cli/styles"
	"github.com/AshkanYarmoradi/go-dugout/cli/ui"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Create and inspect the store schema.

Sqlite files are migrated when they are opened. Postgres must be migrated
before the first match is recorded.

Examples:
  dugout migrate up       # Create tables
  dugout migrate status   # Show the schema version`,
	}

	cmd.AddCommand(newMigrateUpCommand(flags))
	cmd.AddCommand(newMigrateStatusCommand(flags))

	return cmd
}

// openBackend resolves the config and opens the store without requiring a
// migrated schema.
func openBackend(ctx context.Context, flags *globalFlags) (*Backend, *config.Config, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	factory, err := NewAdapterFactory(cfg)
	if err != nil {
		return nil, nil, err
	}
	b, err := factory.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return b, cfg, nil
}

func newMigrateUpCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create missing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx := ensureContext(cmd.Context())

			b, cfg, err := openBackend(ctx, flags)
			if err != nil {
				return err
			}
			defer b.Close()

			if cfg.Database.Driver == config.DriverMemory {
				fmt.Fprintln(out, styles.FormatInfo("Memory driver doesn't require migrations"))
				return nil
			}

			migrate := func() error { return b.Migrate(ctx) }
			if isTerminal(out) {
				err = ui.RunWithSpinner(out, "Applying migrations to "+b.Target+"...", migrate, func(err error) string {
					if err != nil {
						return styles.FormatError(err.Error())
					}
					return styles.FormatSuccess("Migrations applied")
				})
			} else {
				err = migrate()
			}
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			v, err := b.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, styles.FormatSuccess(fmt.Sprintf("Schema is at version %d", v)))
			return nil
		},
	}
}

func newMigrateStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx := ensureContext(cmd.Context())

			b, _, err := openBackend(ctx, flags)
			if err != nil {
				return err
			}
			defer b.Close()

			v, err := b.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			status := "applied"
			switch {
			case b.Driver == config.DriverMemory:
				status = "ok"
			case v == 0:
				status = "pending"
			}

			fmt.Fprintln(out, styles.Title.Render(styles.IconDatabase+" Schema"))
			fmt.Fprintln(out, styles.FormatKeyValue("Driver", b.Driver))
			fmt.Fprintln(out, styles.FormatKeyValue("Target", b.Target))
			fmt.Fprintln(out, styles.FormatKeyValue("Version", strconv.Itoa(v)))
			fmt.Fprintln(out, styles.FormatKeyValue("Status", ui.StatusBadge(status)))
			if status == "pending" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, styles.FormatWarning("Run 'dugout migrate up' to create the tables"))
			}
			return nil
		},
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
