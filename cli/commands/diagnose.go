package commands

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/cli/config"
	"github.com/AshkanYarmoradi/go-dugout/cli/styles"
	"github.com/AshkanYarmoradi/go-dugout/cli/ui"
)

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Run diagnostic checks",
		Long: `Run diagnostic checks on your dugout setup.

This command verifies:
  • Configuration file validity
  • Database connectivity
  • Schema version
  • Notification routes
  • System requirements`,
		Aliases: []string{"diag", "doctor"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			checks := diagnosticChecks(cfg, err)
			runDiagnose(cmd.OutOrStdout(), checks)
			return nil
		},
	}
}

// diagnosticChecks lists the checks for cfg. When the config could not be
// loaded only the checks that do not need it run.
func diagnosticChecks(cfg *config.Config, cfgErr error) []DiagnosticCheck {
	checks := []DiagnosticCheck{
		{Name: "Go Version", Check: checkGoVersion},
		{Name: "Configuration", Check: func() CheckResult { return checkConfiguration(cfg, cfgErr) }},
	}
	if cfgErr == nil {
		checks = append(checks,
			DiagnosticCheck{Name: "Database Connection", Check: func() CheckResult { return checkDatabaseConnection(cfg) }},
			DiagnosticCheck{Name: "Schema", Check: func() CheckResult { return checkSchema(cfg) }},
			DiagnosticCheck{Name: "Notifications", Check: func() CheckResult { return checkNotifications(cfg) }},
		)
	}
	return append(checks, DiagnosticCheck{Name: "System Resources", Check: checkSystemResources})
}

func runDiagnose(out io.Writer, checks []DiagnosticCheck) []CheckResult {
	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.Banner())
	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.Title.Render(styles.IconHealth+" Running Diagnostics"))
	fmt.Fprintln(out)

	results := make([]CheckResult, 0, len(checks))
	allPassed := true

	for _, check := range checks {
		fmt.Fprintf(out, "  %s Checking %s... ", styles.IconPending, check.Name)

		result := check.Check()
		results = append(results, result)

		switch result.Status {
		case StatusOK:
			fmt.Fprintln(out, styles.SuccessStyle.Render("OK"))
		case StatusWarning:
			fmt.Fprintln(out, styles.WarningStyle.Render("WARNING"))
			allPassed = false
		default:
			fmt.Fprintln(out, styles.ErrorStyle.Render("FAILED"))
			allPassed = false
		}

		if result.Message != "" {
			fmt.Fprintf(out, "    %s\n", styles.Muted.Render(result.Message))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, ui.Divider(50))
	fmt.Fprintln(out)

	if allPassed {
		fmt.Fprintln(out, styles.FormatSuccess("All checks passed! Your dugout setup is healthy."))
		return results
	}

	fmt.Fprintln(out, styles.FormatWarning("Some checks failed or have warnings."))
	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.Subtitle.Render("Recommendations:"))
	for _, r := range results {
		if r.Recommendation != "" {
			fmt.Fprintf(out, "  %s %s\n", styles.IconArrow, r.Recommendation)
		}
	}
	return results
}

// CheckStatus represents the status of a diagnostic check
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusError
)

// CheckResult represents the result of a diagnostic check
type CheckResult struct {
	Name           string
	Status         CheckStatus
	Message        string
	Recommendation string
}

func newCheckResult(name string, status CheckStatus, message string) CheckResult {
	return CheckResult{Name: name, Status: status, Message: message}
}

func (r CheckResult) withRecommendation(rec string) CheckResult {
	r.Recommendation = rec
	return r
}

// DiagnosticCheck represents a diagnostic check function
type DiagnosticCheck struct {
	Name  string
	Check func() CheckResult
}

func checkGoVersion() CheckResult {
	version := runtime.Version()
	if version < "go1.24" {
		return newCheckResult("Go Version", StatusWarning, version).
			withRecommendation("Upgrade to Go 1.24 or later")
	}
	return newCheckResult("Go Version", StatusOK, version)
}

func checkConfiguration(cfg *config.Config, err error) CheckResult {
	const name = "Configuration"
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).
			withRecommendation("Check " + config.ConfigFileName + " syntax or run 'dugout init'")
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("Driver: %s, undo after completion: %t",
		cfg.Database.Driver, cfg.Undo.AllowAfterCompletion))
}

func checkDatabaseConnection(cfg *config.Config) CheckResult {
	const name = "Database Connection"
	if cfg.Database.Driver == config.DriverMemory {
		return newCheckResult(name, StatusWarning, "Using in-memory driver, matches are not persisted").
			withRecommendation("Use the sqlite or postgres driver to keep matches")
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	factory, err := NewAdapterFactory(cfg)
	if err != nil {
		return newCheckResult(name, StatusWarning, err.Error()).withRecommendation("Set DATABASE_URL environment variable")
	}
	b, err := factory.Open(ctx)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Verify database credentials")
	}
	defer b.Close()

	start := time.Now()
	if err := b.Store.Ping(ctx); err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Check database server status")
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("%s %s (%s)", b.Driver, b.Target, time.Since(start).Round(time.Microsecond)))
}

func checkSchema(cfg *config.Config) CheckResult {
	const name = "Schema"
	if cfg.Database.Driver == config.DriverMemory {
		return newCheckResult(name, StatusOK, "Skipped (memory driver)")
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	factory, err := NewAdapterFactory(cfg)
	if err != nil {
		return newCheckResult(name, StatusWarning, "Skipped (no database URL)")
	}
	b, err := factory.Open(ctx)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Check database connection")
	}
	defer b.Close()

	v, err := b.SchemaVersion(ctx)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Check database permissions")
	}
	if v == 0 {
		return newCheckResult(name, StatusWarning, "Tables are missing").withRecommendation("Run 'dugout migrate up' to create tables")
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("Version %d", v))
}

func checkNotifications(cfg *config.Config) CheckResult {
	const name = "Notifications"
	routes := cfg.Notify.Routes
	if len(routes) == 0 {
		return newCheckResult(name, StatusOK, "No routes configured")
	}
	n, err := buildNotifier(cfg, dugout.NopLogger(), nil)
	if err != nil {
		return newCheckResult(name, StatusError, err.Error()).withRecommendation("Fix notify.routes in " + config.ConfigFileName)
	}
	_ = n.Close()
	kinds := make([]string, 0, len(routes))
	for _, r := range routes {
		kind, _, _ := strings.Cut(r.Destination, ":")
		kinds = append(kinds, kind)
	}
	return newCheckResult(name, StatusOK, fmt.Sprintf("%d route(s): %s", len(routes), strings.Join(kinds, ", ")))
}

func checkSystemResources() CheckResult {
	const name = "System Resources"
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	allocMB := float64(m.Alloc) / 1024 / 1024
	sysMB := float64(m.Sys) / 1024 / 1024
	message := fmt.Sprintf("Memory: %.1f MB used, %.1f MB total", allocMB, sysMB)

	if allocMB > 500 {
		return newCheckResult(name, StatusWarning, message).withRecommendation("Consider optimizing memory usage")
	}
	return newCheckResult(name, StatusOK, message)
}

// NewVersionCommand creates the version command
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			fmt.Fprintln(out, ui.Banner())
			fmt.Fprintln(out)
			fmt.Fprintln(out, styles.FormatKeyValue("Version", version))
			fmt.Fprintln(out, styles.FormatKeyValue("Commit", commit))
			fmt.Fprintln(out, styles.FormatKeyValue("Built", date))
			fmt.Fprintln(out, styles.FormatKeyValue("Library", dugout.Version()))
			fmt.Fprintln(out, styles.FormatKeyValue("Go", runtime.Version()))
			fmt.Fprintln(out, styles.FormatKeyValue("OS/Arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)))
			return nil
		},
	}
}
