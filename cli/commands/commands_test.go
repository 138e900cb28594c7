package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	dugout "github.com/AshkanYarmoradi/go-dugout"
	"github.com/AshkanYarmoradi/go-dugout/cli/config"
	"github.com/AshkanYarmoradi/go-dugout/game"
	"github.com/AshkanYarmoradi/go-dugout/scorebook"
	"github.com/AshkanYarmoradi/go-dugout/testing/testutil"
)

// ============================================================================
// Test Helpers
// ============================================================================

// testEnv is a temporary directory holding dugout.yaml and an sqlite file.
type testEnv struct {
	t          *testing.T
	dir        string
	configPath string
	cfg        *config.Config
}

type configOption func(*config.Config)

func withDriver(driver string) configOption {
	return func(c *config.Config) {
		c.Database.Driver = driver
	}
}

func withCompletedMatchUndo() configOption {
	return func(c *config.Config) {
		c.Undo.AllowAfterCompletion = true
	}
}

func setupTestEnv(t *testing.T, opts ...configOption) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "dugout.db")
	cfg.Log.Level = "error"
	for _, opt := range opts {
		opt(cfg)
	}
	path := filepath.Join(dir, config.ConfigFileName)
	require.NoError(t, cfg.SaveFile(path))
	return &testEnv{t: t, dir: dir, configPath: path, cfg: cfg}
}

// run executes the root command with args and returns stdout.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--no-color", "--config", e.configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "dugout %s", strings.Join(args, " "))
	return out
}

// writeSetup writes a match setup for a managed home team with a full
// opponent roster.
func (e *testEnv) writeSetup() string {
	e.t.Helper()
	opp := testutil.NinePlayerRoster("Otters")
	setup := scorebook.MatchSetup{
		AwayTeam:       "Otters",
		HomeTeam:       "Herons",
		ManagedSide:    game.Home,
		Roster:         testutil.WithBench(testutil.NinePlayerRoster("Herons"), "Sub"),
		OpponentRoster: &opp,
	}
	data, err := yaml.Marshal(setup)
	require.NoError(e.t, err)
	path := filepath.Join(e.dir, "setup.yaml")
	require.NoError(e.t, os.WriteFile(path, data, 0o644))
	return path
}

func getSubcommandNames(cmd *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	return names
}

// ============================================================================
// Command tree
// ============================================================================

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "dugout", cmd.Use)
	assert.True(t, cmd.SilenceUsage)

	names := getSubcommandNames(cmd)
	for _, want := range []string{"init", "match", "serve", "migrate", "diagnose", "version"} {
		assert.True(t, names[want], "missing %s", want)
	}

	for _, flag := range []string{"no-color", "config", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing --%s", flag)
	}
}

func TestNewMatchCommand(t *testing.T) {
	cmd := NewMatchCommand(&globalFlags{})
	names := getSubcommandNames(cmd)
	for _, want := range []string{"start", "show", "history", "at-bat", "sub", "end-half", "end", "adjust", "undo", "redo"} {
		assert.True(t, names[want], "missing match %s", want)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand("1.2.3", "abc123", "2026-01-01")
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "1.2.3")
	assert.Contains(t, out.String(), "abc123")
	assert.Contains(t, out.String(), dugout.Version())
}

// ============================================================================
// Match lifecycle through the CLI
// ============================================================================

func TestMatchCommands_Lifecycle(t *testing.T) {
	env := setupTestEnv(t)
	setup := env.writeSetup()

	out := env.mustRun("match", "start", "-f", setup, "--id", "m1")
	assert.Contains(t, out, "Match started")
	assert.Contains(t, out, "m1")

	out = env.mustRun("match", "at-bat", "m1", "double")
	assert.Contains(t, out, "#2")

	out = env.mustRun("match", "history", "m1")
	assert.Contains(t, out, string(scorebook.ActionGameStart))
	assert.Contains(t, out, string(scorebook.ActionAtBat))
	assert.Contains(t, out, "Undoable")

	out = env.mustRun("match", "undo", "m1")
	assert.Contains(t, out, "Undo 1 action(s)")

	out = env.mustRun("match", "redo", "m1")
	assert.Contains(t, out, "Redo 1 action(s)")

	out = env.mustRun("match", "redo", "m1")
	assert.Contains(t, out, "No actions available to redo")

	out = env.mustRun("match", "show", "m1", "--lineups")
	assert.Contains(t, out, "Otters")
	assert.Contains(t, out, "Herons")
}

func TestMatchCommands_PartialUndo(t *testing.T) {
	env := setupTestEnv(t)
	env.mustRun("match", "start", "-f", env.writeSetup(), "--id", "m1")
	env.mustRun("match", "at-bat", "m1", "single")

	out := env.mustRun("match", "undo", "m1", "-n", "5", "--yes")
	assert.Contains(t, out, "requested 5, only 2 available")
}

func TestMatchCommands_OtherActions(t *testing.T) {
	env := setupTestEnv(t, withCompletedMatchUndo())
	env.mustRun("match", "start", "-f", env.writeSetup(), "--id", "m1")

	out := env.mustRun("match", "adjust", "m1", "--side", "home", "--delta", "2", "--reason", "scorer correction")
	assert.Contains(t, out, "#2")

	out = env.mustRun("match", "sub", "m1", "--side", "home", "--slot", "1", "--player", "Herons-sub", "--position", "p")
	assert.Contains(t, out, "#3")

	env.mustRun("match", "end-half", "m1")
	env.mustRun("match", "end", "m1", "--reason", "rain")

	_, err := env.run("match", "at-bat", "m1", "single")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match is completed")

	out = env.mustRun("match", "undo", "m1")
	assert.Contains(t, out, "Undo 1 action(s)")
}

func TestMatchCommands_Errors(t *testing.T) {
	env := setupTestEnv(t)
	env.mustRun("match", "start", "-f", env.writeSetup(), "--id", "m1")

	_, err := env.run("match", "at-bat", "m1", "bunt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dugout.ErrValidationFailed))
	assert.Contains(t, err.Error(), "unknown at-bat result bunt")

	_, err = env.run("match", "show", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dugout.ErrNotFound))

	_, err = env.run("match", "start", "-f", env.writeSetup(), "--id", "m1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, scorebook.ErrMatchExists))

	_, err = env.run("match", "start", "-f", filepath.Join(env.dir, "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read setup")
}

func TestMatchCommands_IdempotencyKeyAcrossInvocations(t *testing.T) {
	env := setupTestEnv(t)
	env.mustRun("match", "start", "-f", env.writeSetup(), "--id", "m1")

	out := env.mustRun("match", "at-bat", "m1", "single", "--key", "pitch-17")
	assert.Contains(t, out, "#2")

	out = env.mustRun("match", "at-bat", "m1", "single", "--key", "pitch-17")
	assert.Contains(t, out, "Already processed")

	out = env.mustRun("match", "history", "m1")
	assert.Equal(t, 1, strings.Count(out, string(scorebook.ActionAtBat)))
}

// ============================================================================
// init, migrate, diagnose
// ============================================================================

func TestInitCommand_NonInteractive(t *testing.T) {
	dir := t.TempDir()
	cmd := NewInitCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{dir, "--non-interactive", "--driver", "postgres", "--url", "postgres://localhost/dugout", "--allow-undo-after-completion"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Created dugout.yaml")
	assert.Contains(t, out.String(), "dugout migrate up")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/dugout", cfg.Database.URL)
	assert.True(t, cfg.Undo.AllowAfterCompletion)

	out.Reset()
	cmd = NewInitCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{dir, "--non-interactive"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "already exists")
}

func TestInitCommand_RejectsBadDriver(t *testing.T) {
	cmd := NewInitCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{t.TempDir(), "--non-interactive", "--driver", "mysql"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestMigrateCommands(t *testing.T) {
	env := setupTestEnv(t)

	out := env.mustRun("migrate", "up")
	assert.Contains(t, out, "Schema is at version 1")

	out = env.mustRun("migrate", "status")
	assert.Contains(t, out, "sqlite")
	assert.Contains(t, out, "applied")

	mem := setupTestEnv(t, withDriver(config.DriverMemory))
	out = mem.mustRun("migrate", "up")
	assert.Contains(t, out, "doesn't require migrations")
}

func TestDiagnoseCommand(t *testing.T) {
	env := setupTestEnv(t)
	out := env.mustRun("diagnose")
	assert.Contains(t, out, "Configuration")
	assert.Contains(t, out, "Database Connection")
	assert.Contains(t, out, "Version 1")
	assert.Contains(t, out, "No routes configured")
}

func TestDiagnoseCommand_BadConfig(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, os.WriteFile(env.configPath, []byte("database: [unclosed"), 0o644))
	out := env.mustRun("diagnose")
	assert.Contains(t, out, "FAILED")
	assert.NotContains(t, out, "Database Connection")
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	env := setupTestEnv(t)
	f := &globalFlags{configPath: env.configPath, logLevel: "debug"}
	cfg, err := f.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	t.Setenv("DUGOUT_DB_DRIVER", "memory")
	cfg, err = f.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.DriverMemory, cfg.Database.Driver)

	f.logLevel = "loud"
	_, err = f.loadConfig()
	assert.Error(t, err)
}

// ============================================================================
// Runtime wiring
// ============================================================================

type fakeSNS struct {
	mu     sync.Mutex
	inputs []*awssns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *awssns.PublishInput, _ ...func(*awssns.Options)) (*awssns.PublishOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return &awssns.PublishOutput{}, nil
}

func (f *fakeSNS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func newSetup() scorebook.MatchSetup {
	opp := testutil.NinePlayerRoster("Otters")
	return scorebook.MatchSetup{
		MatchID:        "m1",
		AwayTeam:       "Otters",
		HomeTeam:       "Herons",
		ManagedSide:    game.Home,
		Roster:         testutil.NinePlayerRoster("Herons"),
		OpponentRoster: &opp,
	}
}

func TestOpenRuntime_FullStack(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []map[string]interface{}
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	traceFile := filepath.Join(t.TempDir(), "spans.json")
	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverMemory
	cfg.Metrics.Enabled = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Output = traceFile
	cfg.Notify.Routes = []config.RouteConfig{
		{Destination: "webhook:" + hook.URL, ScoreOnly: true},
		{Destination: "sns:arn:aws:sns:us-east-1:123456789012:scores", Actions: []string{"at_bat"}},
	}
	cfg.Notify.SNS.Region = "us-east-1"

	client := &fakeSNS{}
	ctx := context.Background()
	rt, err := OpenRuntime(ctx, cfg, WithLogOutput(io.Discard), WithSNSClient(client))
	require.NoError(t, err)

	res, err := rt.Dispatch(ctx, scorebook.InitializeMatch{Setup: newSetup()})
	require.NoError(t, err)
	require.True(t, res.IsSuccess())

	// Leadoff home run changes the score and is an at-bat.
	res, err = rt.Dispatch(ctx, scorebook.RecordAtBat{MatchID: "m1", Result: game.HomeRun})
	require.NoError(t, err)
	require.True(t, res.IsSuccess())

	mu.Lock()
	assert.Len(t, payloads, 1)
	mu.Unlock()
	assert.Equal(t, 1, client.count())

	families, err := rt.Registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["dugout_commands_total"])
	assert.True(t, names["dugout_actions_recorded_total"])

	require.NoError(t, rt.Close())
	data, err := os.ReadFile(traceFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "RecordAtBat")
}

func TestOpenRuntime_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverPostgres
	cfg.Database.URL = ""
	_, err := OpenRuntime(context.Background(), cfg, WithLogOutput(io.Discard))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	cfg = config.DefaultConfig()
	cfg.Log.Format = "xml"
	_, err = OpenRuntime(context.Background(), cfg, WithLogOutput(io.Discard))
	assert.Error(t, err)
}

func TestOpenRuntime_ReleasesBackendOnLateFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "dugout.db")
	cfg.Tracing.Enabled = true
	cfg.Tracing.Output = filepath.Join(t.TempDir(), "missing", "spans.json")

	var rt *Runtime
	var err error
	require.NotPanics(t, func() {
		rt, err = OpenRuntime(context.Background(), cfg, WithLogOutput(io.Discard))
	})
	require.Error(t, err)
	assert.Nil(t, rt)
	assert.Contains(t, err.Error(), "open trace output")

	// The sqlite file was closed, so it can be opened again.
	cfg.Tracing.Enabled = false
	rt, err = OpenRuntime(context.Background(), cfg, WithLogOutput(io.Discard))
	require.NoError(t, err)
	require.NoError(t, rt.Close())
}

func TestBuildNotifier(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Notify.Routes = []config.RouteConfig{
		{Destination: "kafka:scores", Actions: []string{"AT_BAT", "game_end"}},
		{Destination: "kafka:all"},
	}
	n, err := buildNotifier(cfg, dugout.NopLogger(), nil)
	require.NoError(t, err)
	defer n.Close()

	routes := n.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, []scorebook.ActionType{scorebook.ActionAtBat, scorebook.ActionGameEnd}, routes[0].Actions)

	cfg.Notify.Routes = []config.RouteConfig{{Destination: "carrier-pigeon:coop"}}
	_, err = buildNotifier(cfg, dugout.NopLogger(), nil)
	assert.Error(t, err)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverMemory
	cfg.Metrics.Enabled = true
	rt, err := OpenRuntime(context.Background(), cfg, WithLogOutput(io.Discard))
	require.NoError(t, err)
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, rt, "127.0.0.1:0", func(string) { cancel() })
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
