package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "dugout.db", cfg.Database.Path)
	assert.False(t, cfg.Undo.AllowAfterCompletion)
	assert.Equal(t, 10*time.Second, cfg.Notify.Webhook.Timeout)
	assert.Empty(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*Config)
		wantErrors int
	}{
		{"memory driver", func(c *Config) { c.Database.Driver = DriverMemory }, 0},
		{"postgres with url", func(c *Config) { c.Database.Driver = DriverPostgres; c.Database.URL = "postgres://localhost/db" }, 0},
		{"postgres without url", func(c *Config) { c.Database.Driver = DriverPostgres }, 1},
		{"missing driver", func(c *Config) { c.Database.Driver = "" }, 1},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, 1},
		{"sqlite without path", func(c *Config) { c.Database.Path = " " }, 1},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, 1},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, 1},
		{"routes", func(c *Config) {
			c.Notify.Routes = []RouteConfig{
				{Destination: "webhook:https://example.com"},
				{Destination: "kafka:scores"},
				{Destination: "sns:arn:aws:sns:us-east-1:1:scores"},
				{Destination: "smtp:ops@example.com"},
				{Destination: "nowhere"},
			}
		}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Len(t, cfg.Validate(), tt.wantErrors, cfg.Validate())
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Database.Driver = DriverMemory
	cfg.Undo.AllowAfterCompletion = true
	cfg.Notify.Routes = []RouteConfig{{Destination: "kafka:scores", Actions: []string{"AT_BAT"}}}

	require.NoError(t, cfg.Save(dir))
	assert.True(t, Exists(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, loaded.Database.Driver)
	assert.True(t, loaded.Undo.AllowAfterCompletion)
	assert.Equal(t, []string{"AT_BAT"}, loaded.Notify.Routes[0].Actions)
	assert.Equal(t, 10*time.Second, loaded.Notify.Webhook.Timeout)
}

func TestLoadFile_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)

	require.NoError(t, os.WriteFile(path, []byte("log: [\n"), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, DefaultConfig().Save(root))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, cfg, err := FindConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)
	assert.NotNil(t, cfg)

	_, _, err = FindConfig(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolve_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DUGOUT_DB_DRIVER", "postgres")
	t.Setenv("DUGOUT_DB_URL", "postgres://u:p@db/scores")
	t.Setenv("DUGOUT_UNDO_ALLOW_AFTER_COMPLETION", "true")
	t.Setenv("DUGOUT_NOTIFY_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DUGOUT_HTTP_ALLOWED_ORIGINS", "http://a,http://b")

	cfg, root, err := Resolve(dir)
	require.NoError(t, err)
	assert.Empty(t, root)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@db/scores", cfg.Database.URL)
	assert.True(t, cfg.Undo.AllowAfterCompletion)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.Kafka.Brokers)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("DUGOUT_METRICS_ENABLED", "maybe")
	err := ApplyEnv(DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestGenerateYAML(t *testing.T) {
	out := GenerateYAML(DefaultConfig())
	assert.Contains(t, out, `driver: "sqlite"`)
	assert.Contains(t, out, "allow_after_completion: false")
	assert.Contains(t, out, `brokers: ["localhost:9092"]`)
}
